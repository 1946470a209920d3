// Package batch runs the morphometrics pipeline over an ordered list of
// cities, persisting each city's table and moving on when one fails.
package batch

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/morpho-cli/internal/model"
)

// cityDoc is the YAML city list form.
type cityDoc struct {
	Cities []string `yaml:"cities"`
}

// ParseCityList reads a city list. Text lists hold one city per line; a
// line such as "Paris, France" or "Paris: rerun" keeps the part before
// the first comma or colon. Blank lines and lines starting with # are
// ignored. A document with a top-level "cities:" key is read as YAML.
func ParseCityList(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "batch: read city list")
	}
	if isYAMLList(data) {
		var doc cityDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, model.ConfigurationError("batch.citylist", eris.Wrap(err, "parse yaml city list"))
		}
		var out []string
		for _, c := range doc.Cities {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
		return out, nil
	}

	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name := line
		if i := strings.IndexAny(line, ",:"); i >= 0 {
			name = strings.TrimSpace(line[:i])
			zap.L().Debug("batch: city annotation",
				zap.String("city", name),
				zap.String("note", strings.TrimSpace(line[i+1:])),
			)
		}
		if name != "" {
			out = append(out, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "batch: scan city list")
	}
	return out, nil
}

func isYAMLList(data []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || line == "---" {
			continue
		}
		return strings.HasPrefix(line, "cities:")
	}
	return false
}

// ReadCityFile reads a city list from path. .xlsx workbooks use the first
// column of the first sheet; anything else goes through ParseCityList.
func ReadCityFile(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return readXLSXCities(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, model.ConfigurationError("batch.citylist", eris.Wrap(err, "open city list"))
	}
	defer f.Close() //nolint:errcheck
	return ParseCityList(f)
}

func readXLSXCities(path string) ([]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, model.ConfigurationError("batch.citylist", eris.Wrap(err, "open xlsx city list"))
	}
	if len(f.Sheets) == 0 {
		return nil, model.ConfigurationError("batch.citylist", eris.New("xlsx city list has no sheets"))
	}
	var out []string
	for i, row := range f.Sheets[0].Rows {
		if row == nil || len(row.Cells) == 0 {
			continue
		}
		name := strings.TrimSpace(row.Cells[0].String())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		if i == 0 && strings.EqualFold(name, "city") {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// FromStart returns cities from start onwards. An empty start returns
// the whole list.
func FromStart(cities []string, start string) ([]string, error) {
	if start == "" {
		return cities, nil
	}
	for i, c := range cities {
		if c == start {
			return cities[i:], nil
		}
	}
	return nil, model.ConfigurationError("batch.start", eris.Errorf("start city %q not in list", start))
}

// Next returns the city following current, if any.
func Next(cities []string, current string) (string, bool) {
	for i, c := range cities {
		if c == current {
			if i == len(cities)-1 {
				return "", false
			}
			return cities[i+1], true
		}
	}
	return "", false
}
