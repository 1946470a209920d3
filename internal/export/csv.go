package export

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
)

// WriteCSV writes f with a header row.
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Header()); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	rec := make([]string, 3+len(f.Columns))
	for _, r := range f.Rows {
		rec[0] = r.City
		rec[1] = strconv.Itoa(r.ID)
		rec[2] = r.Name
		for i, v := range r.Values {
			rec[3+i] = FormatValue(v)
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteCSVFile writes f to a new file at path.
func WriteCSVFile(path string, f *Frame) error {
	out, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create csv")
	}
	if err := WriteCSV(out, f); err != nil {
		out.Close() //nolint:errcheck
		return err
	}
	return eris.Wrap(out.Close(), "export: close csv")
}
