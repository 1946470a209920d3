package export

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "morphometrics"

// WriteXLSX saves f as a single-sheet workbook. Missing values are left
// as empty cells.
func WriteXLSX(path string, f *Frame) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range f.Header() {
		header.AddCell().SetString(h)
	}

	for _, r := range f.Rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.City)
		row.AddCell().SetInt(r.ID)
		row.AddCell().SetString(r.Name)
		for _, v := range r.Values {
			cell := row.AddCell()
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			cell.SetFloat(v)
		}
	}

	if err := file.Save(path); err != nil {
		return eris.Wrap(err, "export: save xlsx")
	}
	return nil
}
