package sheet

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/contact-scraper/internal/model"
)

// DefaultCompanyHeader and DefaultCountryHeader are the column names looked
// up when no explicit column is given.
const (
	DefaultCompanyHeader = "Company"
	DefaultCountryHeader = "Country"
)

// companyAliases are tried in order when no column is named.
var companyAliases = []string{DefaultCompanyHeader, "Company Name", "Name"}

// headerWords mark a first row as a header when a cell equals one of them.
var headerWords = []string{"company", "company name", "name", "country"}

// LoadOptions selects columns from the input sheet.
type LoadOptions struct {
	// Column names the company column. Empty means a "Company" header,
	// falling back to the first column.
	Column string
	// CountryColumn names the optional country column. Defaults to
	// "Country"; a missing column is not an error.
	CountryColumn string
	// Header forces the first row to be treated as a header.
	Header bool
	// SheetIndex picks the worksheet of an xlsx file.
	SheetIndex int
}

// LoadFile reads company records from an .xlsx or .csv file.
func LoadFile(path string, opts LoadOptions) ([]model.CompanyRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sheet: read %s", path)
	}
	recs, err := Load(filepath.Base(path), data, opts)
	if err != nil {
		return nil, err
	}
	zap.L().Info("sheet: loaded companies",
		zap.String("path", path),
		zap.Int("companies", len(recs)),
	)
	return recs, nil
}

// Load parses an uploaded spreadsheet. name is only used to pick the
// format by extension; anything that is not .csv is read as xlsx.
func Load(name string, data []byte, opts LoadOptions) ([]model.CompanyRecord, error) {
	var (
		rows [][]string
		err  error
	)
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		rows, err = readCSV(bytes.NewReader(data))
	} else {
		rows, err = readXLSX(data, opts.SheetIndex)
	}
	if err != nil {
		return nil, err
	}
	return Records(rows, opts)
}

func readXLSX(data []byte, sheetIndex int) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: open xlsx")
	}
	if sheetIndex < 0 || sheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("sheet: sheet index %d out of range (file has %d sheets)", sheetIndex, len(f.Sheets))
	}
	sh := f.Sheets[sheetIndex]
	rows := make([][]string, 0, len(sh.Rows))
	for _, row := range sh.Rows {
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			if cell != nil {
				cells[j] = cell.String()
			}
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "sheet: parse csv")
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

// Records turns raw rows into company records. Row numbers are 1-based
// spreadsheet rows. Trailing blank rows are dropped; blank rows in the
// middle become records with an empty name so they show up as Skipped.
func Records(rows [][]string, opts LoadOptions) ([]model.CompanyRecord, error) {
	for len(rows) > 0 && blankRow(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	if len(rows) == 0 {
		return nil, eris.New("sheet: no rows")
	}

	countryHeader := opts.CountryColumn
	if countryHeader == "" {
		countryHeader = DefaultCountryHeader
	}

	header := opts.Header || opts.Column != "" || looksLikeHeader(rows[0])
	nameCol, countryCol := 0, -1
	start := 0
	if header {
		start = 1
		first := rows[0]
		switch {
		case opts.Column != "":
			nameCol = indexOf(first, opts.Column)
			if nameCol < 0 {
				return nil, eris.Errorf("sheet: column %q not found in header %q", opts.Column, strings.Join(first, ", "))
			}
		default:
			for _, alias := range companyAliases {
				if i := indexOf(first, alias); i >= 0 {
					nameCol = i
					break
				}
			}
		}
		if i := indexOf(first, countryHeader); i >= 0 && i != nameCol {
			countryCol = i
		}
	}

	recs := make([]model.CompanyRecord, 0, len(rows)-start)
	for i := start; i < len(rows); i++ {
		row := rows[i]
		rec := model.CompanyRecord{Row: i + 1, Name: strings.TrimSpace(cell(row, nameCol))}
		if countryCol >= 0 {
			rec.Country = strings.TrimSpace(cell(row, countryCol))
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func looksLikeHeader(row []string) bool {
	for _, c := range row {
		c = strings.ToLower(strings.TrimSpace(c))
		for _, w := range headerWords {
			if c == w {
				return true
			}
		}
	}
	return false
}

func indexOf(row []string, name string) int {
	name = strings.TrimSpace(name)
	for i, c := range row {
		if strings.EqualFold(strings.TrimSpace(c), name) {
			return i
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
