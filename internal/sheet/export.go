package sheet

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/contact-scraper/internal/model"
)

// DefaultListSep joins emails and phones into one cell.
const DefaultListSep = ", "

// Columns is the output header.
var Columns = []string{"Company", "Website", "Emails", "Phones", "Status"}

// ExportOptions configures Export.
type ExportOptions struct {
	Format  Format
	ListSep string
	// WithErrors appends an Error column.
	WithErrors bool
	// SheetName names the xlsx worksheet.
	SheetName string
}

// Row is one exported record with list fields already joined.
type Row struct {
	Company string `json:"Company"`
	Website string `json:"Website"`
	Emails  string `json:"Emails"`
	Phones  string `json:"Phones"`
	Status  string `json:"Status"`
	Error   string `json:"Error,omitempty"`
}

// ToRow flattens a result for export.
func ToRow(r model.ContactResult, sep string) Row {
	if sep == "" {
		sep = DefaultListSep
	}
	return Row{
		Company: r.Company,
		Website: r.Website,
		Emails:  strings.Join(r.Emails, sep),
		Phones:  strings.Join(r.Phones, sep),
		Status:  string(r.Status),
		Error:   r.Error,
	}
}

func (r Row) cells(withErrors bool) []string {
	out := []string{r.Company, r.Website, r.Emails, r.Phones, r.Status}
	if withErrors {
		out = append(out, r.Error)
	}
	return out
}

func header(withErrors bool) []string {
	h := append([]string(nil), Columns...)
	if withErrors {
		h = append(h, "Error")
	}
	return h
}

// Export writes results to w in opts.Format.
func Export(w io.Writer, results []model.ContactResult, opts ExportOptions) error {
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = ToRow(r, opts.ListSep)
	}

	switch opts.Format {
	case FormatCSV:
		return writeCSV(w, rows, opts.WithErrors)
	case FormatJSON:
		return writeJSON(w, rows, opts.WithErrors)
	case FormatXLSX, "":
		return writeXLSX(w, rows, opts)
	}
	return eris.Errorf("sheet: unsupported format %q", opts.Format)
}

// ExportFile writes results to path. An empty opts.Format is taken from
// the file extension.
func ExportFile(path string, results []model.ContactResult, opts ExportOptions) error {
	if opts.Format == "" {
		opts.Format = FormatFromPath(path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "sheet: create %s", path)
	}
	if err := Export(f, results, opts); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "sheet: close %s", path)
}

func writeCSV(w io.Writer, rows []Row, withErrors bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header(withErrors)); err != nil {
		return eris.Wrap(err, "sheet: write csv header")
	}
	for _, r := range rows {
		if err := cw.Write(r.cells(withErrors)); err != nil {
			return eris.Wrap(err, "sheet: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "sheet: flush csv")
}

func writeJSON(w io.Writer, rows []Row, withErrors bool) error {
	if !withErrors {
		for i := range rows {
			rows[i].Error = ""
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(rows), "sheet: encode json")
}

func writeXLSX(w io.Writer, rows []Row, opts ExportOptions) error {
	name := opts.SheetName
	if name == "" {
		name = "Results"
	}
	f := xlsx.NewFile()
	sh, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrap(err, "sheet: add worksheet")
	}
	addRow(sh, header(opts.WithErrors))
	for _, r := range rows {
		addRow(sh, r.cells(opts.WithErrors))
	}
	return eris.Wrap(f.Write(w), "sheet: write xlsx")
}

func addRow(sh *xlsx.Sheet, values []string) {
	row := sh.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
