package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"deptfunds/internal/core"
)

// Report is the content of a printable ledger report.
type Report struct {
	Title       string
	Subtitle    string
	Filters     core.ReportFilter
	Summary     core.FundSummary
	Rows        []core.LedgerRow
	GeneratedAt time.Time
}

type pdfColumn struct {
	header string
	width  float64
	align  string
	value  func(core.LedgerRow) string
}

var reportColumns = []pdfColumn{
	{"Date", 24, "L", func(r core.LedgerRow) string { return r.Date.Format("2006-01-02") }},
	{"Transaction ID", 40, "L", func(r core.LedgerRow) string { return r.TransactionID }},
	{"Department", 30, "L", func(r core.LedgerRow) string { return r.DepartmentName }},
	{"Purpose", 46, "L", func(r core.LedgerRow) string { return r.Purpose }},
	{"Status", 22, "L", func(r core.LedgerRow) string { return string(r.Status) }},
	{"Amount", 28, "R", func(r core.LedgerRow) string { return r.Amount.String() }},
}

// LedgerPDF renders the report as an A4 document: title block, fund
// summary, then the ledger table with the header repeated on every page.
func LedgerPDF(rep Report) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 14)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	generated := rep.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s  |  Page %d", generated.Format("2006-01-02 15:04"), pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for _, c := range reportColumns {
			pdf.CellFormat(c.width, 7, c.header, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, tr(rep.Title), "", 1, "C", false, 0, "")
	if rep.Subtitle != "" {
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 6, tr(rep.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, tr(rep.Filters.Label()), "", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 10)
	for _, line := range [][2]string{
		{"Allocated", rep.Summary.Allocated.Rs()},
		{"Utilized", rep.Summary.Utilized.Rs()},
		{"Balance", rep.Summary.Balance.Rs()},
	} {
		pdf.CellFormat(40, 6, line[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, line[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	header()
	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range rep.Rows {
		if pdf.GetY()+6 > pageH-bottom {
			pdf.AddPage()
			header()
		}
		for _, c := range reportColumns {
			text := tr(c.value(row))
			for len(text) > 0 && pdf.GetStringWidth(text) > c.width-2 {
				text = text[:len(text)-1]
			}
			pdf.CellFormat(c.width, 6, text, "1", 0, c.align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(rep.Rows) == 0 {
		pdf.CellFormat(0, 8, "No entries for the selected filters.", "", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report pdf: %w", err)
	}
	return buf.Bytes(), nil
}
