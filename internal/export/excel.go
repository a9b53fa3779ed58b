// Package export renders ledger views as Excel workbooks and PDF reports.
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"deptfunds/internal/core"
)

const (
	ledgerSheet    = "Transactions"
	statementSheet = "Statement"
	columnWidth    = 20
)

// Column describes one spreadsheet column.
type Column struct {
	Header string
	Value  func(core.LedgerRow) any
}

// AdminLedgerColumns are the columns of the admin transaction export.
var AdminLedgerColumns = []Column{
	{"Date", func(r core.LedgerRow) any { return r.Date.Format("2006-01-02") }},
	{"Transaction ID", func(r core.LedgerRow) any { return r.TransactionID }},
	{"Department", func(r core.LedgerRow) any { return r.DepartmentName }},
	{"Bill No", func(r core.LedgerRow) any { return r.BillNo }},
	{"Purpose", func(r core.LedgerRow) any { return r.Purpose }},
	{"Status", func(r core.LedgerRow) any { return string(r.Status) }},
	{"Amount", func(r core.LedgerRow) any { return r.Amount.Float() }},
}

// StatementColumns are the columns of the HOD department statement.
var StatementColumns = []Column{
	{"Date", func(r core.LedgerRow) any { return r.Date.Format("2006-01-02") }},
	{"Bill No", func(r core.LedgerRow) any { return r.BillNo }},
	{"Description", func(r core.LedgerRow) any { return r.Purpose }},
	{"Amount", func(r core.LedgerRow) any { return r.Amount.Float() }},
	{"Status", func(r core.LedgerRow) any { return string(r.Status) }},
}

// AdminLedgerWorkbook renders every row with the admin columns.
func AdminLedgerWorkbook(rows []core.LedgerRow) ([]byte, error) {
	return Workbook(ledgerSheet, AdminLedgerColumns, rows)
}

// StatementWorkbook renders a department statement.
func StatementWorkbook(rows []core.LedgerRow) ([]byte, error) {
	return Workbook(statementSheet, StatementColumns, rows)
}

// Workbook writes a single-sheet xlsx with a bold header row.
func Workbook(sheet string, cols []Column, rows []core.LedgerRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for i, c := range cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, c.Header); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	for r, row := range rows {
		for i, c := range cols {
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, c.Value(row)); err != nil {
				return nil, fmt.Errorf("write row %d: %w", r+1, err)
			}
		}
	}

	last, err := excelize.ColumnNumberToName(len(cols))
	if err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last+"1", bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", last, columnWidth); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
