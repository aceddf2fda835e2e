package tracker

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExcelSource reads master tracker rows from an .xlsx workbook. The first
// row of the sheet is the header; every following row becomes one record.
type ExcelSource struct {
	Path  string
	Sheet string // optional; defaults to the first sheet
}

// NewExcelSource returns a source reading the first sheet of the workbook.
func NewExcelSource(path string) *ExcelSource {
	return &ExcelSource{Path: path}
}

// Rows implements Source.
func (s *ExcelSource) Rows() ([]Row, error) {
	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("tracker: open workbook %s: %w", s.Path, err)
	}
	defer func() { _ = f.Close() }()

	sheet := s.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("tracker: workbook %s has no sheets", s.Path)
		}
		sheet = sheets[0]
	}

	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("tracker: read sheet %s: %w", sheet, err)
	}
	if len(raw) < 2 {
		return nil, nil
	}

	headers := raw[0]
	rows := make([]Row, 0, len(raw)-1)
	for _, cells := range raw[1:] {
		row := make(Row, len(headers))
		empty := true
		for i, h := range headers {
			if h == "" {
				continue
			}
			var v string
			if i < len(cells) {
				v = cells[i]
			}
			if v != "" {
				empty = false
			}
			row[h] = v
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// WriteSampleWorkbook creates a starter master tracker so a fresh
// deployment has a structure to fill in.
func WriteSampleWorkbook(path string) error {
	headers := []string{"Permission_Type", "Permission_Name", "Pre_Requisites", "Criteria", "Priority_Level", "Auto_Grant"}
	samples := [][]string{
		{"Application Access", "Salesforce Access", "Department, Security Training", "Department matches, no security violations", "medium", "yes"},
		{"Application Access", "ServiceNow Access", "Department, Manager Approval", "Department matches, active employee", "medium", "yes"},
		{"System Access", "Linux Server Access", "IT Department, Security Clearance 2, Manager Approval", "IT role, clearance level 2+", "high", "no"},
		{"Database Access", "Production DB Read Access", "Database Training, Manager Approval, Security Clearance 3", "DBA or Developer role", "high", "no"},
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for rowIdx, sample := range samples {
		for col, v := range sample {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("tracker: write sample workbook: %w", err)
	}
	return nil
}
