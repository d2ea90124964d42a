package excel

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"placement-credit-sync/internal/model"
	"placement-credit-sync/pkg/errors"

	"github.com/xuri/excelize/v2"
)

var requiredColumns = []string{"student_id", "course", "outcome", "exam_date", "serial_nbr", "version", "exam_source"}

// Date layouts accepted in the exam_date column, including the default
// rendering of spreadsheet date cells.
var dateLayouts = []string{"2006-01-02", "1/2/2006", "01-02-06", "1/2/06", time.RFC3339}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse reads exam results from the first worksheet of an .xlsx workbook.
func (p *Parser) Parse(ctx context.Context, data []byte) ([]model.CreditRecord, error) {
	// Create file from bytes
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFileFormat, err)
	}
	defer file.Close()

	// Get the first worksheet
	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ErrInvalidFileFormat
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	if len(rows) < 2 { // Header + at least one data row
		return nil, errors.ErrInvalidFileFormat
	}

	// Parse header to find column indices
	columnMap := make(map[string]int)
	for i, col := range rows[0] {
		columnMap[strings.ToLower(strings.TrimSpace(col))] = i
	}

	for _, col := range requiredColumns {
		if _, exists := columnMap[col]; !exists {
			return nil, fmt.Errorf("%w: missing required column: %s", errors.ErrInvalidFileFormat, col)
		}
	}

	records := make([]model.CreditRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}

		rec, err := p.parseRow(row, columnMap)
		if err != nil {
			return nil, fmt.Errorf("error parsing row %d: %w", i+2, err)
		}

		records = append(records, rec)
	}

	return records, nil
}

func (p *Parser) parseRow(row []string, columnMap map[string]int) (model.CreditRecord, error) {
	getValue := func(colName string) string {
		if idx, exists := columnMap[colName]; exists && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	examDate, err := parseDate(getValue("exam_date"))
	if err != nil {
		return model.CreditRecord{}, err
	}

	serial := int64(0)
	if s := getValue("serial_nbr"); s != "" {
		serial, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return model.CreditRecord{}, fmt.Errorf("invalid serial_nbr value: %s", s)
		}
	}

	return model.CreditRecord{
		StudentID:    getValue("student_id"),
		CourseID:     getValue("course"),
		Outcome:      model.Outcome(strings.ToUpper(getValue("outcome"))),
		ExamDate:     examDate,
		SerialNumber: serial,
		ExamVersion:  getValue("version"),
		ExamSource:   getValue("exam_source"),
	}, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("exam_date is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.DateOnly(t), nil
		}
	}
	// Unformatted date cells come through as serial day numbers.
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return model.DateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid exam_date value: %s", s)
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
