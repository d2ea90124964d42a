package excel

import (
	"fmt"
	"io"

	"placement-credit-sync/internal/model"

	"github.com/xuri/excelize/v2"
)

const (
	QueueSheet   = "Queue"
	CreditsSheet = "Credits"
)

var (
	queueHeader   = []interface{}{"student_key", "test_code", "test_date", "score", "enqueued_at"}
	creditsHeader = []interface{}{"student_id", "course", "outcome", "exam_date", "dt_cr_refused", "serial_nbr", "version", "exam_source"}
)

// WriteReport renders queued scores and, when credits is non-nil, a ledger
// sheet into an .xlsx workbook.
func WriteReport(w io.Writer, entries []model.ScoreQueueEntry, credits []model.CreditRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", QueueSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	rows := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []interface{}{
			e.StudentKey,
			string(e.TestCode),
			e.TestDate.UTC().Format("2006-01-02 15:04:05"),
			int(e.Score),
			e.EnqueuedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	if err := writeSheet(f, QueueSheet, queueHeader, rows); err != nil {
		return err
	}

	if credits != nil {
		if _, err := f.NewSheet(CreditsSheet); err != nil {
			return fmt.Errorf("failed to add sheet: %w", err)
		}

		rows = rows[:0]
		for _, c := range credits {
			refused := ""
			if c.RefusedDate != nil {
				refused = c.RefusedDate.Format("2006-01-02")
			}
			rows = append(rows, []interface{}{
				c.StudentID,
				c.CourseID,
				string(c.Outcome),
				c.ExamDate.Format("2006-01-02"),
				refused,
				c.SerialNumber,
				c.ExamVersion,
				c.ExamSource,
			})
		}
		if err := writeSheet(f, CreditsSheet, creditsHeader, rows); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	return nil
}
