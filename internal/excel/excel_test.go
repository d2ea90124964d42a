package excel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"placement-credit-sync/internal/model"
	"placement-credit-sync/pkg/errors"
)

func workbook(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

var header = []interface{}{"student_id", "course", "outcome", "exam_date", "serial_nbr", "version", "exam_source"}

func TestParseResults(t *testing.T) {
	data := workbook(t,
		header,
		[]interface{}{"823456789", "M 117", "p", "2025-09-01", "1001", "V2", "PLCMT"},
		[]interface{}{"", "", "", "", "", "", ""},
		[]interface{}{"823456789", "M 100C", "C", "9/3/2025", "1002", "V2", "PLCMT"},
	)

	records, err := NewParser().Parse(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, model.CreditRecord{
		StudentID:    "823456789",
		CourseID:     "M 117",
		Outcome:      model.OutcomePlaced,
		ExamDate:     time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		SerialNumber: 1001,
		ExamVersion:  "V2",
		ExamSource:   "PLCMT",
	}, records[0])
	assert.True(t, time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC).Equal(records[1].ExamDate))
}

func TestParseRejectsMissingColumn(t *testing.T) {
	data := workbook(t,
		[]interface{}{"student_id", "course", "outcome"},
		[]interface{}{"823456789", "M 117", "P"},
	)

	_, err := NewParser().Parse(context.Background(), data)
	assert.ErrorIs(t, err, errors.ErrInvalidFileFormat)
}

func TestParseRejectsBadDate(t *testing.T) {
	data := workbook(t,
		header,
		[]interface{}{"823456789", "M 117", "P", "yesterday", "1", "V1", "S"},
	)

	_, err := NewParser().Parse(context.Background(), data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestParseRejectsNonWorkbook(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), []byte("student_id,course\n"))
	assert.ErrorIs(t, err, errors.ErrInvalidFileFormat)
}

func TestValidator(t *testing.T) {
	good := model.CreditRecord{
		StudentID: "823456789", CourseID: "M 100C", Outcome: model.OutcomeCredit,
		ExamDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	v := NewValidator()
	require.NoError(t, v.Validate(context.Background(), []model.CreditRecord{good}))

	assert.ErrorIs(t, v.Validate(context.Background(), nil), errors.ErrSchemaValidation)

	badCourse := good
	badCourse.CourseID = "MATH117"
	var verr errors.ValidationError
	require.ErrorAs(t, v.Validate(context.Background(), []model.CreditRecord{badCourse}), &verr)
	assert.Equal(t, "course", verr.Field)

	badID := good
	badID.StudentID = "82-345"
	require.ErrorAs(t, v.Validate(context.Background(), []model.CreditRecord{badID}), &verr)
	assert.Equal(t, "student_id", verr.Field)
}

func TestWriteReport(t *testing.T) {
	at := time.Date(2025, 9, 1, 13, 45, 0, 0, time.UTC)
	entries := []model.ScoreQueueEntry{
		{StudentKey: 812345678, TestCode: model.ChannelMC17, TestDate: at, Score: model.ScorePlaced, EnqueuedAt: at},
	}
	credits := []model.CreditRecord{
		{StudentID: "823456789", CourseID: "M 117", Outcome: model.OutcomeCredit, ExamDate: at, SerialNumber: 5, ExamVersion: "V1", ExamSource: "S"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, entries, credits))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{QueueSheet, CreditsSheet}, f.GetSheetList())

	rows, err := f.GetRows(QueueSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"812345678", "MC17", "2025-09-01 13:45:00", "1", "2025-09-01 13:45:00"}, rows[1])

	rows, err = f.GetRows(CreditsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "C", rows[1][2])
}

func TestWriteReportWithoutCredits(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, nil, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{QueueSheet}, f.GetSheetList())
}

func TestStrategyFor(t *testing.T) {
	s, err := StrategyFor("results/Fall-2025.XLSX")
	require.NoError(t, err)
	assert.IsType(t, &ExcelStrategy{}, s)

	_, err = StrategyFor("results/fall.csv")
	assert.ErrorIs(t, err, errors.ErrInvalidFileFormat)
}

func TestLoadValidatesRecords(t *testing.T) {
	data := workbook(t,
		header,
		[]interface{}{"823456789", "MATH 117", "P", "2025-09-01", "1001", "V2", "PLCMT"},
	)

	_, err := Load(context.Background(), NewExcelStrategy(), data)
	var verr errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "course", verr.Field)
}
