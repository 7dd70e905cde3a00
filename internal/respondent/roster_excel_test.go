package respondent

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"surveyentry/internal/survey"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func TestImportRosterExcel(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedParents(st)

	wb := buildWorkbook(t, [][]any{
		{"Name", "Type", "District", "Cohort"},
		{"Maria Lopez", "parent", "East", "2024"},
		{"john smith", "2", "", ""},
		{"Jon Smyth", "Parent", "", ""},
		{"Leo Ruiz", "teacher", "", ""},
		{"", "", "", ""},
		{"Leo Ruiz", "student", "", "2025"},
	})

	report, err := svc.ImportRosterExcel(context.Background(), wb)
	require.NoError(t, err)
	assert.Equal(t, 5, report.TotalRows)
	assert.Equal(t, 2, report.CreatedRows)
	assert.Equal(t, 1, report.ReviewRows)
	assert.Equal(t, 2, report.FailedRows)

	statuses := make([]string, 0, len(report.Rows))
	for _, r := range report.Rows {
		statuses = append(statuses, r.Status)
	}
	assert.Equal(t, []string{RosterCreated, RosterExactDuplicate, RosterNeedsReview, RosterInvalid, RosterCreated}, statuses)
	assert.Equal(t, []int64{1, 2}, report.Rows[2].MatchIDs)

	students, err := st.FetchExistingRespondents(context.Background(), survey.RespondentStudent)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "2025", students[0].Cohort)
}

func TestImportRosterExcelRejectsMissingColumns(t *testing.T) {
	svc, _, _ := newTestService(t)
	wb := buildWorkbook(t, [][]any{{"full_name"}, {"Ana"}})

	_, err := svc.ImportRosterExcel(context.Background(), wb)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRosterFormat))
}

func TestExportRosterExcelRoundTrip(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedParents(st)

	content, err := svc.ExportRosterExcel(context.Background(), survey.RespondentParent)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "name", "type", "district", "cohort"}, rows[0])
	assert.Equal(t, "John Smith", rows[1][1])
	assert.Equal(t, "Parent", rows[1][2])
}
