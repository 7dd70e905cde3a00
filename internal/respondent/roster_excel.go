package respondent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"surveyentry/internal/survey"

	"github.com/xuri/excelize/v2"
)

var ErrRosterFormat = errors.New("invalid roster file")

const (
	RosterCreated        = "created"
	RosterExactDuplicate = "exact_duplicate"
	RosterNeedsReview    = "needs_review"
	RosterInvalid        = "invalid"
)

type RosterRowResult struct {
	Row          int     `json:"row"`
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	RespondentID int64   `json:"respondent_id,omitempty"`
	MatchIDs     []int64 `json:"match_ids,omitempty"`
	Error        string  `json:"error,omitempty"`
}

type RosterImportReport struct {
	TotalRows   int               `json:"total_rows"`
	CreatedRows int               `json:"created_rows"`
	ReviewRows  int               `json:"review_rows"`
	FailedRows  int               `json:"failed_rows"`
	Rows        []RosterRowResult `json:"rows"`
}

// ImportRosterExcel runs every row of the first sheet through the duplicate gate.
// Rows resembling an existing respondent are reported, never created.
func (s *Service) ImportRosterExcel(ctx context.Context, r io.Reader) (*RosterImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open excel: %v", ErrRosterFormat, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrRosterFormat)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read rows: %v", ErrRosterFormat, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: no data rows found", ErrRosterFormat)
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"name", "type"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("%w: missing required column %s", ErrRosterFormat, col)
		}
	}

	report := &RosterImportReport{Rows: make([]RosterRowResult, 0, len(rows)-1)}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if get("name") == "" && get("type") == "" {
			continue
		}
		report.TotalRows++

		res := RosterRowResult{Row: i + 1, Name: get("name")}
		t, err := survey.ParseRespondentType(get("type"))
		if err != nil {
			res.Status = RosterInvalid
			res.Error = err.Error()
			report.FailedRows++
			report.Rows = append(report.Rows, res)
			continue
		}

		out, err := s.CreateRespondent(ctx, CreateInput{
			Name:     res.Name,
			Type:     t,
			District: get("district"),
			Cohort:   get("cohort"),
		})
		switch {
		case err == nil && out.Created:
			res.Status = RosterCreated
			res.RespondentID = out.Respondent.ID
			report.CreatedRows++
		case err == nil:
			res.Status = RosterNeedsReview
			for _, m := range out.Review.Matches {
				res.MatchIDs = append(res.MatchIDs, m.ID)
			}
			report.ReviewRows++
		case errors.Is(err, survey.ErrDuplicate):
			res.Status = RosterExactDuplicate
			res.Error = err.Error()
			report.FailedRows++
		case errors.Is(err, ErrInvalidName):
			res.Status = RosterInvalid
			res.Error = err.Error()
			report.FailedRows++
		default:
			return nil, fmt.Errorf("import row %d: %w", res.Row, err)
		}
		report.Rows = append(report.Rows, res)
	}
	return report, nil
}

// ExportRosterExcel writes respondents of one type to a workbook in the import layout.
func (s *Service) ExportRosterExcel(ctx context.Context, t survey.RespondentType) ([]byte, error) {
	if !t.Valid() {
		return nil, ErrInvalidType
	}
	items, err := s.store.FetchExistingRespondents(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("fetch respondents: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	headers := []string{"id", "name", "type", "district", "cohort"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, it := range items {
		values := []any{it.ID, it.Name, it.Type.String(), it.District, it.Cohort}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "E", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
