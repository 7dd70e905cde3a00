package survey

import (
	"sort"
	"strings"
)

// Encode flattens captured answers into response rows for the given respondent.
// Rows carry administration id 0 until BindAdministration stamps them inside the
// transaction that owns the administration.
func Encode(schema Schema, answers CapturedAnswers, respondentID int64) ([]ResponseRow, error) {
	if err := checkKnownQuestions(schema, answers); err != nil {
		return nil, err
	}

	rows := make([]ResponseRow, 0, len(schema.Questions))
	for _, q := range schema.Questions {
		values := normalizeValues(answers[q.ID])
		if len(values) == 0 {
			continue
		}
		if err := checkShape(q, values); err != nil {
			return nil, err
		}
		for _, v := range values {
			rows = append(rows, ResponseRow{
				QuestionID:   q.ID,
				RespondentID: respondentID,
				Answer:       v,
			})
		}
	}
	return rows, nil
}

// Decode groups stored rows back into captured answers keyed by question.
func Decode(rows []ResponseRow, schema Schema) (CapturedAnswers, error) {
	out := make(CapturedAnswers)
	for _, row := range rows {
		if _, ok := schema.Question(row.QuestionID); !ok {
			return nil, &UnknownQuestionError{SurveyID: schema.SurveyID, QuestionID: row.QuestionID}
		}
		out[row.QuestionID] = append(out[row.QuestionID], row.Answer)
	}
	for id, values := range out {
		q, _ := schema.Question(id)
		if !q.Type.Shape().MultiValued() && len(values) > 1 {
			return nil, &MultiValueError{QuestionID: id, Count: len(values)}
		}
	}
	return out, nil
}

// BindAdministration returns a copy of rows stamped with the administration id.
func BindAdministration(rows []ResponseRow, administrationID int64) []ResponseRow {
	out := make([]ResponseRow, len(rows))
	for i, row := range rows {
		row.AdministrationID = administrationID
		out[i] = row
	}
	return out
}

// normalizeValues trims values, drops blanks and collapses repeats, keeping first-seen order.
func normalizeValues(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func checkShape(q Question, values []string) error {
	shape := q.Type.Shape()
	if !shape.MultiValued() && len(values) > 1 {
		return &MultiValueError{QuestionID: q.ID, Count: len(values)}
	}
	if !shape.NeedsOptions {
		return nil
	}
	for _, v := range values {
		if !hasOption(q, v) {
			return &InvalidOptionError{QuestionID: q.ID, Value: v}
		}
	}
	return nil
}

func hasOption(q Question, value string) bool {
	for _, opt := range q.Options {
		if strings.TrimSpace(opt.Text) == value {
			return true
		}
	}
	return false
}

func checkKnownQuestions(schema Schema, answers CapturedAnswers) error {
	ids := make([]int64, 0, len(answers))
	for id, values := range answers {
		if len(normalizeValues(values)) == 0 {
			continue
		}
		if _, ok := schema.Question(id); !ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return &UnknownQuestionError{SurveyID: schema.SurveyID, QuestionID: ids[0]}
}
