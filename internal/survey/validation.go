package survey

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Checked is what validation learned about a submission besides its acceptability.
type Checked struct {
	AnchorQuestionID int64
	// AnchorDate is zero when the anchor was left blank on the application survey.
	AnchorDate time.Time
}

// Validate runs every completeness and format rule against captured answers.
// It has no side effects. All validation failures are joined into one error;
// a fatal schema problem is returned alone.
func Validate(schema Schema, answers CapturedAnswers, rules Rules) (Checked, error) {
	anchor, ok := rules.AnchorQuestion(schema)
	if !ok {
		return Checked{}, &FatalSchemaError{SurveyID: schema.SurveyID, Reason: "no anchor date question"}
	}

	var errs []error
	checked := Checked{AnchorQuestionID: anchor.ID}

	raw := answers.Value(anchor.ID)
	switch {
	case raw == "":
		if !rules.IsApplication(schema.SurveyID) {
			errs = append(errs, &MissingAnchorDateError{QuestionID: anchor.ID})
		}
	default:
		d, err := rules.ParseDate(raw)
		if err != nil {
			errs = append(errs, &DateFormatError{QuestionID: anchor.ID, Value: raw, Layout: rules.layout()})
		} else {
			checked.AnchorDate = d
		}
	}

	if missing := missingRequired(schema, answers, rules); len(missing) > 0 {
		errs = append(errs, &RequiredFieldError{Missing: missing})
	}

	if err := checkKnownQuestions(schema, answers); err != nil {
		errs = append(errs, err)
	}
	for _, q := range schema.Questions {
		values := normalizeValues(answers[q.ID])
		if len(values) == 0 {
			continue
		}
		if err := checkShape(q, values); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return Checked{}, errors.Join(errs...)
	}
	return checked, nil
}

func missingRequired(schema Schema, answers CapturedAnswers, rules Rules) []MissingField {
	var missing []MissingField
	if rules.IsApplication(schema.SurveyID) {
		for _, q := range schema.Questions {
			if isBlank(answers[q.ID]) {
				missing = append(missing, MissingField{QuestionID: q.ID, Ordinal: q.Ordinal})
			}
		}
		return missing
	}
	for _, id := range rules.RequiredQuestionIDs {
		q, ok := schema.Question(id)
		if !ok {
			continue
		}
		if isBlank(answers[id]) {
			missing = append(missing, MissingField{QuestionID: q.ID, Ordinal: q.Ordinal})
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Ordinal < missing[j].Ordinal })
	return missing
}

func isBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
