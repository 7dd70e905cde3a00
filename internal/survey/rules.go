package survey

import (
	"slices"
	"strings"
	"time"
)

const DefaultDateLayout = "02/01/2006"

// Rules holds the survey-specific constants the engine checks against.
type Rules struct {
	ApplicationSurveyID       int64   `yaml:"application_survey_id"`
	AnchorQuestionIDs         []int64 `yaml:"anchor_question_ids"`
	RequiredQuestionIDs       []int64 `yaml:"required_question_ids"`
	LinkedStudentQuestionID   int64   `yaml:"linked_student_question_id"`
	RespondentNameQuestionIDs []int64 `yaml:"respondent_name_question_ids"`
	SelfReportSurveyIDs       []int64 `yaml:"self_report_survey_ids"`
	DistrictBackfillSurveyIDs []int64 `yaml:"district_backfill_survey_ids"`
	DateLayout                string  `yaml:"date_layout"`
}

func DefaultRules() Rules {
	return Rules{
		ApplicationSurveyID:       7,
		AnchorQuestionIDs:         []int64{96, 116},
		RequiredQuestionIDs:       []int64{91, 92, 93, 94, 95, 96},
		LinkedStudentQuestionID:   97,
		RespondentNameQuestionIDs: []int64{99, 100},
		SelfReportSurveyIDs:       []int64{1, 2, 3},
		DistrictBackfillSurveyIDs: []int64{4, 5, 6},
		DateLayout:                DefaultDateLayout,
	}
}

func (r Rules) IsApplication(surveyID int64) bool {
	return r.ApplicationSurveyID > 0 && surveyID == r.ApplicationSurveyID
}

func (r Rules) IsSelfReport(surveyID int64) bool {
	return slices.Contains(r.SelfReportSurveyIDs, surveyID)
}

func (r Rules) BackfillsDistrict(surveyID int64) bool {
	return slices.Contains(r.DistrictBackfillSurveyIDs, surveyID)
}

// AnchorQuestion returns the first configured anchor date question present in the schema.
func (r Rules) AnchorQuestion(schema Schema) (Question, bool) {
	for _, id := range r.AnchorQuestionIDs {
		if q, ok := schema.Question(id); ok {
			return q, true
		}
	}
	return Question{}, false
}

func (r Rules) layout() string {
	if strings.TrimSpace(r.DateLayout) == "" {
		return DefaultDateLayout
	}
	return r.DateLayout
}

// ParseDate parses an anchor value, requiring the exact digit widths of the layout.
func (r Rules) ParseDate(value string) (time.Time, error) {
	return time.Parse(r.layout(), strings.TrimSpace(value))
}

func (r Rules) FormatDate(t time.Time) string {
	return t.Format(r.layout())
}
