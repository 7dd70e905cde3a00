package survey

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type RespondentType int

const (
	RespondentStudent RespondentType = 1
	RespondentParent  RespondentType = 2
	RespondentMentor  RespondentType = 3
)

func (t RespondentType) Valid() bool {
	return t >= RespondentStudent && t <= RespondentMentor
}

func (t RespondentType) String() string {
	switch t {
	case RespondentStudent:
		return "Student"
	case RespondentParent:
		return "Parent"
	case RespondentMentor:
		return "Mentor"
	default:
		return "Respondent(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseRespondentType accepts a numeric code or a type name in any case.
func ParseRespondentType(s string) (RespondentType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		t := RespondentType(n)
		if t.Valid() {
			return t, nil
		}
		return 0, fmt.Errorf("unknown respondent type %d", n)
	}
	switch s {
	case "student":
		return RespondentStudent, nil
	case "parent":
		return RespondentParent, nil
	case "mentor":
		return RespondentMentor, nil
	}
	return 0, fmt.Errorf("unknown respondent type %q", s)
}

type Survey struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type AnswerOption struct {
	ID      int64  `json:"id"`
	Text    string `json:"text"`
	Ordinal int    `json:"ordinal"`
}

// QuestionRef is a question as listed for a survey, before its type and options are resolved.
type QuestionRef struct {
	ID      int64
	Text    string
	Ordinal int
}

type Question struct {
	ID      int64          `json:"id"`
	Text    string         `json:"text"`
	Ordinal int            `json:"ordinal"`
	Type    QuestionType   `json:"type"`
	Options []AnswerOption `json:"options,omitempty"`
}

type Schema struct {
	SurveyID  int64      `json:"survey_id"`
	Questions []Question `json:"questions"`
}

func (s Schema) Question(id int64) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

type Respondent struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name"`
	Type     RespondentType `json:"type"`
	District string         `json:"district,omitempty"`
	Cohort   string         `json:"cohort,omitempty"`
}

type Administration struct {
	ID           int64      `json:"id"`
	SurveyID     int64      `json:"survey_id"`
	RespondentID int64      `json:"respondent_id"`
	DateTaken    time.Time  `json:"date_taken"`
	DateEntered  time.Time  `json:"date_entered"`
	LastUpdated  *time.Time `json:"last_updated,omitempty"`
}

// TakenSurvey is an administration joined with its survey name, as listed per respondent.
type TakenSurvey struct {
	AdministrationID int64     `json:"administration_id"`
	SurveyID         int64     `json:"survey_id"`
	SurveyName       string    `json:"survey_name"`
	DateTaken        time.Time `json:"date_taken"`
}

type ResponseRow struct {
	AdministrationID int64  `json:"administration_id"`
	QuestionID       int64  `json:"question_id"`
	RespondentID     int64  `json:"respondent_id"`
	Answer           string `json:"answer"`
}

// CapturedAnswers maps question id to the values captured for it.
// Single-valued questions carry at most one non-empty value.
type CapturedAnswers map[int64][]string

// Value returns the first non-blank value captured for a question.
func (c CapturedAnswers) Value(questionID int64) string {
	for _, v := range c[questionID] {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// SameDay reports whether two timestamps fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
