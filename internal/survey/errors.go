package survey

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Family sentinels. Every typed error below matches exactly one of them via errors.Is.
var (
	ErrSchema      = errors.New("schema error")
	ErrFatalSchema = errors.New("fatal schema error")
	ErrValidation  = errors.New("validation error")
	ErrDuplicate   = errors.New("duplicate")
	ErrPersistence = errors.New("persistence error")
	ErrNotFound    = errors.New("not found")
)

// SchemaError reports a survey whose stored definition cannot be loaded as a schema.
type SchemaError struct {
	SurveyID   int64
	QuestionID int64
	Reason     string
}

func (e *SchemaError) Error() string {
	if e.QuestionID > 0 {
		return fmt.Sprintf("survey %d question %d: %s", e.SurveyID, e.QuestionID, e.Reason)
	}
	return fmt.Sprintf("survey %d: %s", e.SurveyID, e.Reason)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// FatalSchemaError means the survey cannot be administered at all, e.g. it has no anchor date question.
type FatalSchemaError struct {
	SurveyID int64
	Reason   string
}

func (e *FatalSchemaError) Error() string {
	return fmt.Sprintf("survey %d cannot be administered: %s", e.SurveyID, e.Reason)
}

func (e *FatalSchemaError) Is(target error) bool { return target == ErrFatalSchema }

type MissingField struct {
	QuestionID int64 `json:"question_id"`
	Ordinal    int   `json:"ordinal"`
}

type RequiredFieldError struct {
	Missing []MissingField
}

func (e *RequiredFieldError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		parts = append(parts, fmt.Sprintf("#%d (question %d)", m.Ordinal, m.QuestionID))
	}
	return "required questions unanswered: " + strings.Join(parts, ", ")
}

func (e *RequiredFieldError) Is(target error) bool { return target == ErrValidation }

type DateFormatError struct {
	QuestionID int64
	Value      string
	Layout     string
}

func (e *DateFormatError) Error() string {
	return fmt.Sprintf("question %d: %q does not match date format %s", e.QuestionID, e.Value, e.Layout)
}

func (e *DateFormatError) Is(target error) bool { return target == ErrValidation }

type MissingAnchorDateError struct {
	QuestionID int64
}

func (e *MissingAnchorDateError) Error() string {
	return fmt.Sprintf("question %d: date taken is required", e.QuestionID)
}

func (e *MissingAnchorDateError) Is(target error) bool { return target == ErrValidation }

// MultiValueError reports more than one value for a single-valued question.
type MultiValueError struct {
	QuestionID int64
	Count      int
}

func (e *MultiValueError) Error() string {
	return fmt.Sprintf("question %d accepts one answer, got %d", e.QuestionID, e.Count)
}

func (e *MultiValueError) Is(target error) bool { return target == ErrValidation }

type InvalidOptionError struct {
	QuestionID int64
	Value      string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("question %d: %q is not one of its options", e.QuestionID, e.Value)
}

func (e *InvalidOptionError) Is(target error) bool { return target == ErrValidation }

type UnknownQuestionError struct {
	SurveyID   int64
	QuestionID int64
}

func (e *UnknownQuestionError) Error() string {
	return fmt.Sprintf("question %d is not part of survey %d", e.QuestionID, e.SurveyID)
}

func (e *UnknownQuestionError) Is(target error) bool { return target == ErrValidation }

// ExactDuplicateError is returned when a respondent with the same name (ignoring case) and type exists.
type ExactDuplicateError struct {
	Name       string
	Type       RespondentType
	ExistingID int64
}

func (e *ExactDuplicateError) Error() string {
	if e.ExistingID > 0 {
		return fmt.Sprintf("%s %q already exists as respondent %d", e.Type, e.Name, e.ExistingID)
	}
	return fmt.Sprintf("%s %q already exists", e.Type, e.Name)
}

func (e *ExactDuplicateError) Is(target error) bool { return target == ErrDuplicate }

type DuplicateAdministrationError struct {
	SurveyID     int64
	RespondentID int64
	ExistingID   int64
	DateTaken    time.Time
}

func (e *DuplicateAdministrationError) Error() string {
	if e.DateTaken.IsZero() {
		return fmt.Sprintf("respondent %d already completed survey %d (administration %d)", e.RespondentID, e.SurveyID, e.ExistingID)
	}
	return fmt.Sprintf("respondent %d already completed survey %d on %s (administration %d)",
		e.RespondentID, e.SurveyID, e.DateTaken.Format("2006-01-02"), e.ExistingID)
}

func (e *DuplicateAdministrationError) Is(target error) bool { return target == ErrDuplicate }

// PersistenceError wraps a store failure. It matches ErrPersistence and unwraps to the driver error.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }
