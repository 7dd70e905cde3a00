package apiresp

import (
	"encoding/json"
	"errors"
	"net/http"

	"surveyentry/internal/survey"

	"github.com/go-chi/chi/v5/middleware"
)

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type Meta struct {
	RequestID string `json:"request_id,omitempty"`
}

type Envelope struct {
	OK    bool          `json:"ok"`
	Data  any           `json:"data,omitempty"`
	Error *ErrorPayload `json:"error,omitempty"`
	Meta  Meta          `json:"meta"`
}

func WriteOK(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, Envelope{OK: true, Data: data})
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	write(w, r, status, Envelope{Error: &ErrorPayload{Code: codeFromStatus(status), Message: msg}})
}

// WriteFailure maps an error from the survey engine onto a status and error code.
// Unrecognized errors become internal_error without leaking their text.
func WriteFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code := Classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && code == "internal_error" {
		msg = "internal error"
	}
	write(w, r, status, Envelope{Error: &ErrorPayload{Code: code, Message: msg, Details: details(err)}})
}

func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, survey.ErrFatalSchema):
		return http.StatusInternalServerError, "fatal_schema_error"
	case errors.Is(err, survey.ErrSchema):
		return http.StatusInternalServerError, "schema_error"
	case errors.Is(err, survey.ErrValidation):
		return http.StatusUnprocessableEntity, "validation_error"
	case errors.Is(err, survey.ErrDuplicate):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, survey.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, survey.ErrPersistence):
		return http.StatusServiceUnavailable, "persistence_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

type fieldError struct {
	Kind       string `json:"kind"`
	QuestionID int64  `json:"question_id,omitempty"`
	Message    string `json:"message"`
	Missing    any    `json:"missing,omitempty"`
}

// details flattens joined validation errors so a front end can mark each question.
func details(err error) any {
	if !errors.Is(err, survey.ErrValidation) {
		return nil
	}
	var leaves []error
	var walk func(error)
	walk = func(e error) {
		if j, ok := e.(interface{ Unwrap() []error }); ok {
			for _, c := range j.Unwrap() {
				walk(c)
			}
			return
		}
		if u := errors.Unwrap(e); u != nil && !isTyped(e) {
			walk(u)
			return
		}
		leaves = append(leaves, e)
	}
	walk(err)

	out := make([]fieldError, 0, len(leaves))
	for _, e := range leaves {
		fe := fieldError{Message: e.Error()}
		switch v := e.(type) {
		case *survey.RequiredFieldError:
			fe.Kind, fe.Missing = "required", v.Missing
		case *survey.DateFormatError:
			fe.Kind, fe.QuestionID = "date_format", v.QuestionID
		case *survey.MissingAnchorDateError:
			fe.Kind, fe.QuestionID = "missing_date", v.QuestionID
		case *survey.MultiValueError:
			fe.Kind, fe.QuestionID = "multi_value", v.QuestionID
		case *survey.InvalidOptionError:
			fe.Kind, fe.QuestionID = "invalid_option", v.QuestionID
		case *survey.UnknownQuestionError:
			fe.Kind, fe.QuestionID = "unknown_question", v.QuestionID
		default:
			continue
		}
		out = append(out, fe)
	}
	return out
}

func isTyped(e error) bool {
	switch e.(type) {
	case *survey.RequiredFieldError, *survey.DateFormatError, *survey.MissingAnchorDateError,
		*survey.MultiValueError, *survey.InvalidOptionError, *survey.UnknownQuestionError:
		return true
	}
	return false
}

func write(w http.ResponseWriter, r *http.Request, status int, res Envelope) {
	res.Meta = Meta{RequestID: middleware.GetReqID(r.Context())}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

func codeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		if status >= 200 && status < 300 {
			return ""
		}
		return "error"
	}
}
