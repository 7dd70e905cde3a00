package apiresp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"surveyentry/internal/survey"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "validation", err: &survey.DateFormatError{QuestionID: 96}, status: http.StatusUnprocessableEntity, code: "validation_error"},
		{name: "joined validation", err: errors.Join(&survey.RequiredFieldError{}, &survey.MultiValueError{}), status: http.StatusUnprocessableEntity, code: "validation_error"},
		{name: "duplicate", err: fmt.Errorf("create: %w", &survey.DuplicateAdministrationError{}), status: http.StatusConflict, code: "duplicate"},
		{name: "schema", err: &survey.SchemaError{SurveyID: 1}, status: http.StatusInternalServerError, code: "schema_error"},
		{name: "fatal schema", err: &survey.FatalSchemaError{SurveyID: 1}, status: http.StatusInternalServerError, code: "fatal_schema_error"},
		{name: "persistence", err: &survey.PersistenceError{Op: "x", Err: errors.New("down")}, status: http.StatusServiceUnavailable, code: "persistence_error"},
		{name: "not found", err: fmt.Errorf("respondent 1: %w", survey.ErrNotFound), status: http.StatusNotFound, code: "not_found"},
		{name: "other", err: errors.New("weird"), status: http.StatusInternalServerError, code: "internal_error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, code := Classify(tc.err)
			if status != tc.status || code != tc.code {
				t.Fatalf("expected %d/%s, got %d/%s", tc.status, tc.code, status, code)
			}
		})
	}
}

func TestWriteFailureListsValidationDetails(t *testing.T) {
	err := fmt.Errorf("validate: %w", errors.Join(
		&survey.DateFormatError{QuestionID: 96, Value: "1/1/21", Layout: survey.DefaultDateLayout},
		&survey.RequiredFieldError{Missing: []survey.MissingField{{QuestionID: 91, Ordinal: 1}}},
	))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/administrations", nil)
	w := httptest.NewRecorder()
	WriteFailure(w, req, err)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	var body struct {
		OK    bool `json:"ok"`
		Error struct {
			Code    string `json:"code"`
			Details []struct {
				Kind       string `json:"kind"`
				QuestionID int64  `json:"question_id"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.OK || body.Error.Code != "validation_error" || len(body.Error.Details) != 2 {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
	if body.Error.Details[0].Kind != "date_format" || body.Error.Details[0].QuestionID != 96 {
		t.Fatalf("unexpected first detail %+v", body.Error.Details[0])
	}
}

func TestWriteFailureHidesInternalText(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	WriteFailure(w, req, errors.New("pq: secret detail"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var env Envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	if env.Error == nil || env.Error.Message != "internal error" {
		t.Fatalf("expected generic message, got %s", w.Body.String())
	}
}
