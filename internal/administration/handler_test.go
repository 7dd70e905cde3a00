package administration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"surveyentry/internal/auth"
	"surveyentry/internal/survey"

	"github.com/go-chi/chi/v5"
)

type mockAdministrationService struct {
	entryFormFn func(ctx context.Context, surveyID, respondentID, linkedStudentID int64) (*EntryForm, error)
	prefillFn   func(ctx context.Context, administrationID int64) (*Prefill, error)
	submitFn    func(ctx context.Context, sub Submission) (*Result, error)
}

func (m *mockAdministrationService) EntryForm(ctx context.Context, surveyID, respondentID, linkedStudentID int64) (*EntryForm, error) {
	if m.entryFormFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.entryFormFn(ctx, surveyID, respondentID, linkedStudentID)
}

func (m *mockAdministrationService) PrefillFromAdministration(ctx context.Context, administrationID int64) (*Prefill, error) {
	if m.prefillFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.prefillFn(ctx, administrationID)
}

func (m *mockAdministrationService) SubmitAdministration(ctx context.Context, sub Submission) (*Result, error) {
	if m.submitFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.submitFn(ctx, sub)
}

func withChiParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateDecodesAnswers(t *testing.T) {
	var got Submission
	h := NewHandler(&mockAdministrationService{
		submitFn: func(ctx context.Context, sub Submission) (*Result, error) {
			got = sub
			return &Result{SubmissionID: "s-1", Administration: survey.Administration{ID: 12}}, nil
		},
	})

	body := []byte(`{"survey_id":4,"respondent_id":1,"linked_student_id":2,"answers":{"96":["03/11/2024"],"11":["Sports","Music"]}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/administrations", bytes.NewReader(body))
	req = req.WithContext(auth.ContextWithOperator(req.Context(), auth.Operator{ID: 8, Username: "clerk"}))
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	if got.Mode != ModeCreate || got.SurveyID != 4 || got.LinkedStudentID != 2 || got.OperatorID != 8 {
		t.Fatalf("unexpected submission %+v", got)
	}
	if len(got.Answers[11]) != 2 || got.Answers[96][0] != "03/11/2024" {
		t.Fatalf("unexpected answers %+v", got.Answers)
	}
}

func TestCreateValidationIsUnprocessable(t *testing.T) {
	h := NewHandler(&mockAdministrationService{
		submitFn: func(ctx context.Context, sub Submission) (*Result, error) {
			return nil, errors.Join(
				&survey.MissingAnchorDateError{QuestionID: 96},
				&survey.RequiredFieldError{Missing: []survey.MissingField{{QuestionID: 91, Ordinal: 1}}},
			)
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/administrations", bytes.NewReader([]byte(`{"survey_id":2,"respondent_id":1}`)))
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	var body struct {
		OK    bool `json:"ok"`
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.OK || body.Error.Code != "validation_error" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	h := NewHandler(&mockAdministrationService{
		submitFn: func(ctx context.Context, sub Submission) (*Result, error) {
			return nil, &survey.DuplicateAdministrationError{SurveyID: 4, RespondentID: 1, ExistingID: 3}
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/administrations", bytes.NewReader([]byte(`{"survey_id":4,"respondent_id":1}`)))
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestUpdateUsesPathID(t *testing.T) {
	var got Submission
	h := NewHandler(&mockAdministrationService{
		submitFn: func(ctx context.Context, sub Submission) (*Result, error) {
			got = sub
			return &Result{Administration: survey.Administration{ID: sub.AdministrationID}}, nil
		},
	})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/administrations/12", bytes.NewReader([]byte(`{"answers":{"96":["03/11/2024"]}}`)))
	req = withChiParam(req, "id", "12")
	w := httptest.NewRecorder()
	h.Update(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got.Mode != ModeEdit || got.AdministrationID != 12 {
		t.Fatalf("unexpected submission %+v", got)
	}
}

func TestUpdateRejectsInvalidID(t *testing.T) {
	h := NewHandler(&mockAdministrationService{})
	req := withChiParam(httptest.NewRequest(http.MethodPut, "/api/v1/administrations/x", bytes.NewReader([]byte(`{}`))), "id", "x")
	w := httptest.NewRecorder()
	h.Update(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestEntryFormQueryParams(t *testing.T) {
	var gotSurvey, gotRespondent, gotLinked int64
	h := NewHandler(&mockAdministrationService{
		entryFormFn: func(ctx context.Context, surveyID, respondentID, linkedStudentID int64) (*EntryForm, error) {
			gotSurvey, gotRespondent, gotLinked = surveyID, respondentID, linkedStudentID
			return &EntryForm{Survey: survey.Survey{ID: surveyID}}, nil
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/surveys/4/schema?respondent_id=1&linked_student_id=2", nil)
	req = withChiParam(req, "id", "4")
	w := httptest.NewRecorder()
	h.EntryForm(w, req)

	if w.Code != http.StatusOK || gotSurvey != 4 || gotRespondent != 1 || gotLinked != 2 {
		t.Fatalf("unexpected call code=%d survey=%d respondent=%d linked=%d", w.Code, gotSurvey, gotRespondent, gotLinked)
	}
}

func TestEntryFormSchemaErrorIsServerError(t *testing.T) {
	h := NewHandler(&mockAdministrationService{
		entryFormFn: func(ctx context.Context, surveyID, respondentID, linkedStudentID int64) (*EntryForm, error) {
			return nil, &survey.SchemaError{SurveyID: surveyID, Reason: "ordinals are not contiguous"}
		},
	})
	req := withChiParam(httptest.NewRequest(http.MethodGet, "/api/v1/surveys/4/schema", nil), "id", "4")
	w := httptest.NewRecorder()
	h.EntryForm(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestPrefillNotFound(t *testing.T) {
	h := NewHandler(&mockAdministrationService{
		prefillFn: func(ctx context.Context, administrationID int64) (*Prefill, error) {
			return nil, survey.ErrNotFound
		},
	})
	req := withChiParam(httptest.NewRequest(http.MethodGet, "/api/v1/administrations/5/prefill", nil), "id", "5")
	w := httptest.NewRecorder()
	h.Prefill(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
