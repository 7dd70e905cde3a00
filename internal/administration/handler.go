package administration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"surveyentry/internal/app/apiresp"
	"surveyentry/internal/auth"
	"surveyentry/internal/survey"

	"github.com/go-chi/chi/v5"
)

type administrationService interface {
	EntryForm(ctx context.Context, surveyID, respondentID, linkedStudentID int64) (*EntryForm, error)
	PrefillFromAdministration(ctx context.Context, administrationID int64) (*Prefill, error)
	SubmitAdministration(ctx context.Context, sub Submission) (*Result, error)
}

type Handler struct {
	svc administrationService
}

func NewHandler(svc administrationService) *Handler {
	return &Handler{svc: svc}
}

type submitRequest struct {
	SurveyID        int64                  `json:"survey_id"`
	RespondentID    int64                  `json:"respondent_id"`
	LinkedStudentID int64                  `json:"linked_student_id"`
	Answers         survey.CapturedAnswers `json:"answers"`
}

func (h *Handler) EntryForm(w http.ResponseWriter, r *http.Request) {
	surveyID, ok := pathID(w, r, "invalid survey id")
	if !ok {
		return
	}
	respondentID, err := queryID(r, "respondent_id")
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid respondent_id")
		return
	}
	linkedID, err := queryID(r, "linked_student_id")
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid linked_student_id")
		return
	}

	form, err := h.svc.EntryForm(r.Context(), surveyID, respondentID, linkedID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, form)
}

func (h *Handler) Prefill(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid administration id")
	if !ok {
		return
	}
	p, err := h.svc.PrefillFromAdministration(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, p)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.SubmitAdministration(r.Context(), Submission{
		Mode:            ModeCreate,
		SurveyID:        req.SurveyID,
		RespondentID:    req.RespondentID,
		LinkedStudentID: req.LinkedStudentID,
		OperatorID:      operatorID(r.Context()),
		Answers:         req.Answers,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, res)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid administration id")
	if !ok {
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.SubmitAdministration(r.Context(), Submission{
		Mode:             ModeEdit,
		AdministrationID: id,
		SurveyID:         req.SurveyID,
		RespondentID:     req.RespondentID,
		LinkedStudentID:  req.LinkedStudentID,
		OperatorID:       operatorID(r.Context()),
		Answers:          req.Answers,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, res)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidSubmission):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrMismatch):
		apiresp.WriteError(w, r, http.StatusConflict, err.Error())
	default:
		apiresp.WriteFailure(w, r, err)
	}
}

func operatorID(ctx context.Context) int64 {
	if op, ok := auth.CurrentOperator(ctx); ok {
		return op.ID
	}
	return 0
}

func pathID(w http.ResponseWriter, r *http.Request, msg string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, msg)
		return 0, false
	}
	return id, true
}

func queryID(r *http.Request, key string) (int64, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
