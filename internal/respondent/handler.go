package respondent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"surveyentry/internal/app/apiresp"
	"surveyentry/internal/survey"

	"github.com/go-chi/chi/v5"
)

const maxRosterUploadBytes = 10 << 20

type respondentService interface {
	ReviewNewRespondent(ctx context.Context, name string, t survey.RespondentType) (*Review, error)
	CreateRespondent(ctx context.Context, in CreateInput) (*Outcome, error)
	Search(ctx context.Context, query string, limit int) ([]survey.Respondent, error)
	TakenSurveys(ctx context.Context, respondentID int64) ([]survey.TakenSurvey, error)
	AvailableSurveys(ctx context.Context, respondentID int64) ([]survey.Survey, error)
	LinkedStudents(ctx context.Context, respondentID int64) ([]string, error)
	ImportRosterExcel(ctx context.Context, r io.Reader) (*RosterImportReport, error)
	ExportRosterExcel(ctx context.Context, t survey.RespondentType) ([]byte, error)
}

type Handler struct {
	svc respondentService
}

func NewHandler(svc respondentService) *Handler {
	return &Handler{svc: svc}
}

// typeParam accepts a respondent type as a number or a name.
type typeParam survey.RespondentType

func (p *typeParam) UnmarshalJSON(b []byte) error {
	t, err := survey.ParseRespondentType(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*p = typeParam(t)
	return nil
}

type reviewRequest struct {
	Name string    `json:"name"`
	Type typeParam `json:"type"`
}

type createRequest struct {
	Name     string    `json:"name"`
	Type     typeParam `json:"type"`
	District string    `json:"district"`
	Cohort   string    `json:"cohort"`
	Bypass   bool      `json:"bypass"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	items, err := h.svc.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		apiresp.WriteFailure(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	review, err := h.svc.ReviewNewRespondent(r.Context(), req.Name, survey.RespondentType(req.Type))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, review)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.CreateRespondent(r.Context(), CreateInput{
		Name:     req.Name,
		Type:     survey.RespondentType(req.Type),
		District: req.District,
		Cohort:   req.Cohort,
		Bypass:   req.Bypass,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	apiresp.WriteOK(w, r, status, out)
}

func (h *Handler) TakenSurveys(w http.ResponseWriter, r *http.Request) {
	id, ok := respondentID(w, r)
	if !ok {
		return
	}
	items, err := h.svc.TakenSurveys(r.Context(), id)
	if err != nil {
		apiresp.WriteFailure(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) AvailableSurveys(w http.ResponseWriter, r *http.Request) {
	id, ok := respondentID(w, r)
	if !ok {
		return
	}
	items, err := h.svc.AvailableSurveys(r.Context(), id)
	if err != nil {
		apiresp.WriteFailure(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) LinkedStudents(w http.ResponseWriter, r *http.Request) {
	id, ok := respondentID(w, r)
	if !ok {
		return
	}
	items, err := h.svc.LinkedStudents(r.Context(), id)
	if err != nil {
		apiresp.WriteFailure(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) ImportRoster(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRosterUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	report, err := h.svc.ImportRosterExcel(r.Context(), file)
	if err != nil {
		if errors.Is(err, ErrRosterFormat) {
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		apiresp.WriteFailure(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, report)
}

func (h *Handler) ExportRoster(w http.ResponseWriter, r *http.Request) {
	t, err := survey.ParseRespondentType(r.URL.Query().Get("type"))
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid respondent type")
		return
	}
	content, err := h.svc.ExportRosterExcel(r.Context(), t)
	if err != nil {
		apiresp.WriteFailure(w, r, err)
		return
	}
	filename := fmt.Sprintf("respondents_%s.xlsx", strings.ToLower(t.String()))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidType):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	default:
		apiresp.WriteFailure(w, r, err)
	}
}

func respondentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid respondent id")
		return 0, false
	}
	return id, true
}
