package administration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"surveyentry/internal/metrics"
	"surveyentry/internal/store"
	"surveyentry/internal/survey"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrMismatch          = errors.New("administration does not belong to this survey or respondent")
)

type Mode int

const (
	ModeCreate Mode = iota + 1
	ModeEdit
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeEdit:
		return "edit"
	default:
		return "unknown"
	}
}

type Service struct {
	store   store.Store
	rules   survey.Rules
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type ServiceConfig struct {
	Rules   survey.Rules
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func NewService(st store.Store, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:   st,
		rules:   cfg.Rules,
		logger:  logger,
		metrics: cfg.Metrics,
		now:     now,
	}
}

type Submission struct {
	Mode             Mode
	AdministrationID int64
	SurveyID         int64
	RespondentID     int64
	// LinkedStudentID names the student a parent or mentor answered about.
	LinkedStudentID int64
	OperatorID      int64
	Answers         survey.CapturedAnswers
}

type Result struct {
	SubmissionID   string                `json:"submission_id"`
	Administration survey.Administration `json:"administration"`
	RowsWritten    int                   `json:"rows_written"`
	Warnings       []string              `json:"warnings,omitempty"`
}

// EntryForm is what an operator needs to start entering a paper survey.
type EntryForm struct {
	Survey     survey.Survey      `json:"survey"`
	Schema     survey.Schema      `json:"schema"`
	Prefill    survey.Prefill     `json:"prefill"`
	Respondent *survey.Respondent `json:"respondent,omitempty"`
}

// Prefill is a stored administration decoded for editing.
type Prefill struct {
	Administration survey.Administration  `json:"administration"`
	Schema         survey.Schema          `json:"schema"`
	Answers        survey.CapturedAnswers `json:"answers"`
	Locked         []int64                `json:"locked"`
}

func (s *Service) LoadSchema(ctx context.Context, surveyID int64) (survey.Schema, error) {
	schema, err := survey.LoadSchema(ctx, s.store, surveyID)
	if err != nil {
		return survey.Schema{}, fmt.Errorf("load schema: %w", err)
	}
	return schema, nil
}

// EntryForm loads a survey schema with identity questions for the respondent already filled.
func (s *Service) EntryForm(ctx context.Context, surveyID, respondentID, linkedStudentID int64) (*EntryForm, error) {
	sv, err := s.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("get survey: %w", err)
	}
	schema, err := s.LoadSchema(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	form := &EntryForm{Survey: sv, Schema: schema, Prefill: survey.Prefill{Answers: survey.CapturedAnswers{}}}
	if respondentID <= 0 {
		return form, nil
	}
	who, respondent, err := s.identity(ctx, surveyID, respondentID, linkedStudentID)
	if err != nil {
		return nil, err
	}
	form.Respondent = &respondent
	form.Prefill = survey.PrefillLocked(schema, s.rules, who)
	return form, nil
}

// PrefillFromAdministration decodes a stored administration back into captured answers.
func (s *Service) PrefillFromAdministration(ctx context.Context, administrationID int64) (*Prefill, error) {
	a, err := s.store.GetAdministration(ctx, administrationID)
	if err != nil {
		return nil, fmt.Errorf("get administration: %w", err)
	}
	schema, err := s.LoadSchema(ctx, a.SurveyID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.FetchResponseRows(ctx, administrationID)
	if err != nil {
		return nil, fmt.Errorf("fetch response rows: %w", err)
	}
	answers, err := survey.Decode(rows, schema)
	if err != nil {
		return nil, fmt.Errorf("decode administration %d: %w", administrationID, err)
	}

	who, _, err := s.identity(ctx, a.SurveyID, a.RespondentID, 0)
	if err != nil {
		return nil, err
	}
	locked := survey.PrefillLocked(schema, s.rules, who).Locked
	return &Prefill{Administration: a, Schema: schema, Answers: answers, Locked: locked}, nil
}

// SubmitAdministration validates captured answers and persists them as one unit.
// Nothing is written unless every rule passes.
func (s *Service) SubmitAdministration(ctx context.Context, sub Submission) (*Result, error) {
	start := time.Now()
	submissionID := uuid.NewString()
	log := s.logger.With(
		zap.String("submission_id", submissionID),
		zap.Stringer("mode", sub.Mode),
		zap.Int64("survey_id", sub.SurveyID),
		zap.Int64("respondent_id", sub.RespondentID),
		zap.Int64("operator_id", sub.OperatorID),
	)

	var res *Result
	var err error
	switch sub.Mode {
	case ModeCreate:
		res, err = s.create(ctx, sub, log)
	case ModeEdit:
		res, err = s.edit(ctx, sub, log)
	default:
		err = fmt.Errorf("%w: unknown mode %d", ErrInvalidSubmission, sub.Mode)
	}
	s.metrics.ObserveSubmission(sub.Mode.String(), start)
	if err != nil {
		kind := rejectionKind(err)
		s.metrics.IncrementRejected(kind)
		if kind == "persistence" || kind == "schema" || kind == "fatal_schema" || kind == "other" {
			log.Error("submission failed", zap.String("kind", kind), zap.Error(err))
		} else {
			log.Info("submission rejected", zap.String("kind", kind), zap.Error(err))
		}
		return nil, err
	}

	res.SubmissionID = submissionID
	s.metrics.IncrementAdministration(sub.Mode.String())
	log.Info("submission committed",
		zap.Int64("administration_id", res.Administration.ID),
		zap.Int("rows", res.RowsWritten),
	)
	return res, nil
}

func (s *Service) create(ctx context.Context, sub Submission, log *zap.Logger) (*Result, error) {
	if sub.SurveyID <= 0 || sub.RespondentID <= 0 {
		return nil, fmt.Errorf("%w: survey and respondent are required", ErrInvalidSubmission)
	}
	schema, rows, checked, respondent, err := s.prepare(ctx, sub, sub.SurveyID, sub.RespondentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	dateTaken := checked.AnchorDate
	if s.rules.IsApplication(schema.SurveyID) {
		dateTaken = today(now)
	}

	var a survey.Administration
	err = s.store.RunInTx(ctx, func(q store.Queries) error {
		if _, err := q.LockRespondent(ctx, sub.RespondentID); err != nil {
			return fmt.Errorf("lock respondent: %w", err)
		}
		existing, err := q.FetchAdministrations(ctx, sub.RespondentID)
		if err != nil {
			return fmt.Errorf("fetch administrations: %w", err)
		}
		if err := CheckDuplicate(existing, sub.SurveyID, sub.RespondentID, dateTaken, s.rules); err != nil {
			return err
		}

		id, err := q.AllocateAdministrationID(ctx)
		if err != nil {
			return fmt.Errorf("allocate administration id: %w", err)
		}
		a = survey.Administration{
			ID:           id,
			SurveyID:     sub.SurveyID,
			RespondentID: sub.RespondentID,
			DateTaken:    dateTaken,
			DateEntered:  now,
		}
		if err := q.InsertAdministration(ctx, a); err != nil {
			return fmt.Errorf("insert administration: %w", err)
		}
		if err := q.InsertResponseRows(ctx, survey.BindAdministration(rows, id)); err != nil {
			return fmt.Errorf("insert response rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Administration: a, RowsWritten: len(rows)}
	if warning := s.backfillDistrict(ctx, sub, respondent, log); warning != "" {
		res.Warnings = append(res.Warnings, warning)
	}
	return res, nil
}

func (s *Service) edit(ctx context.Context, sub Submission, log *zap.Logger) (*Result, error) {
	if sub.AdministrationID <= 0 {
		return nil, fmt.Errorf("%w: administration id is required", ErrInvalidSubmission)
	}
	current, err := s.store.GetAdministration(ctx, sub.AdministrationID)
	if err != nil {
		return nil, fmt.Errorf("get administration: %w", err)
	}
	if (sub.SurveyID > 0 && sub.SurveyID != current.SurveyID) || (sub.RespondentID > 0 && sub.RespondentID != current.RespondentID) {
		return nil, ErrMismatch
	}

	_, rows, _, _, err := s.prepare(ctx, sub, current.SurveyID, current.RespondentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var a survey.Administration
	err = s.store.RunInTx(ctx, func(q store.Queries) error {
		var err error
		a, err = q.GetAdministration(ctx, sub.AdministrationID)
		if err != nil {
			return fmt.Errorf("get administration: %w", err)
		}
		if err := q.UpdateAdministrationTimestamp(ctx, a.ID, now); err != nil {
			return fmt.Errorf("update administration timestamp: %w", err)
		}
		if err := q.DeleteResponseRows(ctx, a.ID); err != nil {
			return fmt.Errorf("delete response rows: %w", err)
		}
		if err := q.InsertResponseRows(ctx, survey.BindAdministration(rows, a.ID)); err != nil {
			return fmt.Errorf("insert response rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.LastUpdated = &now
	log.Debug("administration rows replaced", zap.Int64("administration_id", a.ID))
	return &Result{Administration: a, RowsWritten: len(rows)}, nil
}

// prepare runs everything that must pass before a transaction starts.
func (s *Service) prepare(ctx context.Context, sub Submission, surveyID, respondentID int64) (survey.Schema, []survey.ResponseRow, survey.Checked, survey.Respondent, error) {
	schema, err := s.LoadSchema(ctx, surveyID)
	if err != nil {
		return survey.Schema{}, nil, survey.Checked{}, survey.Respondent{}, err
	}
	who, respondent, err := s.identity(ctx, surveyID, respondentID, sub.LinkedStudentID)
	if err != nil {
		return survey.Schema{}, nil, survey.Checked{}, survey.Respondent{}, err
	}
	answers := withLocked(sub.Answers, survey.PrefillLocked(schema, s.rules, who))

	checked, err := survey.Validate(schema, answers, s.rules)
	if err != nil {
		return survey.Schema{}, nil, survey.Checked{}, survey.Respondent{}, fmt.Errorf("validate: %w", err)
	}
	rows, err := survey.Encode(schema, answers, respondentID)
	if err != nil {
		return survey.Schema{}, nil, survey.Checked{}, survey.Respondent{}, fmt.Errorf("encode: %w", err)
	}
	return schema, rows, checked, respondent, nil
}

func (s *Service) identity(ctx context.Context, surveyID, respondentID, linkedStudentID int64) (survey.Identity, survey.Respondent, error) {
	respondent, err := s.store.GetRespondent(ctx, respondentID)
	if err != nil {
		return survey.Identity{}, survey.Respondent{}, fmt.Errorf("get respondent: %w", err)
	}
	who := survey.Identity{SurveyID: surveyID, RespondentName: respondent.Name}
	if linkedStudentID > 0 {
		student, err := s.store.GetRespondent(ctx, linkedStudentID)
		if err != nil {
			return survey.Identity{}, survey.Respondent{}, fmt.Errorf("get linked student: %w", err)
		}
		if student.Type != survey.RespondentStudent {
			return survey.Identity{}, survey.Respondent{}, fmt.Errorf("%w: respondent %d is not a student", ErrInvalidSubmission, linkedStudentID)
		}
		who.LinkedStudentName = student.Name
	}
	return who, respondent, nil
}

// backfillDistrict copies a linked student's district onto a parent or mentor.
// It runs after commit and reports failure as a warning.
func (s *Service) backfillDistrict(ctx context.Context, sub Submission, respondent survey.Respondent, log *zap.Logger) string {
	if !s.rules.BackfillsDistrict(sub.SurveyID) || sub.LinkedStudentID <= 0 {
		return ""
	}
	if respondent.Type != survey.RespondentParent && respondent.Type != survey.RespondentMentor {
		return ""
	}

	district, err := s.store.FetchRespondentDistrict(ctx, sub.LinkedStudentID)
	if err == nil && district != respondent.District {
		err = s.store.UpdateRespondentDistrict(ctx, sub.RespondentID, district)
	}
	if err != nil {
		s.metrics.IncrementBackfillFailure()
		log.Warn("district back-fill failed", zap.Int64("linked_student_id", sub.LinkedStudentID), zap.Error(err))
		return "district was not updated: " + err.Error()
	}
	return ""
}

// withLocked overlays locked identity values on the submitted answers.
func withLocked(answers survey.CapturedAnswers, p survey.Prefill) survey.CapturedAnswers {
	out := make(survey.CapturedAnswers, len(answers)+len(p.Locked))
	for id, values := range answers {
		out[id] = values
	}
	for _, id := range p.Locked {
		out[id] = p.Answers[id]
	}
	return out
}

func today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rejectionKind(err error) string {
	switch {
	case errors.Is(err, survey.ErrFatalSchema):
		return "fatal_schema"
	case errors.Is(err, survey.ErrSchema):
		return "schema"
	case errors.Is(err, survey.ErrValidation), errors.Is(err, ErrInvalidSubmission), errors.Is(err, ErrMismatch):
		return "validation"
	case errors.Is(err, survey.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, survey.ErrNotFound):
		return "not_found"
	case errors.Is(err, survey.ErrPersistence):
		return "persistence"
	default:
		return "other"
	}
}
