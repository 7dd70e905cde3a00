package respondent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"surveyentry/internal/metrics"
	"surveyentry/internal/store"
	"surveyentry/internal/survey"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrInvalidName = errors.New("respondent name is required")
	ErrInvalidType = errors.New("invalid respondent type")
)

type Service struct {
	store   store.Store
	rules   survey.Rules
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type ServiceConfig struct {
	Rules   survey.Rules
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func NewService(st store.Store, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   st,
		rules:   cfg.Rules,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

type CreateInput struct {
	Name     string                `json:"name"`
	Type     survey.RespondentType `json:"type"`
	District string                `json:"district"`
	Cohort   string                `json:"cohort"`
	Bypass   bool                  `json:"bypass"`
}

// Review lists existing respondents resembling a new name. An empty list means
// the name may be created without operator confirmation.
type Review struct {
	Name    string                `json:"name"`
	Type    survey.RespondentType `json:"type"`
	Matches []Match               `json:"matches"`
}

// Outcome is the result of CreateRespondent. Exactly one of Respondent or Review is set.
type Outcome struct {
	Created    bool               `json:"created"`
	Respondent *survey.Respondent `json:"respondent,omitempty"`
	Review     *Review            `json:"review,omitempty"`
}

// ReviewNewRespondent checks a prospective name against respondents of the same type
// without creating anything.
func (s *Service) ReviewNewRespondent(ctx context.Context, name string, t survey.RespondentType) (*Review, error) {
	name = normalizeName(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if !t.Valid() {
		return nil, ErrInvalidType
	}

	existing, err := s.store.FetchExistingRespondents(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("fetch existing respondents: %w", err)
	}

	lower := strings.ToLower(name)
	pool := make([]candidate, 0, len(existing))
	for _, r := range existing {
		if strings.ToLower(strings.TrimSpace(r.Name)) == lower {
			s.metrics.IncrementReview("exact_duplicate")
			return nil, &survey.ExactDuplicateError{Name: name, Type: t, ExistingID: r.ID}
		}
		pool = append(pool, candidate{id: r.ID, name: r.Name, district: r.District})
	}

	matches := rankMatches(name, pool)
	for i := range matches {
		students, err := s.store.FetchLinkedStudents(ctx, matches[i].ID, s.rules.LinkedStudentQuestionID)
		if err != nil {
			return nil, fmt.Errorf("fetch linked students: %w", err)
		}
		matches[i].LinkedStudents = students
	}
	return &Review{Name: name, Type: t, Matches: matches}, nil
}

// CreateRespondent creates a respondent unless it resembles an existing one.
// With Bypass the resemblance check is skipped, though the store still rejects
// an exact case-insensitive duplicate.
func (s *Service) CreateRespondent(ctx context.Context, in CreateInput) (*Outcome, error) {
	name := normalizeName(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if !in.Type.Valid() {
		return nil, ErrInvalidType
	}

	outcome := "bypassed"
	if !in.Bypass {
		review, err := s.ReviewNewRespondent(ctx, name, in.Type)
		if err != nil {
			return nil, err
		}
		if len(review.Matches) > 0 {
			s.metrics.IncrementReview("review")
			s.logger.Info("respondent needs review",
				zap.String("name", review.Name),
				zap.Stringer("type", in.Type),
				zap.Int("matches", len(review.Matches)),
			)
			return &Outcome{Created: false, Review: review}, nil
		}
		outcome = "created"
	}

	stored := titleName(name)
	id, err := s.store.InsertRespondent(ctx, store.NewRespondent{
		Name:     stored,
		Type:     in.Type,
		District: in.District,
		Cohort:   in.Cohort,
	})
	if err != nil {
		if errors.Is(err, survey.ErrDuplicate) {
			s.metrics.IncrementReview("exact_duplicate")
		}
		return nil, fmt.Errorf("insert respondent: %w", err)
	}
	s.metrics.IncrementReview(outcome)
	s.logger.Info("respondent created",
		zap.Int64("respondent_id", id),
		zap.Stringer("type", in.Type),
		zap.Bool("bypass", in.Bypass),
	)

	return &Outcome{
		Created: true,
		Respondent: &survey.Respondent{
			ID:       id,
			Name:     stored,
			Type:     in.Type,
			District: strings.TrimSpace(in.District),
			Cohort:   strings.TrimSpace(in.Cohort),
		},
	}, nil
}

func (s *Service) Search(ctx context.Context, query string, limit int) ([]survey.Respondent, error) {
	items, err := s.store.SearchRespondents(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search respondents: %w", err)
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, respondentID int64) (survey.Respondent, error) {
	r, err := s.store.GetRespondent(ctx, respondentID)
	if err != nil {
		return survey.Respondent{}, fmt.Errorf("get respondent: %w", err)
	}
	return r, nil
}

// TakenSurveys lists a respondent's administrations, newest date taken first.
func (s *Service) TakenSurveys(ctx context.Context, respondentID int64) ([]survey.TakenSurvey, error) {
	if _, err := s.Get(ctx, respondentID); err != nil {
		return nil, err
	}
	items, err := s.store.FetchTakenSurveys(ctx, respondentID)
	if err != nil {
		return nil, fmt.Errorf("fetch taken surveys: %w", err)
	}
	return items, nil
}

// AvailableSurveys lists the surveys offered to the respondent's type.
func (s *Service) AvailableSurveys(ctx context.Context, respondentID int64) ([]survey.Survey, error) {
	r, err := s.Get(ctx, respondentID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.FetchAvailableSurveys(ctx, r.Type)
	if err != nil {
		return nil, fmt.Errorf("fetch available surveys: %w", err)
	}
	return items, nil
}

func (s *Service) LinkedStudents(ctx context.Context, respondentID int64) ([]string, error) {
	if _, err := s.Get(ctx, respondentID); err != nil {
		return nil, err
	}
	items, err := s.store.FetchLinkedStudents(ctx, respondentID, s.rules.LinkedStudentQuestionID)
	if err != nil {
		return nil, fmt.Errorf("fetch linked students: %w", err)
	}
	return items, nil
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// titleName capitalizes each word. A Caser is stateful, so one is made per call.
func titleName(s string) string {
	return cases.Title(language.English).String(s)
}
