package store

import (
	"context"
	"time"

	"surveyentry/internal/survey"
)

// Queries is every read and write the engine performs against persistent storage.
// Implementations report driver failures as *survey.PersistenceError and missing
// rows as errors matching survey.ErrNotFound.
type Queries interface {
	survey.SchemaSource

	GetSurvey(ctx context.Context, surveyID int64) (survey.Survey, error)
	FetchAvailableSurveys(ctx context.Context, t survey.RespondentType) ([]survey.Survey, error)

	FetchExistingRespondents(ctx context.Context, t survey.RespondentType) ([]survey.Respondent, error)
	GetRespondent(ctx context.Context, respondentID int64) (survey.Respondent, error)
	// LockRespondent reads a respondent and holds it until the enclosing transaction ends.
	LockRespondent(ctx context.Context, respondentID int64) (survey.Respondent, error)
	SearchRespondents(ctx context.Context, query string, limit int) ([]survey.Respondent, error)
	InsertRespondent(ctx context.Context, in NewRespondent) (int64, error)
	FetchRespondentDistrict(ctx context.Context, respondentID int64) (string, error)
	UpdateRespondentDistrict(ctx context.Context, respondentID int64, district string) error
	FetchLinkedStudents(ctx context.Context, respondentID, questionID int64) ([]string, error)

	FetchAdministrations(ctx context.Context, respondentID int64) ([]survey.Administration, error)
	FetchTakenSurveys(ctx context.Context, respondentID int64) ([]survey.TakenSurvey, error)
	GetAdministration(ctx context.Context, administrationID int64) (survey.Administration, error)
	AllocateAdministrationID(ctx context.Context) (int64, error)
	InsertAdministration(ctx context.Context, a survey.Administration) error
	UpdateAdministrationTimestamp(ctx context.Context, administrationID int64, at time.Time) error
	DeleteResponseRows(ctx context.Context, administrationID int64) error
	// InsertResponseRows writes all rows or none of them.
	InsertResponseRows(ctx context.Context, rows []survey.ResponseRow) error
	FetchResponseRows(ctx context.Context, administrationID int64) ([]survey.ResponseRow, error)
}

// Store is Queries plus a transactional boundary. Everything fn does through
// the Queries it receives commits together or not at all.
type Store interface {
	Queries
	RunInTx(ctx context.Context, fn func(q Queries) error) error
}

type NewRespondent struct {
	Name     string
	Type     survey.RespondentType
	District string
	Cohort   string
}

const defaultTxTimeout = 10 * time.Second

const defaultSearchLimit = 50
