package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"surveyentry/internal/survey"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore implements Store on a pgx-backed *sql.DB.
type PostgresStore struct {
	pgQueries
	db        *sql.DB
	txTimeout time.Duration
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		pgQueries: pgQueries{q: db},
		db:        db,
		txTimeout: defaultTxTimeout,
	}
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(q Queries) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &survey.PersistenceError{Op: "begin tx", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(pgQueries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &survey.PersistenceError{Op: "commit tx", Err: err}
	}
	return nil
}

type pgQueries struct {
	q queryable
}

func (p pgQueries) FetchOrderedQuestions(ctx context.Context, surveyID int64) ([]survey.QuestionRef, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT q.id, q.question_text, sq.q_order
		FROM survey_questions sq
		JOIN questions q ON q.id = sq.question_id
		WHERE sq.survey_id = $1
		ORDER BY sq.q_order ASC
	`, surveyID)
	if err != nil {
		return nil, &survey.PersistenceError{Op: "fetch ordered questions", Err: err}
	}
	defer rows.Close()

	out := make([]survey.QuestionRef, 0, 32)
	for rows.Next() {
		var ref survey.QuestionRef
		if err := rows.Scan(&ref.ID, &ref.Text, &ref.Ordinal); err != nil {
			return nil, &survey.PersistenceError{Op: "scan question", Err: err}
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, &survey.PersistenceError{Op: "iterate questions", Err: err}
	}
	return out, nil
}

func (p pgQueries) FetchQuestionType(ctx context.Context, questionID int64) (int, error) {
	var code int
	err := p.q.QueryRowContext(ctx, `SELECT question_type_id FROM questions WHERE id = $1`, questionID).Scan(&code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("question %d: %w", questionID, survey.ErrNotFound)
		}
		return 0, &survey.PersistenceError{Op: "fetch question type", Err: err}
	}
	return code, nil
}

func (p pgQueries) FetchOrderedOptions(ctx context.Context, questionID int64) ([]survey.AnswerOption, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT id, option_text, option_order
		FROM answer_options
		WHERE question_id = $1
		ORDER BY option_order ASC, id ASC
	`, questionID)
	if err != nil {
		return nil, &survey.PersistenceError{Op: "fetch ordered options", Err: err}
	}
	defer rows.Close()

	out := make([]survey.AnswerOption, 0, 8)
	for rows.Next() {
		var o survey.AnswerOption
		if err := rows.Scan(&o.ID, &o.Text, &o.Ordinal); err != nil {
			return nil, &survey.PersistenceError{Op: "scan option", Err: err}
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, &survey.PersistenceError{Op: "iterate options", Err: err}
	}
	return out, nil
}

func (p pgQueries) GetSurvey(ctx context.Context, surveyID int64) (survey.Survey, error) {
	var s survey.Survey
	var desc sql.NullString
	err := p.q.QueryRowContext(ctx, `SELECT id, name, description FROM surveys WHERE id = $1`, surveyID).
		Scan(&s.ID, &s.Name, &desc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return survey.Survey{}, fmt.Errorf("survey %d: %w", surveyID, survey.ErrNotFound)
		}
		return survey.Survey{}, &survey.PersistenceError{Op: "get survey", Err: err}
	}
	s.Description = desc.String
	return s, nil
}

func (p pgQueries) FetchAvailableSurveys(ctx context.Context, t survey.RespondentType) ([]survey.Survey, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT s.id, s.name, s.description
		FROM available_surveys a
		JOIN surveys s ON s.id = a.survey_id
		WHERE a.respondent_type_id = $1
		ORDER BY s.id ASC
	`, int(t))
	if err != nil {
		return nil, &survey.PersistenceError{Op: "fetch available surveys", Err: err}
	}
	defer rows.Close()

	out := make([]survey.Survey, 0, 8)
	for rows.Next() {
		var s survey.Survey
		var desc sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &desc); err != nil {
			return nil, &survey.PersistenceError{Op: "scan survey", Err: err}
		}
		s.Description = desc.String
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &survey.PersistenceError{Op: "iterate surveys", Err: err}
	}
	return out, nil
}

const respondentColumns = `id, name, respondent_type_id, COALESCE(district, ''), COALESCE(cohort, '')`

func scanRespondent(row interface{ Scan(...any) error }) (survey.Respondent, error) {
	var r survey.Respondent
	var t int
	if err := row.Scan(&r.ID, &r.Name, &t, &r.District, &r.Cohort); err != nil {
		return survey.Respondent{}, err
	}
	r.Type = survey.RespondentType(t)
	return r, nil
}

func (p pgQueries) listRespondents(ctx context.Context, op, query string, args ...any) ([]survey.Respondent, error) {
	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &survey.PersistenceError{Op: op, Err: err}
	}
	defer rows.Close()

	out := make([]survey.Respondent, 0, 32)
	for rows.Next() {
		r, err := scanRespondent(rows)
		if err != nil {
			return nil, &survey.PersistenceError{Op: "scan respondent", Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &survey.PersistenceError{Op: "iterate respondents", Err: err}
	}
	return out, nil
}

func (p pgQueries) FetchExistingRespondents(ctx context.Context, t survey.RespondentType) ([]survey.Respondent, error) {
	return p.listRespondents(ctx, "fetch existing respondents", `
		SELECT `+respondentColumns+`
		FROM respondents
		WHERE respondent_type_id = $1
		ORDER BY id ASC
	`, int(t))
}

func (p pgQueries) SearchRespondents(ctx context.Context, query string, limit int) ([]survey.Respondent, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return p.listRespondents(ctx, "search respondents", `
		SELECT `+respondentColumns+`
		FROM respondents
		WHERE lower(name) LIKE '%' || $1 || '%'
		ORDER BY lower(name) ASC, id ASC
		LIMIT $2
	`, likeEscaper.Replace(strings.ToLower(strings.TrimSpace(query))), limit)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (p pgQueries) getRespondent(ctx context.Context, op, query string, respondentID int64) (survey.Respondent, error) {
	r, err := scanRespondent(p.q.QueryRowContext(ctx, query, respondentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return survey.Respondent{}, fmt.Errorf("respondent %d: %w", respondentID, survey.ErrNotFound)
		}
		return survey.Respondent{}, &survey.PersistenceError{Op: op, Err: err}
	}
	return r, nil
}

func (p pgQueries) GetRespondent(ctx context.Context, respondentID int64) (survey.Respondent, error) {
	return p.getRespondent(ctx, "get respondent", `SELECT `+respondentColumns+` FROM respondents WHERE id = $1`, respondentID)
}

func (p pgQueries) LockRespondent(ctx context.Context, respondentID int64) (survey.Respondent, error) {
	return p.getRespondent(ctx, "lock respondent", `SELECT `+respondentColumns+` FROM respondents WHERE id = $1 FOR UPDATE`, respondentID)
}

func (p pgQueries) InsertRespondent(ctx context.Context, in NewRespondent) (int64, error) {
	var id int64
	err := p.q.QueryRowContext(ctx, `
		INSERT INTO respondents (name, respondent_type_id, district, cohort, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id
	`, in.Name, int(in.Type), nullableString(in.District), nullableString(in.Cohort)).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, &survey.ExactDuplicateError{Name: in.Name, Type: in.Type}
		}
		return 0, &survey.PersistenceError{Op: "insert respondent", Err: err}
	}
	return id, nil
}

func (p pgQueries) FetchRespondentDistrict(ctx context.Context, respondentID int64) (string, error) {
	var district sql.NullString
	err := p.q.QueryRowContext(ctx, `SELECT district FROM respondents WHERE id = $1`, respondentID).Scan(&district)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("respondent %d: %w", respondentID, survey.ErrNotFound)
		}
		return "", &survey.PersistenceError{Op: "fetch respondent district", Err: err}
	}
	return district.String, nil
}

func (p pgQueries) UpdateRespondentDistrict(ctx context.Context, respondentID int64, district string) error {
	res, err := p.q.ExecContext(ctx, `UPDATE respondents SET district = $2 WHERE id = $1`, respondentID, nullableString(district))
	if err != nil {
		return &survey.PersistenceError{Op: "update respondent district", Err: err}
	}
	return requireAffected(res, "respondent", respondentID)
}

func (p pgQueries) FetchLinkedStudents(ctx context.Context, respondentID, questionID int64) ([]string, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT DISTINCT answer
		FROM responses
		WHERE respondent_id = $1 AND question_id = $2
		ORDER BY answer ASC
	`, respondentID, questionID)
	if err != nil {
		return nil, &survey.PersistenceError{Op: "fetch linked students", Err: err}
	}
	defer rows.Close()

	out := make([]string, 0, 4)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &survey.PersistenceError{Op: "scan linked student", Err: err}
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &survey.PersistenceError{Op: "iterate linked students", Err: err}
	}
	return out, nil
}

const administrationColumns = `id, survey_id, respondent_id, date_taken, date_entered, last_updated`

func scanAdministration(row interface{ Scan(...any) error }) (survey.Administration, error) {
	var a survey.Administration
	var lastUpdated sql.NullTime
	if err := row.Scan(&a.ID, &a.SurveyID, &a.RespondentID, &a.DateTaken, &a.DateEntered, &lastUpdated); err != nil {
		return survey.Administration{}, err
	}
	if lastUpdated.Valid {
		a.LastUpdated = &lastUpdated.Time
	}
	return a, nil
}

func (p pgQueries) FetchAdministrations(ctx context.Context, respondentID int64) ([]survey.Administration, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT `+administrationColumns+`
		FROM administrations
		WHERE respondent_id = $1
		ORDER BY date_taken DESC, id DESC
	`, respondentID)
	if err != nil {
		return nil, &survey.PersistenceError{Op: "fetch administrations", Err: err}
	}
	defer rows.Close()

	out := make([]survey.Administration, 0, 8)
	for rows.Next() {
		a, err := scanAdministration(rows)
		if err != nil {
			return nil, &survey.PersistenceError{Op: "scan administration", Err: err}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &survey.PersistenceError{Op: "iterate administrations", Err: err}
	}
	return out, nil
}

func (p pgQueries) FetchTakenSurveys(ctx context.Context, respondentID int64) ([]survey.TakenSurvey, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT a.id, a.survey_id, s.name, a.date_taken
		FROM administrations a
		JOIN surveys s ON s.id = a.survey_id
		WHERE a.respondent_id = $1
		ORDER BY a.date_taken DESC, a.id DESC
	`, respondentID)
	if err != nil {
		return nil, &survey.PersistenceError{Op: "fetch taken surveys", Err: err}
	}
	defer rows.Close()

	out := make([]survey.TakenSurvey, 0, 8)
	for rows.Next() {
		var t survey.TakenSurvey
		if err := rows.Scan(&t.AdministrationID, &t.SurveyID, &t.SurveyName, &t.DateTaken); err != nil {
			return nil, &survey.PersistenceError{Op: "scan taken survey", Err: err}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &survey.PersistenceError{Op: "iterate taken surveys", Err: err}
	}
	return out, nil
}

func (p pgQueries) GetAdministration(ctx context.Context, administrationID int64) (survey.Administration, error) {
	a, err := scanAdministration(p.q.QueryRowContext(ctx, `
		SELECT `+administrationColumns+`
		FROM administrations
		WHERE id = $1
	`, administrationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return survey.Administration{}, fmt.Errorf("administration %d: %w", administrationID, survey.ErrNotFound)
		}
		return survey.Administration{}, &survey.PersistenceError{Op: "get administration", Err: err}
	}
	return a, nil
}

func (p pgQueries) AllocateAdministrationID(ctx context.Context) (int64, error) {
	var id int64
	if err := p.q.QueryRowContext(ctx, `SELECT nextval('administration_id_seq')`).Scan(&id); err != nil {
		return 0, &survey.PersistenceError{Op: "allocate administration id", Err: err}
	}
	return id, nil
}

func (p pgQueries) InsertAdministration(ctx context.Context, a survey.Administration) error {
	_, err := p.q.ExecContext(ctx, `
		INSERT INTO administrations (id, survey_id, respondent_id, date_taken, date_entered)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.SurveyID, a.RespondentID, a.DateTaken, a.DateEntered)
	if err != nil {
		return &survey.PersistenceError{Op: "insert administration", Err: err}
	}
	return nil
}

func (p pgQueries) UpdateAdministrationTimestamp(ctx context.Context, administrationID int64, at time.Time) error {
	res, err := p.q.ExecContext(ctx, `UPDATE administrations SET last_updated = $2 WHERE id = $1`, administrationID, at)
	if err != nil {
		return &survey.PersistenceError{Op: "update administration timestamp", Err: err}
	}
	return requireAffected(res, "administration", administrationID)
}

func (p pgQueries) DeleteResponseRows(ctx context.Context, administrationID int64) error {
	if _, err := p.q.ExecContext(ctx, `DELETE FROM responses WHERE administration_id = $1`, administrationID); err != nil {
		return &survey.PersistenceError{Op: "delete response rows", Err: err}
	}
	return nil
}

func (p pgQueries) InsertResponseRows(ctx context.Context, rows []survey.ResponseRow) error {
	if len(rows) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO responses (administration_id, question_id, respondent_id, answer) VALUES `)
	args := make([]any, 0, len(rows)*4)
	for i, row := range rows {
		if row.AdministrationID <= 0 {
			return &survey.PersistenceError{Op: "insert response rows", Err: fmt.Errorf("row %d has no administration id", i)}
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, row.AdministrationID, row.QuestionID, row.RespondentID, row.Answer)
	}
	if _, err := p.q.ExecContext(ctx, sb.String(), args...); err != nil {
		return &survey.PersistenceError{Op: "insert response rows", Err: err}
	}
	return nil
}

func (p pgQueries) FetchResponseRows(ctx context.Context, administrationID int64) ([]survey.ResponseRow, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT administration_id, question_id, respondent_id, answer
		FROM responses
		WHERE administration_id = $1
		ORDER BY question_id ASC, id ASC
	`, administrationID)
	if err != nil {
		return nil, &survey.PersistenceError{Op: "fetch response rows", Err: err}
	}
	defer rows.Close()

	out := make([]survey.ResponseRow, 0, 32)
	for rows.Next() {
		var r survey.ResponseRow
		if err := rows.Scan(&r.AdministrationID, &r.QuestionID, &r.RespondentID, &r.Answer); err != nil {
			return nil, &survey.PersistenceError{Op: "scan response row", Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &survey.PersistenceError{Op: "iterate response rows", Err: err}
	}
	return out, nil
}

func requireAffected(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &survey.PersistenceError{Op: "rows affected", Err: err}
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, survey.ErrNotFound)
	}
	return nil
}

func nullableString(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
