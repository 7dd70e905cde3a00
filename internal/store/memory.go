package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"surveyentry/internal/survey"
)

// MemoryStore is an in-process Store. Transactions are serialized and work on a
// private copy of the data that replaces the shared copy only on success.
type MemoryStore struct {
	txMu sync.Mutex

	mu    sync.RWMutex
	state *memState

	nextAdministrationID atomic.Int64
	nextRespondentID     atomic.Int64

	failMu   sync.Mutex
	failures map[string]error
}

type memQuestion struct {
	ref      survey.QuestionRef
	typeCode int
}

type memState struct {
	surveys         map[int64]survey.Survey
	surveyQuestions map[int64][]memQuestion
	questionTypes   map[int64]int
	options         map[int64][]survey.AnswerOption
	available       map[survey.RespondentType][]int64
	respondents     map[int64]survey.Respondent
	administrations map[int64]survey.Administration
	responses       map[int64][]survey.ResponseRow
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			surveys:         make(map[int64]survey.Survey),
			surveyQuestions: make(map[int64][]memQuestion),
			questionTypes:   make(map[int64]int),
			options:         make(map[int64][]survey.AnswerOption),
			available:       make(map[survey.RespondentType][]int64),
			respondents:     make(map[int64]survey.Respondent),
			administrations: make(map[int64]survey.Administration),
			responses:       make(map[int64][]survey.ResponseRow),
		},
		failures: make(map[string]error),
	}
}

func (st *memState) clone() *memState {
	return &memState{
		surveys:         maps.Clone(st.surveys),
		surveyQuestions: maps.Clone(st.surveyQuestions),
		questionTypes:   maps.Clone(st.questionTypes),
		options:         maps.Clone(st.options),
		available:       maps.Clone(st.available),
		respondents:     maps.Clone(st.respondents),
		administrations: maps.Clone(st.administrations),
		responses:       maps.Clone(st.responses),
	}
}

// SeedSurvey registers a survey with its questions. Ordinals are taken as given.
func (s *MemoryStore) SeedSurvey(sv survey.Survey, questions ...survey.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.surveys[sv.ID] = sv
	list := make([]memQuestion, 0, len(questions))
	for _, q := range questions {
		list = append(list, memQuestion{
			ref:      survey.QuestionRef{ID: q.ID, Text: q.Text, Ordinal: q.Ordinal},
			typeCode: q.Type.Code(),
		})
		s.state.questionTypes[q.ID] = q.Type.Code()
		if len(q.Options) > 0 {
			s.state.options[q.ID] = slices.Clone(q.Options)
		}
	}
	s.state.surveyQuestions[sv.ID] = list
}

func (s *MemoryStore) SeedAvailability(t survey.RespondentType, surveyIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.available[t] = append(slices.Clip(s.state.available[t]), surveyIDs...)
}

// SeedRespondent stores r as is, assigning an id when r.ID is zero.
func (s *MemoryStore) SeedRespondent(r survey.Respondent) survey.Respondent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.nextRespondentID.Add(1)
	} else if r.ID > s.nextRespondentID.Load() {
		s.nextRespondentID.Store(r.ID)
	}
	s.state.respondents[r.ID] = r
	return r
}

func (s *MemoryStore) SeedAdministration(a survey.Administration, rows ...survey.ResponseRow) survey.Administration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.nextAdministrationID.Add(1)
	} else if a.ID > s.nextAdministrationID.Load() {
		s.nextAdministrationID.Store(a.ID)
	}
	s.state.administrations[a.ID] = a
	if len(rows) > 0 {
		s.state.responses[a.ID] = survey.BindAdministration(rows, a.ID)
	}
	return a
}

// FailOn makes the named operation return err until cleared with a nil err.
func (s *MemoryStore) FailOn(op string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *MemoryStore) failure(op string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if err, ok := s.failures[op]; ok {
		return &survey.PersistenceError{Op: op, Err: err}
	}
	return nil
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(q Queries) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	if err := fn(memQueries{store: s, st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) read() memQueries {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memQueries{store: s, st: s.state}
}

// write runs a single statement as its own transaction.
func (s *MemoryStore) write(ctx context.Context, fn func(q memQueries) error) error {
	return s.RunInTx(ctx, func(q Queries) error { return fn(q.(memQueries)) })
}

func (s *MemoryStore) FetchOrderedQuestions(ctx context.Context, surveyID int64) ([]survey.QuestionRef, error) {
	return s.read().FetchOrderedQuestions(ctx, surveyID)
}

func (s *MemoryStore) FetchQuestionType(ctx context.Context, questionID int64) (int, error) {
	return s.read().FetchQuestionType(ctx, questionID)
}

func (s *MemoryStore) FetchOrderedOptions(ctx context.Context, questionID int64) ([]survey.AnswerOption, error) {
	return s.read().FetchOrderedOptions(ctx, questionID)
}

func (s *MemoryStore) GetSurvey(ctx context.Context, surveyID int64) (survey.Survey, error) {
	return s.read().GetSurvey(ctx, surveyID)
}

func (s *MemoryStore) FetchAvailableSurveys(ctx context.Context, t survey.RespondentType) ([]survey.Survey, error) {
	return s.read().FetchAvailableSurveys(ctx, t)
}

func (s *MemoryStore) FetchExistingRespondents(ctx context.Context, t survey.RespondentType) ([]survey.Respondent, error) {
	return s.read().FetchExistingRespondents(ctx, t)
}

func (s *MemoryStore) GetRespondent(ctx context.Context, respondentID int64) (survey.Respondent, error) {
	return s.read().GetRespondent(ctx, respondentID)
}

func (s *MemoryStore) LockRespondent(ctx context.Context, respondentID int64) (survey.Respondent, error) {
	return s.read().LockRespondent(ctx, respondentID)
}

func (s *MemoryStore) SearchRespondents(ctx context.Context, query string, limit int) ([]survey.Respondent, error) {
	return s.read().SearchRespondents(ctx, query, limit)
}

func (s *MemoryStore) InsertRespondent(ctx context.Context, in NewRespondent) (int64, error) {
	var id int64
	err := s.write(ctx, func(q memQueries) error {
		var err error
		id, err = q.InsertRespondent(ctx, in)
		return err
	})
	return id, err
}

func (s *MemoryStore) FetchRespondentDistrict(ctx context.Context, respondentID int64) (string, error) {
	return s.read().FetchRespondentDistrict(ctx, respondentID)
}

func (s *MemoryStore) UpdateRespondentDistrict(ctx context.Context, respondentID int64, district string) error {
	return s.write(ctx, func(q memQueries) error { return q.UpdateRespondentDistrict(ctx, respondentID, district) })
}

func (s *MemoryStore) FetchLinkedStudents(ctx context.Context, respondentID, questionID int64) ([]string, error) {
	return s.read().FetchLinkedStudents(ctx, respondentID, questionID)
}

func (s *MemoryStore) FetchAdministrations(ctx context.Context, respondentID int64) ([]survey.Administration, error) {
	return s.read().FetchAdministrations(ctx, respondentID)
}

func (s *MemoryStore) FetchTakenSurveys(ctx context.Context, respondentID int64) ([]survey.TakenSurvey, error) {
	return s.read().FetchTakenSurveys(ctx, respondentID)
}

func (s *MemoryStore) GetAdministration(ctx context.Context, administrationID int64) (survey.Administration, error) {
	return s.read().GetAdministration(ctx, administrationID)
}

func (s *MemoryStore) AllocateAdministrationID(ctx context.Context) (int64, error) {
	return s.read().AllocateAdministrationID(ctx)
}

func (s *MemoryStore) InsertAdministration(ctx context.Context, a survey.Administration) error {
	return s.write(ctx, func(q memQueries) error { return q.InsertAdministration(ctx, a) })
}

func (s *MemoryStore) UpdateAdministrationTimestamp(ctx context.Context, administrationID int64, at time.Time) error {
	return s.write(ctx, func(q memQueries) error { return q.UpdateAdministrationTimestamp(ctx, administrationID, at) })
}

func (s *MemoryStore) DeleteResponseRows(ctx context.Context, administrationID int64) error {
	return s.write(ctx, func(q memQueries) error { return q.DeleteResponseRows(ctx, administrationID) })
}

func (s *MemoryStore) InsertResponseRows(ctx context.Context, rows []survey.ResponseRow) error {
	return s.write(ctx, func(q memQueries) error { return q.InsertResponseRows(ctx, rows) })
}

func (s *MemoryStore) FetchResponseRows(ctx context.Context, administrationID int64) ([]survey.ResponseRow, error) {
	return s.read().FetchResponseRows(ctx, administrationID)
}

// memQueries operates on one snapshot. Outside a transaction the snapshot is
// only read; inside one it is private to the transaction.
type memQueries struct {
	store *MemoryStore
	st    *memState
}

func (q memQueries) FetchOrderedQuestions(ctx context.Context, surveyID int64) ([]survey.QuestionRef, error) {
	if err := q.store.failure("fetch ordered questions"); err != nil {
		return nil, err
	}
	list := q.st.surveyQuestions[surveyID]
	out := make([]survey.QuestionRef, 0, len(list))
	for _, mq := range list {
		out = append(out, mq.ref)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (q memQueries) FetchQuestionType(ctx context.Context, questionID int64) (int, error) {
	if err := q.store.failure("fetch question type"); err != nil {
		return 0, err
	}
	code, ok := q.st.questionTypes[questionID]
	if !ok {
		return 0, fmt.Errorf("question %d: %w", questionID, survey.ErrNotFound)
	}
	return code, nil
}

func (q memQueries) FetchOrderedOptions(ctx context.Context, questionID int64) ([]survey.AnswerOption, error) {
	out := slices.Clone(q.st.options[questionID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (q memQueries) GetSurvey(ctx context.Context, surveyID int64) (survey.Survey, error) {
	sv, ok := q.st.surveys[surveyID]
	if !ok {
		return survey.Survey{}, fmt.Errorf("survey %d: %w", surveyID, survey.ErrNotFound)
	}
	return sv, nil
}

func (q memQueries) FetchAvailableSurveys(ctx context.Context, t survey.RespondentType) ([]survey.Survey, error) {
	ids := slices.Clone(q.st.available[t])
	slices.Sort(ids)
	out := make([]survey.Survey, 0, len(ids))
	for _, id := range slices.Compact(ids) {
		if sv, ok := q.st.surveys[id]; ok {
			out = append(out, sv)
		}
	}
	return out, nil
}

func (q memQueries) sortedRespondents(keep func(survey.Respondent) bool) []survey.Respondent {
	out := make([]survey.Respondent, 0)
	for _, r := range q.st.respondents {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (q memQueries) FetchExistingRespondents(ctx context.Context, t survey.RespondentType) ([]survey.Respondent, error) {
	if err := q.store.failure("fetch existing respondents"); err != nil {
		return nil, err
	}
	return q.sortedRespondents(func(r survey.Respondent) bool { return r.Type == t }), nil
}

func (q memQueries) GetRespondent(ctx context.Context, respondentID int64) (survey.Respondent, error) {
	r, ok := q.st.respondents[respondentID]
	if !ok {
		return survey.Respondent{}, fmt.Errorf("respondent %d: %w", respondentID, survey.ErrNotFound)
	}
	return r, nil
}

func (q memQueries) LockRespondent(ctx context.Context, respondentID int64) (survey.Respondent, error) {
	return q.GetRespondent(ctx, respondentID)
}

func (q memQueries) SearchRespondents(ctx context.Context, query string, limit int) ([]survey.Respondent, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	out := q.sortedRespondents(func(r survey.Respondent) bool {
		return strings.Contains(strings.ToLower(r.Name), needle)
	})
	sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q memQueries) InsertRespondent(ctx context.Context, in NewRespondent) (int64, error) {
	if err := q.store.failure("insert respondent"); err != nil {
		return 0, err
	}
	lower := strings.ToLower(in.Name)
	for _, r := range q.st.respondents {
		if r.Type == in.Type && strings.ToLower(r.Name) == lower {
			return 0, &survey.ExactDuplicateError{Name: in.Name, Type: in.Type, ExistingID: r.ID}
		}
	}
	id := q.store.nextRespondentID.Add(1)
	q.st.respondents[id] = survey.Respondent{
		ID:       id,
		Name:     in.Name,
		Type:     in.Type,
		District: strings.TrimSpace(in.District),
		Cohort:   strings.TrimSpace(in.Cohort),
	}
	return id, nil
}

func (q memQueries) FetchRespondentDistrict(ctx context.Context, respondentID int64) (string, error) {
	r, err := q.GetRespondent(ctx, respondentID)
	if err != nil {
		return "", err
	}
	return r.District, nil
}

func (q memQueries) UpdateRespondentDistrict(ctx context.Context, respondentID int64, district string) error {
	if err := q.store.failure("update respondent district"); err != nil {
		return err
	}
	r, err := q.GetRespondent(ctx, respondentID)
	if err != nil {
		return err
	}
	r.District = strings.TrimSpace(district)
	q.st.respondents[respondentID] = r
	return nil
}

func (q memQueries) FetchLinkedStudents(ctx context.Context, respondentID, questionID int64) ([]string, error) {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, rows := range q.st.responses {
		for _, row := range rows {
			if row.RespondentID != respondentID || row.QuestionID != questionID {
				continue
			}
			if _, ok := seen[row.Answer]; ok {
				continue
			}
			seen[row.Answer] = struct{}{}
			out = append(out, row.Answer)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (q memQueries) FetchAdministrations(ctx context.Context, respondentID int64) ([]survey.Administration, error) {
	if err := q.store.failure("fetch administrations"); err != nil {
		return nil, err
	}
	out := make([]survey.Administration, 0)
	for _, a := range q.st.administrations {
		if a.RespondentID == respondentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateTaken.Equal(out[j].DateTaken) {
			return out[i].DateTaken.After(out[j].DateTaken)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (q memQueries) FetchTakenSurveys(ctx context.Context, respondentID int64) ([]survey.TakenSurvey, error) {
	admins, err := q.FetchAdministrations(ctx, respondentID)
	if err != nil {
		return nil, err
	}
	out := make([]survey.TakenSurvey, 0, len(admins))
	for _, a := range admins {
		out = append(out, survey.TakenSurvey{
			AdministrationID: a.ID,
			SurveyID:         a.SurveyID,
			SurveyName:       q.st.surveys[a.SurveyID].Name,
			DateTaken:        a.DateTaken,
		})
	}
	return out, nil
}

func (q memQueries) GetAdministration(ctx context.Context, administrationID int64) (survey.Administration, error) {
	a, ok := q.st.administrations[administrationID]
	if !ok {
		return survey.Administration{}, fmt.Errorf("administration %d: %w", administrationID, survey.ErrNotFound)
	}
	return a, nil
}

func (q memQueries) AllocateAdministrationID(ctx context.Context) (int64, error) {
	if err := q.store.failure("allocate administration id"); err != nil {
		return 0, err
	}
	return q.store.nextAdministrationID.Add(1), nil
}

func (q memQueries) InsertAdministration(ctx context.Context, a survey.Administration) error {
	if err := q.store.failure("insert administration"); err != nil {
		return err
	}
	if _, exists := q.st.administrations[a.ID]; exists {
		return &survey.PersistenceError{Op: "insert administration", Err: fmt.Errorf("administration %d already exists", a.ID)}
	}
	q.st.administrations[a.ID] = a
	return nil
}

func (q memQueries) UpdateAdministrationTimestamp(ctx context.Context, administrationID int64, at time.Time) error {
	if err := q.store.failure("update administration timestamp"); err != nil {
		return err
	}
	a, err := q.GetAdministration(ctx, administrationID)
	if err != nil {
		return err
	}
	a.LastUpdated = &at
	q.st.administrations[administrationID] = a
	return nil
}

func (q memQueries) DeleteResponseRows(ctx context.Context, administrationID int64) error {
	if err := q.store.failure("delete response rows"); err != nil {
		return err
	}
	delete(q.st.responses, administrationID)
	return nil
}

func (q memQueries) InsertResponseRows(ctx context.Context, rows []survey.ResponseRow) error {
	if err := q.store.failure("insert response rows"); err != nil {
		return err
	}
	for i, row := range rows {
		if row.AdministrationID <= 0 {
			return &survey.PersistenceError{Op: "insert response rows", Err: fmt.Errorf("row %d has no administration id", i)}
		}
		if _, ok := q.st.administrations[row.AdministrationID]; !ok {
			return &survey.PersistenceError{Op: "insert response rows", Err: fmt.Errorf("administration %d does not exist", row.AdministrationID)}
		}
	}
	for _, row := range rows {
		q.st.responses[row.AdministrationID] = append(slices.Clip(q.st.responses[row.AdministrationID]), row)
	}
	return nil
}

func (q memQueries) FetchResponseRows(ctx context.Context, administrationID int64) ([]survey.ResponseRow, error) {
	if err := q.store.failure("fetch response rows"); err != nil {
		return nil, err
	}
	return slices.Clone(q.st.responses[administrationID]), nil
}
