package respondent

import (
	"context"
	"testing"

	"surveyentry/internal/metrics"
	"surveyentry/internal/store"
	"surveyentry/internal/survey"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore, *metrics.Metrics) {
	t.Helper()
	st := store.NewMemoryStore()
	m := metrics.New(prometheus.NewRegistry())
	return NewService(st, ServiceConfig{Rules: survey.DefaultRules(), Metrics: m}), st, m
}

func seedParents(st *store.MemoryStore) {
	st.SeedRespondent(survey.Respondent{ID: 1, Name: "John Smith", Type: survey.RespondentParent, District: "DistrictA"})
	st.SeedRespondent(survey.Respondent{ID: 2, Name: "Jon Smith", Type: survey.RespondentParent, District: "DistrictB"})
}

func TestFuzzyReviewScenario(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedParents(st)
	ctx := context.Background()

	out, err := svc.CreateRespondent(ctx, CreateInput{Name: "Jon Smyth", Type: survey.RespondentParent})
	require.NoError(t, err)
	require.False(t, out.Created)
	require.NotNil(t, out.Review)
	require.Len(t, out.Review.Matches, 2)
	assert.Equal(t, int64(1), out.Review.Matches[0].ID)
	assert.Equal(t, int64(2), out.Review.Matches[1].ID)
	assert.LessOrEqual(t, out.Review.Matches[0].Score, out.Review.Matches[1].Score)
	assert.Equal(t, "DistrictA", out.Review.Matches[0].District)

	existing, err := st.FetchExistingRespondents(ctx, survey.RespondentParent)
	require.NoError(t, err)
	assert.Len(t, existing, 2, "a name needing review must not be created")

	out, err = svc.CreateRespondent(ctx, CreateInput{Name: "Zzyzx Q", Type: survey.RespondentParent})
	require.NoError(t, err)
	require.True(t, out.Created)
	assert.Equal(t, "Zzyzx Q", out.Respondent.Name)
}

func TestCreateRespondentExactDuplicate(t *testing.T) {
	svc, st, m := newTestService(t)
	seedParents(st)
	ctx := context.Background()

	_, err := svc.CreateRespondent(ctx, CreateInput{Name: "  JOHN   smith ", Type: survey.RespondentParent})
	var dup *survey.ExactDuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, int64(1), dup.ExistingID)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RespondentReviews.WithLabelValues("exact_duplicate")))

	_, err = svc.CreateRespondent(ctx, CreateInput{Name: "john smith", Type: survey.RespondentParent, Bypass: true})
	require.ErrorIs(t, err, survey.ErrDuplicate, "bypass still cannot create an exact duplicate")

	out, err := svc.CreateRespondent(ctx, CreateInput{Name: "John Smith", Type: survey.RespondentMentor})
	require.NoError(t, err)
	assert.True(t, out.Created)
}

func TestCreateRespondentBypassSkipsReview(t *testing.T) {
	svc, st, m := newTestService(t)
	seedParents(st)

	out, err := svc.CreateRespondent(context.Background(), CreateInput{Name: "jon smyth", Type: survey.RespondentParent, Bypass: true, District: " North "})
	require.NoError(t, err)
	require.True(t, out.Created)
	assert.Equal(t, "Jon Smyth", out.Respondent.Name)
	assert.Equal(t, "North", out.Respondent.District)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RespondentReviews.WithLabelValues("bypassed")))
}

func TestCreateRespondentRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRespondent(ctx, CreateInput{Name: "   ", Type: survey.RespondentParent})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = svc.CreateRespondent(ctx, CreateInput{Name: "Ana", Type: survey.RespondentType(9)})
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestReviewIncludesLinkedStudents(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedParents(st)
	st.SeedAdministration(survey.Administration{SurveyID: 4, RespondentID: 2},
		survey.ResponseRow{QuestionID: 97, RespondentID: 2, Answer: "Leo Smith"},
	)

	review, err := svc.ReviewNewRespondent(context.Background(), "Jon Smyth", survey.RespondentParent)
	require.NoError(t, err)
	require.Len(t, review.Matches, 2)
	assert.Empty(t, review.Matches[0].LinkedStudents)
	assert.Equal(t, []string{"Leo Smith"}, review.Matches[1].LinkedStudents)
}

func TestReviewPersistenceFailure(t *testing.T) {
	svc, st, _ := newTestService(t)
	st.FailOn("fetch existing respondents", assert.AnError)

	_, err := svc.ReviewNewRespondent(context.Background(), "Ana", survey.RespondentParent)
	require.ErrorIs(t, err, survey.ErrPersistence)
}

func TestTakenAndAvailableSurveys(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	st.SeedSurvey(survey.Survey{ID: 4, Name: "Parent Intake"}, survey.Question{ID: 96, Ordinal: 1, Type: survey.ShortText})
	st.SeedAvailability(survey.RespondentParent, 4)
	r := st.SeedRespondent(survey.Respondent{Name: "Ana Ruiz", Type: survey.RespondentParent})
	st.SeedAdministration(survey.Administration{SurveyID: 4, RespondentID: r.ID})

	taken, err := svc.TakenSurveys(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, taken, 1)
	assert.Equal(t, "Parent Intake", taken[0].SurveyName)

	available, err := svc.AvailableSurveys(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, available, 1)

	_, err = svc.TakenSurveys(ctx, 999)
	assert.ErrorIs(t, err, survey.ErrNotFound)
}
