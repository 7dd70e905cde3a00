package survey

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	questions map[int64][]QuestionRef
	types     map[int64]int
	options   map[int64][]AnswerOption
	typeErr   error
}

func (f *fakeSource) FetchOrderedQuestions(ctx context.Context, surveyID int64) ([]QuestionRef, error) {
	return f.questions[surveyID], nil
}

func (f *fakeSource) FetchQuestionType(ctx context.Context, questionID int64) (int, error) {
	if f.typeErr != nil {
		return 0, f.typeErr
	}
	return f.types[questionID], nil
}

func (f *fakeSource) FetchOrderedOptions(ctx context.Context, questionID int64) ([]AnswerOption, error) {
	return f.options[questionID], nil
}

func newIntakeSource() *fakeSource {
	return &fakeSource{
		questions: map[int64][]QuestionRef{
			4: {
				{ID: 96, Text: "Date taken", Ordinal: 1},
				{ID: 97, Text: "Student name", Ordinal: 2},
				{ID: 10, Text: "Favourite subject", Ordinal: 3},
				{ID: 11, Text: "Activities", Ordinal: 4},
				{ID: 12, Text: "Comments", Ordinal: 5},
			},
		},
		types: map[int64]int{96: 1, 97: 1, 10: 3, 11: 6, 12: 2},
		options: map[int64][]AnswerOption{
			10: {{ID: 1, Text: "Math", Ordinal: 1}, {ID: 2, Text: "Art", Ordinal: 2}},
			11: {{ID: 3, Text: "Sports", Ordinal: 1}, {ID: 4, Text: "Music", Ordinal: 2}, {ID: 5, Text: "Chess", Ordinal: 3}},
		},
	}
}

func TestQuestionTypeShape(t *testing.T) {
	tests := []struct {
		code  int
		multi bool
		opts  bool
	}{
		{code: 1, multi: false, opts: false},
		{code: 2, multi: false, opts: false},
		{code: 3, multi: false, opts: true},
		{code: 4, multi: false, opts: true},
		{code: 5, multi: true, opts: true},
		{code: 6, multi: true, opts: true},
	}
	for _, tc := range tests {
		qt, err := ParseQuestionType(tc.code)
		if err != nil {
			t.Fatalf("code %d: unexpected error %v", tc.code, err)
		}
		s := qt.Shape()
		if s.MultiValued() != tc.multi || s.NeedsOptions != tc.opts {
			t.Fatalf("code %d: unexpected shape %+v", tc.code, s)
		}
	}
	if _, err := ParseQuestionType(7); err == nil {
		t.Fatalf("expected error for unknown type code")
	}
}

func TestQuestionTypeTextRoundTrip(t *testing.T) {
	var qt QuestionType
	if err := qt.UnmarshalText([]byte("Table_Multiple_Choice")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if qt != TableMultipleChoice {
		t.Fatalf("expected TableMultipleChoice, got %v", qt)
	}
}

func TestLoadSchema(t *testing.T) {
	schema, err := LoadSchema(context.Background(), newIntakeSource(), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(schema.Questions) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(schema.Questions))
	}
	for i, q := range schema.Questions {
		if q.Ordinal != i+1 {
			t.Fatalf("question %d out of order: ordinal %d", q.ID, q.Ordinal)
		}
	}
	if got := schema.Questions[3]; got.Type != MultipleChoice || len(got.Options) != 3 || got.Options[2].Text != "Chess" {
		t.Fatalf("unexpected multiple choice question: %+v", got)
	}
	if got := schema.Questions[0]; got.Options != nil {
		t.Fatalf("short text question should not carry options: %+v", got)
	}
}

func TestLoadSchemaErrors(t *testing.T) {
	t.Run("no questions", func(t *testing.T) {
		_, err := LoadSchema(context.Background(), newIntakeSource(), 99)
		if !errors.Is(err, ErrSchema) {
			t.Fatalf("expected ErrSchema, got %v", err)
		}
	})
	t.Run("gap in ordinals", func(t *testing.T) {
		src := newIntakeSource()
		src.questions[4][2].Ordinal = 4
		_, err := LoadSchema(context.Background(), src, 4)
		var se *SchemaError
		if !errors.As(err, &se) || se.QuestionID != 10 {
			t.Fatalf("expected SchemaError on question 10, got %v", err)
		}
	})
	t.Run("choice without options", func(t *testing.T) {
		src := newIntakeSource()
		delete(src.options, 11)
		_, err := LoadSchema(context.Background(), src, 4)
		if !errors.Is(err, ErrSchema) {
			t.Fatalf("expected ErrSchema, got %v", err)
		}
	})
	t.Run("store failure", func(t *testing.T) {
		src := newIntakeSource()
		src.typeErr = &PersistenceError{Op: "fetch question type", Err: errors.New("connection reset")}
		_, err := LoadSchema(context.Background(), src, 4)
		if !errors.Is(err, ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
	})
}

func TestRulesParseDate(t *testing.T) {
	rules := DefaultRules()
	tests := []struct {
		in      string
		wantErr bool
	}{
		{in: "03/11/2024", wantErr: false},
		{in: " 03/11/2024 ", wantErr: false},
		{in: "3/11/2024", wantErr: true},
		{in: "03/11/24", wantErr: true},
		{in: "32/01/2024", wantErr: true},
		{in: "01/13/2024", wantErr: true},
		{in: "2024-11-03", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			_, err := rules.ParseDate(tc.in)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}

	d, _ := rules.ParseDate("03/11/2024")
	if d.Day() != 3 || d.Month() != 11 {
		t.Fatalf("expected 3 November, got %v", d)
	}
}

func TestPrefillLocked(t *testing.T) {
	schema := Schema{SurveyID: 1, Questions: []Question{
		{ID: 96, Ordinal: 1, Type: ShortText},
		{ID: 97, Ordinal: 2, Type: ShortText},
		{ID: 99, Ordinal: 3, Type: ShortText},
	}}
	rules := DefaultRules()

	got := PrefillLocked(schema, rules, Identity{SurveyID: 1, RespondentName: "Ana Ruiz", LinkedStudentName: "Other"})
	if got.Answers.Value(97) != "Ana Ruiz" || got.Answers.Value(99) != "Ana Ruiz" {
		t.Fatalf("self report survey should name the respondent: %+v", got.Answers)
	}
	if len(got.Locked) != 2 {
		t.Fatalf("expected 2 locked questions, got %v", got.Locked)
	}

	schema.SurveyID = 5
	got = PrefillLocked(schema, rules, Identity{SurveyID: 5, RespondentName: "Ana Ruiz", LinkedStudentName: "Leo Ruiz"})
	if got.Answers.Value(97) != "Leo Ruiz" {
		t.Fatalf("expected linked student name, got %q", got.Answers.Value(97))
	}
	if _, ok := got.Answers[100]; ok {
		t.Fatalf("question absent from schema must not be prefilled")
	}
}
