package survey

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// SchemaSource is the read side of the store needed to assemble a schema.
type SchemaSource interface {
	FetchOrderedQuestions(ctx context.Context, surveyID int64) ([]QuestionRef, error)
	FetchQuestionType(ctx context.Context, questionID int64) (int, error)
	FetchOrderedOptions(ctx context.Context, questionID int64) ([]AnswerOption, error)
}

const schemaFetchLimit = 8

// LoadSchema assembles the ordered question list of a survey with resolved types and options.
// Type and option lookups run concurrently; the result keeps ordinal order.
func LoadSchema(ctx context.Context, src SchemaSource, surveyID int64) (Schema, error) {
	refs, err := src.FetchOrderedQuestions(ctx, surveyID)
	if err != nil {
		return Schema{}, fmt.Errorf("fetch questions: %w", err)
	}
	if len(refs) == 0 {
		return Schema{}, &SchemaError{SurveyID: surveyID, Reason: "survey has no questions"}
	}
	for i, ref := range refs {
		if ref.Ordinal != i+1 {
			return Schema{}, &SchemaError{
				SurveyID:   surveyID,
				QuestionID: ref.ID,
				Reason:     fmt.Sprintf("ordinal %d found where %d was expected", ref.Ordinal, i+1),
			}
		}
	}

	questions := make([]Question, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(schemaFetchLimit)
	for i, ref := range refs {
		g.Go(func() error {
			code, err := src.FetchQuestionType(gctx, ref.ID)
			if err != nil {
				return fmt.Errorf("fetch question type: %w", err)
			}
			qt, err := ParseQuestionType(code)
			if err != nil {
				return &SchemaError{SurveyID: surveyID, QuestionID: ref.ID, Reason: err.Error()}
			}

			q := Question{ID: ref.ID, Text: ref.Text, Ordinal: ref.Ordinal, Type: qt}
			if qt.Shape().NeedsOptions {
				opts, err := src.FetchOrderedOptions(gctx, ref.ID)
				if err != nil {
					return fmt.Errorf("fetch options: %w", err)
				}
				if len(opts) == 0 {
					return &SchemaError{SurveyID: surveyID, QuestionID: ref.ID, Reason: qt.String() + " question has no options"}
				}
				q.Options = opts
			}
			questions[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Schema{}, err
	}

	return Schema{SurveyID: surveyID, Questions: questions}, nil
}
