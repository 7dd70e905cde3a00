package survey

import (
	"fmt"
	"strings"
)

// QuestionType is the closed set of answer shapes a question can take.
// Numeric codes only appear at the storage boundary; see ParseQuestionType and Code.
type QuestionType int

const (
	ShortText QuestionType = iota + 1
	LongText
	SingleChoice
	TableSingleChoice
	TableMultipleChoice
	MultipleChoice
)

type Cardinality int

const (
	CardinalitySingle Cardinality = iota + 1
	CardinalityMulti
)

func (c Cardinality) String() string {
	if c == CardinalityMulti {
		return "multi"
	}
	return "single"
}

// Shape describes how many values a question accepts and whether they come from an option list.
type Shape struct {
	Cardinality  Cardinality
	NeedsOptions bool
}

func (s Shape) MultiValued() bool { return s.Cardinality == CardinalityMulti }

func ParseQuestionType(code int) (QuestionType, error) {
	t := QuestionType(code)
	if !t.Valid() {
		return 0, fmt.Errorf("unknown question type code %d", code)
	}
	return t, nil
}

func (t QuestionType) Valid() bool {
	return t >= ShortText && t <= MultipleChoice
}

func (t QuestionType) Code() int { return int(t) }

func (t QuestionType) Shape() Shape {
	switch t {
	case ShortText, LongText:
		return Shape{Cardinality: CardinalitySingle}
	case SingleChoice, TableSingleChoice:
		return Shape{Cardinality: CardinalitySingle, NeedsOptions: true}
	case TableMultipleChoice, MultipleChoice:
		return Shape{Cardinality: CardinalityMulti, NeedsOptions: true}
	default:
		return Shape{}
	}
}

func (t QuestionType) String() string {
	switch t {
	case ShortText:
		return "short_text"
	case LongText:
		return "long_text"
	case SingleChoice:
		return "single_choice"
	case TableSingleChoice:
		return "table_single_choice"
	case TableMultipleChoice:
		return "table_multiple_choice"
	case MultipleChoice:
		return "multiple_choice"
	default:
		return fmt.Sprintf("question_type(%d)", int(t))
	}
}

func (t QuestionType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid question type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *QuestionType) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for c := ShortText; c <= MultipleChoice; c++ {
		if c.String() == name {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown question type %q", name)
}
