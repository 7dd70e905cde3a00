package survey

// Identity is what is known about who a survey is being entered for.
type Identity struct {
	SurveyID          int64
	RespondentName    string
	LinkedStudentName string
}

// Prefill is a set of answers filled in before entry, with the questions an operator may not change.
type Prefill struct {
	Answers CapturedAnswers `json:"answers"`
	Locked  []int64         `json:"locked"`
}

// PrefillLocked fills identity questions present in the schema.
// On self-report surveys the linked-student question names the respondent themselves.
func PrefillLocked(schema Schema, rules Rules, who Identity) Prefill {
	out := Prefill{Answers: make(CapturedAnswers)}
	set := func(questionID int64, value string) {
		if value == "" {
			return
		}
		q, ok := schema.Question(questionID)
		if !ok || q.Type != ShortText {
			return
		}
		out.Answers[questionID] = []string{value}
		out.Locked = append(out.Locked, questionID)
	}

	for _, id := range rules.RespondentNameQuestionIDs {
		set(id, who.RespondentName)
	}
	if rules.LinkedStudentQuestionID > 0 {
		if rules.IsSelfReport(who.SurveyID) {
			set(rules.LinkedStudentQuestionID, who.RespondentName)
		} else {
			set(rules.LinkedStudentQuestionID, who.LinkedStudentName)
		}
	}
	return out
}
