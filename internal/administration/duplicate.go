package administration

import (
	"time"

	"surveyentry/internal/survey"
)

// CheckDuplicate rejects a new administration that repeats one the respondent already has.
// The application survey may be taken once; other surveys once per calendar day.
func CheckDuplicate(existing []survey.Administration, surveyID, respondentID int64, dateTaken time.Time, rules survey.Rules) error {
	application := rules.IsApplication(surveyID)
	for _, a := range existing {
		if a.RespondentID != respondentID || a.SurveyID != surveyID {
			continue
		}
		if application {
			return &survey.DuplicateAdministrationError{SurveyID: surveyID, RespondentID: respondentID, ExistingID: a.ID}
		}
		if survey.SameDay(a.DateTaken, dateTaken) {
			return &survey.DuplicateAdministrationError{
				SurveyID:     surveyID,
				RespondentID: respondentID,
				ExistingID:   a.ID,
				DateTaken:    a.DateTaken,
			}
		}
	}
	return nil
}
