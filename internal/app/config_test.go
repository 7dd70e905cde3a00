package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"surveyentry/internal/survey"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SESSION_TTL_HOURS", "2")
	t.Setenv("CSRF_ENFORCED", "yes")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")

	cfg := LoadConfig()
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected :9090, got %s", cfg.HTTPAddr)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("expected 2h session ttl, got %s", cfg.SessionTTL)
	}
	if !cfg.CSRFEnforced {
		t.Fatalf("expected csrf enforced")
	}
	if cfg.DBMaxOpenConns != 25 {
		t.Fatalf("expected fallback of 25 open conns, got %d", cfg.DBMaxOpenConns)
	}
}

func TestLoadRulesMissingFileUsesDefaults(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules.ApplicationSurveyID != survey.DefaultRules().ApplicationSurveyID {
		t.Fatalf("expected default application survey, got %d", rules.ApplicationSurveyID)
	}
}

func TestLoadRulesOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := "application_survey_id: 12\nrequired_question_ids: [5, 6]\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules.ApplicationSurveyID != 12 {
		t.Fatalf("expected 12, got %d", rules.ApplicationSurveyID)
	}
	if len(rules.RequiredQuestionIDs) != 2 || rules.RequiredQuestionIDs[1] != 6 {
		t.Fatalf("unexpected required ids %v", rules.RequiredQuestionIDs)
	}
	if len(rules.AnchorQuestionIDs) != 2 {
		t.Fatalf("anchor ids should keep their default, got %v", rules.AnchorQuestionIDs)
	}
}

func TestLoadRulesRejectsEmptyAnchors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("anchor_question_ids: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Fatalf("expected error for empty anchor list")
	}
}
