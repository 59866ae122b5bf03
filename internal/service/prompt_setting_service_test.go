package service

import (
	"errors"
	"testing"

	"github.com/storymaker/internal/db"
)

func TestPromptSettingsRoundTrip(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewPromptSettingService(gdb)

	saved, err := svc.Save(PromptSettings{
		Defaults: DefaultSettings{Model: "gpt-4o", SystemContent: "write well", MaxTokens: 800, Timeout: 20},
		Prompts: []PromptSpec{
			{Text: "write about go", Category: "Tech", Active: true, PhotoCount: 2},
		},
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.Prompts[0].ID == "" {
		t.Fatal("expected missing prompt id to be filled with a uuid")
	}

	loaded, err := svc.Get()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded.Defaults.Model != "gpt-4o" {
		t.Fatalf("unexpected model %q", loaded.Defaults.Model)
	}
	if len(loaded.Prompts) != 1 || loaded.Prompts[0].Text != "write about go" {
		t.Fatalf("unexpected prompts %+v", loaded.Prompts)
	}
}

func TestPromptSettingsInvalidJSON(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewPromptSettingService(gdb)

	record := db.Setting{Key: db.SettingKeyPromptSettings, Value: "{not valid"}
	if err := gdb.Create(&record).Error; err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	_, err := svc.Get()
	if !errors.Is(err, ErrPromptSettingsInvalid) {
		t.Fatalf("expected ErrPromptSettingsInvalid, got %v", err)
	}
}

func TestPromptSettingsEmptyIsNotAnError(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewPromptSettingService(gdb)

	settings, err := svc.Get()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(settings.Prompts) != 0 {
		t.Fatalf("expected no prompts, got %d", len(settings.Prompts))
	}
}

func TestMergePromptOverridesWin(t *testing.T) {
	defaults := DefaultSettings{Model: "gpt-4o-mini", SystemContent: "base", MaxTokens: 900, Timeout: 25}

	merged := defaults.Merge(PromptSpec{Model: "gpt-4o", MaxTokens: 400})
	if merged.Model != "gpt-4o" {
		t.Fatalf("expected prompt model to win, got %q", merged.Model)
	}
	if merged.MaxTokens != 400 {
		t.Fatalf("expected prompt max tokens to win, got %d", merged.MaxTokens)
	}
	if merged.SystemContent != "base" {
		t.Fatalf("expected default system content, got %q", merged.SystemContent)
	}
	if merged.Timeout != 25 {
		t.Fatalf("expected default timeout, got %d", merged.Timeout)
	}
}

func TestMergeFillsHardDefaults(t *testing.T) {
	merged := DefaultSettings{}.Merge(PromptSpec{})
	if merged.Model != defaultStoryModel {
		t.Fatalf("unexpected model %q", merged.Model)
	}
	if merged.MaxTokens != defaultStoryMaxTokens {
		t.Fatalf("unexpected max tokens %d", merged.MaxTokens)
	}
	if merged.Timeout != defaultStoryTimeout {
		t.Fatalf("unexpected timeout %d", merged.Timeout)
	}
}

func TestPromptRunnable(t *testing.T) {
	cases := []struct {
		name   string
		prompt PromptSpec
		want   bool
	}{
		{"complete", PromptSpec{ID: "a", Text: "write", Active: true}, true},
		{"inactive", PromptSpec{ID: "a", Text: "write", Active: false}, false},
		{"missing id", PromptSpec{Text: "write", Active: true}, false},
		{"empty text", PromptSpec{ID: "a", Text: "   ", Active: true}, false},
	}

	for _, tc := range cases {
		if got := tc.prompt.Runnable(); got != tc.want {
			t.Errorf("%s: expected runnable=%v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestPromptCRUD(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewPromptSettingService(gdb)

	created, err := svc.AddPrompt(PromptSpec{Text: "first", Category: "News", Active: true})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	created.Text = "updated"
	if err := svc.UpdatePrompt(created); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	settings, err := svc.Get()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if settings.Prompts[0].Text != "updated" {
		t.Fatalf("expected updated text, got %q", settings.Prompts[0].Text)
	}

	if err := svc.DeletePrompt(created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := svc.DeletePrompt(created.ID); !errors.Is(err, ErrPromptNotFound) {
		t.Fatalf("expected ErrPromptNotFound, got %v", err)
	}
}
