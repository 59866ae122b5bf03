package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIGenerateStory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("unexpected authorization header %q", got)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("failed to read request body: %v", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		format, ok := payload["response_format"].(map[string]any)
		if !ok || format["type"] != "json_object" {
			t.Fatalf("expected json_object response format, got %v", payload["response_format"])
		}
		if payload["model"] != "gpt-4o-mini" {
			t.Fatalf("unexpected model %v", payload["model"])
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-123",
			"choices": [{"message": {"role": "assistant", "content": "{\"title\":\"T\",\"content\":\"<p>Body</p>\"}"}}],
			"usage": {"total_tokens": 88}
		}`)
	}))
	defer server.Close()

	client := NewOpenAIStoryClient()
	client.SetBaseURL(server.URL)

	story, usage, err := client.GenerateStory(context.Background(), "sk-test", "gpt-4o-mini", "system", "user", 0)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if story.Title != "T" || story.Content != "<p>Body</p>" {
		t.Fatalf("unexpected story %+v", story)
	}
	if usage.TotalTokens != 88 || usage.RequestID != "chatcmpl-123" {
		t.Fatalf("unexpected usage %+v", usage)
	}
}

func TestOpenAIGenerateStoryEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"chatcmpl-1","choices":[]}`)
	}))
	defer server.Close()

	client := NewOpenAIStoryClient()
	client.SetBaseURL(server.URL)

	_, _, err := client.GenerateStory(context.Background(), "sk-test", "gpt-4o-mini", "system", "user", 0)
	if !errors.Is(err, ErrOpenAIEmptyResponse) {
		t.Fatalf("expected ErrOpenAIEmptyResponse, got %v", err)
	}
}

func TestOpenAIGenerateStoryUnparsableContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"chatcmpl-1","choices":[{"message":{"role":"assistant","content":"plain text, not json"}}]}`)
	}))
	defer server.Close()

	client := NewOpenAIStoryClient()
	client.SetBaseURL(server.URL)

	_, _, err := client.GenerateStory(context.Background(), "sk-test", "gpt-4o-mini", "system", "user", 0)
	if !errors.Is(err, ErrStoryNotJSON) {
		t.Fatalf("expected ErrStoryNotJSON, got %v", err)
	}
}

func TestOpenAIGenerateStoryRequiresKey(t *testing.T) {
	client := NewOpenAIStoryClient()
	_, _, err := client.GenerateStory(context.Background(), "  ", "gpt-4o-mini", "system", "user", 0)
	if !errors.Is(err, ErrAPIKeyMissing) {
		t.Fatalf("expected ErrAPIKeyMissing, got %v", err)
	}
}
