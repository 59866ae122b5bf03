package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/gorm"
)

const searchResultsJSON = `{"results":[
	{"urls":{"small":"https://img.test/a.jpg"},"user":{"name":"Alice"}},
	{"urls":{"small":"https://img.test/b.jpg"},"user":{"name":"Bob"}},
	{"urls":{"small":"https://img.test/c.jpg"},"user":{"name":"Cara"}}
]}`

// 1x1 transparent PNG
const tinyPNGBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="

func newImageServiceForTest(t *testing.T, gdb *gorm.DB, withKey bool) *ImageService {
	t.Helper()
	t.Setenv("UNSPLASH_API_KEY", "")

	system := NewSystemSettingService(gdb)
	if withKey {
		if _, err := system.UpdateSettings(SystemSettingsInput{UnsplashAPIKey: "unsplash-key"}); err != nil {
			t.Fatalf("failed to seed api key: %v", err)
		}
	}

	logs := NewGenerationLogService(gdb)
	svc := NewImageService(system, logs, t.TempDir(), "/static/uploads")
	svc.SetRand(rand.New(rand.NewSource(1)))
	return svc
}

func TestResolvePlaceholdersRoundTrip(t *testing.T) {
	gdb := setupTestDB(t)
	svc := newImageServiceForTest(t, gdb, true)

	searches := 0
	svc.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
		searches++
		if got := r.URL.Query().Get("per_page"); got != "30" {
			t.Fatalf("unexpected per_page %q", got)
		}
		if got := r.URL.Query().Get("orientation"); got != "landscape" {
			t.Fatalf("unexpected orientation %q", got)
		}
		if got := r.URL.Query().Get("client_id"); got != "unsplash-key" {
			t.Fatalf("unexpected client_id %q", got)
		}
		return jsonResponse(http.StatusOK, searchResultsJSON), nil
	}})

	html := `<p>a</p>{img_unsplash:golang,server}<p>b</p>{img_unsplash:mountain sunrise}`
	resolved, first := svc.ResolvePlaceholders(context.Background(), "req1", html)

	if searches != 2 {
		t.Fatalf("expected 2 searches, got %d", searches)
	}
	if placeholderPattern.MatchString(resolved) {
		t.Fatalf("expected no remaining placeholders, got %q", resolved)
	}
	if got := strings.Count(resolved, "<figure>"); got != 2 {
		t.Fatalf("expected 2 figure blocks, got %d", got)
	}
	if first == "" || !strings.Contains(resolved, first) {
		t.Fatalf("expected first image url to come from the resolved content, got %q", first)
	}
	// 首图取文档顺序中第一个 figure 的图片
	firstFigure := resolved[:strings.Index(resolved, "</figure>")]
	if !strings.Contains(firstFigure, first) {
		t.Fatalf("expected %q inside the first figure %q", first, firstFigure)
	}
}

func TestResolvePlaceholdersWithoutKeyDropsTokens(t *testing.T) {
	gdb := setupTestDB(t)
	svc := newImageServiceForTest(t, gdb, false)

	resolved, first := svc.ResolvePlaceholders(context.Background(), "req1", "x {img_unsplash:dogs} y")
	if resolved != "x  y" {
		t.Fatalf("expected token replaced with empty string, got %q", resolved)
	}
	if first != "" {
		t.Fatalf("expected no featured image, got %q", first)
	}
}

func TestResolvePlaceholdersEmptyResults(t *testing.T) {
	gdb := setupTestDB(t)
	svc := newImageServiceForTest(t, gdb, true)
	svc.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"results":[]}`), nil
	}})

	resolved, first := svc.ResolvePlaceholders(context.Background(), "req1", "{img_unsplash:nothing}")
	if resolved != "" || first != "" {
		t.Fatalf("expected silent drop, got %q / %q", resolved, first)
	}
}

func TestResolvePlaceholdersNoTokensIsNoop(t *testing.T) {
	gdb := setupTestDB(t)
	svc := newImageServiceForTest(t, gdb, true)
	svc.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
		t.Fatal("no search should happen without placeholders")
		return nil, nil
	}})

	html := "<p>an article without placeholders</p>"
	resolved, first := svc.ResolvePlaceholders(context.Background(), "req1", html)
	if resolved != html || first != "" {
		t.Fatalf("expected content unchanged, got %q / %q", resolved, first)
	}
}

func TestSideloadImage(t *testing.T) {
	gdb := setupTestDB(t)
	svc := newImageServiceForTest(t, gdb, true)

	png, err := base64.StdEncoding.DecodeString(tinyPNGBase64)
	if err != nil {
		t.Fatalf("failed to decode fixture: %v", err)
	}

	svc.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"image/png"}},
			Body:       io.NopCloser(bytes.NewReader(png)),
		}, nil
	}})

	url, err := svc.SideloadImage(context.Background(), "https://img.test/photo.png")
	if err != nil {
		t.Fatalf("sideload failed: %v", err)
	}
	if !strings.HasPrefix(url, "/static/uploads/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected sideloaded url %q", url)
	}

	saved, err := os.ReadFile(filepath.Join(svc.uploadDir, filepath.Base(url)))
	if err != nil {
		t.Fatalf("failed to read sideloaded file: %v", err)
	}
	if !bytes.Equal(saved, png) {
		t.Fatal("sideloaded file does not match downloaded bytes")
	}
}

func TestSideloadImageRejectsNonImage(t *testing.T) {
	gdb := setupTestDB(t)
	svc := newImageServiceForTest(t, gdb, true)
	svc.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `<html>not an image</html>`), nil
	}})

	if _, err := svc.SideloadImage(context.Background(), "https://img.test/fake.jpg"); err == nil {
		t.Fatal("expected non-image content to be rejected")
	}
}
