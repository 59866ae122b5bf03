package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// GeneratedViaMaster marks posts produced through the master server.
	GeneratedViaMaster = "master_api"
	// GeneratedViaOpenAI marks posts produced through the direct OpenAI call.
	GeneratedViaOpenAI = "openai_api"
)

const excerptWordLimit = 55

// StoryReference is a single source the model cited for a story.
type StoryReference struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// GeneratedStory is the parsed result of one model response. It lives only
// long enough to be turned into a post plus metadata.
type GeneratedStory struct {
	Title      string           `json:"title"`
	Content    string           `json:"content"`
	Excerpt    string           `json:"excerpt"`
	References []StoryReference `json:"references"`
	Tags       []string         `json:"tags"`
}

// StoryUsage carries the token accounting and correlation id of one response.
type StoryUsage struct {
	TotalTokens int    `json:"total_tokens"`
	RequestID   string `json:"request_id"`
}

var (
	// ErrStoryNotJSON indicates the model output could not be parsed as JSON.
	ErrStoryNotJSON = errors.New("model output is not valid JSON")
	// ErrStoryIncomplete indicates the parsed JSON lacks title or content.
	ErrStoryIncomplete = errors.New("model output is missing title or content")
)

// parseGeneratedStory validates raw model output against the expected schema:
// title and content are required, everything else defaults to empty. A missing
// excerpt is derived from the content.
func parseGeneratedStory(raw string) (GeneratedStory, error) {
	trimmed := strings.TrimSpace(raw)
	// Some models wrap JSON output in a markdown code fence despite being
	// asked for a bare object.
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var story GeneratedStory
	if err := json.Unmarshal([]byte(trimmed), &story); err != nil {
		return GeneratedStory{}, fmt.Errorf("%w: %v", ErrStoryNotJSON, err)
	}

	story.Title = strings.TrimSpace(story.Title)
	story.Content = strings.TrimSpace(story.Content)
	if story.Title == "" || story.Content == "" {
		return GeneratedStory{}, ErrStoryIncomplete
	}

	if strings.TrimSpace(story.Excerpt) == "" {
		story.Excerpt = excerptFromContent(story.Content)
	}

	return story, nil
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// excerptFromContent strips markup and trims the text to the first 55 words.
func excerptFromContent(content string) string {
	plain := htmlTagPattern.ReplaceAllString(content, " ")
	words := strings.Fields(plain)
	if len(words) > excerptWordLimit {
		words = words[:excerptWordLimit]
		return strings.Join(words, " ") + "…"
	}
	return strings.Join(words, " ")
}

var firstImagePattern = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["']`)

// firstImageURL extracts the src of the first <img> in document order, used to
// pick a featured image from master-resolved content.
func firstImageURL(html string) string {
	match := firstImagePattern.FindStringSubmatch(html)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}
