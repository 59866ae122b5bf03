package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const recentPostLimit = 20

var (
	// ErrNoPrompts 表示没有任何可用的提示词配置。
	ErrNoPrompts = errors.New("no prompts configured")
	// ErrNoDispatchPath 表示订阅无效且本地未配置 API Key，整次运行中止。
	ErrNoDispatchPath = errors.New("no valid subscription and no local api key configured")
)

// GenerationResult aggregates per-prompt outcomes of one run.
type GenerationResult struct {
	Successes []string `json:"successes"`
	Errors    []string `json:"errors"`
}

// StoryGenerator drives one generation run: it resolves the dispatch mode
// from the subscription state, walks the configured prompts in order and
// turns each into a post. Per-prompt failures are isolated; only setup
// failures abort the run, and those are returned as errors so the caller can
// still release the lock and reschedule.
type StoryGenerator struct {
	system  *SystemSettingService
	prompts *PromptSettingService
	master  *MasterClient
	openai  *OpenAIStoryClient
	images  *ImageService
	posts   *PostService
	logs    *GenerationLogService

	domain      string
	siteBaseURL string
}

// NewStoryGenerator 构造 StoryGenerator。
func NewStoryGenerator(
	system *SystemSettingService,
	prompts *PromptSettingService,
	master *MasterClient,
	openai *OpenAIStoryClient,
	images *ImageService,
	posts *PostService,
	logs *GenerationLogService,
	domain, siteBaseURL string,
) *StoryGenerator {
	return &StoryGenerator{
		system:      system,
		prompts:     prompts,
		master:      master,
		openai:      openai,
		images:      images,
		posts:       posts,
		logs:        logs,
		domain:      domain,
		siteBaseURL: strings.TrimRight(siteBaseURL, "/"),
	}
}

// dispatched carries the outcome of one successful dispatch attempt.
type dispatched struct {
	story GeneratedStory
	usage StoryUsage
	via   string
}

// GenerateAll processes every runnable prompt sequentially. The returned
// error is non-nil only for whole-run setup failures; per-prompt failures end
// up in the result's Errors list.
func (g *StoryGenerator) GenerateAll(ctx context.Context, currentUserID uint) (GenerationResult, error) {
	result := GenerationResult{Successes: []string{}, Errors: []string{}}

	settings, err := g.system.GetSettings()
	if err != nil {
		g.logs.Error("", fmt.Sprintf("generation aborted: %v", err))
		return result, err
	}

	promptSettings, err := g.prompts.Get()
	if err != nil {
		g.logs.Error("", fmt.Sprintf("generation aborted: %v", err))
		return result, err
	}
	if len(promptSettings.Prompts) == 0 {
		g.logs.Error("", "generation aborted: no prompts configured")
		return result, ErrNoPrompts
	}

	// 订阅状态每次运行只查询一次，之后对所有提示词复用
	status := g.master.VerifySubscription(ctx, g.domain)
	useMaster := status.Valid
	if !useMaster {
		reason := status.Error
		if reason == "" {
			reason = status.Message
		}
		if settings.OpenAIAPIKey == "" {
			g.logs.Error("", fmt.Sprintf("generation aborted: subscription invalid (%s) and no local api key", reason))
			return result, fmt.Errorf("%w: %s", ErrNoDispatchPath, reason)
		}
		g.logs.Info("", fmt.Sprintf("subscription invalid (%s), dispatching directly to OpenAI", reason))
	}

	for _, prompt := range promptSettings.Prompts {
		if !prompt.Runnable() {
			continue
		}

		requestID, link, err := g.generateOne(ctx, prompt, promptSettings.Defaults, settings, useMaster, currentUserID)
		if err != nil {
			message := fmt.Sprintf("prompt %s failed: %v", prompt.ID, err)
			g.logs.Error(requestID, message)
			result.Errors = append(result.Errors, message)
			continue
		}

		g.logs.Success(requestID, fmt.Sprintf("story generated for prompt %s: %s", prompt.ID, link))
		result.Successes = append(result.Successes, link)
	}

	return result, nil
}

// generateOne runs the full pipeline for a single prompt and returns the
// request id and a link to the created post.
func (g *StoryGenerator) generateOne(ctx context.Context, prompt PromptSpec, defaults DefaultSettings, settings SystemSettings, useMaster bool, currentUserID uint) (string, string, error) {
	merged := defaults.Merge(prompt)

	recent, err := g.posts.RecentPublished(prompt.Category, recentPostLimit)
	if err != nil {
		return "", "", fmt.Errorf("load recent posts: %w", err)
	}

	outcome, err := g.dispatch(ctx, prompt, merged, settings, recent, useMaster)
	if err != nil {
		return "", "", err
	}

	requestID := strings.TrimSpace(outcome.usage.RequestID)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	content := outcome.story.Content
	featuredSource := ""
	if outcome.via == GeneratedViaMaster {
		// Master 已在服务端完成占位符替换，这里只取首图作为特色图
		featuredSource = firstImageURL(content)
	} else {
		content, featuredSource = g.images.ResolvePlaceholders(ctx, requestID, content)
	}

	if settings.ShowAttribution {
		content += fmt.Sprintf("\n<p class=\"generated-by\">generated by: %s</p>", merged.Model)
	}

	featured := ""
	if featuredSource != "" {
		sideloaded, err := g.images.SideloadImage(ctx, featuredSource)
		if err != nil {
			// 特色图失败不影响文章本身
			g.logs.Error(requestID, fmt.Sprintf("featured image sideload failed: %v", err))
		} else {
			featured = sideloaded
		}
	}

	post, err := g.posts.CreateStoryPost(StoryPostInput{
		Story:         outcome.story,
		Content:       content,
		Category:      prompt.Category,
		AuthorLogin:   prompt.Author,
		CurrentUserID: currentUserID,
		AutoPublish:   prompt.AutoPublish,
		FeaturedImage: featured,
		RequestID:     requestID,
		TotalTokens:   outcome.usage.TotalTokens,
		GeneratedVia:  outcome.via,
	})
	if err != nil {
		return requestID, "", fmt.Errorf("create post: %w", err)
	}

	return requestID, fmt.Sprintf("%s/posts/%d", g.siteBaseURL, post.ID), nil
}

// dispatch tries the master server first when the subscription allows it and
// falls back to the direct OpenAI call on any master failure. The direct call
// is the end of the chain; its failure is terminal for the prompt.
func (g *StoryGenerator) dispatch(ctx context.Context, prompt PromptSpec, merged MergedSettings, settings SystemSettings, recent []RecentPost, useMaster bool) (dispatched, error) {
	if useMaster {
		story, usage, err := g.master.GenerateStory(ctx, MasterStoryRequest{
			Domain:     g.domain,
			PromptID:   prompt.ID,
			PromptText: prompt.Text,
			Settings: MasterStorySettings{
				Model:         merged.Model,
				MaxTokens:     merged.MaxTokens,
				SystemContent: merged.SystemContent,
				Timeout:       merged.Timeout,
			},
			RecentPosts: recent,
			Category:    prompt.Category,
			Photos:      prompt.PhotoCount,
		})
		if err == nil {
			return dispatched{story: story, usage: usage, via: GeneratedViaMaster}, nil
		}
		g.logs.Error("", fmt.Sprintf("master dispatch failed for prompt %s: %v, retrying via direct API", prompt.ID, err))

		if settings.OpenAIAPIKey == "" {
			return dispatched{}, fmt.Errorf("master dispatch failed and no local api key for fallback: %w", err)
		}
	}

	story, usage, err := g.openai.GenerateStory(
		ctx,
		settings.OpenAIAPIKey,
		merged.Model,
		g.buildSystemPrompt(ctx, merged, recent),
		buildUserPrompt(prompt),
		merged.Timeout,
	)
	if err != nil {
		return dispatched{}, err
	}

	return dispatched{story: story, usage: usage, via: GeneratedViaOpenAI}, nil
}

// buildSystemPrompt 拼装直连模式的 system 指令：
// 基础指令 + 远端通用指令 + 同分类近期文章的去重清单。
func (g *StoryGenerator) buildSystemPrompt(ctx context.Context, merged MergedSettings, recent []RecentPost) string {
	var builder strings.Builder
	builder.WriteString(merged.SystemContent)
	builder.WriteString("\n\n")
	builder.WriteString(g.master.Instructions(ctx))

	if len(recent) > 0 {
		builder.WriteString("\n\nDo not repeat any of these recently published stories:\n")
		for i, post := range recent {
			builder.WriteString(fmt.Sprintf("%d. %s", i+1, post.Title))
			if strings.TrimSpace(post.Excerpt) != "" {
				builder.WriteString(": ")
				builder.WriteString(post.Excerpt)
			}
			builder.WriteString("\n")
		}
	}

	return builder.String()
}

// buildUserPrompt 在直连模式下为用户指令追加图片占位符要求。
func buildUserPrompt(prompt PromptSpec) string {
	text := strings.TrimSpace(prompt.Text)
	if prompt.PhotoCount > 0 {
		text += fmt.Sprintf(
			"\n\nInclude exactly %d image placeholders inside the article body, each in the exact form {img_unsplash:kw1,kw2,kw3} with up to three keywords describing the surrounding paragraph.",
			prompt.PhotoCount,
		)
	}
	return text
}
