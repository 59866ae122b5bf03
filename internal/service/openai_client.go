package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// directStoryMaxTokens is the fixed completion budget for the direct
// chat-completion call; per-prompt budgets only apply to master dispatch.
const directStoryMaxTokens = 1500

const defaultDirectTimeout = 30 * time.Second

// ErrOpenAIEmptyResponse 表示接口未返回可用的消息内容。
var ErrOpenAIEmptyResponse = errors.New("openai returned no message content")

// OpenAIStoryClient 通过官方 SDK 直连 chat-completion 接口生成文章，
// 要求模型以 JSON object 形式输出。
type OpenAIStoryClient struct {
	baseURL string
}

// NewOpenAIStoryClient 构造 OpenAIStoryClient。
func NewOpenAIStoryClient() *OpenAIStoryClient {
	return &OpenAIStoryClient{}
}

// SetBaseURL 覆盖默认的 API 地址，主要用于测试。
func (c *OpenAIStoryClient) SetBaseURL(base string) {
	c.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

// GenerateStory 以 system+user 两条消息调用模型并解析其 JSON 输出。
// timeoutSeconds 为 0 时使用默认的 30 秒。
func (c *OpenAIStoryClient) GenerateStory(ctx context.Context, apiKey, model, systemPrompt, userPrompt string, timeoutSeconds int) (GeneratedStory, StoryUsage, error) {
	if strings.TrimSpace(apiKey) == "" {
		return GeneratedStory{}, StoryUsage{}, ErrAPIKeyMissing
	}

	timeout := defaultDirectTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}

	client := openai.NewClient(opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		MaxTokens: openai.Int(directStoryMaxTokens),
	}, option.WithJSONSet("response_format", map[string]string{"type": "json_object"}))
	if err != nil {
		return GeneratedStory{}, StoryUsage{}, fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return GeneratedStory{}, StoryUsage{}, ErrOpenAIEmptyResponse
	}

	story, err := parseGeneratedStory(resp.Choices[0].Message.Content)
	if err != nil {
		return GeneratedStory{}, StoryUsage{}, err
	}

	usage := StoryUsage{
		TotalTokens: int(resp.Usage.TotalTokens),
		RequestID:   resp.ID,
	}

	return story, usage, nil
}
