package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	verifySubscriptionPath = "/wp-json/exaig/v1/verify-subscription"
	generateStoryPath      = "/wp-json/exaig/v1/generate-story"
	instructionsPath       = "/wp-json/exaig/v1/instructions"

	subscriptionTimeout  = 30 * time.Second
	generateTimeout      = 60 * time.Second
	instructionsTimeout  = 10 * time.Second
	instructionsCacheTTL = 5 * time.Minute
)

// fallbackInstructions is used when the remote instructions endpoint cannot be
// reached.
const fallbackInstructions = "Write a factually accurate, well-structured article. Respond with a single JSON object containing title, content, excerpt, references and tags."

// ErrMasterURLMissing 表示未配置 Master 服务地址。
var ErrMasterURLMissing = errors.New("master url not defined")

// SubscriptionStatus 描述远端订阅校验的结果。
type SubscriptionStatus struct {
	Valid            bool
	Domain           string
	PackageName      string
	PackageID        int
	CreditsRemaining int
	Price            float64
	CreatedAt        string
	Error            string
	Message          string
}

// MasterStorySettings 是发送给 Master 服务的生成参数。
type MasterStorySettings struct {
	Model         string `json:"model"`
	MaxTokens     int    `json:"max_tokens"`
	SystemContent string `json:"system_content"`
	Timeout       int    `json:"timeout"`
}

// MasterStoryRequest 是 Master 生成接口的请求体。
type MasterStoryRequest struct {
	Domain      string              `json:"domain"`
	PromptID    string              `json:"prompt_id"`
	PromptText  string              `json:"prompt_text"`
	Settings    MasterStorySettings `json:"settings"`
	RecentPosts []RecentPost        `json:"recent_posts"`
	Category    string              `json:"category"`
	Photos      int                 `json:"photos"`
}

// MasterClient 封装与 Master 服务的全部交互：订阅校验、远端指令与代理生成。
type MasterClient struct {
	settings *SystemSettingService
	http     httpDoer

	mu                   sync.Mutex
	cachedInstructions   string
	instructionsCachedAt time.Time
}

// NewMasterClient 构造 MasterClient。
func NewMasterClient(settings *SystemSettingService) *MasterClient {
	return &MasterClient{
		settings: settings,
		http:     &http.Client{Timeout: generateTimeout},
	}
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (c *MasterClient) SetHTTPClient(client httpDoer) {
	if client == nil {
		c.http = &http.Client{Timeout: generateTimeout}
		return
	}
	c.http = client
}

func (c *MasterClient) masterURL() string {
	settings, err := c.settings.GetSettings()
	if err != nil {
		return ""
	}
	return settings.MasterURL
}

// VerifySubscription 查询当前域名是否持有有效订阅。
// 所有失败模式都映射到返回值上，不抛错，由调用方决定降级策略。
func (c *MasterClient) VerifySubscription(ctx context.Context, domain string) SubscriptionStatus {
	master := c.masterURL()
	if master == "" {
		return SubscriptionStatus{Valid: false, Error: ErrMasterURLMissing.Error()}
	}

	query := url.Values{}
	query.Set("domain", domain)
	endpoint := master + verifySubscriptionPath + "?" + query.Encode()

	reqCtx, cancel := context.WithTimeout(ctx, subscriptionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return SubscriptionStatus{Valid: false, Error: fmt.Sprintf("Network error: %v", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return SubscriptionStatus{Valid: false, Error: fmt.Sprintf("Network error: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SubscriptionStatus{Valid: false, Error: fmt.Sprintf("Network error: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return SubscriptionStatus{Valid: false, Error: fmt.Sprintf("API error: HTTP %d", resp.StatusCode)}
	}

	var payload struct {
		Valid            bool   `json:"valid"`
		Domain           string `json:"domain"`
		PackageName      string `json:"package_name"`
		PackageID        any    `json:"package_id"`
		CreditsRemaining any    `json:"credits_remaining"`
		Price            any    `json:"price"`
		CreatedAt        string `json:"created_at"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return SubscriptionStatus{Valid: false, Error: "Invalid JSON response"}
	}

	if !payload.Valid {
		message := strings.TrimSpace(payload.Message)
		if message == "" {
			message = "No subscription found"
		}
		return SubscriptionStatus{Valid: false, Message: message}
	}

	return SubscriptionStatus{
		Valid:            true,
		Domain:           payload.Domain,
		PackageName:      payload.PackageName,
		PackageID:        coerceInt(payload.PackageID),
		CreditsRemaining: coerceInt(payload.CreditsRemaining),
		Price:            coerceFloat(payload.Price),
		CreatedAt:        payload.CreatedAt,
	}
}

// Instructions 获取远端的通用写作指令，结果缓存 5 分钟；
// 任何失败都回退到内置的通用指令。
func (c *MasterClient) Instructions(ctx context.Context) string {
	c.mu.Lock()
	if c.cachedInstructions != "" && time.Since(c.instructionsCachedAt) < instructionsCacheTTL {
		cached := c.cachedInstructions
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	master := c.masterURL()
	if master == "" {
		return fallbackInstructions
	}

	reqCtx, cancel := context.WithTimeout(ctx, instructionsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, master+instructionsPath, nil)
	if err != nil {
		return fallbackInstructions
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fallbackInstructions
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fallbackInstructions
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fallbackInstructions
	}

	var payload struct {
		Instructions string `json:"instructions"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || strings.TrimSpace(payload.Instructions) == "" {
		return fallbackInstructions
	}

	c.mu.Lock()
	c.cachedInstructions = strings.TrimSpace(payload.Instructions)
	c.instructionsCachedAt = time.Now()
	cached := c.cachedInstructions
	c.mu.Unlock()

	return cached
}

// GenerateStory 请求 Master 服务代理生成一篇文章。任何失败（传输错误、
// 非 200、无效 JSON、success=false、缺少标题或正文）都以错误返回，
// 由调用方回退到直连 OpenAI。
func (c *MasterClient) GenerateStory(ctx context.Context, request MasterStoryRequest) (GeneratedStory, StoryUsage, error) {
	master := c.masterURL()
	if master == "" {
		return GeneratedStory{}, StoryUsage{}, ErrMasterURLMissing
	}

	encoded, err := json.Marshal(request)
	if err != nil {
		return GeneratedStory{}, StoryUsage{}, fmt.Errorf("encode master request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, master+generateStoryPath, bytes.NewReader(encoded))
	if err != nil {
		return GeneratedStory{}, StoryUsage{}, fmt.Errorf("create master request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return GeneratedStory{}, StoryUsage{}, fmt.Errorf("master transport error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return GeneratedStory{}, StoryUsage{}, fmt.Errorf("read master response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return GeneratedStory{}, StoryUsage{}, fmt.Errorf("master API error: HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Success bool           `json:"success"`
		Error   string         `json:"error"`
		Content GeneratedStory `json:"content"`
		Usage   StoryUsage     `json:"usage"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return GeneratedStory{}, StoryUsage{}, fmt.Errorf("invalid master JSON response: %w", err)
	}

	if !payload.Success {
		message := strings.TrimSpace(payload.Error)
		if message == "" {
			message = "master reported failure"
		}
		return GeneratedStory{}, StoryUsage{}, errors.New(message)
	}

	story := payload.Content
	story.Title = strings.TrimSpace(story.Title)
	story.Content = strings.TrimSpace(story.Content)
	if story.Title == "" || story.Content == "" {
		return GeneratedStory{}, StoryUsage{}, ErrStoryIncomplete
	}
	if strings.TrimSpace(story.Excerpt) == "" {
		story.Excerpt = excerptFromContent(story.Content)
	}

	return story, payload.Usage, nil
}

// coerceInt / coerceFloat 容忍远端把数字字段编码为字符串。
// json.Unmarshal 到 any 时数字总是 float64，无需处理其他数值类型。
func coerceInt(value any) int {
	switch v := value.(type) {
	case float64:
		return int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func coerceFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
