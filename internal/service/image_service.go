package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	// 注册 webp 解码器，用于探测下载图片的尺寸
	_ "golang.org/x/image/webp"
)

const (
	unsplashBaseURL    = "https://api.unsplash.com"
	unsplashPerPage    = 30
	imageSearchTimeout = 15 * time.Second
	imageFetchTimeout  = 30 * time.Second
)

var (
	// ErrImageKeyMissing 表示未配置图片搜索 API Key。
	ErrImageKeyMissing = errors.New("unsplash api key is required")
	// ErrNoImageResults 表示搜索无结果。
	ErrNoImageResults = errors.New("image search returned no results")
)

// placeholderPattern 匹配正文中 {img_unsplash:kw1,kw2} 形式的占位符，
// 关键词仅允许字母数字、空格和下划线。
var placeholderPattern = regexp.MustCompile(`\{img_unsplash:([A-Za-z0-9 _]+(?:,[A-Za-z0-9 _]+)*)\}`)

// ResolvedImage 是一次图片搜索挑选出的候选结果。
type ResolvedImage struct {
	URL    string
	Credit string
}

// ImageService 将正文中的图片占位符替换为 Unsplash 搜索结果，
// 并将首张成功解析的图片下载为特色图。
type ImageService struct {
	settings  *SystemSettingService
	logs      *GenerationLogService
	http      httpDoer
	rng       *rand.Rand
	baseURL   string
	uploadDir string
	uploadURL string
}

// NewImageService 构造 ImageService。
func NewImageService(settings *SystemSettingService, logs *GenerationLogService, uploadDir, uploadURL string) *ImageService {
	return &ImageService{
		settings:  settings,
		logs:      logs,
		http:      &http.Client{Timeout: imageFetchTimeout},
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		baseURL:   unsplashBaseURL,
		uploadDir: uploadDir,
		uploadURL: strings.TrimRight(uploadURL, "/"),
	}
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (s *ImageService) SetHTTPClient(client httpDoer) {
	if client == nil {
		s.http = &http.Client{Timeout: imageFetchTimeout}
		return
	}
	s.http = client
}

// SetRand 覆盖随机源，使测试可以得到确定性的挑选结果。
func (s *ImageService) SetRand(rng *rand.Rand) {
	if rng != nil {
		s.rng = rng
	}
}

// SetBaseURL 覆盖默认的搜索接口地址，主要用于测试。
func (s *ImageService) SetBaseURL(base string) {
	s.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

// ResolvePlaceholders 将 html 中的全部占位符替换为 <figure> 图片块，
// 返回替换后的正文和文档顺序中首张成功解析图片的 URL。
// 单个占位符解析失败时替换为空串并记录日志，不中断生成。
// 占位符数量与请求的张数不一致是正常情况，全部按实际出现处理。
func (s *ImageService) ResolvePlaceholders(ctx context.Context, requestID, html string) (string, string) {
	firstURL := ""

	resolved := placeholderPattern.ReplaceAllStringFunc(html, func(token string) string {
		match := placeholderPattern.FindStringSubmatch(token)
		if len(match) < 2 {
			return ""
		}
		keywords := strings.ReplaceAll(match[1], ",", " ")

		picked, err := s.searchImage(ctx, keywords)
		if err != nil {
			if errors.Is(err, ErrImageKeyMissing) {
				s.logs.Error(requestID, fmt.Sprintf("image placeholder dropped: %v", err))
			} else if errors.Is(err, ErrNoImageResults) {
				s.logs.Info(requestID, fmt.Sprintf("no image results for %q, placeholder dropped", keywords))
			} else {
				s.logs.Error(requestID, fmt.Sprintf("image search failed for %q: %v", keywords, err))
			}
			return ""
		}

		if firstURL == "" {
			firstURL = picked.URL
		}

		return fmt.Sprintf(
			`<figure><img src="%s" alt="%s"><figcaption>Photo by %s on Unsplash</figcaption></figure>`,
			picked.URL, keywords, picked.Credit,
		)
	})

	return resolved, firstURL
}

// searchImage 查询图片搜索接口并在至多 30 个横向候选中等概率随机挑选一张。
func (s *ImageService) searchImage(ctx context.Context, keywords string) (ResolvedImage, error) {
	settings, err := s.settings.GetSettings()
	if err != nil {
		return ResolvedImage{}, err
	}
	if settings.UnsplashAPIKey == "" {
		return ResolvedImage{}, ErrImageKeyMissing
	}

	query := url.Values{}
	query.Set("query", keywords)
	query.Set("per_page", fmt.Sprintf("%d", unsplashPerPage))
	query.Set("orientation", "landscape")
	query.Set("client_id", settings.UnsplashAPIKey)

	reqCtx, cancel := context.WithTimeout(ctx, imageSearchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.baseURL+"/search/photos?"+query.Encode(), nil)
	if err != nil {
		return ResolvedImage{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return ResolvedImage{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ResolvedImage{}, fmt.Errorf("image search returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return ResolvedImage{}, err
	}

	var payload struct {
		Results []struct {
			URLs struct {
				Small string `json:"small"`
			} `json:"urls"`
			User struct {
				Name string `json:"name"`
			} `json:"user"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ResolvedImage{}, fmt.Errorf("invalid image search response: %w", err)
	}

	if len(payload.Results) == 0 {
		return ResolvedImage{}, ErrNoImageResults
	}

	picked := payload.Results[s.rng.Intn(len(payload.Results))]
	return ResolvedImage{URL: picked.URLs.Small, Credit: picked.User.Name}, nil
}

// SideloadImage 下载图片到上传目录并返回可访问的 URL。
// 下载内容会做一次图片解码探测，拒绝非图片响应。
func (s *ImageService) SideloadImage(ctx context.Context, imageURL string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, imageFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", err
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("downloaded content is not a decodable image: %w", err)
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", err
	}

	ext := imageExtension(imageURL, resp.Header.Get("Content-Type"))
	filename := fmt.Sprintf("%s-%s%s", time.Now().Format("20060102"), uuid.New().String(), ext)
	path := filepath.Join(s.uploadDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}

	return s.uploadURL + "/" + filename, nil
}

func imageExtension(imageURL, contentType string) string {
	if parsed, err := url.Parse(imageURL); err == nil {
		if ext := filepath.Ext(parsed.Path); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}
