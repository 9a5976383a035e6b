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
	"strings"
	"time"

	"github.com/brianli99/edu-tiktok/internal/config"
	"github.com/brianli99/edu-tiktok/internal/model"
	"github.com/brianli99/edu-tiktok/internal/utils"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// 目录客户端错误分类：401 与其它请求失败必须可区分
var (
	ErrUnauthorized = errors.New("未授权，需要重新登录")
	ErrFetchFailed  = errors.New("请求目录服务失败")
)

// TokenStore 访问令牌存储（外部 KV 能力）
type TokenStore interface {
	Get() (string, error)
	Clear() error
}

// CatalogService 视频目录服务客户端
type CatalogService struct {
	cfg         *config.Config
	httpClient  *http.Client
	tokens      TokenStore
	searchCache *utils.SearchCache[[]model.Video]
	validate    *validator.Validate
	group       singleflight.Group
	log         zerolog.Logger
}

// NewCatalogService 创建目录服务客户端
func NewCatalogService(cfg *config.Config, tokens TokenStore, logger zerolog.Logger) *CatalogService {
	if utils.Cache == nil {
		utils.InitCache()
	}
	return &CatalogService{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		tokens:      tokens,
		searchCache: utils.NewSearchCache[[]model.Video](cfg.SearchCacheSize, cfg.CacheTTL),
		validate:    validator.New(),
		log:         logger.With().Str("component", "catalog").Logger(),
	}
}

// ---- 线上数据结构 ----

// creatorResponse 创作者原始字段
type creatorResponse struct {
	ID        json.Number `json:"id"`
	Name      string      `json:"name"`
	Username  string      `json:"username"`
	AvatarURL string      `json:"avatar_url"`
	Verified  bool        `json:"verified"`
}

// videoResponse 视频原始字段（后端返回结构）
type videoResponse struct {
	ID               json.Number          `json:"id"`
	Title            string               `json:"title"`
	Description      string               `json:"description"`
	VideoURL         string               `json:"video_url"`
	ThumbnailURL     string               `json:"thumbnail_url"`
	Duration         int                  `json:"duration"`
	Views            int                  `json:"views"`
	Likes            int                  `json:"likes"`
	Category         string               `json:"category"`
	Difficulty       string               `json:"difficulty"`
	Tags             string               `json:"tags"` // 逗号拼接
	Source           string               `json:"source"`
	ContentSource    string               `json:"content_source"`
	GenerationStatus string               `json:"generation_status"`
	AIToolsUsed      []string             `json:"ai_tools_used"`
	ScriptContent    string               `json:"script_content"`
	VoiceSettings    *model.VoiceSettings `json:"voice_settings"`
	VisualStyle      string               `json:"visual_style"`
	TargetAudience   string               `json:"target_audience"`
	Creator          creatorResponse      `json:"creator"`
	CreatedAt        time.Time            `json:"created_at"`
}

// videoListResponse 视频列表响应
type videoListResponse struct {
	Videos  []videoResponse `json:"videos"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	Size    int             `json:"size"`
	HasNext bool            `json:"has_next"`
	HasPrev bool            `json:"has_prev"`
}

// normalizeVideo 将原始字段映射为规范 Video 结构
// 1. 缺失头像/封面时使用兜底地址
// 2. 相对路径的资源地址拼接后端源站
// 3. 逗号拼接的标签拆分为序列
func (s *CatalogService) normalizeVideo(raw videoResponse) model.Video {
	avatar := raw.Creator.AvatarURL
	if avatar == "" {
		avatar = s.cfg.DefaultAvatarURL
	}
	thumbnail := raw.ThumbnailURL
	if thumbnail == "" {
		thumbnail = s.cfg.DefaultThumbnailURL
	}

	v := model.Video{
		ID:            raw.ID.String(),
		Title:         raw.Title,
		Description:   raw.Description,
		Creator:       raw.Creator.Name,
		CreatorAvatar: s.resolveAssetURL(avatar),
		VideoURL:      s.resolveAssetURL(raw.VideoURL),
		ThumbnailURL:  s.resolveAssetURL(thumbnail),
		Duration:      raw.Duration,
		Views:         raw.Views,
		Likes:         raw.Likes,
		Category:      model.Category(raw.Category),
		Tags:          splitTags(raw.Tags),
		Difficulty:    model.Difficulty(raw.Difficulty),
		Source:        model.ParseSource(raw.Source),
		CreatedAt:     raw.CreatedAt,
	}

	// AI 生成字段仅在该来源下填充
	if raw.ContentSource == "ai_generated" || v.Source == model.SourceAIGenerated {
		v.Source = model.SourceAIGenerated
		v.AI = &model.AIGeneration{
			Status:         model.ParseGenerationStatus(raw.GenerationStatus),
			ToolsUsed:      raw.AIToolsUsed,
			ScriptContent:  raw.ScriptContent,
			VoiceSettings:  raw.VoiceSettings,
			VisualStyle:    raw.VisualStyle,
			TargetAudience: raw.TargetAudience,
		}
	}

	return v
}

// resolveAssetURL 绝对地址原样使用，相对地址拼接后端源站
func (s *CatalogService) resolveAssetURL(raw string) string {
	if raw == "" {
		return raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return strings.TrimRight(s.cfg.APIBaseURL, "/") + "/" + strings.TrimLeft(raw, "/")
}

// splitTags 拆分逗号拼接的标签串
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func (s *CatalogService) normalizeVideos(raw []videoResponse) []model.Video {
	videos := make([]model.Video, 0, len(raw))
	for _, r := range raw {
		videos = append(videos, s.normalizeVideo(r))
	}
	return videos
}

// ---- 请求底层封装 ----

// doRequest 发送请求并解析 JSON 响应
// 每次请求都从令牌存储读取 Bearer Token；收到 401 时清除本地令牌并返回 ErrUnauthorized
func (s *CatalogService) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}, target interface{}) error {
	reqURL := strings.TrimRight(s.cfg.APIBaseURL, "/") + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	// 附加令牌（令牌缺失时匿名请求，由后端决定是否拒绝）
	token, err := s.tokens.Get()
	if err != nil {
		s.log.Warn().Err(err).Msg("读取令牌失败，按匿名请求处理")
	} else if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Error().Err(err).Str("request_id", requestID).Str("path", path).Msg("请求失败")
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// 令牌失效：清除本地令牌，交由调用方重新认证，不允许带着旧令牌重试
		if err := s.tokens.Clear(); err != nil {
			s.log.Error().Err(err).Msg("清除失效令牌失败")
		}
		s.log.Warn().Str("request_id", requestID).Str("path", path).Msg("收到 401，已清除本地令牌")
		return ErrUnauthorized
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.log.Error().Int("status", resp.StatusCode).Str("request_id", requestID).Str("path", path).Msg("目录服务返回错误状态")
		return fmt.Errorf("%w: 状态码 %d", ErrFetchFailed, resp.StatusCode)
	}

	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: 解析响应失败: %v", ErrFetchFailed, err)
	}
	return nil
}

// ---- 读接口 ----

// Videos 获取视频列表
func (s *CatalogService) Videos(ctx context.Context, skip, limit int) ([]model.Video, error) {
	cacheKey := fmt.Sprintf("videos:%d:%d", skip, limit)
	if cached, ok := utils.CacheGet(cacheKey); ok {
		return cached.([]model.Video), nil
	}

	// singleflight 避免并发重复请求同一个列表
	val, err, _ := s.group.Do(cacheKey, func() (interface{}, error) {
		query := url.Values{}
		if skip > 0 {
			query.Set("skip", fmt.Sprint(skip))
		}
		if limit > 0 {
			query.Set("limit", fmt.Sprint(limit))
		}
		var resp videoListResponse
		if err := s.doRequest(ctx, http.MethodGet, "/videos/", query, nil, &resp); err != nil {
			return nil, err
		}
		videos := s.normalizeVideos(resp.Videos)
		utils.CacheSet(cacheKey, videos, s.cfg.CacheTTL)
		return videos, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]model.Video), nil
}

// VideosByCategory 按分类获取视频列表
func (s *CatalogService) VideosByCategory(ctx context.Context, category string) ([]model.Video, error) {
	cacheKey := "videos:category:" + category
	if cached, ok := utils.CacheGet(cacheKey); ok {
		return cached.([]model.Video), nil
	}

	val, err, _ := s.group.Do(cacheKey, func() (interface{}, error) {
		var resp videoListResponse
		path := fmt.Sprintf("/videos/category/%s/", url.PathEscape(category))
		if err := s.doRequest(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
			return nil, err
		}
		videos := s.normalizeVideos(resp.Videos)
		utils.CacheSet(cacheKey, videos, s.cfg.CacheTTL)
		return videos, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]model.Video), nil
}

// SearchVideos 关键词搜索
func (s *CatalogService) SearchVideos(ctx context.Context, q string) ([]model.Video, error) {
	if cached, ok := s.searchCache.Get(q); ok {
		return cached, nil
	}

	query := url.Values{}
	query.Set("q", q)
	var resp videoListResponse
	if err := s.doRequest(ctx, http.MethodGet, "/videos/search/", query, nil, &resp); err != nil {
		return nil, err
	}

	videos := s.normalizeVideos(resp.Videos)
	s.searchCache.Set(q, videos)
	return videos, nil
}

// Video 获取单个视频
func (s *CatalogService) Video(ctx context.Context, id string) (*model.Video, error) {
	var resp videoResponse
	if err := s.doRequest(ctx, http.MethodGet, "/videos/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	video := s.normalizeVideo(resp)
	return &video, nil
}

// ---- AI 生成接口 ----

// GenerateScriptRequest 生成脚本请求
type GenerateScriptRequest struct {
	Topic           string `json:"topic" validate:"required"`
	Category        string `json:"category" validate:"required"`
	Difficulty      string `json:"difficulty" validate:"required,oneof=beginner intermediate advanced"`
	TargetAudience  string `json:"target_audience,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty" validate:"omitempty,min=1,max=30"`
	Style           string `json:"style,omitempty"`
}

// GenerateScriptResult 生成脚本结果
type GenerateScriptResult struct {
	Success     bool                   `json:"success"`
	Script      string                 `json:"script"`
	Metadata    map[string]interface{} `json:"metadata"`
	AIToolsUsed []string               `json:"ai_tools_used"`
}

// GenerateScript 调用 AI 生成视频脚本
func (s *CatalogService) GenerateScript(ctx context.Context, req GenerateScriptRequest) (*GenerateScriptResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("生成脚本参数不合法: %w", err)
	}

	var result GenerateScriptResult
	if err := s.doRequest(ctx, http.MethodPost, "/videos/ai/generate-script", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateVideoRequest 从脚本创建视频请求
type CreateVideoRequest struct {
	Script        string               `json:"script" validate:"required"`
	Title         string               `json:"title" validate:"required"`
	Category      string               `json:"category" validate:"required"`
	Difficulty    string               `json:"difficulty" validate:"required,oneof=beginner intermediate advanced"`
	VoiceSettings *model.VoiceSettings `json:"voice_settings,omitempty"`
	VisualStyle   string               `json:"visual_style,omitempty"`
}

// CreateVideoFromScript 从脚本创建视频
func (s *CatalogService) CreateVideoFromScript(ctx context.Context, req CreateVideoRequest) (*model.Video, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("创建视频参数不合法: %w", err)
	}

	var resp videoResponse
	if err := s.doRequest(ctx, http.MethodPost, "/videos/ai/create-video", nil, req, &resp); err != nil {
		return nil, err
	}
	video := s.normalizeVideo(resp)
	return &video, nil
}

// GenerateBatchRequest 批量生成请求
type GenerateBatchRequest struct {
	Topics     []string `json:"topics" validate:"required,min=1,dive,required"`
	Category   string   `json:"category" validate:"required"`
	Difficulty string   `json:"difficulty" validate:"required,oneof=beginner intermediate advanced"`
}

// GenerateBatchResult 批量生成结果（后台任务已受理）
type GenerateBatchResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Topics  []string `json:"topics"`
}

// GenerateBatch 批量生成视频（后端后台执行）
func (s *CatalogService) GenerateBatch(ctx context.Context, req GenerateBatchRequest) (*GenerateBatchResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("批量生成参数不合法: %w", err)
	}

	var result GenerateBatchResult
	if err := s.doRequest(ctx, http.MethodPost, "/videos/ai/generate-batch", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GenerationStatusResult 单个视频的生成状态
type GenerationStatusResult struct {
	VideoID          json.Number `json:"video_id"`
	Title            string      `json:"title"`
	GenerationStatus string      `json:"generation_status"`
	ContentSource    string      `json:"content_source"`
	AIToolsUsed      []string    `json:"ai_tools_used"`
	CreatedAt        time.Time   `json:"created_at"`
}

// GenerationStatus 查询视频生成状态
func (s *CatalogService) GenerationStatus(ctx context.Context, videoID string) (*GenerationStatusResult, error) {
	var result GenerationStatusResult
	path := "/videos/ai/generation-status/" + url.PathEscape(videoID)
	if err := s.doRequest(ctx, http.MethodGet, path, nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AIGeneratedVideos 获取 AI 生成的视频列表
func (s *CatalogService) AIGeneratedVideos(ctx context.Context, skip, limit int, category, difficulty string) ([]model.Video, error) {
	query := url.Values{}
	if skip > 0 {
		query.Set("skip", fmt.Sprint(skip))
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprint(limit))
	}
	if category != "" {
		query.Set("category", category)
	}
	if difficulty != "" {
		query.Set("difficulty", difficulty)
	}

	var resp videoListResponse
	if err := s.doRequest(ctx, http.MethodGet, "/videos/ai/generated", query, nil, &resp); err != nil {
		return nil, err
	}
	return s.normalizeVideos(resp.Videos), nil
}

// GenerationStats AI 内容生成统计
type GenerationStats struct {
	TotalVideos       int            `json:"total_videos"`
	AIGenerated       int            `json:"ai_generated"`
	PendingGeneration int            `json:"pending_generation"`
	FailedGeneration  int            `json:"failed_generation"`
	ByCategory        map[string]int `json:"by_category"`
	ByDifficulty      map[string]int `json:"by_difficulty"`
}

// GetGenerationStats 获取生成统计
func (s *CatalogService) GetGenerationStats(ctx context.Context) (*GenerationStats, error) {
	var stats GenerationStats
	if err := s.doRequest(ctx, http.MethodGet, "/videos/ai/stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ---- 观看历史上报 ----

// ReportWatchHistory 上报观看历史
func (s *CatalogService) ReportWatchHistory(ctx context.Context, report model.WatchHistoryReport) error {
	return s.doRequest(ctx, http.MethodPost, "/watch-history", nil, report, nil)
}
