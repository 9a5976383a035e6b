package model

import (
	"time"
)

// Category 视频分类（封闭枚举）
type Category string

const (
	CategoryDataEngineering   Category = "data-engineering"
	CategoryAI                Category = "ai"
	CategoryDataScience       Category = "data-science"
	CategoryTechnology        Category = "technology"
	CategoryProgramming       Category = "programming"
	CategoryMachineLearning   Category = "machine-learning"
	CategoryWebDevelopment    Category = "web-development"
	CategoryMobileDevelopment Category = "mobile-development"
)

// CategoryAll 特殊取值："全部"，仅用于筛选，不是真实分类
const CategoryAll = "all"

// Difficulty 难度等级
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Source 视频来源
type Source string

const (
	SourceYouTube     Source = "youtube"
	SourceTikTok      Source = "tiktok"
	SourceAIGenerated Source = "ai-generated"
	SourceOther       Source = "other" // 未识别的来源统一归入 other
)

// GenerationStatus AI 生成状态
type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "pending"
	GenerationGenerating GenerationStatus = "generating"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

// VoiceSettings AI 配音参数
type VoiceSettings struct {
	Speed    float64 `json:"speed,omitempty"`
	Tone     string  `json:"tone,omitempty"`
	Language string  `json:"language,omitempty"`
	VoiceID  string  `json:"voice_id,omitempty"`
}

// AIGeneration AI 生成视频的附加字段（仅 ai-generated 来源存在）
type AIGeneration struct {
	Status         GenerationStatus `json:"generation_status"`
	ToolsUsed      []string         `json:"ai_tools_used,omitempty"`
	ScriptContent  string           `json:"script_content,omitempty"`
	VoiceSettings  *VoiceSettings   `json:"voice_settings,omitempty"`
	VisualStyle    string           `json:"visual_style,omitempty"`
	TargetAudience string           `json:"target_audience,omitempty"`
}

// Video 教育短视频（来自目录服务，对消费方只读）
type Video struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Creator       string        `json:"creator"`
	CreatorAvatar string        `json:"creator_avatar"`
	VideoURL      string        `json:"video_url"`
	ThumbnailURL  string        `json:"thumbnail_url"`
	Duration      int           `json:"duration"` // 秒
	Views         int           `json:"views"`
	Likes         int           `json:"likes"`
	Category      Category      `json:"category"`
	Tags          []string      `json:"tags"`
	Difficulty    Difficulty    `json:"difficulty"`
	Source        Source        `json:"source"`
	CreatedAt     time.Time     `json:"created_at"`
	AI            *AIGeneration `json:"ai,omitempty"` // 仅 AI 生成视频填充
}

// IsAIGenerated 是否为 AI 生成内容
func (v *Video) IsAIGenerated() bool {
	return v.Source == SourceAIGenerated
}

// FilterQuery 搜索/筛选条件（不做持久化）
type FilterQuery struct {
	Query      string `json:"query"`
	CategoryID string `json:"category_id"` // 为空或 "all" 表示不过滤分类
}

// WatchHistoryReport 观看历史上报
type WatchHistoryReport struct {
	VideoID         string  `json:"video_id"`
	WatchDuration   int     `json:"watch_duration"`   // 秒，向下取整
	WatchPercentage float64 `json:"watch_percentage"` // [0,100]
	Completed       bool    `json:"completed"`
}

// ProgressSnapshot 学习进度快照（用于本地持久化）
type ProgressSnapshot struct {
	WatchedVideos   []string   `json:"watched_videos"`
	TotalWatchTime  int        `json:"total_watch_time"` // 秒
	LearningStreak  int        `json:"learning_streak"`  // 连续学习天数
	LastWatchedDate *time.Time `json:"last_watched_date"`
}

// CategoryInfo 分类展示信息（发现页分类卡片）
type CategoryInfo struct {
	ID          Category `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon"`
	Color       string   `json:"color"`
	Description string   `json:"description"`
}

// DefaultCategories 内置分类卡片
func DefaultCategories() []CategoryInfo {
	return []CategoryInfo{
		{ID: CategoryDataEngineering, Name: "Data Engineering", Icon: "⚙️", Color: "#FF6B6B", Description: "ETL, pipelines, data architecture"},
		{ID: CategoryAI, Name: "AI & ML", Icon: "🤖", Color: "#4ECDC4", Description: "Machine learning, neural networks"},
		{ID: CategoryDataScience, Name: "Data Science", Icon: "📊", Color: "#45B7D1", Description: "Analytics, statistics, visualization"},
		{ID: CategoryTechnology, Name: "Technology", Icon: "💻", Color: "#96CEB4", Description: "Programming, tools, frameworks"},
	}
}

// ParseSource 解析来源字符串，未识别的归入 other
func ParseSource(s string) Source {
	switch Source(s) {
	case SourceYouTube, SourceTikTok, SourceAIGenerated:
		return Source(s)
	default:
		return SourceOther
	}
}

// ParseGenerationStatus 解析生成状态，未识别时返回 pending
func ParseGenerationStatus(s string) GenerationStatus {
	switch GenerationStatus(s) {
	case GenerationPending, GenerationGenerating, GenerationCompleted, GenerationFailed:
		return GenerationStatus(s)
	default:
		return GenerationPending
	}
}
