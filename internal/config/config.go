package config

import (
	"os"
	"strconv"
	"time"
)

// Config 应用配置
type Config struct {
	Env        string
	APIBaseURL string        // 视频目录服务地址
	Timeout    time.Duration // HTTP 请求超时
	DBPath     string        // 本地 sqlite 存储路径
	LogLevel   string

	// 进度统计参数
	TotalCatalogSize   int // 目录视频总数（整体进度分母）
	WatchTimeIncrement int // 每看完一个视频计入的观看时长（秒）
	CategorySize       int // 假定每个分类的视频数（分类进度分母）

	// 播放协调参数
	CompletionThreshold float64       // 完播判定百分比
	VisibilityThreshold float64       // 判定"当前视频"的可见比例
	VisibilityDwell     time.Duration // 可见比例需要持续的时间（防抖）

	// 目录缓存参数
	CacheTTL        time.Duration // 列表缓存有效期
	SearchCacheSize int           // 搜索结果 LRU 缓存条数

	DefaultAvatarURL    string // 接口缺失头像时的兜底
	DefaultThumbnailURL string // 接口缺失封面时的兜底
}

// Load 加载配置
func Load() *Config {
	timeoutSec, _ := strconv.Atoi(getEnv("HTTP_TIMEOUT_SECONDS", "30"))
	catalogSize, _ := strconv.Atoi(getEnv("TOTAL_CATALOG_SIZE", "40"))
	watchInc, _ := strconv.Atoi(getEnv("WATCH_TIME_INCREMENT", "180"))
	categorySize, _ := strconv.Atoi(getEnv("CATEGORY_SIZE", "10"))
	completion, _ := strconv.ParseFloat(getEnv("COMPLETION_THRESHOLD", "90"), 64)
	visibility, _ := strconv.ParseFloat(getEnv("VISIBILITY_THRESHOLD", "0.6"), 64)
	dwellMs, _ := strconv.Atoi(getEnv("VISIBILITY_DWELL_MS", "200"))
	cacheTTLSec, _ := strconv.Atoi(getEnv("CACHE_TTL_SECONDS", "300"))
	searchCacheSize, _ := strconv.Atoi(getEnv("SEARCH_CACHE_SIZE", "256"))

	return &Config{
		Env:        getEnv("APP_ENV", "development"),
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8000"),
		Timeout:    time.Duration(timeoutSec) * time.Second,
		DBPath:     getEnv("DB_PATH", "data/edufeed.db"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		TotalCatalogSize:   catalogSize,
		WatchTimeIncrement: watchInc,
		CategorySize:       categorySize,

		CompletionThreshold: completion,
		VisibilityThreshold: visibility,
		VisibilityDwell:     time.Duration(dwellMs) * time.Millisecond,

		CacheTTL:        time.Duration(cacheTTLSec) * time.Second,
		SearchCacheSize: searchCacheSize,

		DefaultAvatarURL:    getEnv("DEFAULT_AVATAR_URL", "https://yt3.ggpht.com/a/default-user=s88-c-k-c0x00ffffff-no-rj-mo"),
		DefaultThumbnailURL: getEnv("DEFAULT_THUMBNAIL_URL", "https://placehold.co/480x854?text=video"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
