package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianli99/edu-tiktok/internal/config"
	"github.com/brianli99/edu-tiktok/internal/model"
	"github.com/brianli99/edu-tiktok/internal/repository"
	"github.com/brianli99/edu-tiktok/internal/service"
	"github.com/brianli99/edu-tiktok/internal/utils"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// 加载环境变量
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("未找到 .env 文件，使用系统环境变量")
	}

	// 加载配置
	cfg := config.Load()

	// 初始化日志
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	// 初始化缓存
	utils.InitCache()

	// 初始化本地存储
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("本地存储初始化失败")
	}
	defer db.Close()
	repos := repository.NewRepositories(db)

	// 初始化服务
	catalog := service.NewCatalogService(cfg, repos.Token, logger)
	tracker := service.NewProgressService(cfg, repos.Progress, logger)
	feed := service.NewFeedService(cfg, catalog, tracker, catalog, logger)
	search := service.NewSearchService(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 拉取信息流
	if err := feed.LoadFeed(ctx); err != nil {
		logger.Fatal().Err(err).Msg("信息流加载失败")
	}

	videos := feed.Videos()
	logger.Info().Int("count", len(videos)).Msg("信息流加载完成")

	for i, v := range videos {
		fmt.Printf("%2d. [%s] %s — %s  %s / 👁 %s / ❤ %s\n",
			i+1, v.Category, v.Title, v.Creator,
			utils.FormatDuration(v.Duration),
			utils.FormatNumber(v.Views),
			utils.FormatNumber(v.Likes),
		)
	}

	// 演示一次完整的播放过程：第一条视频从加载到播完
	if len(videos) > 0 {
		runDemoPlayback(ctx, feed, tracker, videos[0], logger)
	}

	// 发现页分类卡片
	for _, cat := range model.DefaultCategories() {
		fmt.Printf("%s %s — %s\n", cat.Icon, cat.Name, cat.Description)
	}

	// 演示本地筛选
	if q := os.Getenv("DEMO_QUERY"); q != "" {
		matched := search.Filter(videos, model.FilterQuery{Query: q, CategoryID: model.CategoryAll})
		logger.Info().Str("query", q).Int("matched", len(matched)).Msg("本地筛选完成")
	}

	snapshot := tracker.Snapshot()
	logger.Info().
		Int("watched", len(snapshot.WatchedVideos)).
		Int("watch_time", snapshot.TotalWatchTime).
		Int("streak", snapshot.LearningStreak).
		Float64("total_progress", tracker.TotalProgress()).
		Msg("学习进度")
}

// runDemoPlayback 模拟一条视频的完整播放：挂载 → 可见 → 播放 → 播完
func runDemoPlayback(ctx context.Context, feed *service.FeedService, tracker *service.ProgressService, video model.Video, logger zerolog.Logger) {
	feed.Mount(0)
	feed.UpdateVisibility([]float64{1.0})

	// 超过防抖时长后滚动停止，第一条转正为当前视频
	select {
	case <-time.After(250 * time.Millisecond):
	case <-ctx.Done():
		return
	}
	feed.ScrollSettled()

	feed.OnReady(video.ID)

	duration := float64(video.Duration)
	if duration <= 0 {
		duration = 180
	}
	for _, ratio := range []float64{0.25, 0.5, 0.75, 0.95} {
		feed.OnTick(video.ID, duration*ratio, duration)
	}
	feed.OnEnded(video.ID)
	feed.Unmount(video.ID)

	logger.Info().
		Str("video_id", video.ID).
		Bool("watched", tracker.IsWatched(video.ID)).
		Msg("演示播放结束")
}
