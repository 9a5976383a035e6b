package service

import (
	"sort"
	"sync"
	"time"

	"github.com/brianli99/edu-tiktok/internal/config"
	"github.com/brianli99/edu-tiktok/internal/model"
	"github.com/rs/zerolog"
)

// ProgressStore 进度快照持久化（外部存储能力，允许为 nil）
type ProgressStore interface {
	Load() (*model.ProgressSnapshot, error)
	Save(*model.ProgressSnapshot) error
	Delete() error
}

// ProgressService 学习进度追踪
// 进程内单实例，所有变更都通过具名操作进行；全部操作是全函数，不返回错误
type ProgressService struct {
	mu             sync.Mutex
	watched        map[string]struct{}
	totalWatchTime int // 秒
	streak         int
	lastWatched    *time.Time

	cfg   *config.Config
	store ProgressStore
	log   zerolog.Logger
	now   func() time.Time
}

// NewProgressService 创建进度追踪器，store 可为 nil（纯内存模式）
// 有历史快照时恢复上次进度
func NewProgressService(cfg *config.Config, store ProgressStore, logger zerolog.Logger) *ProgressService {
	s := &ProgressService{
		watched: make(map[string]struct{}),
		cfg:     cfg,
		store:   store,
		log:     logger.With().Str("component", "progress").Logger(),
		now:     time.Now,
	}

	if store != nil {
		snapshot, err := store.Load()
		if err != nil {
			s.log.Warn().Err(err).Msg("恢复进度快照失败，使用空白进度")
		} else if snapshot != nil {
			for _, id := range snapshot.WatchedVideos {
				s.watched[id] = struct{}{}
			}
			s.totalWatchTime = snapshot.TotalWatchTime
			s.streak = snapshot.LearningStreak
			s.lastWatched = snapshot.LastWatchedDate
		}
	}

	return s
}

// MarkVideoWatched 标记视频为已观看
// 1. 幂等加入已观看集合（重复标记不报错、不重复计数）
// 2. 观看时长按固定增量累加（估算值，不是实测时长）
// 3. 按连续学习日规则重算 streak
// 4. 更新最近观看日期（仅保留天粒度）
//
// streak 规则沿用参考实现：lastWatchedDate 为空、等于昨天或等于今天都 +1，
// 否则重置为 1。同一天重复标记也会各自 +1，这是有意保留的兼容行为
func (s *ProgressService) MarkVideoWatched(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.watched[videoID] = struct{}{}
	s.totalWatchTime += s.cfg.WatchTimeIncrement

	today := dateOnly(s.now())
	yesterday := today.AddDate(0, 0, -1)

	if s.lastWatched == nil || sameDay(*s.lastWatched, yesterday) || sameDay(*s.lastWatched, today) {
		s.streak++
	} else {
		s.streak = 1
	}
	s.lastWatched = &today

	s.persistLocked()
}

// IsWatched 是否已观看
func (s *ProgressService) IsWatched(videoID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watched[videoID]
	return ok
}

// WatchedCount 已观看视频数
func (s *ProgressService) WatchedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watched)
}

// TotalWatchTime 累计观看时长（秒）
func (s *ProgressService) TotalWatchTime() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalWatchTime
}

// LearningStreak 当前连续学习天数
func (s *ProgressService) LearningStreak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streak
}

// LastWatchedDate 最近观看日期（天粒度），从未观看时返回 nil
func (s *ProgressService) LastWatchedDate() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastWatched == nil {
		return nil
	}
	d := *s.lastWatched
	return &d
}

// CategoryProgress 分类完成百分比 [0,100]
// 沿用参考实现：分子是全部已观看数量，并不按分类过滤
func (s *ProgressService) CategoryProgress(category model.Category) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ratio := float64(len(s.watched)) / float64(s.cfg.CategorySize)
	if ratio > 1 {
		ratio = 1
	}
	return ratio * 100
}

// TotalProgress 整体完成百分比 [0,100]，分母是配置的目录总数
func (s *ProgressService) TotalProgress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ratio := float64(len(s.watched)) / float64(s.cfg.TotalCatalogSize)
	if ratio > 1 {
		ratio = 1
	}
	return ratio * 100
}

// Snapshot 导出当前进度快照
func (s *ProgressService) Snapshot() model.ProgressSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Reset 重置全部进度
func (s *ProgressService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.watched = make(map[string]struct{})
	s.totalWatchTime = 0
	s.streak = 0
	s.lastWatched = nil

	if s.store != nil {
		if err := s.store.Delete(); err != nil {
			s.log.Warn().Err(err).Msg("删除进度快照失败")
		}
	}
}

func (s *ProgressService) snapshotLocked() model.ProgressSnapshot {
	ids := make([]string, 0, len(s.watched))
	for id := range s.watched {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var last *time.Time
	if s.lastWatched != nil {
		d := *s.lastWatched
		last = &d
	}

	return model.ProgressSnapshot{
		WatchedVideos:   ids,
		TotalWatchTime:  s.totalWatchTime,
		LearningStreak:  s.streak,
		LastWatchedDate: last,
	}
}

// persistLocked 保存快照，失败只记日志（本地状态是权威数据，不回滚）
func (s *ProgressService) persistLocked() {
	if s.store == nil {
		return
	}
	snapshot := s.snapshotLocked()
	if err := s.store.Save(&snapshot); err != nil {
		s.log.Warn().Err(err).Msg("保存进度快照失败")
	}
}

// dateOnly 丢弃时分秒，仅保留日期
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// sameDay 是否同一天
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
