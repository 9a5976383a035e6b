package service

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianli99/edu-tiktok/internal/config"
	"github.com/brianli99/edu-tiktok/internal/model"
	"github.com/rs/zerolog"
)

// PlaybackState 单个视频的播放状态机
// Idle → Loading → Ready → Playing ⇄ Paused → Ended，加载/播放失败进入 Error，
// Retry 后回到 Loading
type PlaybackState int

const (
	StateIdle PlaybackState = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateEnded
	StateError
)

// String 状态名
func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// PlaybackSession 单个 feed 条目的播放会话（条目挂载期间存在）
type PlaybackSession struct {
	VideoID   string
	State     PlaybackState
	Position  float64 // 秒
	Duration  float64 // 秒，未知时为 0
	Completed bool    // 单向闩锁：进度达到完播阈值后置位，会话存续期间不再复位
	LastError string

	reported bool // 完播是否已上报，防止 Ended 和卸载双重上报
}

// Progress 播放进度百分比，时长未知时为 0
func (p *PlaybackSession) Progress() float64 {
	if p.Duration <= 0 {
		return 0
	}
	return p.Position / p.Duration * 100
}

// ProgressMarker 本地进度记录（由 ProgressService 提供）
type ProgressMarker interface {
	MarkVideoWatched(videoID string)
}

// HistoryReporter 观看历史远端上报（由 CatalogService 提供）
type HistoryReporter interface {
	ReportWatchHistory(ctx context.Context, report model.WatchHistoryReport) error
}

// FeedSource 视频列表来源（由 CatalogService 提供）
type FeedSource interface {
	Videos(ctx context.Context, skip, limit int) ([]model.Video, error)
	VideosByCategory(ctx context.Context, category string) ([]model.Video, error)
	SearchVideos(ctx context.Context, q string) ([]model.Video, error)
}

// FeedService 信息流播放协调器
// 维护有序视频列表和每个可见条目的播放会话，根据可见度信号裁定唯一的
// "当前视频"：只有当前视频自动播放，其余一律暂停
type FeedService struct {
	mu sync.Mutex

	cfg      *config.Config
	source   FeedSource
	tracker  ProgressMarker
	reporter HistoryReporter
	log      zerolog.Logger
	now      func() time.Time

	videos   []model.Video
	sessions map[string]*PlaybackSession

	current        int // 当前视频下标，-1 表示无
	candidate      int // 可见度候选下标，-1 表示无
	candidateSince time.Time

	// 请求代数：新请求覆盖旧请求，过期响应到达后直接丢弃
	loadGen atomic.Uint64
}

// NewFeedService 创建播放协调器
func NewFeedService(cfg *config.Config, source FeedSource, tracker ProgressMarker, reporter HistoryReporter, logger zerolog.Logger) *FeedService {
	return &FeedService{
		cfg:       cfg,
		source:    source,
		tracker:   tracker,
		reporter:  reporter,
		log:       logger.With().Str("component", "feed").Logger(),
		now:       time.Now,
		sessions:  make(map[string]*PlaybackSession),
		current:   -1,
		candidate: -1,
	}
}

// ---- 列表加载（last request wins）----

// LoadFeed 加载全量视频列表
func (s *FeedService) LoadFeed(ctx context.Context) error {
	gen := s.loadGen.Add(1)
	videos, err := s.source.Videos(ctx, 0, 0)
	if err != nil {
		return err
	}
	s.applyVideos(gen, videos)
	return nil
}

// SwitchCategory 切换分类；"all" 等价于全量列表
func (s *FeedService) SwitchCategory(ctx context.Context, category string) error {
	gen := s.loadGen.Add(1)

	var (
		videos []model.Video
		err    error
	)
	if category == "" || category == model.CategoryAll {
		videos, err = s.source.Videos(ctx, 0, 0)
	} else {
		videos, err = s.source.VideosByCategory(ctx, category)
	}
	if err != nil {
		return err
	}

	s.applyVideos(gen, videos)
	return nil
}

// Search 按关键词检索并替换当前列表
func (s *FeedService) Search(ctx context.Context, q string) error {
	gen := s.loadGen.Add(1)
	videos, err := s.source.SearchVideos(ctx, q)
	if err != nil {
		return err
	}
	s.applyVideos(gen, videos)
	return nil
}

// applyVideos 应用一次列表加载的结果
// 响应到达时如果已有更新的请求发出，直接丢弃（不允许旧响应覆盖新状态）
func (s *FeedService) applyVideos(gen uint64, videos []model.Video) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.loadGen.Load() {
		s.log.Debug().Uint64("gen", gen).Msg("丢弃过期的列表响应")
		return
	}

	// 旧列表整体卸载：完播但尚未上报的会话在销毁前补报
	for _, sess := range s.sessions {
		s.finishSessionLocked(sess)
	}
	s.sessions = make(map[string]*PlaybackSession)

	s.videos = videos
	s.current = -1
	s.candidate = -1
}

// Videos 当前列表快照
func (s *FeedService) Videos() []model.Video {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Video, len(s.videos))
	copy(out, s.videos)
	return out
}

// ---- 会话生命周期 ----

// Mount 条目进入可渲染区域，创建播放会话并进入加载态
func (s *FeedService) Mount(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.videos) {
		return
	}
	id := s.videos[index].ID
	if _, ok := s.sessions[id]; ok {
		return
	}
	s.sessions[id] = &PlaybackSession{
		VideoID: id,
		State:   StateLoading,
	}
}

// Unmount 条目被回收，销毁会话
// 销毁时如果会话已完播且尚未上报，先完成上报
func (s *FeedService) Unmount(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[videoID]
	if !ok {
		return
	}
	s.finishSessionLocked(sess)
	delete(s.sessions, videoID)
}

// Session 读取会话快照，不存在时返回 nil
func (s *FeedService) Session(videoID string) *PlaybackSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[videoID]
	if !ok {
		return nil
	}
	copied := *sess
	return &copied
}

// ---- 播放事件 ----

// OnReady 媒体加载完成；若恰好是当前视频则立即自动播放
func (s *FeedService) OnReady(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[videoID]
	if !ok || sess.State != StateLoading {
		return
	}
	if s.isCurrentLocked(videoID) {
		sess.State = StatePlaying
	} else {
		sess.State = StateReady
	}
}

// OnTick 播放进度回调
// 完播闩锁：进度一旦达到阈值即置位，之后回拖进度也不会复位
func (s *FeedService) OnTick(videoID string, position, duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[videoID]
	if !ok {
		return
	}
	// 错误态和终结态不接受进度，避免异常路径误置完播标记
	if sess.State == StateError || sess.State == StateEnded {
		return
	}

	sess.Position = position
	sess.Duration = duration

	if sess.Progress() >= s.cfg.CompletionThreshold {
		sess.Completed = true
	}
}

// OnEnded 自然播完
func (s *FeedService) OnEnded(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[videoID]
	if !ok {
		return
	}
	sess.State = StateEnded
	s.reportCompletionLocked(sess)
}

// OnError 播放失败，只保留错误描述，由调用方决定重试或放弃
// 错误路径绝不置位完播标记，也不会影响学习进度
func (s *FeedService) OnError(videoID, desc string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[videoID]
	if !ok {
		return
	}
	sess.State = StateError
	sess.LastError = desc
	s.log.Warn().Str("video_id", videoID).Str("error", desc).Msg("播放失败")
}

// Retry 重试：重新加载媒体
func (s *FeedService) Retry(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[videoID]
	if !ok || sess.State != StateError {
		return
	}
	sess.State = StateLoading
	sess.LastError = ""
}

// TogglePause 用户手动暂停/恢复当前视频
func (s *FeedService) TogglePause(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[videoID]
	if !ok {
		return
	}
	switch sess.State {
	case StatePlaying:
		sess.State = StatePaused
	case StatePaused, StateReady:
		if s.isCurrentLocked(videoID) {
			sess.State = StatePlaying
		}
	}
}

// ---- 可见度与当前视频裁定 ----

// UpdateVisibility 上报各条目当前的可见比例（与列表同序）
// 第一个可见比例超过阈值的条目成为候选；候选需要持续可见一段时间才会转正
func (s *FeedService) UpdateVisibility(fractions []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := -1
	for i, f := range fractions {
		if i >= len(s.videos) {
			break
		}
		if f > s.cfg.VisibilityThreshold {
			next = i
			break
		}
	}

	if next != s.candidate {
		s.candidate = next
		s.candidateSince = s.now()
	}
}

// ScrollSettled 滚动停止，重新裁定当前视频
// 候选持续可见时间达到防抖时长才切换，避免快速滑动时来回抖动
func (s *FeedService) ScrollSettled() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate < 0 {
		return
	}
	if s.now().Sub(s.candidateSince) < s.cfg.VisibilityDwell {
		return
	}
	s.setCurrentLocked(s.candidate)
}

// JumpTo 深链/搜索进入：直接定位到指定下标
// 跳过的条目没有会话，不会产生任何虚假完播事件
func (s *FeedService) JumpTo(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.videos) {
		return
	}
	s.candidate = index
	s.candidateSince = s.now().Add(-s.cfg.VisibilityDwell)
	s.setCurrentLocked(index)
}

// CurrentIndex 当前视频下标，无当前视频时返回 -1
func (s *FeedService) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CurrentVideo 当前视频，无当前视频时返回 nil
func (s *FeedService) CurrentVideo() *model.Video {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < 0 || s.current >= len(s.videos) {
		return nil
	}
	v := s.videos[s.current]
	return &v
}

// setCurrentLocked 切换当前视频：当前条目自动播放，其余全部暂停
func (s *FeedService) setCurrentLocked(index int) {
	s.current = index
	currentID := s.videos[index].ID

	for id, sess := range s.sessions {
		if id == currentID {
			if sess.State == StateReady || sess.State == StatePaused {
				sess.State = StatePlaying
			}
			continue
		}
		if sess.State == StatePlaying {
			sess.State = StatePaused
		}
	}
}

func (s *FeedService) isCurrentLocked(videoID string) bool {
	return s.current >= 0 && s.current < len(s.videos) && s.videos[s.current].ID == videoID
}

// ---- 完播上报 ----

// finishSessionLocked 会话销毁前的收尾：已完播但未上报的补报
func (s *FeedService) finishSessionLocked(sess *PlaybackSession) {
	if sess.Completed && !sess.reported {
		s.reportCompletionLocked(sess)
	}
}

// reportCompletionLocked 完播上报
// 本地进度是权威数据，先同步记录；远端上报异步发出，失败只记日志，
// 不阻塞也不回滚本地进度
func (s *FeedService) reportCompletionLocked(sess *PlaybackSession) {
	if sess.reported {
		return
	}
	sess.reported = true

	s.tracker.MarkVideoWatched(sess.VideoID)

	report := model.WatchHistoryReport{
		VideoID:         sess.VideoID,
		WatchDuration:   int(math.Floor(sess.Position)),
		WatchPercentage: sess.Progress(),
		Completed:       sess.Progress() >= s.cfg.CompletionThreshold,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()
		if err := s.reporter.ReportWatchHistory(ctx, report); err != nil {
			s.log.Warn().Err(err).Str("video_id", report.VideoID).Msg("观看历史上报失败")
		}
	}()
}
