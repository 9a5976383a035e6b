package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianli99/edu-tiktok/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu         sync.Mutex
	all        []model.Video
	byCategory map[string][]model.Video
	bySearch   map[string][]model.Video
	block      map[string]chan struct{} // 分类 -> 放行信号，模拟慢请求
}

func (f *fakeSource) Videos(ctx context.Context, skip, limit int) ([]model.Video, error) {
	return f.all, nil
}

func (f *fakeSource) VideosByCategory(ctx context.Context, category string) ([]model.Video, error) {
	f.mu.Lock()
	ch := f.block[category]
	f.mu.Unlock()
	if ch != nil {
		<-ch
	}
	return f.byCategory[category], nil
}

func (f *fakeSource) SearchVideos(ctx context.Context, q string) ([]model.Video, error) {
	return f.bySearch[q], nil
}

type fakeTracker struct {
	mu     sync.Mutex
	marked []string
}

func (f *fakeTracker) MarkVideoWatched(videoID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, videoID)
}

func (f *fakeTracker) Marked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.marked))
	copy(out, f.marked)
	return out
}

type fakeReporter struct {
	reports chan model.WatchHistoryReport
	err     error
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{reports: make(chan model.WatchHistoryReport, 8)}
}

func (f *fakeReporter) ReportWatchHistory(ctx context.Context, report model.WatchHistoryReport) error {
	f.reports <- report
	return f.err
}

func feedVideos(ids ...string) []model.Video {
	videos := make([]model.Video, 0, len(ids))
	for _, id := range ids {
		videos = append(videos, model.Video{ID: id, Title: "video-" + id, Duration: 200})
	}
	return videos
}

func newTestFeed(t *testing.T, videos []model.Video) (*FeedService, *fakeTracker, *fakeReporter, *time.Time) {
	t.Helper()

	tracker := &fakeTracker{}
	reporter := newFakeReporter()
	source := &fakeSource{all: videos}
	feed := NewFeedService(testConfig(), source, tracker, reporter, zerolog.Nop())

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feed.now = func() time.Time { return clock }

	require.NoError(t, feed.LoadFeed(context.Background()))
	return feed, tracker, reporter, &clock
}

func waitReport(t *testing.T, reporter *fakeReporter) model.WatchHistoryReport {
	t.Helper()
	select {
	case r := <-reporter.reports:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("等待观看历史上报超时")
		return model.WatchHistoryReport{}
	}
}

func TestFeed_CurrentItemSelection(t *testing.T) {
	feed, _, _, clock := newTestFeed(t, feedVideos("a", "b", "c"))

	for i := 0; i < 3; i++ {
		feed.Mount(i)
	}
	feed.OnReady("a")
	feed.OnReady("b")
	feed.OnReady("c")

	// 可见比例 [0.9, 0.3, 0.0]，持续超过防抖时长
	feed.UpdateVisibility([]float64{0.9, 0.3, 0.0})
	*clock = clock.Add(300 * time.Millisecond)
	feed.ScrollSettled()

	assert.Equal(t, 0, feed.CurrentIndex())
	assert.Equal(t, StatePlaying, feed.Session("a").State)
	// 其余条目不播放
	assert.NotEqual(t, StatePlaying, feed.Session("b").State)
	assert.NotEqual(t, StatePlaying, feed.Session("c").State)
}

func TestFeed_DwellDebounce(t *testing.T) {
	feed, _, _, clock := newTestFeed(t, feedVideos("a", "b"))
	feed.Mount(0)
	feed.OnReady("a")

	feed.UpdateVisibility([]float64{0.9, 0.0})
	// 未达到防抖时长，滚动停止也不切换
	feed.ScrollSettled()
	assert.Equal(t, -1, feed.CurrentIndex())

	*clock = clock.Add(300 * time.Millisecond)
	feed.ScrollSettled()
	assert.Equal(t, 0, feed.CurrentIndex())
}

func TestFeed_SwitchingCurrentPausesPrevious(t *testing.T) {
	feed, _, _, clock := newTestFeed(t, feedVideos("a", "b"))
	feed.Mount(0)
	feed.Mount(1)
	feed.OnReady("a")
	feed.OnReady("b")

	feed.UpdateVisibility([]float64{0.9, 0.0})
	*clock = clock.Add(300 * time.Millisecond)
	feed.ScrollSettled()
	require.Equal(t, StatePlaying, feed.Session("a").State)

	// 滑到第二条
	feed.UpdateVisibility([]float64{0.1, 0.9})
	*clock = clock.Add(300 * time.Millisecond)
	feed.ScrollSettled()

	assert.Equal(t, 1, feed.CurrentIndex())
	assert.Equal(t, StatePaused, feed.Session("a").State)
	assert.Equal(t, StatePlaying, feed.Session("b").State)
}

func TestFeed_StickyCompletion(t *testing.T) {
	feed, _, _, _ := newTestFeed(t, feedVideos("a"))
	feed.Mount(0)
	feed.OnReady("a")

	// duration=200s，播到 185s → 92.5% ≥ 90%，完播闩锁置位
	feed.OnTick("a", 185, 200)
	sess := feed.Session("a")
	require.True(t, sess.Completed)
	assert.InDelta(t, 92.5, sess.Progress(), 0.01)

	// 回拖到 50s，完播标记保持
	feed.OnTick("a", 50, 200)
	sess = feed.Session("a")
	assert.True(t, sess.Completed)
	assert.InDelta(t, 25.0, sess.Progress(), 0.01)
}

func TestFeed_ZeroDurationYieldsZeroProgress(t *testing.T) {
	feed, _, _, _ := newTestFeed(t, feedVideos("a"))
	feed.Mount(0)
	feed.OnReady("a")

	feed.OnTick("a", 120, 0)
	sess := feed.Session("a")
	assert.Equal(t, 0.0, sess.Progress())
	assert.False(t, sess.Completed)
}

func TestFeed_ErrorPathNeverCompletes(t *testing.T) {
	feed, tracker, _, _ := newTestFeed(t, feedVideos("a"))
	feed.Mount(0)
	feed.OnError("a", "media decode failed")

	sess := feed.Session("a")
	require.Equal(t, StateError, sess.State)
	assert.Equal(t, "media decode failed", sess.LastError)

	// 错误态不接受进度，不会误置完播
	feed.OnTick("a", 195, 200)
	sess = feed.Session("a")
	assert.False(t, sess.Completed)
	assert.Empty(t, tracker.Marked())

	// 重试回到加载态
	feed.Retry("a")
	sess = feed.Session("a")
	assert.Equal(t, StateLoading, sess.State)
	assert.Empty(t, sess.LastError)
}

func TestFeed_CompletionReportingOnEnded(t *testing.T) {
	feed, tracker, reporter, _ := newTestFeed(t, feedVideos("a"))
	feed.Mount(0)
	feed.OnReady("a")

	feed.OnTick("a", 190, 200)
	feed.OnEnded("a")

	assert.Equal(t, []string{"a"}, tracker.Marked())

	report := waitReport(t, reporter)
	assert.Equal(t, "a", report.VideoID)
	assert.Equal(t, 190, report.WatchDuration)
	assert.InDelta(t, 95.0, report.WatchPercentage, 0.01)
	assert.True(t, report.Completed)
}

func TestFeed_TeardownReportsCompletedOnce(t *testing.T) {
	feed, tracker, reporter, _ := newTestFeed(t, feedVideos("a"))
	feed.Mount(0)
	feed.OnReady("a")
	feed.OnTick("a", 185, 200)

	feed.OnEnded("a")
	waitReport(t, reporter)

	// 卸载不会二次上报
	feed.Unmount("a")
	select {
	case r := <-reporter.reports:
		t.Fatalf("不应重复上报: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, []string{"a"}, tracker.Marked())
}

func TestFeed_TeardownWithCompletedReports(t *testing.T) {
	feed, tracker, reporter, _ := newTestFeed(t, feedVideos("a"))
	feed.Mount(0)
	feed.OnReady("a")
	feed.OnTick("a", 185, 200)

	// 未播完但已达完播阈值，卸载时补报
	feed.Unmount("a")

	assert.Equal(t, []string{"a"}, tracker.Marked())
	report := waitReport(t, reporter)
	assert.True(t, report.Completed)
	assert.Nil(t, feed.Session("a"))
}

func TestFeed_TeardownWithoutCompletionIsSilent(t *testing.T) {
	feed, tracker, reporter, _ := newTestFeed(t, feedVideos("a"))
	feed.Mount(0)
	feed.OnReady("a")
	feed.OnTick("a", 50, 200)

	feed.Unmount("a")

	assert.Empty(t, tracker.Marked())
	select {
	case r := <-reporter.reports:
		t.Fatalf("未完播不应上报: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFeed_ReporterFailureDoesNotAffectLocalProgress(t *testing.T) {
	feed, tracker, reporter, _ := newTestFeed(t, feedVideos("a"))
	reporter.err = errors.New("network down")

	feed.Mount(0)
	feed.OnReady("a")
	feed.OnTick("a", 195, 200)
	feed.OnEnded("a")

	waitReport(t, reporter)
	// 远端失败被吞掉，本地进度不受影响
	assert.Equal(t, []string{"a"}, tracker.Marked())
}

func TestFeed_DeepLinkSkipsWithoutEvents(t *testing.T) {
	feed, tracker, reporter, _ := newTestFeed(t, feedVideos("a", "b", "c", "d"))

	feed.JumpTo(2)

	assert.Equal(t, 2, feed.CurrentIndex())
	require.NotNil(t, feed.CurrentVideo())
	assert.Equal(t, "c", feed.CurrentVideo().ID)
	// 跳过的条目没有任何完播事件
	assert.Empty(t, tracker.Marked())
	select {
	case r := <-reporter.reports:
		t.Fatalf("深链跳转不应产生上报: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFeed_StaleResponseDiscarded(t *testing.T) {
	tracker := &fakeTracker{}
	reporter := newFakeReporter()
	source := &fakeSource{
		byCategory: map[string][]model.Video{
			"x": feedVideos("x1", "x2"),
			"y": feedVideos("y1"),
		},
		block: map[string]chan struct{}{
			"x": make(chan struct{}),
		},
	}
	feed := NewFeedService(testConfig(), source, tracker, reporter, zerolog.Nop())

	// 请求 A（分类 x）先发出但被阻塞
	done := make(chan error, 1)
	go func() {
		done <- feed.SwitchCategory(context.Background(), "x")
	}()
	// 等请求 A 真正进入阻塞点，保证代数先于 B 分配
	time.Sleep(50 * time.Millisecond)

	// 请求 B（分类 y）后发出且先完成
	require.NoError(t, feed.SwitchCategory(context.Background(), "y"))

	// 放行 A 的响应：此时 A 已过期，必须被丢弃
	close(source.block["x"])
	require.NoError(t, <-done)

	videos := feed.Videos()
	require.Len(t, videos, 1)
	assert.Equal(t, "y1", videos[0].ID)
}

func TestFeed_RefreshTearsDownSessions(t *testing.T) {
	feed, tracker, reporter, _ := newTestFeed(t, feedVideos("a"))
	feed.Mount(0)
	feed.OnReady("a")
	feed.OnTick("a", 185, 200)

	// 列表刷新触发整体卸载，完播会话补报
	require.NoError(t, feed.LoadFeed(context.Background()))

	assert.Equal(t, []string{"a"}, tracker.Marked())
	report := waitReport(t, reporter)
	assert.Equal(t, "a", report.VideoID)
	assert.Nil(t, feed.Session("a"))
}

func TestFeed_TogglePause(t *testing.T) {
	feed, _, _, clock := newTestFeed(t, feedVideos("a"))
	feed.Mount(0)
	feed.OnReady("a")
	feed.UpdateVisibility([]float64{1.0})
	*clock = clock.Add(300 * time.Millisecond)
	feed.ScrollSettled()
	require.Equal(t, StatePlaying, feed.Session("a").State)

	feed.TogglePause("a")
	assert.Equal(t, StatePaused, feed.Session("a").State)
	feed.TogglePause("a")
	assert.Equal(t, StatePlaying, feed.Session("a").State)
}
