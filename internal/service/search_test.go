package service

import (
	"testing"

	"github.com/brianli99/edu-tiktok/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleVideos() []model.Video {
	return []model.Video{
		{ID: "1", Title: "Intro to SQL", Creator: "DataCamp", Category: model.CategoryDataEngineering, Tags: []string{"sql"}},
		{ID: "2", Title: "Deep Learning", Creator: "AI Academy", Category: model.CategoryAI, Tags: []string{"ai"}},
		{ID: "3", Title: "Go Basics", Description: "SQL databases with Go", Creator: "Gopher", Category: model.CategoryProgramming, Tags: []string{"golang"}},
	}
}

func TestFilterVideos_QueryMatchesTitleAndTags(t *testing.T) {
	videos := []model.Video{
		{ID: "1", Title: "Intro to SQL", Tags: []string{"sql"}},
		{ID: "2", Title: "Deep Learning", Tags: []string{"ai"}},
	}

	got := FilterVideos(videos, "sql", "")
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestFilterVideos_EmptyQueryAllCategory(t *testing.T) {
	videos := sampleVideos()
	got := FilterVideos(videos, "", model.CategoryAll)

	require.Len(t, got, 3)
	// 保持输入顺序
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
	assert.Equal(t, "3", got[2].ID)
}

func TestFilterVideos_CaseInsensitive(t *testing.T) {
	got := FilterVideos(sampleVideos(), "SQL", "")
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID) // 描述命中
}

func TestFilterVideos_MatchesCreator(t *testing.T) {
	got := FilterVideos(sampleVideos(), "gopher", "")
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].ID)
}

func TestFilterVideos_CategoryFilter(t *testing.T) {
	got := FilterVideos(sampleVideos(), "", string(model.CategoryAI))
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
}

// 关键词与分类同时存在时，关键词作用于完整列表，分类条件被忽略
// （沿用参考实现行为）
func TestFilterVideos_QueryOverridesCategory(t *testing.T) {
	got := FilterVideos(sampleVideos(), "sql", string(model.CategoryAI))
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
}

func TestFilterVideos_EmptyResultIsValid(t *testing.T) {
	got := FilterVideos(sampleVideos(), "quantum", "")
	assert.Empty(t, got)
}

func TestSearchService_CachesResults(t *testing.T) {
	s := NewSearchService(testConfig())
	videos := sampleVideos()

	q := model.FilterQuery{Query: "sql", CategoryID: model.CategoryAll}
	first := s.Filter(videos, q)
	require.Len(t, first, 2)

	// 命中缓存：即使换了输入列表，相同条件仍返回缓存结果
	second := s.Filter(nil, q)
	assert.Equal(t, first, second)

	s.Invalidate()
	third := s.Filter(nil, q)
	assert.Empty(t, third)
}
