package service

import (
	"strings"

	"github.com/brianli99/edu-tiktok/internal/config"
	"github.com/brianli99/edu-tiktok/internal/model"
	"github.com/brianli99/edu-tiktok/internal/utils"
)

// FilterVideos 纯函数筛选：关键词 + 分类
// 1. 关键词非空时做大小写不敏感的子串匹配：标题、描述、创作者、任一标签命中即保留。
//    注意：关键词筛选作用于传入的完整列表，不叠加分类筛选（沿用参考实现行为，
//    分类筛选只在关键词为空时生效）
// 2. 关键词为空时按分类精确匹配，"all" 或空分类直接透传
// 3. 结果保持输入顺序，空结果是合法输出而不是错误
func FilterVideos(videos []model.Video, query, categoryID string) []model.Video {
	if query != "" {
		q := strings.ToLower(query)
		out := make([]model.Video, 0, len(videos))
		for _, v := range videos {
			if matchQuery(&v, q) {
				out = append(out, v)
			}
		}
		return out
	}

	if categoryID == "" || categoryID == model.CategoryAll {
		out := make([]model.Video, len(videos))
		copy(out, videos)
		return out
	}

	out := make([]model.Video, 0, len(videos))
	for _, v := range videos {
		if string(v.Category) == categoryID {
			out = append(out, v)
		}
	}
	return out
}

// matchQuery 关键词是否命中视频，q 需要已转小写
func matchQuery(v *model.Video, q string) bool {
	if strings.Contains(strings.ToLower(v.Title), q) ||
		strings.Contains(strings.ToLower(v.Description), q) ||
		strings.Contains(strings.ToLower(v.Creator), q) {
		return true
	}
	for _, tag := range v.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// SearchService 带缓存的本地筛选服务
// 同一组筛选条件的结果进 LRU 缓存，避免滑动输入时重复扫描
type SearchService struct {
	cache *utils.SearchCache[[]model.Video]
}

// NewSearchService 创建筛选服务
func NewSearchService(cfg *config.Config) *SearchService {
	return &SearchService{
		cache: utils.NewSearchCache[[]model.Video](cfg.SearchCacheSize, cfg.CacheTTL),
	}
}

// Filter 筛选并缓存结果
func (s *SearchService) Filter(videos []model.Video, query model.FilterQuery) []model.Video {
	key := query.Query + "\x00" + query.CategoryID
	if cached, ok := s.cache.Get(key); ok {
		return cached
	}

	result := FilterVideos(videos, query.Query, query.CategoryID)
	s.cache.Set(key, result)
	return result
}

// Invalidate 列表刷新后清空筛选缓存
func (s *SearchService) Invalidate() {
	s.cache.Clear()
}
