package models

import "time"

// SourceMethod 提取方式
type SourceMethod string

const (
	SourceStructured SourceMethod = "STRUCTURED" // 页面内嵌状态
	SourceFallback   SourceMethod = "FALLBACK"   // 旧版标记匹配
)

// PostDetail 笔记互动数据
type PostDetail struct {
	PostID       string    `json:"postId"`
	Title        string    `json:"title"`
	LikeCount    int64     `json:"likeCount"`
	CollectCount int64     `json:"collectCount"`
	CommentCount int64     `json:"commentCount"`
	ShareCount   int64     `json:"shareCount"`
	CrawlTime    time.Time `json:"crawlTime"`
}

// MaxUserTags 用户标签保留上限
const MaxUserTags = 5

// UserInfo 用户主页统计
type UserInfo struct {
	UserID           string    `json:"userId"`
	Nickname         string    `json:"nickname"`
	IPLocation       string    `json:"ipLocation"`
	FansCount        int64     `json:"fansCount"`
	FollowCount      int64     `json:"followCount"`
	LikeCollectCount int64     `json:"likeCollectCount"`
	NoteCount        int64     `json:"noteCount"`
	Tags             []string  `json:"tags"`
	CrawlTime        time.Time `json:"crawlTime"`
}

// ExtractionResult 一次提取的结果
// Post 与 User 按 Kind 二选一
type ExtractionResult struct {
	Kind         TargetKind   `json:"kind"`
	SourceMethod SourceMethod `json:"sourceMethod"`
	Post         *PostDetail  `json:"post,omitempty"`
	User         *UserInfo    `json:"user,omitempty"`
}

// Empty 构造零值结果
func Empty(kind TargetKind) *ExtractionResult {
	r := &ExtractionResult{Kind: kind, SourceMethod: SourceFallback}
	now := time.Now()
	if kind == TargetUser {
		r.User = &UserInfo{Tags: []string{}, CrawlTime: now}
	} else {
		r.Post = &PostDetail{CrawlTime: now}
	}
	return r
}

// BatchResult 批量爬取中单个目标的结果
type BatchResult struct {
	Target   Target            `json:"target"`
	Success  bool              `json:"success"`
	Result   *ExtractionResult `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// BatchSummary 批量爬取汇总
type BatchSummary struct {
	Total     int           `json:"total"`
	Success   int           `json:"success"`
	Failed    int           `json:"failed"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
}

// Summarize 汇总批量结果
func Summarize(results []BatchResult, start, end time.Time) BatchSummary {
	s := BatchSummary{Total: len(results), StartTime: start, EndTime: end, Duration: end.Sub(start)}
	for _, r := range results {
		if r.Success {
			s.Success++
		} else {
			s.Failed++
		}
	}
	return s
}
