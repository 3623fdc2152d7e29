// Package parser 从小红书页面中提取笔记与用户数据
//
// 优先解码页面内嵌的 window.__INITIAL_STATE__ (STRUCTURED),
// 失败时回退到旧版页面标记 (FALLBACK),两者都没有时返回零值结果。
package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

// Parse 解析原始页面
// 返回值永不为 nil,调用方只需检查 SourceMethod
func Parse(target models.Target, raw string) *models.ExtractionResult {
	if state, ok := FindInitialState(raw); ok {
		if r, ok := FromState(target, state); ok {
			return r
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		log.Debug().Err(err).Str("target", target.String()).Msg("页面解析失败")
		return withTargetID(target, models.Empty(target.Kind))
	}

	result := &models.ExtractionResult{Kind: target.Kind, SourceMethod: models.SourceFallback}
	switch target.Kind {
	case models.TargetUser:
		if u, ok := userFromMarkup(doc); ok {
			result.User = u
			return withTargetID(target, result)
		}
	default:
		if p, ok := postFromMarkup(doc, target.PostID); ok {
			result.Post = p
			return withTargetID(target, result)
		}
	}

	log.Debug().Str("target", target.String()).Msg("未找到页面数据,返回零值结果")
	return withTargetID(target, models.Empty(target.Kind))
}

// FromState 将已解码的页面状态映射为结构化结果
func FromState(target models.Target, state map[string]any) (*models.ExtractionResult, bool) {
	result := &models.ExtractionResult{Kind: target.Kind, SourceMethod: models.SourceStructured}
	switch target.Kind {
	case models.TargetUser:
		u, ok := UserFromState(state)
		if !ok {
			return nil, false
		}
		result.User = u
	default:
		p, ok := PostFromState(state, target.PostID)
		if !ok {
			return nil, false
		}
		result.Post = p
	}
	return withTargetID(target, result), true
}

// withTargetID 用目标自身的标识覆盖页面中的标识
func withTargetID(target models.Target, r *models.ExtractionResult) *models.ExtractionResult {
	switch {
	case r.Post != nil && target.PostID != "":
		r.Post.PostID = target.PostID
	case r.User != nil:
		if id, ok := targetUserID(target.UserIDOrURL); ok {
			r.User.UserID = id
		}
	}
	return r
}

func targetUserID(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if models.ClassifyUserRef(ref) == models.UserRefID {
		return ref, true
	}
	return models.UserIDFromURL(ref)
}
