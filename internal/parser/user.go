package parser

import (
	"strings"
	"time"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

// UserFromState 从页面状态中取出 user.userPageData
func UserFromState(state map[string]any) (*models.UserInfo, bool) {
	user := asMap(state["user"])
	if user == nil {
		return nil, false
	}
	pageData := asMap(user["userPageData"])
	if pageData == nil {
		return nil, false
	}
	return UserFromPageData(pageData), true
}

// UserFromPageData 映射用户主页数据
// interactions 按 name/type 匹配: 粉丝/fans, 关注/follow, 获赞/收藏/liked, 笔记/note
func UserFromPageData(pageData map[string]any) *models.UserInfo {
	basic := asMap(pageData["basicInfo"])
	if basic == nil {
		basic = map[string]any{}
	}

	info := &models.UserInfo{
		UserID:     firstString(basic["userId"], basic["red_id"]),
		Nickname:   asString(basic["nickname"]),
		IPLocation: asString(basic["ipLocation"]),
		Tags:       []string{},
		CrawlTime:  time.Now(),
	}

	for _, raw := range asSlice(pageData["interactions"]) {
		item := asMap(raw)
		if item == nil {
			continue
		}
		name := strings.ToLower(asString(item["name"]))
		typ := strings.ToLower(asString(item["type"]))
		count := ExtractNumber(unwrap(item["count"]))

		switch {
		case strings.Contains(name, "粉丝") || strings.Contains(typ, "fans"):
			info.FansCount = count
		case strings.Contains(name, "关注") || strings.Contains(typ, "follow"):
			info.FollowCount = count
		case strings.Contains(name, "获赞") || strings.Contains(name, "收藏") || strings.Contains(typ, "liked"):
			info.LikeCollectCount = count
		case strings.Contains(name, "笔记") || strings.Contains(typ, "note"):
			info.NoteCount = count
		}
	}

	if info.NoteCount == 0 {
		info.NoteCount = ExtractNumber(unwrap(basic["noteCount"]))
	}
	if info.NoteCount == 0 {
		info.NoteCount = ExtractNumber(unwrap(pageData["noteCount"]))
	}

	info.Tags = coverNames(pageData["imageCoverInfoList"])
	if len(info.Tags) == 0 {
		for _, t := range asSlice(basic["tags"]) {
			if s := tagName(t); s != "" {
				info.Tags = append(info.Tags, s)
			}
			if len(info.Tags) == models.MaxUserTags {
				break
			}
		}
	}
	if len(info.Tags) == 0 {
		info.Tags = coverNames(basic["imageCoverInfoList"])
	}
	return info
}

func coverNames(v any) []string {
	tags := []string{}
	for _, raw := range asSlice(v) {
		if len(tags) == models.MaxUserTags {
			break
		}
		if s := tagName(raw); s != "" {
			tags = append(tags, s)
		}
	}
	return tags
}

// tagName 标签可能是字符串或 {name: ...}
func tagName(v any) string {
	if s := asString(v); s != "" {
		return s
	}
	return asString(asMap(v)["name"])
}

func firstString(values ...any) string {
	for _, v := range values {
		if s := asString(v); s != "" {
			return s
		}
	}
	return ""
}
