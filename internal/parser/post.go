package parser

import (
	"strings"
	"time"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

// PostFromState 从页面状态中取出笔记
// 依次尝试 note.noteDetailMap[postID|任意].note、note.note、note 本身
func PostFromState(state map[string]any, postID string) (*models.PostDetail, bool) {
	root := asMap(state["note"])
	if root == nil {
		return nil, false
	}

	var note map[string]any
	if detailMap := asMap(root["noteDetailMap"]); len(detailMap) > 0 {
		if d := asMap(detailMap[postID]); d != nil {
			note = asMap(d["note"])
		}
		if note == nil {
			for _, k := range sortedKeys(detailMap) {
				if n := asMap(asMap(detailMap[k])["note"]); n != nil {
					note = n
					break
				}
			}
		}
	}
	if note == nil {
		note = asMap(root["note"])
	}
	if note == nil && asString(root["title"]) != "" {
		note = root
	}
	if note == nil {
		return nil, false
	}
	return PostFromNote(note, postID), true
}

// PostFromNote 映射单条笔记的标题与互动数据
func PostFromNote(note map[string]any, postID string) *models.PostDetail {
	title := asString(note["title"])
	if title == "" {
		title = asString(note["desc"])
	}

	info := asMap(note["interactInfo"])
	if info == nil {
		info = note
	}

	if postID == "" {
		postID = asString(note["noteId"])
	}

	return &models.PostDetail{
		PostID:       postID,
		Title:        title,
		LikeCount:    ExtractNumber(unwrap(info["likedCount"])),
		CollectCount: ExtractNumber(unwrap(info["collectedCount"])),
		CommentCount: ExtractNumber(unwrap(info["commentCount"])),
		ShareCount:   ExtractNumber(unwrap(info["shareCount"])),
		CrawlTime:    time.Now(),
	}
}

// cleanTitle 去掉站点后缀
func cleanTitle(title string) string {
	return strings.TrimSpace(strings.ReplaceAll(title, " - 小红书", ""))
}
