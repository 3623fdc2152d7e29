package parser

import (
	"bytes"
	"encoding/json"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

// 在会话内执行的脚本,返回去掉响应式包装的普通对象
const (
	// PostStateScript 读取当前笔记 {noteId,title,interactInfo}
	PostStateScript = `() => {
  const s = window.__INITIAL_STATE__;
  if (!s || !s.note) return null;
  const unwrap = (v) => (v && typeof v === 'object' && '_value' in v) ? v._value : v;
  const root = unwrap(s.note);
  const map = unwrap(root.noteDetailMap) || {};
  const id = unwrap(root.currentNoteId) || unwrap(root.firstNoteId) || Object.keys(map)[0];
  const detail = map[id] ? unwrap(map[id].note) : unwrap(root.note);
  if (!detail) return null;
  const info = unwrap(detail.interactInfo) || {};
  return {
    noteId: detail.noteId || id || '',
    title: detail.title || detail.desc || '',
    interactInfo: {
      likedCount: unwrap(info.likedCount),
      collectedCount: unwrap(info.collectedCount),
      commentCount: unwrap(info.commentCount),
      shareCount: unwrap(info.shareCount)
    }
  };
}`

	// UserStateScript 读取用户主页 userPageData
	UserStateScript = `() => {
  const s = window.__INITIAL_STATE__;
  if (!s || !s.user) return null;
  const unwrap = (v) => (v && typeof v === 'object' && '_value' in v) ? v._value : v;
  const data = unwrap(unwrap(s.user).userPageData);
  if (!data) return null;
  return {
    basicInfo: unwrap(data.basicInfo) || {},
    interactions: unwrap(data.interactions) || [],
    imageCoverInfoList: unwrap(data.imageCoverInfoList) || [],
    noteCount: unwrap(data.noteCount)
  };
}`

	// LocationScript 读取当前地址,用于短链接跳转后的主页
	LocationScript = `() => window.location.href`
)

// ScriptFor 返回目标对应的状态读取脚本
func ScriptFor(kind models.TargetKind) string {
	if kind == models.TargetUser {
		return UserStateScript
	}
	return PostStateScript
}

// FromSession 映射会话内脚本的返回值
// 脚本返回 null 或对象为空时 ok 为 false,调用方应回退到 Parse
func FromSession(target models.Target, evaluated []byte) (*models.ExtractionResult, bool) {
	evaluated = bytes.TrimSpace(evaluated)
	if len(evaluated) == 0 || bytes.Equal(evaluated, []byte("null")) {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(evaluated))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || len(m) == 0 {
		return nil, false
	}

	result := &models.ExtractionResult{Kind: target.Kind, SourceMethod: models.SourceStructured}
	switch target.Kind {
	case models.TargetUser:
		if asMap(m["basicInfo"]) == nil && len(asSlice(m["interactions"])) == 0 {
			return nil, false
		}
		result.User = UserFromPageData(m)
	default:
		if asString(m["title"]) == "" && asMap(m["interactInfo"]) == nil {
			return nil, false
		}
		result.Post = PostFromNote(m, target.PostID)
	}
	return withTargetID(target, result), true
}
