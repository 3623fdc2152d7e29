package models

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// SiteBaseURL 站点根地址
	SiteBaseURL = "https://www.xiaohongshu.com"
	// ShortLinkHost 短链接域名
	ShortLinkHost = "xhslink.com"
)

var (
	userIDPattern      = regexp.MustCompile(`^[a-f0-9]{24}$`)
	profilePathPattern = regexp.MustCompile(`/user/profile/([a-f0-9]+)`)
)

// TargetKind 目标类型
type TargetKind string

const (
	TargetPost TargetKind = "post" // 笔记
	TargetUser TargetKind = "user" // 用户主页
)

// UserRefKind 用户标识的形式
type UserRefKind int

const (
	UserRefInvalid   UserRefKind = iota // 无法识别
	UserRefShortLink                    // xhslink.com 短链接
	UserRefLongLink                     // 完整主页链接
	UserRefID                           // 24位十六进制用户ID
)

// Target 一次爬取请求
type Target struct {
	Kind        TargetKind `json:"kind"`
	PostID      string     `json:"postId,omitempty"`
	XsecToken   string     `json:"xsecToken,omitempty"`
	UserIDOrURL string     `json:"userIdOrUrl,omitempty"`
}

// PostTarget 构造笔记目标
func PostTarget(postID, xsecToken string) Target {
	return Target{Kind: TargetPost, PostID: strings.TrimSpace(postID), XsecToken: strings.TrimSpace(xsecToken)}
}

// UserTarget 构造用户目标
func UserTarget(userIDOrURL string) Target {
	return Target{Kind: TargetUser, UserIDOrURL: strings.TrimSpace(userIDOrURL)}
}

// String 用于日志与报告
func (t Target) String() string {
	switch t.Kind {
	case TargetPost:
		return "post:" + t.PostID
	case TargetUser:
		return "user:" + t.UserIDOrURL
	}
	return "unknown"
}

// Validate 校验目标标识
func (t Target) Validate() error {
	switch t.Kind {
	case TargetPost:
		if t.PostID == "" {
			return fmt.Errorf("%w: 笔记ID不能为空", ErrTargetIdentifierInvalid)
		}
		if t.XsecToken == "" {
			return fmt.Errorf("%w: xsec_token不能为空", ErrTargetIdentifierInvalid)
		}
		return nil
	case TargetUser:
		if ClassifyUserRef(t.UserIDOrURL) == UserRefInvalid {
			return fmt.Errorf("%w: 无法识别的用户标识 %q", ErrTargetIdentifierInvalid, t.UserIDOrURL)
		}
		return nil
	}
	return fmt.Errorf("%w: 未知目标类型 %q", ErrTargetIdentifierInvalid, t.Kind)
}

// PostURL 笔记页面地址
func PostURL(postID, xsecToken string) string {
	return fmt.Sprintf("%s/explore/%s?xsec_token=%s", SiteBaseURL, url.PathEscape(postID), url.QueryEscape(xsecToken))
}

// ProfileURL 用户主页地址
func ProfileURL(userID string) string {
	return fmt.Sprintf("%s/user/profile/%s", SiteBaseURL, userID)
}

// ClassifyUserRef 判断用户标识形式
func ClassifyUserRef(ref string) UserRefKind {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return UserRefInvalid
	case strings.Contains(ref, ShortLinkHost):
		return UserRefShortLink
	case strings.Contains(ref, "xiaohongshu.com/user/profile/"):
		if profilePathPattern.MatchString(ref) {
			return UserRefLongLink
		}
		return UserRefInvalid
	case userIDPattern.MatchString(ref):
		return UserRefID
	}
	return UserRefInvalid
}

// UserIDFromURL 从主页链接中提取用户ID
func UserIDFromURL(rawURL string) (string, bool) {
	m := profilePathPattern.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// URL 返回目标的页面地址
// 短链接需先解析,此处返回原链接
func (t Target) URL() (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	if t.Kind == TargetPost {
		return PostURL(t.PostID, t.XsecToken), nil
	}
	ref := t.UserIDOrURL
	switch ClassifyUserRef(ref) {
	case UserRefID:
		return ProfileURL(ref), nil
	case UserRefShortLink:
		if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
			ref = "https://" + ref
		}
		return ref, nil
	}
	return ref, nil
}
