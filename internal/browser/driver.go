// Package browser 封装底层浏览器驱动能力
//
// Worker 只依赖本包的 Driver/Session/Page 接口,
// 具体实现有基于 go-rod 的 RodDriver 与基于 chromedp 的 ChromedpDriver。
package browser

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
)

const (
	// DefaultUserAgent 默认会话UA
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
	// DefaultCookieDomain 凭证Cookie写入的域
	DefaultCookieDomain = ".xiaohongshu.com"
)

// DefaultBlockedResources 默认拦截的资源类型
var DefaultBlockedResources = []string{"image", "stylesheet", "font", "media"}

// Viewport 页面视口
type Viewport struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// PageOptions 新建页面时应用的设置
type PageOptions struct {
	Viewport         Viewport
	UserAgent        string
	BlockedResources []string
	ExtraHeaders     http.Header
	CookieDomain     string
}

// DefaultPageOptions 返回默认页面设置
func DefaultPageOptions() PageOptions {
	return PageOptions{
		Viewport:         Viewport{Width: 1920, Height: 1080},
		UserAgent:        DefaultUserAgent,
		BlockedResources: DefaultBlockedResources,
		CookieDomain:     DefaultCookieDomain,
	}
}

// Driver 启动浏览器会话
type Driver interface {
	Launch(ctx context.Context) (Session, error)
}

// Session 一个浏览器进程/连接
type Session interface {
	NewPage(ctx context.Context, opts PageOptions) (Page, error)
	// IsConnected 必须是非阻塞的本地检查
	IsConnected() bool
	Close() error
}

// Page 会话中的单个页面
type Page interface {
	// SetCredential 清除旧Cookie并写入凭证
	SetCredential(ctx context.Context, cookie string) error
	// Goto 导航并等待 DOMContentLoaded
	Goto(ctx context.Context, url string) error
	// Content 返回整页HTML,selector 非空时返回该元素的HTML
	Content(ctx context.Context, selector string) (string, error)
	// Evaluate 在页面内执行脚本,返回JSON编码的结果
	Evaluate(ctx context.Context, script string) ([]byte, error)
	Close() error
}

// IsConnectionClosed 判断错误是否为"连接已关闭"
func IsConnectionClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "browser has been closed")
}
