package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

const maxRedirects = 10

// LinkResolver 通过跟随跳转把 xhslink.com 短链接解析为主页地址
type LinkResolver struct {
	userAgent string
	timeout   time.Duration
}

// NewLinkResolver 创建短链接解析器
func NewLinkResolver(userAgent string, timeout time.Duration) *LinkResolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LinkResolver{userAgent: userAgent, timeout: timeout}
}

// newCollector 每次解析新建 collector
// (Clone 与原 collector 共享 http.Client 及其跳转处理函数)
func (r *LinkResolver) newCollector() *colly.Collector {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
	)
	if r.userAgent != "" {
		c.UserAgent = r.userAgent
	}
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(r.timeout)
	return c
}

// Resolve 返回短链接最终指向的主页地址
// 跳转链中一旦出现 /user/profile/ 即停止,不下载主页本身
func (r *LinkResolver) Resolve(ctx context.Context, shortURL string) (string, error) {
	c := r.newCollector()

	var (
		mu    sync.Mutex
		final string
	)
	record := func(u string) {
		if _, ok := models.UserIDFromURL(u); ok {
			mu.Lock()
			final = u
			mu.Unlock()
		}
	}

	c.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("跳转次数过多: %d", len(via))
		}
		record(req.URL.String())
		if strings.Contains(req.URL.Path, "/user/profile/") {
			return http.ErrUseLastResponse
		}
		return nil
	})
	c.OnResponse(func(resp *colly.Response) {
		record(resp.Request.URL.String())
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(shortURL)
	}()

	var visitErr error
	select {
	case visitErr = <-done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	if final != "" {
		log.Debug().Str("short_link", shortURL).Str("resolved", final).Msg("短链接解析成功")
		return final, nil
	}
	if visitErr == nil {
		visitErr = errors.New("跳转链中没有用户主页")
	}
	return "", fmt.Errorf("%w: 短链接解析失败 %s: %v", models.ErrTargetIdentifierInvalid, shortURL, visitErr)
}
