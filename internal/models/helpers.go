package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ParseSiteURL 解析站点链接, 仅接受 http(s) 且主机属于站点或短链域名
func ParseSiteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("无效的URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("URL必须是HTTP或HTTPS协议: %s", raw)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("URL缺少主机名: %s", raw)
	}
	if !isSiteHost(host) {
		return nil, fmt.Errorf("不支持的站点: %s", host)
	}
	return u, nil
}

func isSiteHost(host string) bool {
	for _, domain := range []string{"xiaohongshu.com", ShortLinkHost} {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// newAccountID 账号ID
func newAccountID() string {
	return uuid.NewString()
}
