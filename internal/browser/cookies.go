package browser

import "strings"

// Cookie 解析后的单个Cookie
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// ParseCookieString 将 "k1=v1; k2=v2" 解析为Cookie列表
// 跳过空片段与无名称片段,值中的 '=' 原样保留
func ParseCookieString(raw, domain string) []Cookie {
	if domain == "" {
		domain = DefaultCookieDomain
	}
	var cookies []Cookie
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies = append(cookies, Cookie{
			Name:   name,
			Value:  strings.TrimSpace(value),
			Domain: domain,
			Path:   "/",
		})
	}
	return cookies
}

// resourceURLPatterns 资源类型对应的URL拦截模式
var resourceURLPatterns = map[string][]string{
	"image":      {"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico", "*.avif"},
	"stylesheet": {"*.css"},
	"font":       {"*.woff", "*.woff2", "*.ttf", "*.otf", "*.eot"},
	"media":      {"*.mp4", "*.webm", "*.mp3", "*.m4a", "*.ogg", "*.m3u8"},
}

// BlockedURLPatterns 将资源类型展开为URL匹配模式
func BlockedURLPatterns(resources []string) []string {
	var patterns []string
	seen := make(map[string]bool)
	for _, r := range resources {
		for _, p := range resourceURLPatterns[strings.ToLower(r)] {
			if !seen[p] {
				seen[p] = true
				patterns = append(patterns, p)
			}
		}
	}
	return patterns
}
