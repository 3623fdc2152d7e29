package utils

import (
	"net/http"
	"sort"
	"strings"
)

var (
	// SensitiveKeywords 敏感头部名称关键字 (用于脱敏)
	SensitiveKeywords = []string{
		"authorization",
		"cookie",
		"token",
		"key",
		"secret",
		"password",
		"credential",
	}

	// signatureHeaders 站点签名头部,按名称精确匹配
	signatureHeaders = map[string]bool{"x-s": true, "x-t": true, "x-s-common": true}
)

// MaskCredential 脱敏凭证值: 足够长时显示前4位+后4位,否则完全隐藏
func MaskCredential(value string) string {
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// MaskCookie 逐项脱敏 Cookie 字符串,保留名称
// "a=123456789; b=1" → "a=1234***6789; b=***"
func MaskCookie(cookie string) string {
	parts := strings.Split(cookie, ";")
	masked := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			masked = append(masked, MaskCredential(part))
			continue
		}
		masked = append(masked, strings.TrimSpace(name)+"="+MaskCredential(strings.TrimSpace(value)))
	}
	return strings.Join(masked, "; ")
}

// HeaderRedactor 头部脱敏器
// 负责识别并脱敏敏感HTTP头部
type HeaderRedactor struct {
	sensitiveKeywords []string
}

// NewHeaderRedactor 创建头部脱敏器
func NewHeaderRedactor() *HeaderRedactor {
	return &HeaderRedactor{
		sensitiveKeywords: SensitiveKeywords,
	}
}

// IsSensitiveHeader 检查头部是否为敏感头部
func (hr *HeaderRedactor) IsSensitiveHeader(name string) bool {
	nameLower := strings.ToLower(name)
	if signatureHeaders[nameLower] {
		return true
	}
	for _, keyword := range hr.sensitiveKeywords {
		if strings.Contains(nameLower, keyword) {
			return true
		}
	}
	return false
}

// RedactHeaderValue 脱敏单个头部值
func (hr *HeaderRedactor) RedactHeaderValue(name, value string) string {
	if !hr.IsSensitiveHeader(name) {
		return value
	}
	if strings.EqualFold(name, "Cookie") {
		return MaskCookie(value)
	}
	return MaskCredential(value)
}

// Redact 脱敏整个http.Header,返回安全的字符串map (用于日志)
func (hr *HeaderRedactor) Redact(headers http.Header) map[string]string {
	result := make(map[string]string)
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		// 只取第一个值
		result[name] = hr.RedactHeaderValue(name, values[0])
	}
	return result
}

// RedactToString 脱敏http.Header并返回按名称排序的字符串
// 格式: "Header1: value1, Header2: value2, ..."
func (hr *HeaderRedactor) RedactToString(headers http.Header) string {
	redacted := hr.Redact(headers)
	names := make([]string, 0, len(redacted))
	for name := range redacted {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+redacted[name])
	}
	return strings.Join(parts, ", ")
}
