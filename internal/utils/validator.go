package utils

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

// MaxHeaderValueLength 头部值与Cookie的最大长度 (8KB)
const MaxHeaderValueLength = 8192

var (
	// ForbiddenHeaders 由浏览器或页面脚本维护, 不允许作为会话头部配置
	ForbiddenHeaders = []string{
		"Host",
		"Content-Length",
		"Transfer-Encoding",
		"Connection",
		"Cookie",
		"X-S",
		"X-T",
		"X-S-Common",
	}

	// RFC 7230 token
	headerNamePattern = regexp.MustCompile("^[A-Za-z0-9!#$%&'*+.^_`|~-]+$")
	// 可打印ASCII + 制表符
	printablePattern = regexp.MustCompile(`^[\x20-\x7E\t]*$`)
)

// HeaderValidator 校验会话头部与账号Cookie
type HeaderValidator struct {
	maxValueLength int
	forbidden      map[string]bool
}

// NewHeaderValidator 创建验证器
func NewHeaderValidator() *HeaderValidator {
	forbidden := make(map[string]bool, len(ForbiddenHeaders))
	for _, h := range ForbiddenHeaders {
		forbidden[strings.ToLower(h)] = true
	}
	return &HeaderValidator{maxValueLength: MaxHeaderValueLength, forbidden: forbidden}
}

// IsForbidden 名称是否在禁止列表中(不区分大小写)
func (hv *HeaderValidator) IsForbidden(name string) bool {
	return hv.forbidden[strings.ToLower(name)]
}

// ValidateHeader 校验单个头部, 失败时返回 *models.ValidationError
func (hv *HeaderValidator) ValidateHeader(name, value string) error {
	nameErr := func(reason, suggestion string) error {
		return &models.ValidationError{Field: "name", HeaderName: name, Reason: reason, Suggestion: suggestion}
	}
	valueErr := func(reason, suggestion string) error {
		return &models.ValidationError{Field: "value", HeaderName: name, Reason: reason, Suggestion: suggestion}
	}

	switch {
	case strings.EqualFold(name, "Cookie"):
		return nameErr("Cookie 由账号轮换注入,不允许作为会话头部配置", "使用 account add 添加账号")
	case signatureHeaders[strings.ToLower(name)]:
		return nameErr("签名头部由页面脚本生成", fmt.Sprintf("移除 '%s' 头部配置", name))
	case hv.IsForbidden(name):
		return nameErr("此头部由浏览器自动管理,不允许自定义", fmt.Sprintf("移除 '%s' 头部配置", name))
	case name == "":
		return nameErr("头部名称不能为空", "")
	case !headerNamePattern.MatchString(name):
		return nameErr("头部名称包含非法字符", "使用字母、数字和连字符 (如 'Accept-Language')")
	case len(value) > hv.maxValueLength:
		return valueErr(fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), hv.maxValueLength), "")
	case !printablePattern.MatchString(value):
		return valueErr("头部值包含非法字符 (仅允许可打印ASCII字符)", "移除控制字符和非ASCII字符")
	}
	return nil
}

// Validate 校验全部头部, 返回第一个错误
func (hv *HeaderValidator) Validate(headers http.Header) error {
	for name, values := range headers {
		for _, value := range values {
			if err := hv.ValidateHeader(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateCookie 校验账号 Cookie 字符串
// 至少一个 name=value 对,仅允许可打印ASCII
func (hv *HeaderValidator) ValidateCookie(cookie string) error {
	cookie = strings.TrimSpace(cookie)
	switch {
	case len(cookie) < models.MinCookieLength:
		return fmt.Errorf("%w: Cookie长度至少为%d", models.ErrInvalidAccount, models.MinCookieLength)
	case len(cookie) > hv.maxValueLength:
		return fmt.Errorf("%w: Cookie过长 (%d 字节)", models.ErrInvalidAccount, len(cookie))
	case !printablePattern.MatchString(cookie):
		return fmt.Errorf("%w: Cookie包含非法字符", models.ErrInvalidAccount)
	}
	for _, part := range strings.Split(cookie, ";") {
		if name, _, ok := strings.Cut(strings.TrimSpace(part), "="); ok && strings.TrimSpace(name) != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: Cookie应为 name=value 格式", models.ErrInvalidAccount)
}
