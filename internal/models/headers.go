package models

import (
	"fmt"
	"net/http"
	"strings"
)

// ParseHeaderFlags 解析 -H "Name: Value" 形式的会话头部
// 同名头部后者覆盖前者
func ParseHeaderFlags(flags []string) (http.Header, error) {
	h := make(http.Header, len(flags))
	for i, raw := range flags {
		name, value, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("参数 --header 第%d项缺少冒号, 应为 'Name: Value': %q", i+1, raw)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("参数 --header 第%d项头部名称为空", i+1)
		}
		h.Set(name, strings.TrimSpace(value))
	}
	return h, nil
}

// ValidationError 会话头部校验失败
type ValidationError struct {
	Field      string // name | value
	HeaderName string
	Reason     string
	Suggestion string // 可选
}

func (e *ValidationError) Error() string {
	if e.Suggestion == "" {
		return fmt.Sprintf("头部 %s 的%s无效: %s", e.HeaderName, e.fieldLabel(), e.Reason)
	}
	return fmt.Sprintf("头部 %s 的%s无效: %s (建议: %s)", e.HeaderName, e.fieldLabel(), e.Reason, e.Suggestion)
}

func (e *ValidationError) fieldLabel() string {
	if e.Field == "value" {
		return "值"
	}
	return "名称"
}
