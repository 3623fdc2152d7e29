package parser

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ExtractNumber 把页面中的计数转为整数
// 去掉千分位逗号后按前导整数解析,"万"/"w" 后缀乘以一万;
// nil、空串或无法解析时返回0
func ExtractNumber(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 0
	case int:
		return int64(x)
	case int64:
		return x
	case float64:
		return floatCount(x)
	case json.Number:
		return ExtractNumber(string(x))
	case string:
		return parseCount(x)
	case map[string]any:
		if inner, ok := x["_value"]; ok {
			return ExtractNumber(inner)
		}
	}
	return 0
}

func parseCount(s string) int64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}

	lower := strings.ToLower(s)
	for _, suffix := range []string{"万", "w"} {
		if strings.HasSuffix(lower, suffix) {
			f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(lower, suffix)), 64)
			if err != nil {
				return leadingInt(s)
			}
			return floatCount(math.Round(f * 10000))
		}
	}
	return leadingInt(s)
}

// floatCount 截断为整数,超出 int64 范围的值视为无法解析
func floatCount(f float64) int64 {
	if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

// leadingInt 解析前导整数,如 "12abc" → 12, "10+" → 10
func leadingInt(s string) int64 {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
