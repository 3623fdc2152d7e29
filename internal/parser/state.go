package parser

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

const stateMarker = "__INITIAL_STATE__"

// 页面状态中常见的 undefined 字面量不是合法JSON
var undefinedValue = regexp.MustCompile(`:\s*undefined\b`)

// FindInitialState 在原始HTML中定位并解码 window.__INITIAL_STATE__
func FindInitialState(raw string) (map[string]any, bool) {
	for _, script := range scriptBodies(raw) {
		if state, ok := decodeAssignment(script); ok {
			return state, true
		}
	}
	// 非完整HTML片段
	return decodeAssignment(raw)
}

// scriptBodies 返回所有包含状态标记的 <script> 内容
func scriptBodies(raw string) []string {
	var bodies []string
	z := html.NewTokenizer(strings.NewReader(raw))
	inScript := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF 或畸形输入都在此结束
			return bodies
		case html.StartTagToken:
			name, _ := z.TagName()
			inScript = string(name) == "script"
		case html.EndTagToken:
			inScript = false
		case html.TextToken:
			if inScript {
				text := string(z.Text())
				if strings.Contains(text, stateMarker) {
					bodies = append(bodies, text)
				}
			}
		}
	}
}

// decodeAssignment 依次尝试每处标记,只接受 "= {" 形式的赋值
// 比较 (===) 之类的出现会被跳过
func decodeAssignment(text string) (map[string]any, bool) {
	for {
		idx := strings.Index(text, stateMarker)
		if idx < 0 {
			return nil, false
		}
		text = text[idx+len(stateMarker):]

		rest := strings.TrimLeft(text, " \t\r\n")
		if !strings.HasPrefix(rest, "=") || strings.HasPrefix(rest, "==") {
			continue
		}
		rest = strings.TrimLeft(rest[1:], " \t\r\n")
		if !strings.HasPrefix(rest, "{") {
			continue
		}

		body := undefinedValue.ReplaceAllString(rest, ":null")
		dec := json.NewDecoder(strings.NewReader(body))
		dec.UseNumber()
		var state map[string]any
		if err := dec.Decode(&state); err == nil {
			return state, true
		}
	}
}

// unwrap 解开 Vue 响应式对象的 _value 包装
func unwrap(v any) any {
	for i := 0; i < 4; i++ {
		m, ok := v.(map[string]any)
		if !ok {
			return v
		}
		inner, ok := m["_value"]
		if !ok {
			return v
		}
		v = inner
	}
	return v
}

func asMap(v any) map[string]any {
	m, _ := unwrap(v).(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := unwrap(v).([]any)
	return s
}

func asString(v any) string {
	switch x := unwrap(v).(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	}
	return ""
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
