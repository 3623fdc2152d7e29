package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// 需要本机浏览器,找不到时跳过
func TestDriversPageOutlivesCreateContext(t *testing.T) {
	if testing.Short() {
		t.Skip("short 模式跳过真实浏览器测试")
	}
	if ResolveBinPath("") == "" {
		t.Skip("未找到浏览器可执行文件")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>驱动测试</title></head><body><div id="marker">ok</div></body></html>`)
	}))
	defer srv.Close()

	for _, name := range []string{DriverRod, DriverChromedp} {
		t.Run(name, func(t *testing.T) {
			driver, err := NewDriver(name, LaunchOptions{Headless: true})
			if err != nil {
				t.Fatalf("创建驱动失败: %v", err)
			}

			launchCtx, cancelLaunch := context.WithTimeout(context.Background(), 60*time.Second)
			session, err := driver.Launch(launchCtx)
			cancelLaunch()
			if err != nil {
				t.Fatalf("启动浏览器失败: %v", err)
			}
			defer session.Close()

			// 创建页面用的 ctx 结束后页面必须仍可使用
			createCtx, cancelCreate := context.WithTimeout(context.Background(), 30*time.Second)
			opts := DefaultPageOptions()
			opts.CookieDomain = "127.0.0.1"
			page, err := session.NewPage(createCtx, opts)
			cancelCreate()
			if err != nil {
				t.Fatalf("创建页面失败: %v", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := page.SetCredential(ctx, "web_session=abc; a1=x"); err != nil {
				t.Fatalf("设置凭证失败: %v", err)
			}
			if err := page.Goto(ctx, srv.URL); err != nil {
				t.Fatalf("导航失败: %v", err)
			}

			html, err := page.Content(ctx, "")
			if err != nil {
				t.Fatalf("读取页面失败: %v", err)
			}
			if !strings.Contains(html, `id="marker"`) {
				t.Errorf("页面内容缺少标记: %s", html)
			}

			raw, err := page.Evaluate(ctx, `() => document.title`)
			if err != nil {
				t.Fatalf("执行脚本失败: %v", err)
			}
			var title string
			if err := json.Unmarshal(raw, &title); err != nil {
				t.Fatalf("解析脚本结果失败: %v (%s)", err, raw)
			}
			if title != "驱动测试" {
				t.Errorf("标题 = %q, 期望 驱动测试", title)
			}

			if !session.IsConnected() {
				t.Error("会话应保持连接")
			}
			if err := page.Close(); err != nil {
				t.Errorf("关闭页面失败: %v", err)
			}
			if err := session.Close(); err != nil && !IsConnectionClosed(err) {
				t.Errorf("关闭会话失败: %v", err)
			}
			if session.IsConnected() {
				t.Error("关闭后会话不应处于连接状态")
			}
		})
	}
}
