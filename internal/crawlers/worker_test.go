package crawlers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/XhsCrawler/internal/browser/browsertest"
	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

func testWorkerOptions() WorkerOptions {
	opts := DefaultWorkerOptions()
	opts.LaunchTimeout = time.Second
	opts.ConfigureTimeout = 200 * time.Millisecond
	opts.NavigateTimeout = 200 * time.Millisecond
	opts.ContentTimeout = 200 * time.Millisecond
	opts.EvaluateTimeout = 200 * time.Millisecond
	return opts
}

func TestWorkerLaunch(t *testing.T) {
	d := browsertest.NewDriver(browsertest.Behavior{})
	w := NewWorker("worker-1", d, testWorkerOptions())

	if w.State() != StateUninitialized {
		t.Fatalf("初始状态应为 UNINITIALIZED, 实际 %s", w.State())
	}
	if w.IsHealthy() {
		t.Error("未启动的实例不应健康")
	}

	if err := w.Launch(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	if w.State() != StateIdle || !w.IsHealthy() {
		t.Errorf("启动后应为健康的 IDLE, 实际 %s", w.State())
	}

	// 重复启动不应创建新会话
	if err := w.Launch(context.Background()); err != nil {
		t.Fatalf("重复启动失败: %v", err)
	}
	if d.Launches() != 1 {
		t.Errorf("重复启动应为幂等, 启动次数 %d", d.Launches())
	}

	opts := d.PageOptions()
	if len(opts) != 1 || opts[0].Viewport.Width != 1920 || opts[0].Viewport.Height != 1080 {
		t.Errorf("页面设置错误: %+v", opts)
	}
}

func TestWorkerLaunchFailure(t *testing.T) {
	d := browsertest.NewDriver(browsertest.Behavior{})
	d.SetLaunchError(browsertest.ErrLaunch)
	w := NewWorker("worker-1", d, testWorkerOptions())

	err := w.Launch(context.Background())
	if !errors.Is(err, models.ErrWorkerLaunchFailure) {
		t.Fatalf("期望 ErrWorkerLaunchFailure, 实际 %v", err)
	}
	if w.State() != StateError {
		t.Errorf("启动失败后应为 ERROR, 实际 %s", w.State())
	}

	// 显式重新启动后恢复
	d.SetLaunchError(nil)
	if err := w.Launch(context.Background()); err != nil {
		t.Fatalf("重新启动失败: %v", err)
	}
	if w.State() != StateIdle {
		t.Errorf("重新启动后应为 IDLE, 实际 %s", w.State())
	}
}

func TestWorkerOperationFailureKeepsWorkerUsable(t *testing.T) {
	d := browsertest.NewDriver(browsertest.Behavior{
		GotoErr: func(url string) error {
			if strings.Contains(url, "broken") {
				return errors.New("net::ERR_CONNECTION_RESET")
			}
			return nil
		},
		Evaluate: func(url, script string) ([]byte, error) {
			return nil, errors.New("Execution context was destroyed")
		},
	})
	w := NewWorker("worker-1", d, testWorkerOptions())
	if err := w.Launch(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}

	err := w.Navigate(context.Background(), "https://example.com/broken", 0)
	var se *models.SessionError
	if !errors.As(err, &se) || se.Op != "navigate" || se.WorkerID != "worker-1" {
		t.Fatalf("期望 navigate SessionError, 实际 %v", err)
	}
	if !errors.Is(err, models.ErrSessionOperation) {
		t.Error("应匹配 ErrSessionOperation")
	}

	var out map[string]any
	if err := w.Evaluate(context.Background(), "() => 1", 0, &out); !errors.Is(err, models.ErrSessionOperation) {
		t.Errorf("执行脚本失败应返回 SessionError, 实际 %v", err)
	}

	if w.State() != StateIdle || !w.IsHealthy() {
		t.Errorf("操作失败后实例应保持可用, 状态 %s", w.State())
	}
	if err := w.Navigate(context.Background(), "https://example.com/ok", 0); err != nil {
		t.Errorf("后续操作应成功: %v", err)
	}
}

func TestWorkerOperationTimeout(t *testing.T) {
	d := browsertest.NewDriver(browsertest.Behavior{GotoDelay: 500 * time.Millisecond})
	w := NewWorker("worker-1", d, testWorkerOptions())
	if err := w.Launch(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}

	start := time.Now()
	err := w.Navigate(context.Background(), "https://example.com", 30*time.Millisecond)
	if err == nil {
		t.Fatal("期望超时错误")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("应包含 DeadlineExceeded: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("超时未及时返回: %v", elapsed)
	}
	if !w.IsHealthy() {
		t.Error("超时后实例应保持健康")
	}
}

func TestWorkerEvaluateDecodes(t *testing.T) {
	d := browsertest.NewDriver(browsertest.Behavior{
		Evaluate: func(url, script string) ([]byte, error) {
			return []byte(`{"success":true,"title":"标题"}`), nil
		},
	})
	w := NewWorker("worker-1", d, testWorkerOptions())
	if err := w.Launch(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}

	var out struct {
		Success bool   `json:"success"`
		Title   string `json:"title"`
	}
	if err := w.Evaluate(context.Background(), "() => ({})", 0, &out); err != nil {
		t.Fatalf("Evaluate失败: %v", err)
	}
	if !out.Success || out.Title != "标题" {
		t.Errorf("解码结果错误: %+v", out)
	}

	html, err := w.ExtractRaw(context.Background(), "", 0)
	if err != nil || !strings.Contains(html, "<html>") {
		t.Errorf("ExtractRaw 结果错误: %q %v", html, err)
	}
}

func TestWorkerConfigure(t *testing.T) {
	d := browsertest.NewDriver(browsertest.Behavior{})
	w := NewWorker("worker-1", d, testWorkerOptions())

	if err := w.Configure(context.Background(), "a=1; b=2", 0); !errors.Is(err, models.ErrSessionOperation) {
		t.Errorf("未启动时配置应失败, 实际 %v", err)
	}

	if err := w.Launch(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	if err := w.Configure(context.Background(), "a=1; b=2", 0); err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if creds := d.Credentials(); len(creds) != 1 || creds[0] != "a=1; b=2" {
		t.Errorf("凭证未写入: %v", creds)
	}
}

func TestWorkerClose(t *testing.T) {
	d := browsertest.NewDriver(browsertest.Behavior{})
	w := NewWorker("worker-1", d, testWorkerOptions())

	// 未启动时关闭
	if err := w.Close(); err != nil {
		t.Errorf("关闭未启动实例应成功: %v", err)
	}

	if err := w.Launch(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	session := d.Sessions()[0]
	session.Disconnect()

	// 连接已断开时关闭视为成功
	if err := w.Close(); err != nil {
		t.Errorf("连接已关闭应视为成功: %v", err)
	}
	if w.State() != StateUninitialized {
		t.Errorf("关闭后应为 UNINITIALIZED, 实际 %s", w.State())
	}
	if session.Closes() != 1 {
		t.Errorf("会话应被关闭一次, 实际 %d", session.Closes())
	}
	if err := w.Close(); err != nil {
		t.Errorf("重复关闭应成功: %v", err)
	}
}
