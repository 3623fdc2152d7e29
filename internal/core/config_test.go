package core

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/XhsCrawler/internal/browser"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "logging:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Pool.MinSize != 2 || cfg.Pool.MaxSize != 5 {
		t.Errorf("浏览器池默认值错误: %+v", cfg.Pool)
	}
	if cfg.Pool.AcquireTimeout != 30*time.Second || cfg.Pool.IdleTimeout != 30*time.Minute || cfg.Pool.StallThreshold != 5*time.Minute {
		t.Errorf("超时默认值错误: %+v", cfg.Pool)
	}
	if cfg.Health.Interval != time.Minute {
		t.Errorf("健康检查间隔 = %v", cfg.Health.Interval)
	}
	if cfg.Browser.Driver != browser.DriverRod || !cfg.Browser.Headless || cfg.Browser.Viewport.Width != 1920 {
		t.Errorf("浏览器默认值错误: %+v", cfg.Browser)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Server.Addr != ":3000" || cfg.Batch.ReportDir != "output" {
		t.Errorf("默认值错误: store=%+v server=%+v", cfg.Store, cfg.Server)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("日志级别应来自配置文件: %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("默认配置应通过校验: %v", err)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
pool:
  min_size: 1
  max_size: 3
  acquire_timeout: 5s
browser:
  driver: chromedp
  viewport:
    width: 1280
    height: 800
headers:
  X-Custom: hello
accounts:
  - name: 测试账号
    cookie: web_session=0123456789
`)
	t.Setenv("XHS_POOL_MAX_SIZE", "4")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Pool.MinSize != 1 || cfg.Pool.MaxSize != 4 || cfg.Pool.AcquireTimeout != 5*time.Second {
		t.Errorf("浏览器池配置错误: %+v", cfg.Pool)
	}
	if cfg.Browser.Driver != "chromedp" || cfg.Browser.Viewport.Width != 1280 {
		t.Errorf("浏览器配置错误: %+v", cfg.Browser)
	}
	if cfg.Headers["x-custom"] != "hello" {
		t.Errorf("头部配置 = %v", cfg.Headers)
	}
	if len(cfg.Accounts) != 1 || cfg.Accounts[0].Name != "测试账号" {
		t.Errorf("账号配置 = %+v", cfg.Accounts)
	}

	pc := cfg.PoolConfig(http.Header{"X-Custom": {"hello"}})
	if pc.MaxSize != 4 || pc.Worker.Page.Viewport.Height != 800 || pc.Worker.Page.ExtraHeaders.Get("X-Custom") != "hello" {
		t.Errorf("转换后的浏览器池配置错误: %+v", pc)
	}
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfig(writeConfig(t, "{}\n"))
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"最小值为负", func(c *Config) { c.Pool.MinSize = -1 }, "min_size"},
		{"最大值为0", func(c *Config) { c.Pool.MaxSize = 0 }, "max_size"},
		{"最小值大于最大值", func(c *Config) { c.Pool.MinSize = 6 }, "不能大于"},
		{"超时为0", func(c *Config) { c.Pool.AcquireTimeout = 0 }, "acquire_timeout"},
		{"未知驱动", func(c *Config) { c.Browser.Driver = "selenium" }, "浏览器驱动"},
		{"未知存储", func(c *Config) { c.Store.Driver = "mongo" }, "账号存储"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, 期望包含 %q", err, tt.want)
			}
		})
	}
}

func TestMergeCLIFlags(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatal(err)
	}
	headless := false
	cfg.MergeCLIFlags("warn", 0, 8, &headless, "")

	if cfg.Logging.Level != "warn" || cfg.Pool.MaxSize != 8 || cfg.Pool.MinSize != 2 {
		t.Errorf("合并结果错误: logging=%s pool=%+v", cfg.Logging.Level, cfg.Pool)
	}
	if cfg.Browser.Headless || cfg.Browser.Driver != browser.DriverRod {
		t.Errorf("浏览器参数合并错误: %+v", cfg.Browser)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
