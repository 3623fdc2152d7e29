package core

import (
	"context"
	"testing"

	"github.com/RecoveryAshes/XhsCrawler/internal/browser/browsertest"
	"github.com/RecoveryAshes/XhsCrawler/internal/crawlers"
	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

func TestNewAppWiresComponents(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
pool:
  min_size: 1
  max_size: 2
store:
  driver: memory
accounts:
  - name: 种子账号
    cookie: web_session=0123456789
  - name: 封禁账号
    cookie: web_session=9876543210
    status: banned
`))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	d := browsertest.NewDriver(browsertest.Behavior{})
	app, err := NewApp(ctx, cfg, []string{"X-Custom: 1"}, d)
	if err != nil {
		t.Fatalf("装配失败: %v", err)
	}
	if err := app.Start(ctx, true); err != nil {
		t.Fatalf("启动失败: %v", err)
	}

	if s := app.Pool.Status(); s.Capacity != 1 {
		t.Errorf("预启动实例数 = %d, 期望 1", s.Capacity)
	}
	opts := d.PageOptions()
	if len(opts) != 1 || opts[0].ExtraHeaders.Get("X-Custom") != "1" {
		t.Errorf("页面未收到会话头部: %+v", opts)
	}

	list, err := app.Store.List(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("种子账号导入失败: %v %+v", err, list)
	}
	if _, err := app.Orchestrator.CrawlPost(ctx, "abc", "tok"); err != nil {
		t.Errorf("装配后爬取失败: %v", err)
	}

	// 重复导入同名账号被跳过
	if err := SeedAccounts(ctx, app.Store, []SeedAccount{{Name: "种子账号", Cookie: "web_session=0123456789"}}); err != nil {
		t.Fatal(err)
	}
	active, _ := app.Store.ListByStatus(ctx, models.AccountActive)
	if len(active) != 1 || active[0].UsageCount != 1 {
		t.Errorf("可用账号 = %+v", active)
	}

	if err := app.Close(); err != nil {
		t.Errorf("关闭失败: %v", err)
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "pool:\n  min_size: 9\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewApp(context.Background(), cfg, nil, browsertest.NewDriver(browsertest.Behavior{})); err == nil {
		t.Error("非法配置应返回错误")
	}
}

type fixedEstimator int

func (f fixedEstimator) CalculateMaxWorkers(limit int) int {
	return min(int(f), limit)
}

func TestCapPoolSize(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
		fit      int
		want     int
	}{
		{"内存充足不变", 1, 5, 10, 5},
		{"按内存收紧", 1, 5, 3, 3},
		{"不低于最小值", 2, 5, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := crawlers.DefaultPoolConfig()
			pc.MinSize, pc.MaxSize = tt.min, tt.max
			capPoolSize(&pc, fixedEstimator(tt.fit))
			if pc.MaxSize != tt.want {
				t.Errorf("MaxSize = %d, 期望 %d", pc.MaxSize, tt.want)
			}
		})
	}
}

func TestNewAppCapsPoolByMemory(t *testing.T) {
	// 单实例内存设得极大,估算结果只能容纳一个
	cfg, err := LoadConfig(writeConfig(t, `
pool:
  min_size: 1
  max_size: 5
store:
  driver: memory
resource:
  enabled: true
  worker_memory_mb: 1000000000
`))
	if err != nil {
		t.Fatal(err)
	}
	app, err := NewApp(context.Background(), cfg, nil, browsertest.NewDriver(browsertest.Behavior{}))
	if err != nil {
		t.Fatalf("装配失败: %v", err)
	}
	defer app.Close()

	if s := app.Pool.Status(); s.MaxSize != 1 {
		t.Errorf("池上限 = %d, 期望 1", s.MaxSize)
	}
}
