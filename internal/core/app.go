package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RecoveryAshes/XhsCrawler/internal/accounts"
	"github.com/RecoveryAshes/XhsCrawler/internal/browser"
	"github.com/RecoveryAshes/XhsCrawler/internal/crawlers"
	"github.com/RecoveryAshes/XhsCrawler/internal/models"
	"github.com/RecoveryAshes/XhsCrawler/internal/utils"
)

// resourceSampleInterval 资源检查开启时的采样间隔
const resourceSampleInterval = 2 * time.Second

// App 组合根: 持有存储、浏览器池、健康检查与编排器
type App struct {
	Config       *Config
	Store        accounts.Repository
	Rotator      *accounts.Rotator
	Pool         *crawlers.WorkerPool
	Monitor      *crawlers.HealthMonitor
	Resources    *crawlers.ResourceMonitor
	Orchestrator *Orchestrator
	Headers      *HeaderManager
}

// NewApp 按配置装配各组件, driver 为 nil 时按配置创建
func NewApp(ctx context.Context, cfg *Config, cliHeaders []string, driver browser.Driver) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hm, err := NewHeaderManager(cfg.Headers, cliHeaders)
	if err != nil {
		return nil, err
	}
	headers, err := hm.GetHeaders()
	if err != nil {
		return nil, err
	}

	if driver == nil {
		driver, err = browser.NewDriver(cfg.Browser.Driver, cfg.LaunchOptions())
		if err != nil {
			return nil, err
		}
	}

	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := SeedAccounts(ctx, store, cfg.Accounts); err != nil {
		_ = store.Close()
		return nil, err
	}

	pc := cfg.PoolConfig(headers)
	resources := crawlers.NewResourceMonitor(cfg.ResourceMonitorConfig())
	if cfg.Resource.Enabled {
		capPoolSize(&pc, resources)
	}
	pool := crawlers.NewWorkerPool(driver, pc)
	if cfg.Resource.Enabled {
		pool.SetResourceGuard(resources)
	}

	rotator := accounts.NewRotator(store)
	app := &App{
		Config:    cfg,
		Store:     store,
		Rotator:   rotator,
		Pool:      pool,
		Monitor:   crawlers.NewHealthMonitor(pool, cfg.Health.Interval),
		Resources: resources,
		Headers:   hm,
	}
	app.Orchestrator = NewOrchestrator(rotator, pool,
		NewLinkResolver(cfg.Browser.UserAgent, cfg.Resolver.Timeout),
		OrchestratorOptions{
			AcquireTimeout:   cfg.Pool.AcquireTimeout,
			BatchConcurrency: cfg.Batch.MaxConcurrency,
		})
	return app, nil
}

// workerEstimator 按主机资源估算可容纳的实例数
type workerEstimator interface {
	CalculateMaxWorkers(limit int) int
}

// capPoolSize 按可用内存收紧池上限,不低于 MinSize
func capPoolSize(pc *crawlers.PoolConfig, est workerEstimator) {
	capped := max(est.CalculateMaxWorkers(pc.MaxSize), pc.MinSize)
	if capped >= pc.MaxSize {
		return
	}
	utils.Warnf("可用内存不足以支撑 %d 个浏览器实例,池上限调整为 %d", pc.MaxSize, capped)
	pc.MaxSize = capped
}

// Start 预启动浏览器并开启后台任务
// withHealth 为 false 时不启动定时健康检查 (单次命令)
func (a *App) Start(ctx context.Context, withHealth bool) error {
	if a.Config.Resource.Enabled {
		a.Resources.StartMonitoring(resourceSampleInterval)
	}
	if err := a.Pool.Initialize(ctx, a.Config.Pool.MinSize); err != nil {
		return err
	}
	if withHealth {
		a.Monitor.Start(ctx)
	}
	return nil
}

// Close 按依赖逆序释放资源
func (a *App) Close() error {
	a.Monitor.Stop()
	a.Resources.StopMonitoring()
	return errors.Join(a.Pool.Close(), a.Store.Close())
}

// OpenStore 按配置打开账号存储
func OpenStore(ctx context.Context, cfg StoreConfig) (accounts.Repository, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return accounts.NewMemoryStore(), nil
	case "sqlite", "mysql":
		return accounts.OpenGormStore(strings.ToLower(cfg.Driver), cfg.DSN)
	case "redis":
		return accounts.DialRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.KeyPrefix)
	}
	return nil, fmt.Errorf("未知账号存储: %s", cfg.Driver)
}

// SeedAccounts 导入配置中的账号,同名账号已存在时跳过
func SeedAccounts(ctx context.Context, repo accounts.Repository, seeds []SeedAccount) error {
	if len(seeds) == 0 {
		return nil
	}
	existing, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("读取账号列表失败: %w", err)
	}
	names := make(map[string]bool, len(existing))
	for _, a := range existing {
		names[a.Name] = true
	}

	added := 0
	for i, seed := range seeds {
		if names[strings.TrimSpace(seed.Name)] {
			continue
		}
		account, err := models.NewAccount(seed.Name, seed.Cookie)
		if err != nil {
			return fmt.Errorf("配置中第%d个账号无效: %w", i+1, err)
		}
		if seed.Status != "" {
			if account.Status, err = models.ParseAccountStatus(seed.Status); err != nil {
				return fmt.Errorf("配置中第%d个账号无效: %w", i+1, err)
			}
		}
		if err := repo.Create(ctx, account); err != nil {
			return fmt.Errorf("导入账号失败 [%s]: %w", account.Name, err)
		}
		names[account.Name] = true
		added++
	}
	if added > 0 {
		utils.Infof("从配置导入了 %d 个账号", added)
	}
	return nil
}
