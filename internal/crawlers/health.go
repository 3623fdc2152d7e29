package crawlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultHealthInterval 默认健康检查间隔
const DefaultHealthInterval = 60 * time.Second

// Sweeper 可被健康检查驱动的对象
type Sweeper interface {
	HealthSweep(ctx context.Context)
}

// HealthMonitor 定时触发浏览器池健康检查
type HealthMonitor struct {
	target   Sweeper
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun time.Time
}

// NewHealthMonitor 创建健康检查器
func NewHealthMonitor(target Sweeper, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &HealthMonitor{
		target:   target,
		interval: interval,
	}
}

// Sweep 执行一次检查,内部错误只记录不向外传播
// 重建耗时由浏览器池按实例各自限定
func (m *HealthMonitor) Sweep() {
	m.sweep(context.Background())
}

func (m *HealthMonitor) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Err(fmt.Errorf("%v", r)).Msg("健康检查异常")
		}
	}()

	start := time.Now()
	m.target.HealthSweep(ctx)

	m.mu.Lock()
	m.lastRun = start
	m.mu.Unlock()
	log.Debug().Dur("elapsed", time.Since(start)).Msg("健康检查完成")
}

// LastRun 最近一次检查开始时间
func (m *HealthMonitor) LastRun() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun
}

// Start 启动定时检查,重复调用无效
func (m *HealthMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep(ctx)
			}
		}
	}(m.done)

	log.Info().Dur("interval", m.interval).Msg("健康检查已启动")
}

// Stop 停止定时检查并等待当前检查结束
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info().Msg("健康检查已停止")
}
