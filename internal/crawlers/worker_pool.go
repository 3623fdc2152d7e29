package crawlers

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/XhsCrawler/internal/browser"
	"github.com/RecoveryAshes/XhsCrawler/internal/metrics"
	"github.com/RecoveryAshes/XhsCrawler/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMinSize        = 2
	DefaultMaxSize        = 5
	DefaultAcquireTimeout = 30 * time.Second
	DefaultIdleTimeout    = 30 * time.Minute
	// DefaultStallThreshold 持有超过该时长视为调用方遗弃
	DefaultStallThreshold = 5 * time.Minute
)

// ResourceGuard 弹性扩容前的资源检查
type ResourceGuard interface {
	CheckResourceAvailability() (bool, string)
}

// PoolConfig 浏览器池配置
type PoolConfig struct {
	MinSize        int
	MaxSize        int
	AcquireTimeout time.Duration
	// IdleTimeout 仅记录与展示,不驱动任何回收
	IdleTimeout    time.Duration
	StallThreshold time.Duration
	Worker         WorkerOptions
}

// DefaultPoolConfig 默认配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinSize:        DefaultMinSize,
		MaxSize:        DefaultMaxSize,
		AcquireTimeout: DefaultAcquireTimeout,
		IdleTimeout:    DefaultIdleTimeout,
		StallThreshold: DefaultStallThreshold,
		Worker:         DefaultWorkerOptions(),
	}
}

// PoolStatus 池状态快照
type PoolStatus struct {
	Capacity    int           `json:"capacity"`
	IdleCount   int           `json:"idleCount"`
	BusyCount   int           `json:"busyCount"`
	Waiting     int           `json:"waiting"`
	MinSize     int           `json:"minSize"`
	MaxSize     int           `json:"maxSize"`
	IdleTimeout time.Duration `json:"idleTimeout"`
}

// waiter 排队中的获取请求
type waiter struct {
	ch   chan *Worker // 容量为1,池锁内写入
	elem *list.Element
}

// WorkerPool 浏览器实例池
// 职责: 管理实例生命周期,在 [MinSize, MaxSize] 内弹性扩容,按FIFO分配
type WorkerPool struct {
	driver browser.Driver
	cfg    PoolConfig
	guard  ResourceGuard

	// 保护 workers / launching / waiters / closed
	mu        sync.Mutex
	workers   []*Worker
	launching int
	waiters   *list.List
	closed    bool

	seq atomic.Uint64
	// bg 追踪后台重建任务
	bg sync.WaitGroup
}

// NewWorkerPool 创建浏览器池
func NewWorkerPool(driver browser.Driver, cfg PoolConfig) *WorkerPool {
	if cfg.MaxSize < 1 {
		cfg.MaxSize = 1
	}
	if cfg.MinSize < 0 {
		cfg.MinSize = 0
	}
	if cfg.MinSize > cfg.MaxSize {
		cfg.MinSize = cfg.MaxSize
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = DefaultStallThreshold
	}
	return &WorkerPool{
		driver:  driver,
		cfg:     cfg,
		waiters: list.New(),
	}
}

// SetResourceGuard 设置扩容资源检查,nil 表示不检查
func (p *WorkerPool) SetResourceGuard(g ResourceGuard) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.guard = g
}

// Config 返回生效的配置
func (p *WorkerPool) Config() PoolConfig {
	return p.cfg
}

func (p *WorkerPool) newWorker() *Worker {
	id := fmt.Sprintf("worker-%d", p.seq.Add(1))
	return NewWorker(id, p.driver, p.cfg.Worker)
}

// Initialize 预启动 n 个实例
// 单个实例启动失败只记录日志,不影响初始化
func (p *WorkerPool) Initialize(ctx context.Context, n int) error {
	if n > p.cfg.MaxSize {
		n = p.cfg.MaxSize
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return models.ErrPoolClosed
	}
	free := p.cfg.MaxSize - len(p.workers) - p.launching
	if n > free {
		n = free
	}
	p.launching += n
	p.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(4)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			w := p.newWorker()
			err := w.Launch(ctx)

			p.mu.Lock()
			defer p.mu.Unlock()
			p.launching--
			if err != nil {
				log.Warn().Err(err).Str("worker_id", w.ID()).Msg("预启动浏览器实例失败,跳过")
				return nil
			}
			if p.closed {
				go w.Close()
				return nil
			}
			p.workers = append(p.workers, w)
			p.dispatchLocked(w)
			return nil
		})
	}
	_ = g.Wait()

	status := p.Status()
	log.Info().Int("capacity", status.Capacity).Int("requested", n).Msg("浏览器池初始化完成")
	return nil
}

// Acquire 获取一个已应用凭证的实例
// 顺序: 空闲实例 → 弹性扩容 → FIFO排队等待
func (p *WorkerPool) Acquire(ctx context.Context, credential string, timeout time.Duration) (*Worker, error) {
	if timeout <= 0 {
		timeout = p.cfg.AcquireTimeout
	}
	deadline := time.Now().Add(timeout)
	allowGrow := true

	for {
		canGrow := allowGrow && p.resourcesAvailable()

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, models.ErrPoolClosed
		}

		// 1. 空闲且健康的实例
		if w := p.findIdleLocked(); w != nil {
			w.markBusy()
			p.observeLocked()
			p.mu.Unlock()
			metrics.PoolAcquisitions.WithLabelValues("idle").Inc()
			return p.prepare(ctx, w, credential)
		}

		// 2. 弹性扩容
		if canGrow && len(p.workers)+p.launching < p.cfg.MaxSize {
			p.launching++
			p.mu.Unlock()

			w, err := p.grow(ctx)
			if err != nil {
				// 启动失败转为排队
				allowGrow = false
				continue
			}
			metrics.PoolAcquisitions.WithLabelValues("grown").Inc()
			return p.prepare(ctx, w, credential)
		}

		// 3. 排队
		wt := &waiter{ch: make(chan *Worker, 1)}
		wt.elem = p.waiters.PushBack(wt)
		p.observeLocked()
		p.mu.Unlock()

		log.Debug().Dur("timeout", timeout).Msg("浏览器池已满,排队等待")
		w, err := p.wait(ctx, wt, deadline, timeout)
		if err != nil {
			return nil, err
		}
		metrics.PoolAcquisitions.WithLabelValues("queued").Inc()
		return p.prepare(ctx, w, credential)
	}
}

func (p *WorkerPool) resourcesAvailable() bool {
	p.mu.Lock()
	g := p.guard
	p.mu.Unlock()
	if g == nil {
		return true
	}
	ok, reason := g.CheckResourceAvailability()
	if !ok {
		log.Warn().Msgf("资源不足,暂停扩容: %s", reason)
	}
	return ok
}

// grow 启动新实例,调用前已占用 launching 名额
func (p *WorkerPool) grow(ctx context.Context) (*Worker, error) {
	w := p.newWorker()
	err := w.Launch(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.launching--
	if err != nil {
		log.Warn().Err(err).Msg("扩容浏览器实例失败,转为排队")
		return nil, err
	}
	if p.closed {
		go w.Close()
		return nil, models.ErrPoolClosed
	}
	p.workers = append(p.workers, w)
	w.markBusy()
	p.observeLocked()
	log.Info().Str("worker_id", w.ID()).Int("capacity", len(p.workers)).Msg("浏览器池扩容")
	return w, nil
}

func (p *WorkerPool) wait(ctx context.Context, wt *waiter, deadline time.Time, timeout time.Duration) (*Worker, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case w := <-wt.ch:
		if w == nil {
			return nil, models.ErrPoolClosed
		}
		return w, nil
	case <-timer.C:
		metrics.PoolAcquisitions.WithLabelValues("timeout").Inc()
		return p.abandon(wt, fmt.Errorf("%w (%v)", models.ErrAcquisitionTimeout, timeout))
	case <-ctx.Done():
		return p.abandon(wt, ctx.Err())
	}
}

// abandon 撤销排队;若已被分配则接收该实例
func (p *WorkerPool) abandon(wt *waiter, cause error) (*Worker, error) {
	p.mu.Lock()
	if wt.elem != nil {
		p.waiters.Remove(wt.elem)
		wt.elem = nil
		p.observeLocked()
		p.mu.Unlock()
		return nil, cause
	}
	p.mu.Unlock()

	w := <-wt.ch
	if w == nil {
		return nil, models.ErrPoolClosed
	}
	return w, nil
}

// prepare 应用凭证;失败时归还实例,实例保持可用
func (p *WorkerPool) prepare(ctx context.Context, w *Worker, credential string) (*Worker, error) {
	if err := w.Configure(ctx, credential, 0); err != nil {
		p.Release(w.ID())
		return nil, err
	}
	return w, nil
}

// Release 归还实例;有等待者时直接交给队首
// 未知ID为空操作
func (p *WorkerPool) Release(workerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w := p.lookupLocked(workerID)
	if w == nil {
		log.Debug().Str("worker_id", workerID).Msg("归还未知实例,忽略")
		return
	}
	p.releaseLocked(w)
}

// ReleaseLease 仅当实例仍由该凭据持有时归还
// 被健康检查强制回收后,原持有者的归还不会影响新持有者
func (p *WorkerPool) ReleaseLease(workerID string, lease uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	w := p.lookupLocked(workerID)
	if w == nil || !w.isHeld() || w.Lease() != lease {
		log.Debug().Str("worker_id", workerID).Uint64("lease", lease).Msg("持有凭据已失效,忽略归还")
		return false
	}
	p.releaseLocked(w)
	return true
}

func (p *WorkerPool) releaseLocked(w *Worker) {
	w.markIdle()
	if w.IsHealthy() {
		p.dispatchLocked(w)
	} else if !w.recovering {
		// 连接已断开,后台重建后再分配
		w.recovering = true
		p.bg.Add(1)
		go func() {
			defer p.bg.Done()
			p.recoverWorker(context.Background(), w)
		}()
	}
	p.observeLocked()
}

// dispatchLocked 把空闲实例交给队首等待者
func (p *WorkerPool) dispatchLocked(w *Worker) {
	if p.waiters.Len() == 0 || w.isHeld() || w.recovering || !w.IsHealthy() {
		return
	}
	front := p.waiters.Front()
	wt := p.waiters.Remove(front).(*waiter)
	wt.elem = nil
	w.markBusy()
	wt.ch <- w
	p.observeLocked()
	log.Debug().Str("worker_id", w.ID()).Msg("实例交给排队请求")
}

func (p *WorkerPool) findIdleLocked() *Worker {
	for _, w := range p.workers {
		if w.recovering || w.isHeld() {
			continue
		}
		if w.IsHealthy() {
			return w
		}
	}
	return nil
}

func (p *WorkerPool) lookupLocked(id string) *Worker {
	for _, w := range p.workers {
		if w.ID() == id {
			return w
		}
	}
	return nil
}

func (p *WorkerPool) removeLocked(w *Worker) bool {
	for i, x := range p.workers {
		if x == w {
			p.workers = append(p.workers[:i], p.workers[i+1:]...)
			return true
		}
	}
	return false
}

func (p *WorkerPool) statusLocked() PoolStatus {
	s := PoolStatus{
		Capacity:    len(p.workers),
		Waiting:     p.waiters.Len(),
		MinSize:     p.cfg.MinSize,
		MaxSize:     p.cfg.MaxSize,
		IdleTimeout: p.cfg.IdleTimeout,
	}
	for _, w := range p.workers {
		switch w.State() {
		case StateIdle:
			s.IdleCount++
		case StateBusy:
			s.BusyCount++
		}
	}
	return s
}

func (p *WorkerPool) observeLocked() {
	s := p.statusLocked()
	metrics.ObservePool(s.Capacity, s.IdleCount, s.BusyCount, s.Waiting)
}

// Status 返回池状态快照
func (p *WorkerPool) Status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

// HealthSweep 健康检查
// 断连实例原地重建,重建失败则移除并在低于 MinSize 时补充;
// 持有超过 StallThreshold 的实例强制归还
func (p *WorkerPool) HealthSweep(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	snapshot := make([]*Worker, len(p.workers))
	copy(snapshot, p.workers)
	p.mu.Unlock()

	now := time.Now()
	for _, w := range snapshot {
		if !w.IsHealthy() {
			p.mu.Lock()
			if w.recovering || p.lookupLocked(w.ID()) == nil {
				p.mu.Unlock()
				continue
			}
			w.recovering = true
			p.mu.Unlock()

			rctx, cancel := p.recoveryContext(ctx)
			p.recoverWorker(rctx, w)
			cancel()
			continue
		}

		p.mu.Lock()
		if w.isHeld() && now.Sub(w.LastActiveAt()) > p.cfg.StallThreshold && p.lookupLocked(w.ID()) != nil {
			log.Warn().Str("worker_id", w.ID()).
				Dur("held_for", now.Sub(w.LastActiveAt())).
				Msg("实例持有超时,强制归还")
			metrics.HealthActions.WithLabelValues("force_release").Inc()
			p.releaseLocked(w)
		}
		p.mu.Unlock()
	}
}

// recoveryContext 每次重建独立计时,覆盖一次重建加一次补充
// 只继承父 ctx 的取消,不继承其截止时间
func (p *WorkerPool) recoveryContext(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := p.cfg.Worker.LaunchTimeout
	if timeout <= 0 {
		timeout = DefaultLaunchTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), 2*timeout)
	stop := context.AfterFunc(parent, func() {
		if errors.Is(parent.Err(), context.Canceled) {
			cancel()
		}
	})
	return ctx, func() {
		stop()
		cancel()
	}
}

// recoverWorker 关闭并原地重建实例,调用前已置 recovering
func (p *WorkerPool) recoverWorker(ctx context.Context, w *Worker) {
	log.Warn().Str("worker_id", w.ID()).Msg("实例不健康,尝试重建")
	_ = w.Close()
	err := w.Launch(ctx)

	p.mu.Lock()
	w.recovering = false

	if err == nil {
		if p.closed {
			p.mu.Unlock()
			_ = w.Close()
			return
		}
		metrics.HealthActions.WithLabelValues("relaunch").Inc()
		p.dispatchLocked(w)
		p.observeLocked()
		p.mu.Unlock()
		log.Info().Str("worker_id", w.ID()).Msg("实例重建成功")
		return
	}

	p.removeLocked(w)
	metrics.HealthActions.WithLabelValues("evict").Inc()
	needReplacement := !p.closed && len(p.workers)+p.launching < p.cfg.MinSize
	if needReplacement {
		p.launching++
	}
	p.observeLocked()
	p.mu.Unlock()

	_ = w.Close()
	log.Error().Err(err).Str("worker_id", w.ID()).Msg("实例重建失败,已移出浏览器池")

	if needReplacement {
		p.replace(ctx)
	}
}

// replace 补充实例,调用前已占用 launching 名额
func (p *WorkerPool) replace(ctx context.Context) {
	w := p.newWorker()
	err := w.Launch(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.launching--
	if err != nil {
		log.Error().Err(err).Msg("补充浏览器实例失败")
		return
	}
	if p.closed {
		go w.Close()
		return
	}
	p.workers = append(p.workers, w)
	metrics.HealthActions.WithLabelValues("replace").Inc()
	p.dispatchLocked(w)
	p.observeLocked()
	log.Info().Str("worker_id", w.ID()).Msg("已补充浏览器实例")
}

// Close 关闭浏览器池,排队中的请求返回 ErrPoolClosed
func (p *WorkerPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	workers := p.workers
	p.workers = nil
	for e := p.waiters.Front(); e != nil; e = p.waiters.Front() {
		wt := p.waiters.Remove(e).(*waiter)
		wt.elem = nil
		wt.ch <- nil
	}
	p.observeLocked()
	p.mu.Unlock()

	p.bg.Wait()

	var g errgroup.Group
	g.SetLimit(4)
	for _, w := range workers {
		g.Go(w.Close)
	}
	err := g.Wait()
	log.Info().Int("closed", len(workers)).Msg("浏览器池已关闭")
	return err
}
