package crawlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/XhsCrawler/internal/browser"
	"github.com/RecoveryAshes/XhsCrawler/internal/models"
	"github.com/rs/zerolog/log"
)

// WorkerState 浏览器实例状态
type WorkerState string

const (
	StateUninitialized WorkerState = "UNINITIALIZED" // 未启动或已关闭
	StateIdle          WorkerState = "IDLE"          // 空闲可分配
	StateBusy          WorkerState = "BUSY"          // 已被持有
	StateError         WorkerState = "ERROR"         // 启动失败,需重建
)

// lifecycle 浏览器进程生命周期,与持有状态正交
type lifecycle int

const (
	lifeUninitialized lifecycle = iota
	lifeReady
	lifeFailed
)

// 默认操作超时
const (
	DefaultLaunchTimeout    = 60 * time.Second
	DefaultConfigureTimeout = 10 * time.Second
	DefaultNavigateTimeout  = 30 * time.Second
	DefaultContentTimeout   = 10 * time.Second
	DefaultEvaluateTimeout  = 10 * time.Second
)

// WorkerOptions 浏览器实例参数
type WorkerOptions struct {
	Page             browser.PageOptions
	LaunchTimeout    time.Duration
	ConfigureTimeout time.Duration
	NavigateTimeout  time.Duration
	ContentTimeout   time.Duration
	EvaluateTimeout  time.Duration
}

// DefaultWorkerOptions 默认参数
func DefaultWorkerOptions() WorkerOptions {
	return WorkerOptions{
		Page:             browser.DefaultPageOptions(),
		LaunchTimeout:    DefaultLaunchTimeout,
		ConfigureTimeout: DefaultConfigureTimeout,
		NavigateTimeout:  DefaultNavigateTimeout,
		ContentTimeout:   DefaultContentTimeout,
		EvaluateTimeout:  DefaultEvaluateTimeout,
	}
}

// Worker 一个浏览器会话及其状态机
//
// 持有状态(IDLE/BUSY)只由 WorkerPool 在池锁内修改;
// 导航、取内容、执行脚本失败不会改变状态,只有启动失败会进入 ERROR。
type Worker struct {
	id     string
	driver browser.Driver
	opts   WorkerOptions

	// lifeMu 串行化 Launch/Close
	lifeMu sync.Mutex

	mu           sync.Mutex
	life         lifecycle
	held         bool
	lease        uint64
	lastActiveAt time.Time
	session      browser.Session
	page         browser.Page

	// recovering 正在重建,由池锁保护
	recovering bool
}

// NewWorker 创建未启动的实例
func NewWorker(id string, driver browser.Driver, opts WorkerOptions) *Worker {
	return &Worker{
		id:           id,
		driver:       driver,
		opts:         opts,
		lastActiveAt: time.Now(),
	}
}

// ID 实例ID
func (w *Worker) ID() string { return w.id }

// State 当前状态
func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

func (w *Worker) stateLocked() WorkerState {
	switch w.life {
	case lifeReady:
		if w.held {
			return StateBusy
		}
		return StateIdle
	case lifeFailed:
		return StateError
	}
	return StateUninitialized
}

// LastActiveAt 最近一次分配、归还或操作的时间
func (w *Worker) LastActiveAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActiveAt
}

// Lease 当前持有凭据,每次分配递增
func (w *Worker) Lease() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lease
}

// IsHealthy 状态为 IDLE/BUSY 且会话仍连接
func (w *Worker) IsHealthy() bool {
	w.mu.Lock()
	session := w.session
	ready := w.life == lifeReady
	w.mu.Unlock()
	return ready && session != nil && session.IsConnected()
}

func (w *Worker) isHeld() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held
}

func (w *Worker) markBusy() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.held = true
	w.lease++
	w.lastActiveAt = time.Now()
	return w.lease
}

func (w *Worker) markIdle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.held = false
	w.lastActiveAt = time.Now()
}

func (w *Worker) touch() {
	w.mu.Lock()
	w.lastActiveAt = time.Now()
	w.mu.Unlock()
}

// Launch 启动浏览器会话,已启动时直接返回
func (w *Worker) Launch(ctx context.Context) error {
	w.lifeMu.Lock()
	defer w.lifeMu.Unlock()

	w.mu.Lock()
	if w.life == lifeReady && w.session != nil {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	timeout := w.opts.LaunchTimeout
	if timeout <= 0 {
		timeout = DefaultLaunchTimeout
	}
	launchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	session, err := w.driver.Launch(launchCtx)
	if err != nil {
		w.setLife(lifeFailed)
		log.Error().Err(err).Str("worker_id", w.id).Msg("浏览器启动失败")
		return fmt.Errorf("%w [%s]: %w", models.ErrWorkerLaunchFailure, w.id, err)
	}

	page, err := session.NewPage(launchCtx, w.opts.Page)
	if err != nil {
		_ = session.Close()
		w.setLife(lifeFailed)
		log.Error().Err(err).Str("worker_id", w.id).Msg("创建页面失败")
		return fmt.Errorf("%w [%s]: %w", models.ErrWorkerLaunchFailure, w.id, err)
	}

	w.mu.Lock()
	w.session = session
	w.page = page
	w.life = lifeReady
	w.lastActiveAt = time.Now()
	w.mu.Unlock()

	log.Info().Str("worker_id", w.id).Dur("elapsed", time.Since(start)).Msg("浏览器实例已启动")
	return nil
}

func (w *Worker) setLife(l lifecycle) {
	w.mu.Lock()
	w.life = l
	w.mu.Unlock()
}

// Close 尽力关闭页面与会话
// "连接已关闭" 视为成功;无论结果如何最终都回到 UNINITIALIZED
func (w *Worker) Close() error {
	w.lifeMu.Lock()
	defer w.lifeMu.Unlock()

	w.mu.Lock()
	session, page := w.session, w.page
	w.session, w.page = nil, nil
	w.life = lifeUninitialized
	w.mu.Unlock()

	var errs []error
	if page != nil {
		if err := page.Close(); err != nil && !browser.IsConnectionClosed(err) {
			errs = append(errs, fmt.Errorf("关闭页面失败: %w", err))
		}
	}
	if session != nil {
		if err := session.Close(); err != nil && !browser.IsConnectionClosed(err) {
			errs = append(errs, fmt.Errorf("关闭浏览器失败: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Str("worker_id", w.id).Msg("关闭浏览器实例时出错")
		return err
	}
	log.Debug().Str("worker_id", w.id).Msg("浏览器实例已关闭")
	return nil
}

// Configure 应用账号凭证
func (w *Worker) Configure(ctx context.Context, credential string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = w.opts.ConfigureTimeout
	}
	return w.do(ctx, "configure", timeout, func(ctx context.Context, p browser.Page) error {
		return p.SetCredential(ctx, credential)
	})
}

// Navigate 打开页面并等待 DOMContentLoaded
func (w *Worker) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = w.opts.NavigateTimeout
	}
	return w.do(ctx, "navigate", timeout, func(ctx context.Context, p browser.Page) error {
		return p.Goto(ctx, url)
	})
}

// ExtractRaw 获取整页或指定元素的HTML
func (w *Worker) ExtractRaw(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = w.opts.ContentTimeout
	}
	var html string
	err := w.do(ctx, "content", timeout, func(ctx context.Context, p browser.Page) error {
		var err error
		html, err = p.Content(ctx, selector)
		return err
	})
	return html, err
}

// Evaluate 在页面内执行脚本并把结果解码到 out
func (w *Worker) Evaluate(ctx context.Context, script string, timeout time.Duration, out any) error {
	if timeout <= 0 {
		timeout = w.opts.EvaluateTimeout
	}
	return w.do(ctx, "evaluate", timeout, func(ctx context.Context, p browser.Page) error {
		raw, err := p.Evaluate(ctx, script)
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("解析脚本结果失败: %w", err)
		}
		return nil
	})
}

// do 执行一次页面操作,与自身超时赛跑
// 超时只是停止等待,底层操作由 ctx 取消通知
func (w *Worker) do(ctx context.Context, op string, timeout time.Duration, fn func(context.Context, browser.Page) error) error {
	w.mu.Lock()
	page := w.page
	w.mu.Unlock()
	if page == nil {
		return &models.SessionError{Op: op, WorkerID: w.id, Err: errors.New("浏览器未初始化")}
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(opCtx, page)
	}()

	var err error
	select {
	case err = <-done:
	case <-opCtx.Done():
		err = fmt.Errorf("操作超时(%v): %w", timeout, opCtx.Err())
	}
	w.touch()

	if err != nil {
		log.Warn().Err(err).Str("worker_id", w.id).Str("op", op).Msg("浏览器操作失败")
		return &models.SessionError{Op: op, WorkerID: w.id, Err: err}
	}
	return nil
}
