// Package browsertest 提供内存中的假浏览器驱动,供上层组件测试使用
package browsertest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/XhsCrawler/internal/browser"
)

// ErrLaunch 默认的启动失败错误
var ErrLaunch = errors.New("fake: 启动失败")

// Behavior 页面行为,字段为 nil 时使用默认行为
type Behavior struct {
	GotoDelay     time.Duration
	GotoErr       func(url string) error
	Content       func(url, selector string) (string, error)
	Evaluate      func(url, script string) ([]byte, error)
	CredentialErr func(cookie string) error
}

// Driver 假驱动
type Driver struct {
	mu           sync.Mutex
	behavior     Behavior
	launchErr    error
	failNext     int
	launchDelay  time.Duration
	launches     int
	sessions     []*Session
	pageOptions  []browser.PageOptions
	totalCookies []string
}

// NewDriver 创建假驱动
func NewDriver(b Behavior) *Driver {
	return &Driver{behavior: b}
}

// SetLaunchError 设置后续所有启动的错误, nil 表示恢复正常
func (d *Driver) SetLaunchError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.launchErr = err
}

// FailNextLaunches 接下来 n 次启动失败
func (d *Driver) FailNextLaunches(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
}

// SetLaunchDelay 设置启动耗时
func (d *Driver) SetLaunchDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.launchDelay = delay
}

// SetBehavior 替换页面行为,仅影响之后的调用
func (d *Driver) SetBehavior(b Behavior) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.behavior = b
}

// Launches 启动尝试次数(含失败)
func (d *Driver) Launches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches
}

// Sessions 已成功启动的会话
func (d *Driver) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Session, len(d.sessions))
	copy(out, d.sessions)
	return out
}

// PageOptions 每次 NewPage 收到的设置
func (d *Driver) PageOptions() []browser.PageOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]browser.PageOptions, len(d.pageOptions))
	copy(out, d.pageOptions)
	return out
}

// Credentials 所有页面收到的凭证,按调用顺序
func (d *Driver) Credentials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.totalCookies))
	copy(out, d.totalCookies)
	return out
}

func (d *Driver) Launch(ctx context.Context) (browser.Session, error) {
	d.mu.Lock()
	d.launches++
	delay := d.launchDelay
	var err error
	switch {
	case d.launchErr != nil:
		err = d.launchErr
	case d.failNext > 0:
		d.failNext--
		err = ErrLaunch
	}
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	s := &Session{driver: d}
	s.connected.Store(true)
	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	d.mu.Unlock()
	return s, nil
}

func (d *Driver) currentBehavior() Behavior {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.behavior
}

// Session 假会话
type Session struct {
	driver    *Driver
	connected atomic.Bool
	closes    atomic.Int32
}

// Disconnect 模拟浏览器崩溃或断连
func (s *Session) Disconnect() {
	s.connected.Store(false)
}

// Closes Close 被调用的次数
func (s *Session) Closes() int {
	return int(s.closes.Load())
}

func (s *Session) NewPage(ctx context.Context, opts browser.PageOptions) (browser.Page, error) {
	if !s.connected.Load() {
		return nil, errors.New("fake: connection closed")
	}
	s.driver.mu.Lock()
	s.driver.pageOptions = append(s.driver.pageOptions, opts)
	s.driver.mu.Unlock()
	return &Page{session: s}, nil
}

func (s *Session) IsConnected() bool {
	return s.connected.Load()
}

func (s *Session) Close() error {
	s.closes.Add(1)
	wasConnected := s.connected.Swap(false)
	if !wasConnected {
		return errors.New("fake: connection closed")
	}
	return nil
}

// Page 假页面
type Page struct {
	session *Session
	mu      sync.Mutex
	url     string
}

func (p *Page) SetCredential(ctx context.Context, cookie string) error {
	b := p.session.driver.currentBehavior()
	if b.CredentialErr != nil {
		if err := b.CredentialErr(cookie); err != nil {
			return err
		}
	}
	p.session.driver.mu.Lock()
	p.session.driver.totalCookies = append(p.session.driver.totalCookies, cookie)
	p.session.driver.mu.Unlock()
	return nil
}

func (p *Page) Goto(ctx context.Context, url string) error {
	b := p.session.driver.currentBehavior()
	if b.GotoDelay > 0 {
		select {
		case <-time.After(b.GotoDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if b.GotoErr != nil {
		if err := b.GotoErr(url); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

// URL 当前页面地址
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Content(ctx context.Context, selector string) (string, error) {
	b := p.session.driver.currentBehavior()
	if b.Content == nil {
		return "<html><head></head><body></body></html>", nil
	}
	return b.Content(p.URL(), selector)
}

func (p *Page) Evaluate(ctx context.Context, script string) ([]byte, error) {
	b := p.session.driver.currentBehavior()
	if b.Evaluate == nil {
		return []byte("null"), nil
	}
	return b.Evaluate(p.URL(), script)
}

func (p *Page) Close() error {
	return nil
}
