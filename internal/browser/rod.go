package browser

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"
)

// RodDriver 基于 go-rod 的驱动,每个会话独占一个浏览器进程
type RodDriver struct {
	opts LaunchOptions
}

// NewRodDriver 创建 rod 驱动
func NewRodDriver(opts LaunchOptions) *RodDriver {
	return &RodDriver{opts: opts}
}

// Launch 启动浏览器进程并建立CDP连接
func (d *RodDriver) Launch(ctx context.Context) (Session, error) {
	l := launcher.New().
		Headless(d.opts.Headless).
		NoSandbox(true).
		// 容器环境下 /dev/shm 过小会导致崩溃
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("ignore-certificate-errors")

	if bin := ResolveBinPath(d.opts.BinPath); bin != "" {
		l = l.Bin(bin)
	}

	type launchResult struct {
		url string
		err error
	}
	done := make(chan launchResult, 1)
	go func() {
		u, err := l.Launch()
		done <- launchResult{url: u, err: err}
	}()

	var controlURL string
	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("启动浏览器失败: %w", r.err)
		}
		controlURL = r.url
	case <-ctx.Done():
		l.Kill()
		return nil, fmt.Errorf("启动浏览器超时: %w", ctx.Err())
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	log.Debug().Str("control_url", controlURL).Int("pid", l.PID()).Msg("浏览器已启动")
	return &rodSession{launcher: l, browser: b, pid: int32(l.PID()), stealth: d.opts.Stealth}, nil
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	pid      int32
	stealth  bool
	closed   atomic.Bool
}

// NewPage 创建页面; ctx 只约束本次创建与初始化调用,页面本身挂在浏览器连接上
func (s *rodSession) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	target, err := proto.TargetCreateTarget{
		URL:              "about:blank",
		BrowserContextID: s.browser.BrowserContextID,
	}.Call(s.browser.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}

	base, err := s.browser.PageFromTarget(target.TargetID)
	if err != nil {
		_, _ = proto.TargetCloseTarget{TargetID: target.TargetID}.Call(s.browser)
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}
	p := base.Context(ctx)

	if s.stealth {
		if _, err := p.EvalOnNewDocument(stealth.JS); err != nil {
			_ = base.Close()
			return nil, fmt.Errorf("注入 stealth 脚本失败: %w", err)
		}
	}

	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Viewport.Width,
			Height:            opts.Viewport.Height,
			DeviceScaleFactor: 1,
		}); err != nil {
			_ = base.Close()
			return nil, fmt.Errorf("设置视口失败: %w", err)
		}
	}

	if opts.UserAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			_ = base.Close()
			return nil, fmt.Errorf("设置UA失败: %w", err)
		}
	}

	if patterns := BlockedURLPatterns(opts.BlockedResources); len(patterns) > 0 {
		if err := (proto.NetworkEnable{}).Call(p); err != nil {
			log.Warn().Err(err).Msg("启用网络域失败")
		}
		if err := (proto.NetworkSetBlockedURLs{Urls: patterns}).Call(p); err != nil {
			log.Warn().Err(err).Msg("设置资源拦截失败")
		}
	}

	if len(opts.ExtraHeaders) > 0 {
		dict := make([]string, 0, len(opts.ExtraHeaders)*2)
		for name := range opts.ExtraHeaders {
			dict = append(dict, name, opts.ExtraHeaders.Get(name))
		}
		if _, err := p.SetExtraHeaders(dict); err != nil {
			log.Warn().Err(err).Msg("设置额外请求头失败")
		}
	}

	return &rodPage{page: base, cookieDomain: opts.CookieDomain}, nil
}

// IsConnected 进程存活且未主动关闭
func (s *rodSession) IsConnected() bool {
	if s.closed.Load() {
		return false
	}
	if s.pid <= 0 {
		return true
	}
	alive, err := process.PidExists(s.pid)
	return err == nil && alive
}

func (s *rodSession) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	return err
}

type rodPage struct {
	page         *rod.Page
	cookieDomain string
}

func (p *rodPage) SetCredential(ctx context.Context, cookie string) error {
	pg := p.page.Context(ctx)
	if err := (proto.NetworkClearBrowserCookies{}).Call(pg); err != nil {
		return fmt.Errorf("清除Cookie失败: %w", err)
	}

	parsed := ParseCookieString(cookie, p.cookieDomain)
	if len(parsed) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(parsed))
	for _, c := range parsed {
		params = append(params, &proto.NetworkCookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	if err := pg.SetCookies(params); err != nil {
		return fmt.Errorf("设置Cookie失败: %w", err)
	}
	return nil
}

func (p *rodPage) Goto(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	wait := pg.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	wait()
	return ctx.Err()
}

func (p *rodPage) Content(ctx context.Context, selector string) (string, error) {
	pg := p.page.Context(ctx)
	if selector == "" {
		return pg.HTML()
	}
	el, err := pg.Element(selector)
	if err != nil {
		return "", err
	}
	return el.HTML()
}

func (p *rodPage) Evaluate(ctx context.Context, script string) ([]byte, error) {
	res, err := p.page.Context(ctx).Eval(script)
	if err != nil {
		return nil, err
	}
	return []byte(res.Value.JSON("", "")), nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
