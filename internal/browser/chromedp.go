package browser

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// ChromedpDriver 基于 chromedp 的驱动
type ChromedpDriver struct {
	opts LaunchOptions
}

// NewChromedpDriver 创建 chromedp 驱动
func NewChromedpDriver(opts LaunchOptions) *ChromedpDriver {
	return &ChromedpDriver{opts: opts}
}

var chromedpResourceTypes = map[string]network.ResourceType{
	"image":      network.ResourceTypeImage,
	"stylesheet": network.ResourceTypeStylesheet,
	"font":       network.ResourceTypeFont,
	"media":      network.ResourceTypeMedia,
}

func (d *ChromedpDriver) Launch(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
	)
	if bin := ResolveBinPath(d.opts.BinPath); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// 空动作即启动浏览器
	if err := attach(ctx, browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	return &chromedpSession{ctx: browserCtx, cancel: cancel, allocCancel: allocCancel}, nil
}

// attach 在 target 自身的上下文上执行首个 Run
// chromedp 把标签页的消息循环绑定在首个 Run 的 ctx 上,因此不能用派生的短期 ctx
func attach(ctx, target context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(target)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type chromedpSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	closed      atomic.Bool
}

func (s *chromedpSession) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(s.ctx)
	if err := attach(ctx, tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}
	p := &chromedpPage{ctx: tabCtx, cancel: tabCancel, cookieDomain: opts.CookieDomain}

	var actions []chromedp.Action
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		actions = append(actions, emulation.SetDeviceMetricsOverride(int64(opts.Viewport.Width), int64(opts.Viewport.Height), 1, false))
	}
	if opts.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(opts.UserAgent))
	}
	actions = append(actions, network.Enable())
	if len(opts.ExtraHeaders) > 0 {
		headers := make(network.Headers, len(opts.ExtraHeaders))
		for name := range opts.ExtraHeaders {
			headers[name] = opts.ExtraHeaders.Get(name)
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}

	var patterns []*fetch.RequestPattern
	for _, r := range opts.BlockedResources {
		if rt, ok := chromedpResourceTypes[strings.ToLower(r)]; ok {
			patterns = append(patterns, &fetch.RequestPattern{URLPattern: "*", ResourceType: rt})
		}
	}
	if len(patterns) > 0 {
		chromedp.ListenTarget(tabCtx, func(ev interface{}) {
			if e, ok := ev.(*fetch.EventRequestPaused); ok {
				go func() {
					if err := chromedp.Run(tabCtx, fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient)); err != nil {
						log.Debug().Err(err).Msg("拦截请求失败")
					}
				}()
			}
		})
		actions = append(actions, fetch.Enable().WithPatterns(patterns))
	}

	if err := p.run(ctx, actions...); err != nil {
		tabCancel()
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}
	return p, nil
}

func (s *chromedpSession) IsConnected() bool {
	if c := chromedp.FromContext(s.ctx); c == nil || c.Browser == nil {
		return false
	}
	return !s.closed.Load() && s.ctx.Err() == nil
}

func (s *chromedpSession) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := chromedp.Cancel(s.ctx)
	s.allocCancel()
	return err
}

type chromedpPage struct {
	ctx          context.Context
	cancel       context.CancelFunc
	cookieDomain string
}

// run 在标签页上下文中执行动作,同时受调用方 ctx 约束
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromedpPage) SetCredential(ctx context.Context, cookie string) error {
	parsed := ParseCookieString(cookie, p.cookieDomain)
	params := make([]*network.CookieParam, 0, len(parsed))
	for _, c := range parsed {
		params = append(params, &network.CookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}

	actions := []chromedp.Action{network.ClearBrowserCookies()}
	if len(params) > 0 {
		actions = append(actions, network.SetCookies(params))
	}
	return p.run(ctx, actions...)
}

func (p *chromedpPage) Goto(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromedpPage) Content(ctx context.Context, selector string) (string, error) {
	if selector == "" {
		selector = "html"
	}
	var html string
	err := p.run(ctx, chromedp.OuterHTML(selector, &html, chromedp.ByQuery))
	return html, err
}

func (p *chromedpPage) Evaluate(ctx context.Context, script string) ([]byte, error) {
	var raw []byte
	expr := "(" + script + ")()"
	err := p.run(ctx, chromedp.Evaluate(expr, &raw, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}))
	return raw, err
}

func (p *chromedpPage) Close() error {
	p.cancel()
	return nil
}
