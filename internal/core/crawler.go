package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/XhsCrawler/internal/crawlers"
	"github.com/RecoveryAshes/XhsCrawler/internal/metrics"
	"github.com/RecoveryAshes/XhsCrawler/internal/models"
	"github.com/RecoveryAshes/XhsCrawler/internal/parser"
)

// AccountRotator 账号选择与使用记录
type AccountRotator interface {
	SelectAccount(ctx context.Context) (*models.Account, error)
	RecordUsage(ctx context.Context, id string) error
}

// WorkerProvider 浏览器实例的获取与归还
type WorkerProvider interface {
	Acquire(ctx context.Context, credential string, timeout time.Duration) (*crawlers.Worker, error)
	ReleaseLease(workerID string, lease uint64) bool
}

// ShortLinkResolver 短链接解析
type ShortLinkResolver interface {
	Resolve(ctx context.Context, shortURL string) (string, error)
}

// OrchestratorOptions 编排器参数
type OrchestratorOptions struct {
	AcquireTimeout time.Duration
	// BatchConcurrency 批量并发上限, 0 表示全部同时派发
	BatchConcurrency int
}

// Orchestrator 组合账号轮换、浏览器池与解析器完成一次爬取
type Orchestrator struct {
	accounts AccountRotator
	pool     WorkerProvider
	resolver ShortLinkResolver
	opts     OrchestratorOptions
}

// NewOrchestrator 创建编排器, resolver 可为 nil (短链接仅由浏览器解析)
func NewOrchestrator(accounts AccountRotator, pool WorkerProvider, resolver ShortLinkResolver, opts OrchestratorOptions) *Orchestrator {
	return &Orchestrator{
		accounts: accounts,
		pool:     pool,
		resolver: resolver,
		opts:     opts,
	}
}

// CrawlPost 爬取笔记详情
func (o *Orchestrator) CrawlPost(ctx context.Context, postID, xsecToken string) (*models.PostDetail, error) {
	r, err := o.CrawlOne(ctx, models.PostTarget(postID, xsecToken))
	if err != nil {
		return nil, err
	}
	return r.Post, nil
}

// CrawlUser 爬取用户主页信息
func (o *Orchestrator) CrawlUser(ctx context.Context, userIDOrURL string) (*models.UserInfo, error) {
	r, err := o.CrawlOne(ctx, models.UserTarget(userIDOrURL))
	if err != nil {
		return nil, err
	}
	return r.User, nil
}

// CrawlOne 爬取单个目标
// 实例在任何退出路径上都恰好归还一次
func (o *Orchestrator) CrawlOne(ctx context.Context, target models.Target) (result *models.ExtractionResult, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "failed"
		}
		metrics.CrawlsTotal.WithLabelValues(string(target.Kind), status).Inc()
		metrics.CrawlDuration.WithLabelValues(string(target.Kind)).Observe(time.Since(start).Seconds())
	}()

	if err := target.Validate(); err != nil {
		return nil, err
	}

	account, err := o.accounts.SelectAccount(ctx)
	if err != nil {
		return nil, err
	}

	// 短链接优先用HTTP跳转解析,失败时交给浏览器
	pageURL, browserResolve, err := o.pageURL(ctx, target)
	if err != nil {
		return nil, err
	}

	logger := log.With().Str("target", target.String()).Str("account_id", account.ID).Logger()

	w, err := o.pool.Acquire(ctx, account.Cookie, o.opts.AcquireTimeout)
	if err != nil {
		logger.Warn().Err(err).Msg("获取浏览器实例失败")
		return nil, err
	}
	lease := w.Lease()
	defer o.pool.ReleaseLease(w.ID(), lease)

	logger = logger.With().Str("worker_id", w.ID()).Logger()
	logger.Debug().Str("url", pageURL).Msg("开始爬取")

	if err := w.Navigate(ctx, pageURL, 0); err != nil {
		return nil, err
	}

	resolved := target
	if target.Kind == models.TargetUser && !browserResolve {
		resolved.UserIDOrURL = pageURL
	}
	if browserResolve {
		var location string
		if err := w.Evaluate(ctx, parser.LocationScript, 0, &location); err != nil {
			return nil, err
		}
		if _, ok := models.UserIDFromURL(location); !ok {
			return nil, fmt.Errorf("%w: 短链接未跳转到用户主页: %s", models.ErrTargetIdentifierInvalid, location)
		}
		resolved.UserIDOrURL = location
	}

	result, err = o.extract(ctx, w, resolved)
	if err != nil {
		return nil, err
	}

	if err := o.accounts.RecordUsage(ctx, account.ID); err != nil {
		// 账号可能已被删除,不影响本次结果
		logger.Warn().Err(err).Msg("记录账号使用失败")
	}

	logger.Info().
		Str("source", string(result.SourceMethod)).
		Dur("duration", time.Since(start)).
		Msg("爬取完成")
	return result, nil
}

// pageURL 计算目标页面地址; browserResolve 表示需在浏览器中读取跳转后的地址
func (o *Orchestrator) pageURL(ctx context.Context, target models.Target) (string, bool, error) {
	u, err := target.URL()
	if err != nil {
		return "", false, err
	}
	if target.Kind != models.TargetUser || models.ClassifyUserRef(target.UserIDOrURL) != models.UserRefShortLink {
		return u, false, nil
	}

	if o.resolver != nil {
		resolved, err := o.resolver.Resolve(ctx, u)
		if err == nil {
			return resolved, false, nil
		}
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		log.Debug().Err(err).Str("short_link", u).Msg("HTTP解析短链接失败,改用浏览器")
	}
	return u, true, nil
}

// extract 优先在会话内读取页面状态,失败时取整页HTML交给解析器
func (o *Orchestrator) extract(ctx context.Context, w *crawlers.Worker, target models.Target) (*models.ExtractionResult, error) {
	kind := string(target.Kind)

	var raw json.RawMessage
	err := w.Evaluate(ctx, parser.ScriptFor(target.Kind), 0, &raw)
	if err == nil {
		if r, ok := parser.FromSession(target, raw); ok {
			metrics.ExtractionSource.WithLabelValues(kind, "session").Inc()
			return r, nil
		}
	} else if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil, err
	}

	html, err := w.ExtractRaw(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	r := parser.Parse(target, html)
	metrics.ExtractionSource.WithLabelValues(kind, string(r.SourceMethod)).Inc()
	return r, nil
}
