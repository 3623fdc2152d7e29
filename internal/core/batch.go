package core

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
	"github.com/RecoveryAshes/XhsCrawler/internal/utils"
)

// CrawlBatch 并发爬取一组目标
// 单个目标失败不影响其他目标,返回结果与输入顺序一致
func (o *Orchestrator) CrawlBatch(ctx context.Context, targets []models.Target) []models.BatchResult {
	return o.CrawlBatchNotify(ctx, targets, nil)
}

// CrawlBatchNotify 同 CrawlBatch,每个目标结束时回调 notify (可能并发调用)
func (o *Orchestrator) CrawlBatchNotify(ctx context.Context, targets []models.Target, notify func(models.BatchResult)) []models.BatchResult {
	results := make([]models.BatchResult, len(targets))
	if len(targets) == 0 {
		return results
	}

	utils.Infof("🚀 开始批量爬取: %d个目标", len(targets))
	start := time.Now()

	// 不使用 errgroup.WithContext: 一个目标失败不能取消其他目标
	var g errgroup.Group
	if o.opts.BatchConcurrency > 0 {
		g.SetLimit(o.opts.BatchConcurrency)
	}

	for i, target := range targets {
		g.Go(func() error {
			results[i] = o.crawlEntry(ctx, target)
			if notify != nil {
				notify(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := models.Summarize(results, start, time.Now())
	utils.Infof("批量爬取完成: 成功 %d, 失败 %d, 耗时 %.2f秒",
		summary.Success, summary.Failed, summary.Duration.Seconds())
	return results
}

// crawlEntry 执行单个目标并把错误与 panic 转为结果条目
func (o *Orchestrator) crawlEntry(ctx context.Context, target models.Target) (entry models.BatchResult) {
	start := time.Now()
	entry.Target = target

	defer func() {
		if r := recover(); r != nil {
			entry.Success = false
			entry.Result = nil
			entry.Error = fmt.Sprintf("内部错误: %v", r)
			utils.Logger.Error().Str("target", target.String()).Interface("panic", r).Msg("批量爬取目标异常")
		}
		entry.Duration = time.Since(start)
	}()

	result, err := o.CrawlOne(ctx, target)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Success = true
	entry.Result = result
	return entry
}
