package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/XhsCrawler/internal/metrics"
	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

// Rotator 最少使用优先的账号轮换
type Rotator struct {
	store Store
	now   func() time.Time
}

// NewRotator 创建轮换器
func NewRotator(store Store) *Rotator {
	return &Rotator{store: store, now: time.Now}
}

// SelectAccount 返回使用次数最少的可用账号,次数相同时按ID升序
func (r *Rotator) SelectAccount(ctx context.Context) (*models.Account, error) {
	list, err := r.store.ListByStatus(ctx, models.AccountActive)
	if err != nil {
		return nil, fmt.Errorf("查询可用账号失败: %w", err)
	}
	if len(list) == 0 {
		return nil, models.ErrNoAccountAvailable
	}

	// 存储层已排序,这里再排一次保证平局顺序确定
	sortByUsage(list)
	selected := list[0]

	log.Debug().
		Str("account_id", selected.ID).
		Int64("usage", selected.UsageCount).
		Int("candidates", len(list)).
		Msg("选中账号")
	return &selected, nil
}

// RecordUsage 记录一次成功提取
func (r *Rotator) RecordUsage(ctx context.Context, id string) error {
	if err := r.store.IncrementUsage(ctx, id, r.now()); err != nil {
		return fmt.Errorf("记录账号使用失败 [%s]: %w", id, err)
	}
	metrics.AccountUsage.Inc()
	return nil
}
