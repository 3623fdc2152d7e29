// Package accounts 账号持久化与轮换策略
package accounts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

// Store 轮换所需的最小持久化能力
type Store interface {
	// ListByStatus 按使用次数升序返回指定状态的账号
	ListByStatus(ctx context.Context, status models.AccountStatus) ([]models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	// IncrementUsage 使用次数加一并记录使用时间; 账号不存在时返回 ErrAccountNotFound
	IncrementUsage(ctx context.Context, id string, at time.Time) error
}

// Repository 账号管理接口
type Repository interface {
	Store
	Create(ctx context.Context, account *models.Account) error
	// List 返回全部账号,新建的在前
	List(ctx context.Context) ([]models.Account, error)
	UpdateStatus(ctx context.Context, id string, status models.AccountStatus) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// sortByUsage 按 (使用次数, ID) 升序排序
func sortByUsage(list []models.Account) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].UsageCount != list[j].UsageCount {
			return list[i].UsageCount < list[j].UsageCount
		}
		return list[i].ID < list[j].ID
	})
}

func sortNewestFirst(list []models.Account) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// MemoryStore 进程内账号存储
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
}

// NewMemoryStore 创建内存存储,可预置账号
func NewMemoryStore(seed ...models.Account) *MemoryStore {
	s := &MemoryStore{accounts: make(map[string]models.Account, len(seed))}
	for _, a := range seed {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *MemoryStore) ListByStatus(_ context.Context, status models.AccountStatus) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if a.Status == status {
			list = append(list, a)
		}
	}
	sortByUsage(list)
	return list, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return &a, nil
}

func (s *MemoryStore) IncrementUsage(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return models.ErrAccountNotFound
	}
	a.UsageCount++
	a.LastUsedAt = &at
	a.UpdatedAt = at
	s.accounts[id] = a
	return nil
}

func (s *MemoryStore) Create(_ context.Context, account *models.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = *account
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		list = append(list, a)
	}
	sortNewestFirst(list)
	return list, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status models.AccountStatus) error {
	if !status.Valid() {
		return models.ErrInvalidAccount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return models.ErrAccountNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	s.accounts[id] = a
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return models.ErrAccountNotFound
	}
	delete(s.accounts, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
