package accounts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

// RedisStore 账号存为 {prefix}:account:{id} 哈希,ID 集合为 {prefix}:accounts
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "xhs"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedisStore 连接 Redis 并检查可用性
func DialRedisStore(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接Redis失败 [%s]: %w", addr, err)
	}
	return NewRedisStore(client, prefix), nil
}

func (s *RedisStore) setKey() string              { return s.prefix + ":accounts" }
func (s *RedisStore) accountKey(id string) string { return s.prefix + ":account:" + id }

func (s *RedisStore) ListByStatus(ctx context.Context, status models.AccountStatus) ([]models.Account, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	list := all[:0]
	for _, a := range all {
		if a.Status == status {
			list = append(list, a)
		}
	}
	sortByUsage(list)
	return list, nil
}

func (s *RedisStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	fields, err := s.client.HGetAll(ctx, s.accountKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, models.ErrAccountNotFound
	}
	a := decodeAccount(id, fields)
	return &a, nil
}

// IncrementUsage 使用 HINCRBY,并发自增不会丢失
func (s *RedisStore) IncrementUsage(ctx context.Context, id string, at time.Time) error {
	key := s.accountKey(id)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrAccountNotFound
	}
	ts := formatTime(at)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, key, "usage_count", 1)
		p.HSet(ctx, key, "last_used_at", ts, "updated_at", ts)
		return nil
	})
	return err
}

func (s *RedisStore) Create(ctx context.Context, account *models.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.accountKey(account.ID), encodeAccount(account))
		p.SAdd(ctx, s.setKey(), account.ID)
		return nil
	})
	return err
}

func (s *RedisStore) List(ctx context.Context) ([]models.Account, error) {
	list, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(list)
	return list, nil
}

func (s *RedisStore) UpdateStatus(ctx context.Context, id string, status models.AccountStatus) error {
	if !status.Valid() {
		return models.ErrInvalidAccount
	}
	key := s.accountKey(id)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrAccountNotFound
	}
	return s.client.HSet(ctx, key, "status", string(status), "updated_at", formatTime(time.Now())).Err()
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, s.accountKey(id))
		p.SRem(ctx, s.setKey(), id)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) loadAll(ctx context.Context) ([]models.Account, error) {
	ids, err := s.client.SMembers(ctx, s.setKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Account{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, s.accountKey(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	list := make([]models.Account, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		// 集合中残留的ID
		if len(fields) == 0 {
			continue
		}
		list = append(list, decodeAccount(ids[i], fields))
	}
	return list, nil
}

func encodeAccount(a *models.Account) map[string]any {
	m := map[string]any{
		"name":        a.Name,
		"cookie":      a.Cookie,
		"status":      string(a.Status),
		"usage_count": a.UsageCount,
		"created_at":  formatTime(a.CreatedAt),
		"updated_at":  formatTime(a.UpdatedAt),
	}
	if a.LastUsedAt != nil {
		m["last_used_at"] = formatTime(*a.LastUsedAt)
	}
	return m
}

func decodeAccount(id string, f map[string]string) models.Account {
	a := models.Account{
		ID:        id,
		Name:      f["name"],
		Cookie:    f["cookie"],
		Status:    models.AccountStatus(f["status"]),
		CreatedAt: parseTime(f["created_at"]),
		UpdatedAt: parseTime(f["updated_at"]),
	}
	a.UsageCount, _ = strconv.ParseInt(f["usage_count"], 10, 64)
	if v := f["last_used_at"]; v != "" {
		t := parseTime(v)
		a.LastUsedAt = &t
	}
	return a
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
