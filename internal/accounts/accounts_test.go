package accounts

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

func testAccount(id string, usage int64, status models.AccountStatus, created time.Time) models.Account {
	return models.Account{
		ID:         id,
		Name:       "账号" + id,
		Cookie:     "web_session=" + id + "0123456789",
		Status:     status,
		UsageCount: usage,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func seedAccounts(t *testing.T, repo Repository) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, a := range []models.Account{
		testAccount("1", 10, models.AccountActive, base),
		testAccount("2", 5, models.AccountActive, base.Add(time.Hour)),
		testAccount("3", 8, models.AccountBanned, base.Add(2*time.Hour)),
	} {
		a := a
		if err := repo.Create(context.Background(), &a); err != nil {
			t.Fatalf("创建第%d个账号失败: %v", i+1, err)
		}
	}
}

// exerciseRepository 对任意存储实现执行同一组检查
func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()
	seedAccounts(t, repo)

	t.Run("轮换选择最少使用的可用账号", func(t *testing.T) {
		a, err := NewRotator(repo).SelectAccount(ctx)
		if err != nil {
			t.Fatalf("SelectAccount 失败: %v", err)
		}
		if a.ID != "2" {
			t.Errorf("选中账号 = %s, 期望 2", a.ID)
		}
	})

	t.Run("按状态列出并按使用次数排序", func(t *testing.T) {
		list, err := repo.ListByStatus(ctx, models.AccountActive)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 2 || list[0].ID != "2" || list[1].ID != "1" {
			t.Errorf("可用账号顺序错误: %+v", list)
		}
	})

	t.Run("记录使用", func(t *testing.T) {
		r := NewRotator(repo)
		at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		r.now = func() time.Time { return at }

		if err := r.RecordUsage(ctx, "2"); err != nil {
			t.Fatalf("RecordUsage 失败: %v", err)
		}
		a, err := repo.GetByID(ctx, "2")
		if err != nil {
			t.Fatal(err)
		}
		if a.UsageCount != 6 {
			t.Errorf("使用次数 = %d, 期望 6", a.UsageCount)
		}
		if a.LastUsedAt == nil || !a.LastUsedAt.Equal(at) {
			t.Errorf("最后使用时间 = %v, 期望 %v", a.LastUsedAt, at)
		}

		if err := r.RecordUsage(ctx, "missing"); !errors.Is(err, models.ErrAccountNotFound) {
			t.Errorf("未知账号应返回 ErrAccountNotFound, 实际 %v", err)
		}
	})

	t.Run("获取不存在的账号", func(t *testing.T) {
		if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, models.ErrAccountNotFound) {
			t.Errorf("期望 ErrAccountNotFound, 实际 %v", err)
		}
	})

	t.Run("列表新建在前", func(t *testing.T) {
		list, err := repo.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 3 || list[0].ID != "3" || list[2].ID != "1" {
			t.Errorf("列表顺序错误: %+v", list)
		}
		if list[0].Cookie == "" {
			t.Error("存储层应保留Cookie")
		}
	})

	t.Run("更新状态与删除", func(t *testing.T) {
		if err := repo.UpdateStatus(ctx, "3", models.AccountActive); err != nil {
			t.Fatal(err)
		}
		if err := repo.UpdateStatus(ctx, "missing", models.AccountActive); !errors.Is(err, models.ErrAccountNotFound) {
			t.Errorf("期望 ErrAccountNotFound, 实际 %v", err)
		}
		if err := repo.Delete(ctx, "1"); err != nil {
			t.Fatal(err)
		}
		if err := repo.Delete(ctx, "1"); !errors.Is(err, models.ErrAccountNotFound) {
			t.Errorf("重复删除应返回 ErrAccountNotFound, 实际 %v", err)
		}
		list, err := repo.ListByStatus(ctx, models.AccountActive)
		if err != nil {
			t.Fatal(err)
		}
		// 2:6次, 3:8次
		if len(list) != 2 || list[0].ID != "2" || list[1].ID != "3" {
			t.Errorf("可用账号 = %+v", list)
		}
	})

	t.Run("没有可用账号", func(t *testing.T) {
		for _, id := range []string{"2", "3"} {
			if err := repo.UpdateStatus(ctx, id, models.AccountInactive); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := NewRotator(repo).SelectAccount(ctx); !errors.Is(err, models.ErrNoAccountAvailable) {
			t.Errorf("期望 ErrNoAccountAvailable, 实际 %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseRepository(t, NewMemoryStore())
}

func TestGormStoreSQLite(t *testing.T) {
	store, err := OpenGormStore("sqlite", filepath.Join(t.TempDir(), "data", "accounts.db"))
	if err != nil {
		t.Fatalf("打开sqlite失败: %v", err)
	}
	defer store.Close()
	exerciseRepository(t, store)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "test")
	defer store.Close()

	exerciseRepository(t, store)

	if !mr.Exists("test:account:2") {
		t.Error("账号哈希键不存在")
	}
}

func TestRotatorTieBreakByID(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore(
		testAccount("b", 3, models.AccountActive, now),
		testAccount("a", 3, models.AccountActive, now),
		testAccount("c", 3, models.AccountActive, now),
	)
	for i := 0; i < 3; i++ {
		a, err := NewRotator(store).SelectAccount(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if a.ID != "a" {
			t.Errorf("平局应按ID选择 a, 实际 %s", a.ID)
		}
	}
}

func TestRotatorSpreadsUsage(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryStore(
		testAccount("a", 0, models.AccountActive, now),
		testAccount("b", 0, models.AccountActive, now),
	)
	r := NewRotator(store)

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		a, err := r.SelectAccount(ctx)
		if err != nil {
			t.Fatal(err)
		}
		seen[a.ID]++
		if err := r.RecordUsage(ctx, a.ID); err != nil {
			t.Fatal(err)
		}
	}
	if seen["a"] != 2 || seen["b"] != 2 {
		t.Errorf("轮换分布 = %v, 期望各2次", seen)
	}
}
