package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/XhsCrawler/internal/accounts"
	"github.com/RecoveryAshes/XhsCrawler/internal/browser/browsertest"
	"github.com/RecoveryAshes/XhsCrawler/internal/crawlers"
	"github.com/RecoveryAshes/XhsCrawler/internal/models"
	"github.com/RecoveryAshes/XhsCrawler/internal/parser"
)

const testUserID = "5ff0e6410000000001008400"

// countingPool 记录每次归还
type countingPool struct {
	*crawlers.WorkerPool

	mu       sync.Mutex
	releases int
}

func (p *countingPool) ReleaseLease(workerID string, lease uint64) bool {
	p.mu.Lock()
	p.releases++
	p.mu.Unlock()
	return p.WorkerPool.ReleaseLease(workerID, lease)
}

func (p *countingPool) Releases() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releases
}

type fakeResolver struct {
	url string
	err error
}

func (r fakeResolver) Resolve(context.Context, string) (string, error) {
	return r.url, r.err
}

type fixture struct {
	orch   *Orchestrator
	pool   *countingPool
	store  *accounts.MemoryStore
	driver *browsertest.Driver
}

func newFixture(t *testing.T, b browsertest.Behavior, size int, seed ...models.Account) *fixture {
	t.Helper()
	if seed == nil {
		seed = []models.Account{testAccount("acc-1")}
	}

	d := browsertest.NewDriver(b)
	cfg := crawlers.DefaultPoolConfig()
	cfg.MinSize, cfg.MaxSize = size, size
	cfg.AcquireTimeout = 2 * time.Second
	cfg.Worker.LaunchTimeout = time.Second
	cfg.Worker.NavigateTimeout = time.Second
	cfg.Worker.ContentTimeout = time.Second
	cfg.Worker.EvaluateTimeout = time.Second

	wp := crawlers.NewWorkerPool(d, cfg)
	t.Cleanup(func() { _ = wp.Close() })
	if err := wp.Initialize(context.Background(), size); err != nil {
		t.Fatalf("初始化浏览器池失败: %v", err)
	}

	pool := &countingPool{WorkerPool: wp}
	store := accounts.NewMemoryStore(seed...)
	orch := NewOrchestrator(accounts.NewRotator(store), pool, nil, OrchestratorOptions{AcquireTimeout: 2 * time.Second})
	return &fixture{orch: orch, pool: pool, store: store, driver: d}
}

func testAccount(id string) models.Account {
	return models.Account{
		ID:        id,
		Name:      "账号" + id,
		Cookie:    "web_session=" + id + "-0123456789",
		Status:    models.AccountActive,
		CreatedAt: time.Now(),
	}
}

func postStateJSON(title, liked string) []byte {
	return []byte(`{"noteId":"n","title":"` + title + `","interactInfo":{"likedCount":"` + liked + `","collectedCount":"2","commentCount":"3","shareCount":"4"}}`)
}

func usage(t *testing.T, store *accounts.MemoryStore, id string) int64 {
	t.Helper()
	a, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return a.UsageCount
}

func TestCrawlOneStructuredFromSession(t *testing.T) {
	f := newFixture(t, browsertest.Behavior{
		Evaluate: func(url, script string) ([]byte, error) {
			if script == parser.PostStateScript {
				return postStateJSON("标题", "1,234"), nil
			}
			return []byte("null"), nil
		},
	}, 1)

	r, err := f.orch.CrawlOne(context.Background(), models.PostTarget("abc", "tok"))
	if err != nil {
		t.Fatalf("爬取失败: %v", err)
	}
	if r.SourceMethod != models.SourceStructured || r.Post.LikeCount != 1234 || r.Post.PostID != "abc" {
		t.Errorf("结果 = %s %+v", r.SourceMethod, r.Post)
	}
	if got := usage(t, f.store, "acc-1"); got != 1 {
		t.Errorf("账号使用次数 = %d, 期望 1", got)
	}
	if f.pool.Releases() != 1 {
		t.Errorf("归还次数 = %d, 期望 1", f.pool.Releases())
	}
	if s := f.pool.Status(); s.BusyCount != 0 {
		t.Errorf("爬取结束后不应有忙碌实例: %+v", s)
	}
	if creds := f.driver.Credentials(); len(creds) != 1 || creds[0] != testAccount("acc-1").Cookie {
		t.Errorf("应用的凭证 = %v", creds)
	}
}

func TestCrawlOneFallsBackToPageContent(t *testing.T) {
	f := newFixture(t, browsertest.Behavior{
		Content: func(url, selector string) (string, error) {
			return `<title>旧版 - 小红书</title><span class="like-count" data-count="77"></span>`, nil
		},
	}, 1)

	r, err := f.orch.CrawlOne(context.Background(), models.PostTarget("abc", "tok"))
	if err != nil {
		t.Fatalf("爬取失败: %v", err)
	}
	if r.SourceMethod != models.SourceFallback || r.Post.Title != "旧版" || r.Post.LikeCount != 77 {
		t.Errorf("结果 = %s %+v", r.SourceMethod, r.Post)
	}
}

func TestCrawlOneEvaluateFailureStillExtracts(t *testing.T) {
	f := newFixture(t, browsertest.Behavior{
		Evaluate: func(url, script string) ([]byte, error) {
			return nil, errors.New("script error")
		},
		Content: func(url, selector string) (string, error) {
			return `<script>window.__INITIAL_STATE__={"note":{"note":{"title":"页面","interactInfo":{"likedCount":"5"}}}}</script>`, nil
		},
	}, 1)

	r, err := f.orch.CrawlOne(context.Background(), models.PostTarget("abc", "tok"))
	if err != nil {
		t.Fatalf("脚本失败时应回退到页面解析: %v", err)
	}
	if r.SourceMethod != models.SourceStructured || r.Post.LikeCount != 5 {
		t.Errorf("结果 = %s %+v", r.SourceMethod, r.Post)
	}
}

func TestCrawlOneNoAccount(t *testing.T) {
	banned := testAccount("acc-1")
	banned.Status = models.AccountBanned
	f := newFixture(t, browsertest.Behavior{}, 1, banned)

	_, err := f.orch.CrawlOne(context.Background(), models.PostTarget("abc", "tok"))
	if !errors.Is(err, models.ErrNoAccountAvailable) {
		t.Fatalf("期望 ErrNoAccountAvailable, 实际 %v", err)
	}
	if f.pool.Releases() != 0 || len(f.driver.Credentials()) != 0 {
		t.Error("没有账号时不应获取浏览器实例")
	}
}

func TestCrawlOneInvalidTarget(t *testing.T) {
	f := newFixture(t, browsertest.Behavior{}, 1)

	_, err := f.orch.CrawlOne(context.Background(), models.UserTarget("not a user"))
	if !errors.Is(err, models.ErrTargetIdentifierInvalid) {
		t.Fatalf("期望 ErrTargetIdentifierInvalid, 实际 %v", err)
	}
}

func TestCrawlOneNavigationFailureReleasesWorker(t *testing.T) {
	f := newFixture(t, browsertest.Behavior{
		GotoErr: func(url string) error { return errors.New("net::ERR_CONNECTION_RESET") },
	}, 1)

	_, err := f.orch.CrawlOne(context.Background(), models.PostTarget("abc", "tok"))
	if !errors.Is(err, models.ErrSessionOperation) {
		t.Fatalf("期望会话操作错误, 实际 %v", err)
	}
	if f.pool.Releases() != 1 {
		t.Errorf("归还次数 = %d, 期望 1", f.pool.Releases())
	}
	if got := usage(t, f.store, "acc-1"); got != 0 {
		t.Errorf("失败时不应记录使用, 实际 %d", got)
	}
	s := f.pool.Status()
	if s.Capacity != 1 || s.IdleCount != 1 {
		t.Errorf("操作失败后实例应保持可用: %+v", s)
	}
}

func TestCrawlUserShortLinkViaResolver(t *testing.T) {
	profile := models.ProfileURL(testUserID)
	f := newFixture(t, browsertest.Behavior{
		Evaluate: func(url, script string) ([]byte, error) {
			if url != profile {
				return nil, errors.New("unexpected url " + url)
			}
			return []byte(`{"basicInfo":{"nickname":"短链用户"},"interactions":[{"type":"fans","name":"粉丝","count":"10"}]}`), nil
		},
	}, 1)
	f.orch.resolver = fakeResolver{url: profile}

	u, err := f.orch.CrawlUser(context.Background(), "https://xhslink.com/a/abc")
	if err != nil {
		t.Fatalf("爬取失败: %v", err)
	}
	if u.UserID != testUserID || u.Nickname != "短链用户" || u.FansCount != 10 {
		t.Errorf("用户 = %+v", u)
	}
}

func TestCrawlUserShortLinkBrowserFallback(t *testing.T) {
	profile := models.ProfileURL(testUserID)
	f := newFixture(t, browsertest.Behavior{
		Evaluate: func(url, script string) ([]byte, error) {
			switch script {
			case parser.LocationScript:
				return []byte(`"` + profile + `?xsec_source=app_share"`), nil
			case parser.UserStateScript:
				return []byte(`{"basicInfo":{"nickname":"浏览器解析"},"interactions":[]}`), nil
			}
			return []byte("null"), nil
		},
	}, 1)
	f.orch.resolver = fakeResolver{err: errors.New("blocked")}

	u, err := f.orch.CrawlUser(context.Background(), "xhslink.com/a/abc")
	if err != nil {
		t.Fatalf("爬取失败: %v", err)
	}
	if u.UserID != testUserID || u.Nickname != "浏览器解析" {
		t.Errorf("用户 = %+v", u)
	}
}

func TestCrawlBatchIsolatesFailures(t *testing.T) {
	f := newFixture(t, browsertest.Behavior{
		GotoErr: func(url string) error {
			if strings.Contains(url, "/explore/bad") {
				return errors.New("session crashed")
			}
			return nil
		},
		Evaluate: func(url, script string) ([]byte, error) {
			return postStateJSON("好", "9"), nil
		},
	}, 2)

	targets := []models.Target{models.PostTarget("good", "t"), models.PostTarget("bad", "t")}
	results := f.orch.CrawlBatch(context.Background(), targets)

	if len(results) != 2 {
		t.Fatalf("结果数 = %d, 期望 2", len(results))
	}
	if !results[0].Success || results[0].Result == nil || results[0].Target.PostID != "good" {
		t.Errorf("第一个目标应成功: %+v", results[0])
	}
	if results[1].Success || results[1].Error == "" || results[1].Target.PostID != "bad" {
		t.Errorf("第二个目标应失败: %+v", results[1])
	}
	if f.pool.Releases() != 2 {
		t.Errorf("归还次数 = %d, 期望每个目标恰好一次", f.pool.Releases())
	}
}

func TestCrawlBatchPreservesOrderUnderLimit(t *testing.T) {
	f := newFixture(t, browsertest.Behavior{GotoDelay: 5 * time.Millisecond}, 2)
	f.orch.opts.BatchConcurrency = 3

	var targets []models.Target
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		targets = append(targets, models.PostTarget(id, "t"))
	}
	targets = append(targets, models.UserTarget("invalid"))

	var mu sync.Mutex
	notified := 0
	results := f.orch.CrawlBatchNotify(context.Background(), targets, func(models.BatchResult) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	for i, r := range results {
		if r.Target != targets[i] {
			t.Errorf("第%d个结果顺序错误: %v", i, r.Target)
		}
	}
	if !results[0].Success || results[len(results)-1].Success {
		t.Errorf("成功标记错误: %+v", results)
	}
	if notified != len(targets) {
		t.Errorf("回调次数 = %d, 期望 %d", notified, len(targets))
	}
	if got := usage(t, f.store, "acc-1"); got != 7 {
		t.Errorf("账号使用次数 = %d, 期望 7", got)
	}
}

// 两个实例各被占用50ms,第三个请求必须等到其中一个归还
func TestCrawlThirdCallerWaitsForRelease(t *testing.T) {
	const hold = 50 * time.Millisecond
	f := newFixture(t, browsertest.Behavior{GotoDelay: hold}, 2)

	start := time.Now()
	var wg sync.WaitGroup
	elapsed := make([]time.Duration, 3)
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.orch.CrawlOne(context.Background(), models.PostTarget("p", "t"))
			elapsed[i] = time.Since(start)
		}(i)
	}
	wg.Wait()

	slowest := time.Duration(0)
	for i, err := range errs {
		if err != nil {
			t.Fatalf("第%d个请求失败: %v", i, err)
		}
		if elapsed[i] > slowest {
			slowest = elapsed[i]
		}
	}
	if slowest < 2*hold {
		t.Errorf("第三个请求应在归还后才开始, 最慢耗时 %v", slowest)
	}
	if f.driver.Launches() != 2 {
		t.Errorf("启动次数 = %d, 不应超过 maxSize", f.driver.Launches())
	}
	if f.pool.Releases() != 3 {
		t.Errorf("归还次数 = %d, 期望 3", f.pool.Releases())
	}
}

func TestCrawlOneAcquireTimeout(t *testing.T) {
	f := newFixture(t, browsertest.Behavior{GotoDelay: 300 * time.Millisecond}, 1)
	f.orch.opts.AcquireTimeout = 50 * time.Millisecond

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.orch.CrawlOne(context.Background(), models.PostTarget("slow", "t"))
	}()

	// 等第一个请求占用实例
	deadline := time.Now().Add(time.Second)
	for f.pool.Status().BusyCount == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	_, err := f.orch.CrawlOne(context.Background(), models.PostTarget("late", "t"))
	if !errors.Is(err, models.ErrAcquisitionTimeout) {
		t.Errorf("期望 ErrAcquisitionTimeout, 实际 %v", err)
	}
	<-done
}
