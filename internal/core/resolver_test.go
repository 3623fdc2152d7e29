package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

func TestLinkResolverFollowsToProfile(t *testing.T) {
	profileHits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/a/abc", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/discovery/jump?target=user", http.StatusFound)
	})
	mux.HandleFunc("/discovery/jump", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/user/profile/"+testUserID+"?xsec_source=app_share", http.StatusFound)
	})
	mux.HandleFunc("/user/profile/", func(w http.ResponseWriter, r *http.Request) {
		profileHits++
		_, _ = w.Write([]byte("<html></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := NewLinkResolver("test-agent", time.Second).Resolve(context.Background(), srv.URL+"/a/abc")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	want := srv.URL + "/user/profile/" + testUserID + "?xsec_source=app_share"
	if got != want {
		t.Errorf("解析结果 = %s, 期望 %s", got, want)
	}
	if profileHits != 0 {
		t.Errorf("不应下载主页本身, 实际请求 %d 次", profileHits)
	}
}

func TestLinkResolverWithoutProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>404 page</html>"))
	}))
	defer srv.Close()

	_, err := NewLinkResolver("", time.Second).Resolve(context.Background(), srv.URL+"/a/gone")
	if !errors.Is(err, models.ErrTargetIdentifierInvalid) {
		t.Errorf("期望 ErrTargetIdentifierInvalid, 实际 %v", err)
	}
}

func TestLinkResolverContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewLinkResolver("", 5*time.Second).Resolve(ctx, srv.URL+"/a/slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("期望 context.DeadlineExceeded, 实际 %v", err)
	}
}
