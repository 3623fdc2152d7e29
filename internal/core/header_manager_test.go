package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

func TestHeaderManagerMergePriority(t *testing.T) {
	hm, err := NewHeaderManager(
		map[string]string{"referer": "https://config.example/", "x-from-config": "1"},
		[]string{"Referer: https://cli.example/", "X-Token: abcdefghijklmnop"},
	)
	if err != nil {
		t.Fatalf("创建头部管理器失败: %v", err)
	}

	h, err := hm.GetHeaders()
	if err != nil {
		t.Fatalf("获取头部失败: %v", err)
	}
	if h.Get("Referer") != "https://cli.example/" {
		t.Errorf("命令行应覆盖配置: %s", h.Get("Referer"))
	}
	if h.Get("X-From-Config") != "1" || h.Get("Accept-Language") == "" {
		t.Errorf("合并结果缺少头部: %v", h)
	}

	safe := hm.GetSafeHeaders()
	if strings.Contains(safe, "abcdefghijklmnop") {
		t.Errorf("敏感头部未脱敏: %s", safe)
	}
}

func TestHeaderManagerRejectsCookie(t *testing.T) {
	hm, err := NewHeaderManager(nil, []string{"Cookie: a=b"})
	if err != nil {
		t.Fatal(err)
	}
	var verr *models.ValidationError
	if _, err := hm.GetHeaders(); !errors.As(err, &verr) {
		t.Errorf("Cookie 头部应被拒绝, 实际 %v", err)
	}
}

func TestHeaderManagerBadCLIFormat(t *testing.T) {
	if _, err := NewHeaderManager(nil, []string{"no-colon"}); err == nil {
		t.Error("格式错误的 -H 参数应返回错误")
	}
}
