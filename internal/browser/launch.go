package browser

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
)

const (
	DriverRod      = "rod"
	DriverChromedp = "chromedp"
)

// LaunchOptions 浏览器进程启动参数
type LaunchOptions struct {
	Headless bool
	// BinPath 为空时依次尝试环境变量与系统查找
	BinPath string
	// Stealth 注入 go-rod/stealth 脚本(仅 rod)
	Stealth bool
}

// NewDriver 按名称创建驱动
func NewDriver(name string, opts LaunchOptions) (Driver, error) {
	switch strings.ToLower(name) {
	case "", DriverRod:
		return NewRodDriver(opts), nil
	case DriverChromedp:
		return NewChromedpDriver(opts), nil
	}
	return nil, fmt.Errorf("未知浏览器驱动: %s", name)
}

// ResolveBinPath 查找浏览器可执行文件
// 顺序: 配置 → PUPPETEER_EXECUTABLE_PATH → CHROME_PATH → 系统查找
func ResolveBinPath(configured string) string {
	if configured != "" {
		return configured
	}
	for _, env := range []string{"PUPPETEER_EXECUTABLE_PATH", "CHROME_PATH"} {
		if p := os.Getenv(env); p != "" {
			return p
		}
	}
	if p, ok := launcher.LookPath(); ok {
		return p
	}
	return ""
}
