package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/RecoveryAshes/XhsCrawler/internal/browser"
	"github.com/RecoveryAshes/XhsCrawler/internal/core"
)

// minMemoryMB 至少可同时运行两个浏览器实例
const minMemoryMB = 1024

func main() {
	fmt.Println("==============================================")
	fmt.Println("  XhsCrawler 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	goVersion := runtime.Version()
	fmt.Printf("✅ Go版本: %s\n", goVersion)
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	cfg, err := core.LoadConfig("")
	if err != nil {
		fmt.Printf("❌ 配置加载失败: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("❌ 配置无效: %v\n", err)
		allOK = false
	} else {
		fmt.Printf("✅ 配置有效 (驱动=%s, 存储=%s)\n", cfg.Browser.Driver, cfg.Store.Driver)
	}

	// 浏览器
	if bin := browser.ResolveBinPath(cfg.Browser.BinPath); bin != "" {
		version := strings.TrimSpace(getCommandOutput(bin, "--version"))
		if version == "" {
			version = bin
		}
		fmt.Printf("✅ 浏览器: %s\n", version)
	} else if cfg.Browser.Driver == browser.DriverRod {
		fmt.Println("⚠️  未找到本地 Chrome/Chromium, rod 将在首次启动时自动下载")
	} else {
		fmt.Println("❌ 未找到 Chrome/Chromium - chromedp 需要本地浏览器")
		fmt.Println("   可通过 browser.bin_path 或 CHROME_PATH 指定")
		allOK = false
	}

	// 内存
	if vm, err := mem.VirtualMemory(); err == nil {
		availableMB := vm.Available / 1024 / 1024
		if availableMB < minMemoryMB {
			fmt.Printf("⚠️  可用内存不足: %dMB (建议 ≥ %dMB)\n", availableMB, minMemoryMB)
		} else {
			fmt.Printf("✅ 可用内存: %dMB / %dMB\n", availableMB, vm.Total/1024/1024)
		}
	} else {
		fmt.Printf("⚠️  读取内存信息失败: %v\n", err)
	}

	// 账号存储
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if repo, err := core.OpenStore(ctx, cfg.Store); err != nil {
		fmt.Printf("❌ 账号存储不可用: %v\n", err)
		allOK = false
	} else {
		list, err := repo.List(ctx)
		_ = repo.Close()
		if err != nil {
			fmt.Printf("❌ 读取账号失败: %v\n", err)
			allOK = false
		} else {
			active := 0
			for _, a := range list {
				if a.IsActive() {
					active++
				}
			}
			fmt.Printf("✅ 账号存储: %d 个账号, %d 个可用\n", len(list), active)
			if active == 0 && len(cfg.Accounts) == 0 {
				fmt.Println("⚠️  没有可用账号 - 请运行 'xhscrawler account add'")
			}
		}
	}

	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/xhscrawler",
		"internal/accounts",
		"internal/api",
		"internal/browser",
		"internal/core",
		"internal/crawlers",
		"internal/parser",
		"configs",
	}
	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'xhscrawler account add' 添加账号")
		fmt.Println("  2. 运行 'xhscrawler serve' 启动服务")
		os.Exit(0)
	}
	fmt.Println("❌ 环境验证失败,请解决上述问题。")
	os.Exit(1)
}

// getCommandOutput 获取命令输出
func getCommandOutput(name string, args ...string) string {
	output, err := exec.Command(name, args...).Output()
	if err != nil {
		return ""
	}
	return string(output)
}
