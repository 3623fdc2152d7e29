package main

import (
	"fmt"
	"strings"

	"github.com/RecoveryAshes/XhsCrawler/internal/browser"
)

// ValidateFlags 验证全局命令行标志, 零值表示未指定
func ValidateFlags(logLevel string, minSize, maxSize int, driver string) error {
	if logLevel != "" {
		validLevels := map[string]bool{
			"trace": true,
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[strings.ToLower(logLevel)] {
			return fmt.Errorf("无效的日志级别: %s (有效值: trace, debug, info, warn, error)", logLevel)
		}
	}

	if minSize < 0 || minSize > 50 {
		return fmt.Errorf("最小实例数必须在0-50之间,当前值: %d", minSize)
	}
	if maxSize < 0 || maxSize > 50 {
		return fmt.Errorf("最大实例数必须在0-50之间,当前值: %d", maxSize)
	}
	if minSize > 0 && maxSize > 0 && minSize > maxSize {
		return fmt.Errorf("最小实例数(%d)不能大于最大实例数(%d)", minSize, maxSize)
	}

	switch strings.ToLower(driver) {
	case "", browser.DriverRod, browser.DriverChromedp:
	default:
		return fmt.Errorf("无效的浏览器驱动: %s (有效值: rod, chromedp)", driver)
	}
	return nil
}

// ValidateBatchFile 验证批量目标文件路径
func ValidateBatchFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("目标文件路径不能为空")
	}
	// 文件存在性检查将在读取时进行
	return nil
}

// ValidateAddr 验证监听地址
func ValidateAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("监听地址不能为空")
	}
	if !strings.Contains(addr, ":") {
		return fmt.Errorf("监听地址格式错误,应为 host:port 或 :port,当前值: %s", addr)
	}
	return nil
}
