package utils

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogConfig(t *testing.T, level string) (LogConfig, *bytes.Buffer) {
	t.Helper()
	var console bytes.Buffer
	return LogConfig{
		Level:      level,
		LogDir:     t.TempDir(),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Console:    &console,
	}, &console
}

func TestInitLogger(t *testing.T) {
	config, console := testLogConfig(t, "debug")
	if err := InitLogger(config); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Info("测试信息日志")
	Debugf("测试调试日志 %d", 1)

	mainLogPath := filepath.Join(config.LogDir, MainLogFile)
	content, err := os.ReadFile(mainLogPath)
	if err != nil {
		t.Fatalf("主日志文件未创建: %v", err)
	}
	if !strings.Contains(string(content), "测试调试日志") {
		t.Error("debug 级别下应写入调试日志")
	}
	if !strings.Contains(console.String(), "测试信息日志") {
		t.Error("控制台未输出日志")
	}
}

func TestLogLevels(t *testing.T) {
	config, _ := testLogConfig(t, "info")
	if err := InitLogger(config); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Infof("格式化信息日志: %s", "测试")
	Warnf("格式化警告日志: %d", 123)
	Debugf("格式化调试日志: %v", true)

	content, err := os.ReadFile(filepath.Join(config.LogDir, MainLogFile))
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	if !strings.Contains(string(content), "格式化警告日志: 123") {
		t.Error("缺少警告日志")
	}
	if strings.Contains(string(content), "格式化调试日志") {
		t.Error("info 级别不应写入调试日志")
	}
}

func TestErrorLogOnlyReceivesErrors(t *testing.T) {
	config, _ := testLogConfig(t, "info")
	if err := InitLogger(config); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Warn("只进主日志")
	Errorf("进入错误日志: %v", errors.New("boom"))

	content, err := os.ReadFile(filepath.Join(config.LogDir, ErrorLogFile))
	if err != nil {
		t.Fatalf("读取错误日志失败: %v", err)
	}
	if strings.Contains(string(content), "只进主日志") {
		t.Error("错误日志中不应出现警告")
	}
	if !strings.Contains(string(content), "进入错误日志") {
		t.Error("错误日志缺少错误记录")
	}
}

func TestDefaultLogConfig(t *testing.T) {
	config := DefaultLogConfig()

	if config.Level != "info" {
		t.Errorf("默认日志级别错误: 期望 'info', 得到 '%s'", config.Level)
	}
	if config.LogDir != "logs" {
		t.Errorf("默认日志目录错误: 期望 'logs', 得到 '%s'", config.LogDir)
	}
	if config.MaxSize != 10 || config.MaxBackups != 3 || config.MaxAge != 28 {
		t.Errorf("默认轮转参数错误: %+v", config)
	}
	if !config.Compress {
		t.Error("默认应该启用压缩")
	}
}
