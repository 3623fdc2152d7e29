package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/XhsCrawler/internal/core"
	"github.com/RecoveryAshes/XhsCrawler/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers        []string // 附加到浏览器会话的请求头
	validateConfig bool     // 验证配置文件

	// 浏览器池参数
	minSize  int
	maxSize  int
	headless bool
	driver   string

	// 加载后的配置,由 PersistentPreRunE 填充
	appConfig *core.Config
)

var rootCmd = &cobra.Command{
	Use:   "xhscrawler",
	Short: "小红书笔记与用户数据爬取服务",
	Long: `XhsCrawler - 基于浏览器池与账号轮换的小红书数据爬取工具

功能:
  • 笔记互动数据 (点赞/收藏/评论/分享)
  • 用户主页统计 (粉丝/关注/获赞与收藏/笔记数)
  • 浏览器池弹性扩容与自愈健康检查
  • 多账号按使用次数轮换
  • HTTP API 与批量命令行模式

示例:
  # 启动HTTP服务
  xhscrawler serve --addr :3000

  # 添加账号
  xhscrawler account add --name 账号1 --cookie "web_session=...; a1=..."

  # 爬取单个笔记
  xhscrawler post 65a1b2c3d4e5f6789 --token XYZ1234567890abcdef

  # 批量爬取
  xhscrawler batch -f targets.txt

  # 验证配置文件
  xhscrawler --validate-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		if err := ValidateFlags(logLevel, minSize, maxSize, driver); err != nil {
			return err
		}

		// 命令行参数覆盖配置文件
		var headlessFlag *bool
		if f := cmd.Flags().Lookup("headless"); f != nil && f.Changed {
			headlessFlag = &headless
		}
		config.MergeCLIFlags(logLevel, minSize, maxSize, headlessFlag, driver)

		if err := utils.InitLogger(config.LogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !validateConfig {
			return cmd.Help()
		}

		utils.Info("🔍 验证配置...")
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}
		hm, err := core.NewHeaderManager(appConfig.Headers, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}
		if err := hm.Validate(); err != nil {
			return fmt.Errorf("头部验证失败: %w", err)
		}

		utils.Info("✅ 配置验证通过!")
		utils.Infof("浏览器池: min=%d max=%d 驱动=%s 无头=%v",
			appConfig.Pool.MinSize, appConfig.Pool.MaxSize, appConfig.Browser.Driver, appConfig.Browser.Headless)
		utils.Infof("账号存储: %s", appConfig.Store.Driver)
		utils.Infof("当前有效的HTTP头部: %s", hm.GetSafeHeaders())
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	// 不需要加载配置
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("XhsCrawler %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "附加请求头,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 浏览器池参数
	rootCmd.PersistentFlags().IntVar(&minSize, "min-size", 0, "浏览器池最小实例数 (0 表示使用配置)")
	rootCmd.PersistentFlags().IntVar(&maxSize, "max-size", 0, "浏览器池最大实例数 (0 表示使用配置)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "浏览器驱动 (rod|chromedp)")

	rootCmd.AddCommand(versionCmd, serveCmd, postCmd, userCmd, batchCmd, accountCmd)
}

func main() {
	// Ctrl+C 取消根上下文,各命令据此优雅退出
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		stop()
		os.Exit(1)
	}
}
