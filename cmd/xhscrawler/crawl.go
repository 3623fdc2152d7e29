package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
	"github.com/RecoveryAshes/XhsCrawler/internal/utils"
)

// 爬取参数
var (
	xsecToken string
	batchFile string
	outputDir string
)

var postCmd = &cobra.Command{
	Use:   "post <postId>",
	Short: "爬取单个笔记的互动数据",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return crawlSingle(cmd, models.PostTarget(args[0], xsecToken))
	},
}

var userCmd = &cobra.Command{
	Use:   "user <userIdOrUrl>",
	Short: "爬取用户主页信息 (支持用户ID、主页链接、短链接)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return crawlSingle(cmd, models.UserTarget(args[0]))
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "从文件批量爬取",
	Long: `从文件批量爬取笔记与用户

文件每行一个目标, # 开头为注释:
  post <postId> <xsecToken>
  user <userIdOrUrl>
  https://www.xiaohongshu.com/explore/<postId>?xsec_token=...
  https://www.xiaohongshu.com/user/profile/<userId>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateBatchFile(batchFile); err != nil {
			return err
		}
		targets, err := utils.ReadTargetsFromFile(batchFile)
		if err != nil {
			return fmt.Errorf("读取目标文件失败: %w", err)
		}
		if len(targets) == 0 {
			return fmt.Errorf("目标文件中没有有效目标: %s", batchFile)
		}

		ctx := cmd.Context()
		app, err := startApp(ctx, true)
		if err != nil {
			return err
		}
		defer closeApp(app)

		bar := utils.NewProgressBar(len(targets), "批量爬取")
		start := time.Now()
		results := app.Orchestrator.CrawlBatchNotify(ctx, targets, func(models.BatchResult) {
			_ = bar.Add(1)
		})
		_ = bar.Finish()
		summary := models.Summarize(results, start, time.Now())

		dir := outputDir
		if dir == "" {
			dir = appConfig.Batch.ReportDir
		}
		path, err := utils.NewReporter(dir).GenerateBatchReport(summary, results)
		if err != nil {
			utils.Errorf("生成报告失败: %v", err)
		} else {
			utils.Infof("📄 报告已保存: %s", path)
		}

		utils.PrintBatchSummary(summary, results)
		utils.Info("✨ 批量爬取任务完成!")
		return nil
	},
}

func init() {
	postCmd.Flags().StringVarP(&xsecToken, "token", "t", "", "xsec_token安全令牌 (必需)")
	_ = postCmd.MarkFlagRequired("token")

	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "目标列表文件 (必需)")
	batchCmd.Flags().StringVarP(&outputDir, "output", "o", "", "报告输出目录 (默认使用配置 batch.report_dir)")
	_ = batchCmd.MarkFlagRequired("file")
}

// crawlSingle 爬取单个目标并以JSON输出到标准输出
func crawlSingle(cmd *cobra.Command, target models.Target) error {
	if err := target.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	app, err := startApp(ctx, false)
	if err != nil {
		return err
	}
	defer closeApp(app)

	result, err := app.Orchestrator.CrawlOne(ctx, target)
	if err != nil {
		return fmt.Errorf("爬取失败: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if target.Kind == models.TargetPost {
		return enc.Encode(result.Post)
	}
	return enc.Encode(result.User)
}
