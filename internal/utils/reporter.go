package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

// BatchReport 批量爬取报告
type BatchReport struct {
	Summary models.BatchSummary  `json:"summary"`
	Results []models.BatchResult `json:"results"`
}

// Reporter 报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// GenerateBatchReport 写出 batch_<时间戳>.json 并返回路径
func (r *Reporter) GenerateBatchReport(summary models.BatchSummary, results []models.BatchResult) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	stamp := summary.EndTime
	if stamp.IsZero() {
		stamp = time.Now()
	}
	filename := fmt.Sprintf("batch_%s.json", stamp.Format("20060102_150405"))
	path := filepath.Join(r.outputDir, filename)

	report := BatchReport{Summary: summary, Results: results}
	if err := r.saveJSONReport(path, report); err != nil {
		return "", err
	}

	Infof("✅ 报告已生成: %s", path)
	return path, nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return nil
}

// PrintBatchSummary 打印批量爬取摘要
func PrintBatchSummary(summary models.BatchSummary, results []models.BatchResult) {
	Info("==================================================")
	Info("📊 批量爬取摘要")
	Info("==================================================")
	Infof("总目标数: %d", summary.Total)
	Infof("✅ 成功: %d", summary.Success)
	Infof("❌ 失败: %d", summary.Failed)
	Infof("⏱️  总耗时: %.2f秒", summary.Duration.Seconds())
	Info("==================================================")

	if summary.Failed > 0 {
		Warn("失败的目标:")
		for _, result := range results {
			if !result.Success {
				Warnf("  - %s: %s", result.Target, result.Error)
			}
		}
	}
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
