package core

import (
	"net/http"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
	"github.com/RecoveryAshes/XhsCrawler/internal/utils"
)

// HeaderManager 管理浏览器会话的额外请求头部
type HeaderManager struct {
	// defaults 系统默认头部
	defaults http.Header

	// config 配置文件 headers 段
	config http.Header

	// cli 命令行 -H 参数
	cli http.Header

	validator *utils.HeaderValidator
	redactor  *utils.HeaderRedactor
}

// NewHeaderManager 创建头部管理器
// configHeaders 来自配置文件,cliHeaders 为 "Name: Value" 列表
func NewHeaderManager(configHeaders map[string]string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults:  getDefaultHeaders(),
		config:    make(http.Header),
		cli:       make(http.Header),
		validator: utils.NewHeaderValidator(),
		redactor:  utils.NewHeaderRedactor(),
	}

	for name, value := range configHeaders {
		hm.config.Set(name, value)
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.ParseHeaderFlags(cliHeaders)
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}

	return hm, nil
}

// getDefaultHeaders 返回系统默认头部
// User-Agent 由页面设置单独下发,不在此处
func getDefaultHeaders() http.Header {
	return http.Header{
		"Accept-Language": []string{"zh-CN,zh;q=0.9,en;q=0.8"},
		"Referer":         []string{models.SiteBaseURL + "/"},
	}
}

// Validate 验证所有头部的合法性
// 验证顺序: 默认 → 配置 → 命令行
func (hm *HeaderManager) Validate() error {
	if err := hm.validator.Validate(hm.defaults); err != nil {
		utils.Errorf("默认头部验证失败: %v", err)
		return err
	}

	if err := hm.validator.Validate(hm.config); err != nil {
		utils.Errorf("配置文件头部验证失败: %v", err)
		return err
	}

	if err := hm.validator.Validate(hm.cli); err != nil {
		utils.Errorf("命令行头部验证失败: %v", err)
		return err
	}

	return nil
}

// GetMergedHeaders 按优先级合并头部 (default < config < cli)
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = values
		}
	}
	return result
}

// GetSafeHeaders 返回脱敏后的头部 (用于日志)
func (hm *HeaderManager) GetSafeHeaders() string {
	return hm.redactor.RedactToString(hm.GetMergedHeaders())
}

// GetHeaders 校验并返回合并后的头部
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	merged := hm.GetMergedHeaders()
	utils.Debugf("浏览器会话头部: %s", hm.GetSafeHeaders())
	return merged, nil
}
