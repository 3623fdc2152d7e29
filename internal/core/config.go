package core

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RecoveryAshes/XhsCrawler/internal/browser"
	"github.com/RecoveryAshes/XhsCrawler/internal/crawlers"
	"github.com/RecoveryAshes/XhsCrawler/internal/utils"
)

// EnvPrefix 环境变量前缀,如 XHS_POOL_MAX_SIZE
const EnvPrefix = "XHS"

// Config 应用程序配置
type Config struct {
	Pool     PoolConfig        `mapstructure:"pool"`
	Health   HealthConfig      `mapstructure:"health"`
	Browser  BrowserConfig     `mapstructure:"browser"`
	Headers  map[string]string `mapstructure:"headers"`
	Store    StoreConfig       `mapstructure:"store"`
	Accounts []SeedAccount     `mapstructure:"accounts"`
	Server   ServerConfig      `mapstructure:"server"`
	Batch    BatchConfig       `mapstructure:"batch"`
	Resolver ResolverConfig    `mapstructure:"resolver"`
	Resource ResourceConfig    `mapstructure:"resource"`
	Logging  LoggingConfig     `mapstructure:"logging"`
}

// PoolConfig 浏览器池配置
type PoolConfig struct {
	MinSize        int           `mapstructure:"min_size"`
	MaxSize        int           `mapstructure:"max_size"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	StallThreshold time.Duration `mapstructure:"stall_threshold"`
}

// HealthConfig 健康检查配置
type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Driver           string           `mapstructure:"driver"`
	Headless         bool             `mapstructure:"headless"`
	BinPath          string           `mapstructure:"bin_path"`
	Stealth          bool             `mapstructure:"stealth"`
	UserAgent        string           `mapstructure:"user_agent"`
	Viewport         browser.Viewport `mapstructure:"viewport"`
	NavigateTimeout  time.Duration    `mapstructure:"navigate_timeout"`
	ContentTimeout   time.Duration    `mapstructure:"content_timeout"`
	EvalTimeout      time.Duration    `mapstructure:"eval_timeout"`
	CookieDomain     string           `mapstructure:"cookie_domain"`
	BlockedResources []string         `mapstructure:"blocked_resources"`
}

// StoreConfig 账号存储配置
type StoreConfig struct {
	Driver        string `mapstructure:"driver"` // memory | sqlite | mysql | redis
	DSN           string `mapstructure:"dsn"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

// SeedAccount 启动时导入的账号
type SeedAccount struct {
	Name   string `mapstructure:"name"`
	Cookie string `mapstructure:"cookie"`
	Status string `mapstructure:"status"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BatchConfig 批量爬取配置
type BatchConfig struct {
	MaxConcurrency int    `mapstructure:"max_concurrency"` // 0 表示不限制
	ReportDir      string `mapstructure:"report_dir"`
}

// ResolverConfig 短链接解析配置
type ResolverConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// ResourceConfig 扩容资源检查配置
type ResourceConfig struct {
	Enabled               bool  `mapstructure:"enabled"`
	SafetyReserveMemoryMB int64 `mapstructure:"safety_reserve_memory_mb"`
	SafetyThresholdMB     int64 `mapstructure:"safety_threshold_mb"`
	CPULoadThreshold      int   `mapstructure:"cpu_load_threshold"`
	WorkerMemoryMB        int64 `mapstructure:"worker_memory_mb"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	LogDir     string `mapstructure:"log_dir"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LoadConfig 加载配置文件
// 配置文件不存在时使用默认值; 环境变量 XHS_* 覆盖文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".xhscrawler"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 浏览器池
	v.SetDefault("pool.min_size", crawlers.DefaultMinSize)
	v.SetDefault("pool.max_size", crawlers.DefaultMaxSize)
	v.SetDefault("pool.acquire_timeout", crawlers.DefaultAcquireTimeout)
	v.SetDefault("pool.idle_timeout", crawlers.DefaultIdleTimeout)
	v.SetDefault("pool.stall_threshold", crawlers.DefaultStallThreshold)

	v.SetDefault("health.interval", crawlers.DefaultHealthInterval)

	// 浏览器
	v.SetDefault("browser.driver", browser.DriverRod)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.bin_path", "")
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.user_agent", browser.DefaultUserAgent)
	v.SetDefault("browser.viewport.width", 1920)
	v.SetDefault("browser.viewport.height", 1080)
	v.SetDefault("browser.navigate_timeout", crawlers.DefaultNavigateTimeout)
	v.SetDefault("browser.content_timeout", crawlers.DefaultContentTimeout)
	v.SetDefault("browser.eval_timeout", crawlers.DefaultEvaluateTimeout)
	v.SetDefault("browser.cookie_domain", browser.DefaultCookieDomain)
	v.SetDefault("browser.blocked_resources", browser.DefaultBlockedResources)

	// 账号存储
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "./data/accounts.db")
	v.SetDefault("store.redis_addr", "127.0.0.1:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.key_prefix", "xhs")

	// HTTP服务
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("batch.max_concurrency", 0)
	v.SetDefault("batch.report_dir", "output")

	v.SetDefault("resolver.timeout", 10*time.Second)

	// 资源检查
	v.SetDefault("resource.enabled", false)
	v.SetDefault("resource.safety_reserve_memory_mb", 1024)
	v.SetDefault("resource.safety_threshold_mb", 512)
	v.SetDefault("resource.cpu_load_threshold", 90)
	v.SetDefault("resource.worker_memory_mb", 200)

	// 日志
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Pool.MinSize < 0 {
		return fmt.Errorf("pool.min_size 不能为负数: %d", c.Pool.MinSize)
	}
	if c.Pool.MaxSize < 1 {
		return fmt.Errorf("pool.max_size 至少为1: %d", c.Pool.MaxSize)
	}
	if c.Pool.MinSize > c.Pool.MaxSize {
		return fmt.Errorf("pool.min_size(%d) 不能大于 pool.max_size(%d)", c.Pool.MinSize, c.Pool.MaxSize)
	}

	for name, d := range map[string]time.Duration{
		"pool.acquire_timeout":     c.Pool.AcquireTimeout,
		"pool.stall_threshold":     c.Pool.StallThreshold,
		"health.interval":          c.Health.Interval,
		"browser.navigate_timeout": c.Browser.NavigateTimeout,
		"browser.content_timeout":  c.Browser.ContentTimeout,
		"browser.eval_timeout":     c.Browser.EvalTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s 必须为正数: %v", name, d)
		}
	}

	switch strings.ToLower(c.Browser.Driver) {
	case browser.DriverRod, browser.DriverChromedp:
	default:
		return fmt.Errorf("未知浏览器驱动: %s (可选 rod, chromedp)", c.Browser.Driver)
	}

	switch strings.ToLower(c.Store.Driver) {
	case "memory", "sqlite", "mysql", "redis":
	default:
		return fmt.Errorf("未知账号存储: %s (可选 memory, sqlite, mysql, redis)", c.Store.Driver)
	}

	if c.Batch.MaxConcurrency < 0 {
		return fmt.Errorf("batch.max_concurrency 不能为负数: %d", c.Batch.MaxConcurrency)
	}
	return nil
}

// MergeCLIFlags 合并命令行参数到配置
// 零值表示未指定,保持配置文件中的值
func (c *Config) MergeCLIFlags(logLevel string, minSize, maxSize int, headless *bool, driver string) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if minSize > 0 {
		c.Pool.MinSize = minSize
	}
	if maxSize > 0 {
		c.Pool.MaxSize = maxSize
	}
	if headless != nil {
		c.Browser.Headless = *headless
	}
	if driver != "" {
		c.Browser.Driver = driver
	}
}

// LogConfig 转换为日志配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
		Compress:   c.Logging.Compress,
	}
}

// PoolConfig 转换为浏览器池配置
func (c *Config) PoolConfig(headers http.Header) crawlers.PoolConfig {
	pc := crawlers.DefaultPoolConfig()
	pc.MinSize = c.Pool.MinSize
	pc.MaxSize = c.Pool.MaxSize
	pc.AcquireTimeout = c.Pool.AcquireTimeout
	pc.IdleTimeout = c.Pool.IdleTimeout
	pc.StallThreshold = c.Pool.StallThreshold

	pc.Worker.NavigateTimeout = c.Browser.NavigateTimeout
	pc.Worker.ContentTimeout = c.Browser.ContentTimeout
	pc.Worker.EvaluateTimeout = c.Browser.EvalTimeout

	page := &pc.Worker.Page
	if c.Browser.UserAgent != "" {
		page.UserAgent = c.Browser.UserAgent
	}
	if c.Browser.Viewport.Width > 0 && c.Browser.Viewport.Height > 0 {
		page.Viewport = c.Browser.Viewport
	}
	if c.Browser.CookieDomain != "" {
		page.CookieDomain = c.Browser.CookieDomain
	}
	page.BlockedResources = c.Browser.BlockedResources
	page.ExtraHeaders = headers
	return pc
}

// LaunchOptions 转换为浏览器启动参数
func (c *Config) LaunchOptions() browser.LaunchOptions {
	return browser.LaunchOptions{
		Headless: c.Browser.Headless,
		BinPath:  c.Browser.BinPath,
		Stealth:  c.Browser.Stealth,
	}
}

// ResourceMonitorConfig 转换为资源监控配置
func (c *Config) ResourceMonitorConfig() crawlers.ResourceMonitorConfig {
	const mb = 1024 * 1024
	return crawlers.ResourceMonitorConfig{
		SafetyReserveMemory: c.Resource.SafetyReserveMemoryMB * mb,
		SafetyThreshold:     c.Resource.SafetyThresholdMB * mb,
		CPULoadThreshold:    c.Resource.CPULoadThreshold,
		WorkerMemoryUsage:   c.Resource.WorkerMemoryMB * mb,
	}
}
