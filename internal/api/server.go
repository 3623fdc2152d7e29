// Package api 提供爬虫的 HTTP 接口
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RecoveryAshes/XhsCrawler/internal/accounts"
	"github.com/RecoveryAshes/XhsCrawler/internal/api/middleware"
	"github.com/RecoveryAshes/XhsCrawler/internal/crawlers"
	"github.com/RecoveryAshes/XhsCrawler/internal/models"
	"github.com/RecoveryAshes/XhsCrawler/internal/utils"
)

// MaxBatchSize 单次批量请求的目标上限
const MaxBatchSize = 50

// Crawler 编排器对外能力
type Crawler interface {
	CrawlOne(ctx context.Context, target models.Target) (*models.ExtractionResult, error)
	CrawlBatch(ctx context.Context, targets []models.Target) []models.BatchResult
}

// PoolInspector 浏览器池状态
type PoolInspector interface {
	Status() crawlers.PoolStatus
}

// MemoryReporter 主机内存状态
type MemoryReporter interface {
	GetMemoryStatus() crawlers.MemoryStatus
}

// Server 持有路由与依赖
type Server struct {
	crawler   Crawler
	accounts  accounts.Repository
	pool      PoolInspector
	memory    MemoryReporter
	validator *utils.HeaderValidator
	router    *gin.Engine
	started   time.Time
}

// NewServer 创建服务并注册路由
func NewServer(crawler Crawler, repo accounts.Repository, pool PoolInspector, memory MemoryReporter) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	s := &Server{
		crawler:   crawler,
		accounts:  repo,
		pool:      pool,
		memory:    memory,
		validator: utils.NewHeaderValidator(),
		router:    r,
		started:   time.Now(),
	}
	s.registerRoutes()
	return s
}

// Router 返回 HTTP 路由处理器
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")

	posts := api.Group("/posts")
	posts.GET("/:postId/detail", s.handleCrawlPost)
	posts.POST("/batch", s.handleCrawlPostBatch)

	users := api.Group("/users")
	users.GET("/info", s.handleUserInfo)
	users.POST("/crawl", s.handleCrawlUser)
	users.POST("/batch", s.handleCrawlUserBatch)

	accts := api.Group("/accounts")
	accts.GET("", s.handleListAccounts)
	accts.POST("", s.handleCreateAccount)
	accts.GET("/:id", s.handleGetAccount)
	accts.DELETE("/:id", s.handleDeleteAccount)
	accts.PATCH("/:id/status", s.handleUpdateAccountStatus)

	api.GET("/pool/status", s.handlePoolStatus)
}

// healthResponse 健康检查响应,不使用统一格式
type healthResponse struct {
	Status    string                `json:"status"`
	Timestamp string                `json:"timestamp"`
	Uptime    float64               `json:"uptime"` // 秒
	Memory    crawlers.MemoryStatus `json:"memory"`
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Uptime:    time.Since(s.started).Seconds(),
	}
	if s.memory != nil {
		resp.Memory = s.memory.GetMemoryStatus()
	}
	c.JSON(http.StatusOK, resp)
}

type poolStatusView struct {
	crawlers.PoolStatus
	IdleTimeoutMs int64 `json:"idleTimeoutMs"`
}

func (s *Server) handlePoolStatus(c *gin.Context) {
	st := s.pool.Status()
	success(c, poolStatusView{PoolStatus: st, IdleTimeoutMs: st.IdleTimeout.Milliseconds()}, "")
}
