// Package metrics 定义 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "xhs_crawler"

var (
	PoolWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_workers",
			Help:      "浏览器池中各状态实例数",
		},
		[]string{"state"}, // idle, busy, total
	)

	PoolWaiters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_waiters",
			Help:      "等待获取浏览器实例的请求数",
		},
	)

	PoolAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_acquisitions_total",
			Help:      "浏览器实例获取次数",
		},
		[]string{"outcome"}, // idle, grown, queued, timeout, error
	)

	HealthActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_actions_total",
			Help:      "健康检查执行的修复动作",
		},
		[]string{"action"}, // relaunch, evict, replace, force_release
	)

	CrawlsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawls_total",
			Help:      "爬取次数",
		},
		[]string{"kind", "status"},
	)

	CrawlDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crawl_duration_seconds",
			Help:      "单次爬取耗时",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"kind"},
	)

	ExtractionSource = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_source_total",
			Help:      "提取结果来源",
		},
		[]string{"kind", "source"}, // session, STRUCTURED, FALLBACK
	)

	AccountUsage = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_usage_total",
			Help:      "记录的账号使用次数",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP请求数",
		},
		[]string{"method", "path", "status"},
	)
)

// ObservePool 更新池状态指标
func ObservePool(total, idle, busy, waiters int) {
	PoolWorkers.WithLabelValues("total").Set(float64(total))
	PoolWorkers.WithLabelValues("idle").Set(float64(idle))
	PoolWorkers.WithLabelValues("busy").Set(float64(busy))
	PoolWaiters.Set(float64(waiters))
}
