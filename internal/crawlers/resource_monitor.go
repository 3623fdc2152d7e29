package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 系统资源监控器
// 职责: 采样系统内存与CPU,在资源紧张时阻止浏览器池扩容,并为健康接口提供内存状态
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 采样函数,测试时可替换
	sampleMemory func() (total, available uint64, err error)
	sampleCPU    func() (float64, error)

	mu              sync.RWMutex
	totalMemory     uint64
	availableMemory uint64
	cpuUsage        float64
	lastSample      time.Time

	cancelFunc context.CancelFunc
	isRunning  bool
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 安全保留内存(字节)
	SafetyThreshold     int64 // 扣除保留后的最低可用内存(字节)
	CPULoadThreshold    int   // CPU负载阈值(%), >=200 视为禁用
	WorkerMemoryUsage   int64 // 单个浏览器实例平均内存消耗(字节)
}

// MemoryStatus 内存状态信息
type MemoryStatus struct {
	TotalMemory     uint64  `json:"totalMemory"`     // 系统总内存(字节)
	AvailableMemory int64   `json:"availableMemory"` // 扣除保留后的可用内存(字节)
	ProcessAlloc    uint64  `json:"processAlloc"`    // 本进程堆内存(字节)
	CPUUsage        float64 `json:"cpuUsage"`        // 最近一次CPU使用率(%)
	MemoryPressure  string  `json:"memoryPressure"`  // 内存压力等级
}

// NewResourceMonitor 创建资源监控器并立即采样一次
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.WorkerMemoryUsage <= 0 {
		config.WorkerMemoryUsage = 200 * 1024 * 1024 // 200MB
	}

	rm := &ResourceMonitor{
		config: config,
		sampleMemory: func() (uint64, uint64, error) {
			vm, err := mem.VirtualMemory()
			if err != nil {
				return 0, 0, err
			}
			return vm.Total, vm.Available, nil
		},
		sampleCPU: func() (float64, error) {
			// 100毫秒采样,避免阻塞过久
			percentages, err := cpu.Percent(100*time.Millisecond, false)
			if err != nil {
				return 0, err
			}
			if len(percentages) == 0 {
				return 0, fmt.Errorf("CPU使用率数据为空")
			}
			return percentages[0], nil
		},
	}
	rm.Sample()

	rm.mu.RLock()
	log.Info().Msgf("系统总内存: %.2f GB", float64(rm.totalMemory)/(1024*1024*1024))
	rm.mu.RUnlock()
	return rm
}

// Sample 采样一次内存与CPU
func (rm *ResourceMonitor) Sample() {
	total, available, err := rm.sampleMemory()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败")
	}
	cpuUsage, cpuErr := rm.sampleCPU()
	if cpuErr != nil {
		log.Warn().Err(cpuErr).Msg("获取CPU使用率失败")
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if err == nil {
		rm.totalMemory = total
		rm.availableMemory = available
	}
	if cpuErr == nil {
		rm.cpuUsage = cpuUsage
	}
	rm.lastSample = time.Now()
}

// StartMonitoring 启动后台周期采样(幂等)
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	rm.isRunning = true

	go rm.monitoringLoop(ctx, interval)
}

func (rm *ResourceMonitor) monitoringLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.Sample()
		}
	}
}

// StopMonitoring 停止资源监控
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isRunning && rm.cancelFunc != nil {
		rm.cancelFunc()
		rm.isRunning = false
		rm.cancelFunc = nil
	}
}

func (rm *ResourceMonitor) usableMemory() int64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return int64(rm.availableMemory) - rm.config.SafetyReserveMemory
}

// CheckResourceAvailability 检查当前资源是否允许再启动一个浏览器实例
func (rm *ResourceMonitor) CheckResourceAvailability() (canCreate bool, reason string) {
	available := rm.usableMemory()

	if available-rm.config.WorkerMemoryUsage < rm.config.SafetyThreshold {
		return false, fmt.Sprintf("内存不足(当前%dMB)", available/(1024*1024))
	}

	if rm.config.CPULoadThreshold < 200 {
		rm.mu.RLock()
		cpuUsage := rm.cpuUsage
		rm.mu.RUnlock()

		if cpuUsage > float64(rm.config.CPULoadThreshold) {
			return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", cpuUsage)
		}
	}

	return true, ""
}

// CalculateMaxWorkers 按可用内存估算可容纳的实例数,不超过 limit
func (rm *ResourceMonitor) CalculateMaxWorkers(limit int) int {
	surplus := rm.usableMemory() - rm.config.SafetyThreshold
	n := 1
	if surplus > 0 {
		n = int(surplus / rm.config.WorkerMemoryUsage)
	}
	if limit > 0 && n > limit {
		n = limit
	}
	if n < 1 {
		n = 1
	}
	return n
}

// GetMemoryStatus 获取当前内存状态
func (rm *ResourceMonitor) GetMemoryStatus() MemoryStatus {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	available := rm.usableMemory()
	rm.mu.RLock()
	total, cpuUsage := rm.totalMemory, rm.cpuUsage
	rm.mu.RUnlock()

	var pressure string
	availableMB := available / (1024 * 1024)
	switch {
	case availableMB < 200:
		pressure = "emergency"
	case availableMB < 300:
		pressure = "critical"
	case availableMB < 500:
		pressure = "warning"
	default:
		pressure = "normal"
	}

	return MemoryStatus{
		TotalMemory:     total,
		AvailableMemory: available,
		ProcessAlloc:    ms.Alloc,
		CPUUsage:        cpuUsage,
		MemoryPressure:  pressure,
	}
}
