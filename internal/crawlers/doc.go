// Package crawlers 管理浏览器实例及其池化调度
//
// # 核心组件
//
// ## Worker
//
// 一个浏览器会话及其状态机:
//
//	UNINITIALIZED --启动成功--> IDLE <--> BUSY
//	      任意状态 --启动失败--> ERROR (需重新启动)
//
// 导航、取内容、执行脚本的失败只记录日志并返回 SessionError,实例保持可用。
// 每个操作都与自身超时赛跑,超时后实例仍可归还。
//
// ## WorkerPool (浏览器池)
//
// 在 [MinSize, MaxSize] 内弹性管理实例。获取顺序:
//   - 有空闲且健康的实例: 应用凭证后直接返回
//   - 实例数未达上限: 启动新实例(弹性扩容)
//   - 否则进入FIFO队列,每个请求有独立截止时间,超时只移除自身
//
// 归还时若队列非空,实例在同一临界区内直接交给队首,第三方看不到其空闲状态。
//
//	pool := NewWorkerPool(driver, DefaultPoolConfig())
//	_ = pool.Initialize(ctx, 2)
//	defer pool.Close()
//
//	w, err := pool.Acquire(ctx, account.Cookie, 30*time.Second)
//	if err != nil { /* ErrAcquisitionTimeout 等 */ }
//	defer pool.ReleaseLease(w.ID(), w.Lease())
//
// ## HealthMonitor (健康检查)
//
// 定时调用 WorkerPool.HealthSweep:
//   - 断连实例原地重建,失败则移出池,低于 MinSize 时补充
//   - 持有超过5分钟的实例强制归还并交给等待者
//
// 内部异常全部记录日志,不向调用方传播。
//
// ## ResourceMonitor (资源监控器)
//
// 采样系统可用内存与CPU负载。启用后作为 ResourceGuard 在扩容前检查,
// 资源紧张时请求转为排队而不是启动新浏览器。
//
// # 并发安全
//
// 池内的实例列表与等待队列由同一把互斥锁保护,锁顺序为 池锁 → 实例锁。
// 启动、关闭等耗时操作都在锁外执行,通过 launching 计数占位保证实例数不超过上限。
package crawlers
