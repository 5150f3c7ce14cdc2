package server

import (
	"sync/atomic"
)

// Metrics 记录服务运行期的关键指标（用于监控与调试）
type Metrics struct {
	TickCount         int64 // Tick 次数
	TotalTickNs       int64 // Tick 累计耗时（纳秒）
	CommandsAccepted  int64 // 进入 Tick 队列的命令
	CommandsDropped   int64 // 因队列满被丢弃的命令
	RateLimited       int64 // 因连接限流被丢弃的消息
	Malformed         int64 // 无法解析的消息
	LoginsAccepted    int64
	LoginsRejected    int64
	SessionLimitHits  int64 // 同一地址并发会话被拒
	AFKEvictions      int64
	SavesQueued       int64
	SavesDropped      int64 // 写队列满或已关闭时被丢弃的存档
	SaveFailures      int64
	ProjectilesFired  int64
	ProjectileHits    int64
	HostilesDestroyed int64
	SendDropped       int64 // 发送队列满被丢弃的出站帧
}

func (m *Metrics) IncAccepted()         { atomic.AddInt64(&m.CommandsAccepted, 1) }
func (m *Metrics) IncDropped()          { atomic.AddInt64(&m.CommandsDropped, 1) }
func (m *Metrics) IncRateLimited()      { atomic.AddInt64(&m.RateLimited, 1) }
func (m *Metrics) IncMalformed()        { atomic.AddInt64(&m.Malformed, 1) }
func (m *Metrics) IncLoginAccepted()    { atomic.AddInt64(&m.LoginsAccepted, 1) }
func (m *Metrics) IncLoginRejected()    { atomic.AddInt64(&m.LoginsRejected, 1) }
func (m *Metrics) IncSessionLimit()     { atomic.AddInt64(&m.SessionLimitHits, 1) }
func (m *Metrics) IncAFKEviction()      { atomic.AddInt64(&m.AFKEvictions, 1) }
func (m *Metrics) IncSaveQueued()       { atomic.AddInt64(&m.SavesQueued, 1) }
func (m *Metrics) IncSaveDropped()      { atomic.AddInt64(&m.SavesDropped, 1) }
func (m *Metrics) IncSaveFailure()      { atomic.AddInt64(&m.SaveFailures, 1) }
func (m *Metrics) IncFired()            { atomic.AddInt64(&m.ProjectilesFired, 1) }
func (m *Metrics) IncHit()              { atomic.AddInt64(&m.ProjectileHits, 1) }
func (m *Metrics) IncHostileDestroyed() { atomic.AddInt64(&m.HostilesDestroyed, 1) }
func (m *Metrics) IncSendDropped()      { atomic.AddInt64(&m.SendDropped, 1) }
func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":         tick,
		"avg_tick_ms":        avgMs,
		"commands_accepted":  atomic.LoadInt64(&m.CommandsAccepted),
		"commands_dropped":   atomic.LoadInt64(&m.CommandsDropped),
		"rate_limited":       atomic.LoadInt64(&m.RateLimited),
		"malformed":          atomic.LoadInt64(&m.Malformed),
		"logins_accepted":    atomic.LoadInt64(&m.LoginsAccepted),
		"logins_rejected":    atomic.LoadInt64(&m.LoginsRejected),
		"session_limit_hits": atomic.LoadInt64(&m.SessionLimitHits),
		"afk_evictions":      atomic.LoadInt64(&m.AFKEvictions),
		"saves_queued":       atomic.LoadInt64(&m.SavesQueued),
		"saves_dropped":      atomic.LoadInt64(&m.SavesDropped),
		"save_failures":      atomic.LoadInt64(&m.SaveFailures),
		"projectiles_fired":  atomic.LoadInt64(&m.ProjectilesFired),
		"projectile_hits":    atomic.LoadInt64(&m.ProjectileHits),
		"hostiles_destroyed": atomic.LoadInt64(&m.HostilesDestroyed),
		"send_dropped":       atomic.LoadInt64(&m.SendDropped),
	}
}
