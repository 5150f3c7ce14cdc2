package server

import (
	"sync"
	"time"
)

const (
	// TicksPerSecond 世界推进频率（60 TPS）
	TicksPerSecond = 60
	// SaveInterval 周期存档间隔
	SaveInterval = 30 * time.Second
)

// Clock 驱动房间：高频 Tick 与低频存档在同一协程中，房间状态因此只有一个写者
type Clock struct {
	room         *Room
	tickInterval time.Duration
	saveInterval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	stopped chan struct{}
}

func NewClock(room *Room, tickInterval, saveInterval time.Duration) *Clock {
	if tickInterval <= 0 {
		tickInterval = time.Second / TicksPerSecond
	}
	if saveInterval <= 0 {
		saveInterval = SaveInterval
	}
	return &Clock{room: room, tickInterval: tickInterval, saveInterval: saveInterval}
}

// Start 启动 Tick 循环；已启动时什么也不做
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})
	go c.loop(c.stop, c.stopped)
}

// Stop 停止两个周期动作并等待循环退出；未启动时安全
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stop)
	<-c.stopped
}

func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Clock) loop(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	saver := time.NewTicker(c.saveInterval)
	defer saver.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			// 核心循环：处理命令 → 更新世界 → 广播结果
			c.room.Tick(now)
		case <-saver.C:
			c.room.SaveAll()
		}
	}
}
