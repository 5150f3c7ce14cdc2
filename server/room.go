package server

import (
	"errors"
	"sync/atomic"
	"time"

	"spacearena/protocol"
)

var ErrRoomBusy = errors.New("room did not respond in time")

const (
	maxTickDelta = 0.25 // 秒；长时间停顿后避免一步跳太远

	noticeInactive  = "Disconnected due to inactivity"
	noticeReplaced  = "Logged in from another location"
	noticeNotLogged = "Not logged in"
)

// Room 世界及其在线连接。所有状态只在 Tick 协程中修改，
// 其他协程通过 Submit / Leave / Do 投递命令。
type Room struct {
	world    *World
	registry *AddressRegistry
	metrics  *Metrics

	commands  chan Command
	byAccount map[uint]ConnID

	afkTimeout time.Duration
	lastTick   time.Time
	tickSeq    atomic.Int64
	online     atomic.Int64
}

// RoomOptions 房间参数
type RoomOptions struct {
	AFKTimeout time.Duration
	QueueSize  int
}

func NewRoom(world *World, registry *AddressRegistry, metrics *Metrics, opts RoomOptions) *Room {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024 // 足够缓冲，避免网络读阻塞影响 Tick
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Room{
		world:      world,
		registry:   registry,
		metrics:    metrics,
		commands:   make(chan Command, opts.QueueSize),
		byAccount:  make(map[uint]ConnID),
		afkTimeout: opts.AFKTimeout,
	}
}

func (r *Room) World() *World              { return r.world }
func (r *Room) Metrics() *Metrics          { return r.metrics }
func (r *Room) TickSeq() int64             { return r.tickSeq.Load() }
func (r *Room) QueueLen() int              { return len(r.commands) }
func (r *Room) Online() int64              { return r.online.Load() }
func (r *Room) Registry() *AddressRegistry { return r.registry }

// Submit 非阻塞投递：队列满时丢弃，保证 Tick 准时
func (r *Room) Submit(cmd Command) bool {
	select {
	case r.commands <- cmd:
		r.metrics.IncAccepted()
		return true
	default:
		r.metrics.IncDropped()
		return false
	}
}

// Leave 连接关闭后请求移除玩家。离开必须生效，所以这里阻塞等待（有超时）。
func (r *Room) Leave(c Conn) {
	select {
	case r.commands <- Command{Conn: c, Leave: true}:
	case <-time.After(time.Second):
		Log.Warnf("leave dropped, queue full: conn=%s", c.ID())
	}
}

// Do 在 Tick 协程中执行 fn 并等待完成
func (r *Room) Do(fn func(r *Room)) error {
	done := make(chan struct{})
	select {
	case r.commands <- Command{Fn: fn, done: done}:
	case <-time.After(time.Second):
		return ErrRoomBusy
	}
	select {
	case <-done:
		return nil
	case <-time.After(2 * time.Second):
		return ErrRoomBusy
	}
}

// Tick 一帧：处理命令 → 推进世界 → 踢出挂机玩家 → 广播快照
func (r *Room) Tick(now time.Time) {
	start := time.Now()
	dt := 0.0
	if !r.lastTick.IsZero() {
		dt = min(now.Sub(r.lastTick).Seconds(), maxTickDelta)
	}
	r.lastTick = now
	r.tickSeq.Add(1)

	r.drain(now)
	r.world.Advance(now, dt)
	r.evictInactive(now)
	r.broadcast(now)

	r.metrics.AddTick(time.Since(start).Nanoseconds())
}

// drain 非阻塞取完当前队列
func (r *Room) drain(now time.Time) {
	for {
		select {
		case cmd := <-r.commands:
			r.execute(cmd, now)
		default:
			return
		}
	}
}

// execute 单条命令出错（含 panic）不影响 Tick 继续推进
func (r *Room) execute(cmd Command, now time.Time) {
	defer func() {
		if cmd.done != nil {
			close(cmd.done)
		}
		if rec := recover(); rec != nil {
			Log.Errorf("command panic recovered: %v", rec)
		}
	}()

	switch {
	case cmd.Fn != nil:
		cmd.Fn(r)
	case cmd.Leave:
		r.removePlayer(cmd.Conn.ID())
	case cmd.Admit != nil:
		r.admit(cmd.Conn, cmd.Admit, now)
	case cmd.Msg != nil:
		r.dispatch(cmd.Conn, cmd.Msg, now)
	}
}

func (r *Room) dispatch(c Conn, msg protocol.Inbound, now time.Time) {
	h, ok := tickHandlers[msg.Type()]
	if !ok {
		Log.Warnf("no tick handler: conn=%s type=%s", c.ID(), msg.Type())
		return
	}
	p, _ := r.world.Player(c.ID())
	if p == nil && msg.Type() != protocol.MsgDisconnect {
		r.send(c, protocol.MsgError, protocol.ErrorMessage{Message: noticeNotLogged})
		return
	}
	h(r, c, p, msg, now)
}

// admit 把认证通过的连接放入世界。
// 同一账号再次登录时顶掉旧会话；同一公网地址只允许一个会话。
func (r *Room) admit(c Conn, a *Admission, now time.Time) {
	if _, ok := r.world.Player(c.ID()); ok {
		r.send(c, protocol.MsgError, protocol.ErrorMessage{Message: "Already logged in"})
		return
	}
	addr := c.Addr()
	oldID, hasOld := r.byAccount[a.Identity.AccountID]
	if holder, held := r.registry.Holder(addr); held && !(hasOld && holder == oldID) {
		r.rejectAdmission(c, a, ErrConcurrentSession)
		return
	}
	if hasOld {
		Log.Infof("session replaced: user=%s old=%s new=%s", a.Identity.Username, oldID, c.ID())
		r.disconnect(oldID, noticeReplaced)
	}
	if err := r.registry.Register(addr, c.ID()); err != nil {
		r.rejectAdmission(c, a, err)
		return
	}

	p := r.world.AddPlayer(c.ID(), a.Identity, a.Record)
	p.Address = addr
	p.Token = a.Token
	p.LastInput = now
	p.Conn = c
	r.byAccount[p.AccountID] = p.ID
	r.online.Add(1)
	r.metrics.IncLoginAccepted()

	r.send(c, protocol.MsgLoginSuccess, p.LoginSuccess())
	r.send(c, protocol.MsgInventory, p.Inventory())
	Log.Infof("player joined: id=%s user=%s addr=%s resumed=%t", p.ID, p.Username, addr, a.Resumed)
}

func (r *Room) rejectAdmission(c Conn, a *Admission, err error) {
	r.metrics.IncLoginRejected()
	if errors.Is(err, ErrConcurrentSession) {
		r.metrics.IncSessionLimit()
	}
	Log.Warnf("admission rejected: user=%s addr=%s err=%v", a.Identity.Username, c.Addr(), err)
	r.send(c, protocol.MsgLoginResponse, protocol.Response{Success: false, Message: err.Error()})
}

// disconnect 通知（可选）并关闭连接，随后移除玩家
func (r *Room) disconnect(id ConnID, notice string) {
	p, ok := r.world.Player(id)
	if !ok {
		return
	}
	if p.Conn != nil {
		if notice != "" {
			r.send(p.Conn, protocol.MsgError, protocol.ErrorMessage{Message: notice})
		}
		p.Conn.Close()
	}
	r.removePlayer(id)
}

// removePlayer 释放地址并移除玩家；重复调用无副作用
func (r *Room) removePlayer(id ConnID) bool {
	p, ok := r.world.Player(id)
	if !ok {
		return false
	}
	if holder, held := r.registry.Holder(p.Address); held && holder == id {
		r.registry.Release(p.Address)
	}
	if r.byAccount[p.AccountID] == id {
		delete(r.byAccount, p.AccountID)
	}
	r.world.RemovePlayer(id)
	r.online.Add(-1)
	Log.Infof("player left: id=%s user=%s", id, p.Username)
	return true
}

// evictInactive 超过 AFK 时限（严格大于）未输入的玩家被踢出
func (r *Room) evictInactive(now time.Time) {
	if r.afkTimeout <= 0 {
		return
	}
	for _, p := range r.world.Players() {
		if now.Sub(p.LastInput) > r.afkTimeout {
			r.metrics.IncAFKEviction()
			Log.Infof("afk eviction: id=%s user=%s idle=%s", p.ID, p.Username, now.Sub(p.LastInput).Round(time.Second))
			r.disconnect(p.ID, noticeInactive)
		}
	}
}

// broadcast 每种编码只序列化一次
func (r *Room) broadcast(now time.Time) {
	players := r.world.Players()
	if len(players) == 0 {
		return
	}
	gs := r.world.Snapshot(now)
	frames := make(map[string][]byte, 2)
	for _, p := range players {
		if p.Conn == nil {
			continue
		}
		codec := p.Conn.Codec()
		frame, ok := frames[codec.Name()]
		if !ok {
			b, err := protocol.Encode(codec, protocol.MsgGameState, gs)
			if err != nil {
				Log.Errorf("encode snapshot: codec=%s err=%v", codec.Name(), err)
				continue
			}
			frames[codec.Name()], frame = b, b
		}
		p.Conn.Enqueue(frame)
	}
}

func (r *Room) send(c Conn, t protocol.MsgType, data any) {
	b, err := protocol.Encode(c.Codec(), t, data)
	if err != nil {
		Log.Errorf("encode %s: %v", t, err)
		return
	}
	c.Enqueue(b)
}

// SaveAll 周期存档：把所有在线玩家交给写协程
func (r *Room) SaveAll() int {
	n := 0
	for _, p := range r.world.Players() {
		if r.world.Persist(p.ID) {
			n++
		}
	}
	if n > 0 {
		Log.Infof("persistence sweep: %d players", n)
	}
	return n
}

// CloseAll 关服时断开全部玩家（每个玩家都会留下最终存档）
func (r *Room) CloseAll(notice string) {
	for _, p := range r.world.Players() {
		r.disconnect(p.ID, notice)
	}
}

func (r *Room) AFKTimeout() time.Duration { return r.afkTimeout }

func (r *Room) SetAFKTimeout(d time.Duration) { r.afkTimeout = d }
