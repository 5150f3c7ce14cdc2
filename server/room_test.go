package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacearena/protocol"
)

type fakeConn struct {
	mu     sync.Mutex
	id     ConnID
	addr   string
	codec  protocol.Codec
	frames [][]byte
	closed int
}

func newFakeConn(id, addr string) *fakeConn {
	return &fakeConn{id: ConnID(id), addr: addr, codec: protocol.JSON}
}

func (c *fakeConn) ID() ConnID            { return c.id }
func (c *fakeConn) Addr() string          { return c.addr }
func (c *fakeConn) Codec() protocol.Codec { return c.codec }

func (c *fakeConn) Enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, b)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
}

// types 按顺序返回收到的消息类型
func (c *fakeConn) types(t *testing.T) []protocol.MsgType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.MsgType, 0, len(c.frames))
	for _, f := range c.frames {
		typ, err := protocol.Peek(c.codec, f)
		require.NoError(t, err)
		out = append(out, typ)
	}
	return out
}

// last 最后一条指定类型的消息
func last[T any](t *testing.T, c *fakeConn, typ protocol.MsgType) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		got, err := protocol.Peek(c.codec, c.frames[i])
		require.NoError(t, err)
		if got == typ {
			v, err := protocol.DecodeOutbound[T](c.codec, c.frames[i])
			require.NoError(t, err)
			return v, true
		}
	}
	var zero T
	return zero, false
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestRoom(t *testing.T) (*Room, *recordingSaver) {
	t.Helper()
	saver := &recordingSaver{}
	world := NewWorld(testWorldOptions(), saver, nil)
	return NewRoom(world, NewAddressRegistry(), nil, RoomOptions{AFKTimeout: 10 * time.Minute}), saver
}

func admitConn(r *Room, c Conn, account uint, name string, now time.Time) {
	r.Submit(Command{Conn: c, Admit: &Admission{
		Identity: Identity{AccountID: account, Username: name},
		Token:    "tok-" + name,
	}})
	r.Tick(now)
}

func TestAdmitSendsLoginSuccessAndInventory(t *testing.T) {
	r, _ := newTestRoom(t)
	c := newFakeConn("c1", "203.0.113.7")
	admitConn(r, c, 1, "nova", t0)

	types := c.types(t)
	require.GreaterOrEqual(t, len(types), 3)
	assert.Equal(t, []protocol.MsgType{protocol.MsgLoginSuccess, protocol.MsgInventory, protocol.MsgGameState}, types[:3])

	ls, ok := last[protocol.LoginSuccess](t, c, protocol.MsgLoginSuccess)
	require.True(t, ok)
	assert.Equal(t, "c1", ls.ID)
	assert.Equal(t, "tok-nova", ls.SessionToken)
	assert.Equal(t, protocol.Position{X: 1000, Y: 1000}, ls.Position)
	assert.Equal(t, 1, ls.Level)
	assert.Equal(t, DefaultShip, ls.ShipType)
	assert.Equal(t, int64(1), r.Online())
}

func TestSecondSessionFromSameAddressIsRejected(t *testing.T) {
	r, _ := newTestRoom(t)
	a := newFakeConn("c1", "203.0.113.7")
	b := newFakeConn("c2", "203.0.113.7")
	admitConn(r, a, 1, "nova", t0)
	admitConn(r, b, 2, "vega", t0)

	resp, ok := last[protocol.Response](t, b, protocol.MsgLoginResponse)
	require.True(t, ok)
	assert.False(t, resp.Success)
	assert.Equal(t, "concurrent session limit", resp.Message)
	_, inWorld := r.World().Player("c2")
	assert.False(t, inWorld)
	assert.Equal(t, int64(1), r.Metrics().SessionLimitHits)
}

func TestLoopbackAllowsConcurrentSessions(t *testing.T) {
	r, _ := newTestRoom(t)
	for i, name := range []string{"a", "b", "c"} {
		admitConn(r, newFakeConn(name, "127.0.0.1"), uint(i+1), name, t0)
	}
	assert.Equal(t, 3, r.World().PlayerCount())
	assert.Zero(t, r.Registry().Len())
}

func TestSameAccountTakesOverOldSession(t *testing.T) {
	r, saver := newTestRoom(t)
	old := newFakeConn("c1", "203.0.113.7")
	admitConn(r, old, 1, "nova", t0)

	fresh := newFakeConn("c2", "203.0.113.7")
	admitConn(r, fresh, 1, "nova", t0.Add(time.Second))

	assert.Equal(t, 1, old.closeCount())
	notice, ok := last[protocol.ErrorMessage](t, old, protocol.MsgError)
	require.True(t, ok)
	assert.Equal(t, noticeReplaced, notice.Message)
	_, ok = last[protocol.LoginSuccess](t, fresh, protocol.MsgLoginSuccess)
	assert.True(t, ok)
	assert.Equal(t, 1, r.World().PlayerCount())
	assert.Len(t, saver.recs, 1)

	holder, _ := r.Registry().Holder("203.0.113.7")
	assert.Equal(t, ConnID("c2"), holder)
}

func TestAFKEvictionHappensExactlyOnceAfterTimeout(t *testing.T) {
	r, saver := newTestRoom(t)
	c := newFakeConn("c1", "203.0.113.7")
	admitConn(r, c, 1, "nova", t0)

	r.Tick(t0.Add(10 * time.Minute))
	_, present := r.World().Player("c1")
	require.True(t, present, "evicted before timeout elapsed")

	r.Tick(t0.Add(10*time.Minute + time.Millisecond))
	_, present = r.World().Player("c1")
	assert.False(t, present)
	assert.Equal(t, 1, c.closeCount())
	notice, ok := last[protocol.ErrorMessage](t, c, protocol.MsgError)
	require.True(t, ok)
	assert.Equal(t, "Disconnected due to inactivity", notice.Message)

	// 连接关闭后读协程仍会投递一次离开
	r.Leave(c)
	r.Tick(t0.Add(11 * time.Minute))
	assert.Len(t, saver.recs, 1)
	assert.Equal(t, int64(1), r.Metrics().AFKEvictions)
	assert.Zero(t, r.Registry().Len())
	assert.Zero(t, r.Online())
}

func TestInputResetsInactivityTimer(t *testing.T) {
	r, _ := newTestRoom(t)
	c := newFakeConn("c1", "203.0.113.7")
	admitConn(r, c, 1, "nova", t0)

	r.Submit(Command{Conn: c, Msg: protocol.PlayerInput{X: 1200, Y: 1000}})
	r.Tick(t0.Add(9 * time.Minute))
	r.Tick(t0.Add(15 * time.Minute))

	_, present := r.World().Player("c1")
	assert.True(t, present)
}

func TestLeaveReleasesAddress(t *testing.T) {
	r, saver := newTestRoom(t)
	c := newFakeConn("c1", "203.0.113.7")
	admitConn(r, c, 1, "nova", t0)
	require.Equal(t, 1, r.Registry().Len())

	r.Leave(c)
	r.Tick(t0.Add(time.Second))
	assert.Zero(t, r.Registry().Len())
	assert.Zero(t, r.World().PlayerCount())
	assert.Len(t, saver.recs, 1)
}

func TestDisconnectMessageClosesAndRemoves(t *testing.T) {
	r, _ := newTestRoom(t)
	c := newFakeConn("c1", "203.0.113.7")
	admitConn(r, c, 1, "nova", t0)

	r.Submit(Command{Conn: c, Msg: protocol.Disconnect{}})
	r.Tick(t0.Add(time.Second))
	assert.Equal(t, 1, c.closeCount())
	assert.Zero(t, r.World().PlayerCount())

	// 未登录的连接也可以断开
	anon := newFakeConn("c2", "198.51.100.2")
	r.Submit(Command{Conn: anon, Msg: protocol.Disconnect{}})
	r.Tick(t0.Add(2 * time.Second))
	assert.Equal(t, 1, anon.closeCount())
}

func TestGameplayRequiresLogin(t *testing.T) {
	r, _ := newTestRoom(t)
	c := newFakeConn("c1", "203.0.113.7")

	r.Submit(Command{Conn: c, Msg: protocol.FireBeam{AmmoType: "x1"}})
	r.Tick(t0)

	msg, ok := last[protocol.ErrorMessage](t, c, protocol.MsgError)
	require.True(t, ok)
	assert.Equal(t, noticeNotLogged, msg.Message)
}

func TestEconomyMessagePersistsImmediately(t *testing.T) {
	r, saver := newTestRoom(t)
	c := newFakeConn("c1", "203.0.113.7")
	admitConn(r, c, 1, "nova", t0)
	p, _ := r.World().Player("c1")
	p.Resources["terbium"] = 4

	r.Submit(Command{Conn: c, Msg: protocol.SellResource{Resource: "terbium", Amount: 4}})
	r.Tick(t0.Add(time.Second))

	require.Len(t, saver.recs, 1)
	assert.Equal(t, int64(starterCredits+100), saver.recs[0].Credits)
	inv, ok := last[protocol.Inventory](t, c, protocol.MsgInventory)
	require.True(t, ok)
	assert.Equal(t, int64(starterCredits+100), inv.Currency.Credits)

	// 失败的经济操作不写存档
	r.Submit(Command{Conn: c, Msg: protocol.SellResource{Resource: "terbium", Amount: 1}})
	r.Tick(t0.Add(2 * time.Second))
	assert.Len(t, saver.recs, 1)
	msg, _ := last[protocol.ErrorMessage](t, c, protocol.MsgError)
	assert.Equal(t, ErrNotEnough.Error(), msg.Message)
}

func TestPlayerDamagedIgnoredInsideSafetyZone(t *testing.T) {
	r, saver := newTestRoom(t)
	c := newFakeConn("c1", "203.0.113.7")
	admitConn(r, c, 1, "nova", t0)
	p, _ := r.World().Player("c1")

	r.Submit(Command{Conn: c, Msg: protocol.PlayerDamaged{Damage: 500}})
	r.Tick(t0.Add(time.Second))
	assert.Equal(t, p.Vitals.MaxShield, p.Vitals.Shield)

	r.Submit(Command{Conn: c, Msg: protocol.PlayerInput{X: 5000, Y: 5000}})
	r.Submit(Command{Conn: c, Msg: protocol.PlayerDamaged{Damage: 500}})
	r.Tick(t0.Add(2 * time.Second))
	assert.Equal(t, p.Vitals.MaxShield-500, p.Vitals.Shield)
	assert.Empty(t, saver.recs)
}

func TestCommandPanicDoesNotStopTick(t *testing.T) {
	r, _ := newTestRoom(t)
	r.Submit(Command{Fn: func(*Room) { panic("boom") }})
	ran := false
	r.Submit(Command{Fn: func(*Room) { ran = true }})

	assert.NotPanics(t, func() { r.Tick(t0) })
	assert.True(t, ran)
	assert.Equal(t, int64(1), r.TickSeq())
}

func TestSubmitDropsWhenQueueFull(t *testing.T) {
	world := NewWorld(testWorldOptions(), nil, nil)
	r := NewRoom(world, NewAddressRegistry(), nil, RoomOptions{QueueSize: 1})

	assert.True(t, r.Submit(Command{Fn: func(*Room) {}}))
	assert.False(t, r.Submit(Command{Fn: func(*Room) {}}))
	assert.Equal(t, int64(1), r.Metrics().CommandsDropped)
}

func TestBroadcastPerCodec(t *testing.T) {
	r, _ := newTestRoom(t)
	a := newFakeConn("c1", "127.0.0.1")
	b := newFakeConn("c2", "127.0.0.1")
	b.codec = protocol.MsgPack
	admitConn(r, a, 1, "nova", t0)
	admitConn(r, b, 2, "vega", t0.Add(time.Millisecond))

	for _, c := range []*fakeConn{a, b} {
		gs, ok := last[protocol.GameState](t, c, protocol.MsgGameState)
		require.True(t, ok)
		assert.Len(t, gs.Players, 2)
		assert.Equal(t, t0.Add(time.Millisecond).UnixMilli(), gs.Timestamp)
	}
}

// brokenCodec 编码总是失败
type brokenCodec struct{ protocol.Codec }

func (brokenCodec) Name() string                { return "broken" }
func (brokenCodec) Marshal(any) ([]byte, error) { return nil, errors.New("encoder offline") }

func TestBroadcastSkipsFailingCodec(t *testing.T) {
	r, _ := newTestRoom(t)
	a := newFakeConn("c1", "127.0.0.1")
	a.codec = brokenCodec{protocol.JSON}
	b := newFakeConn("c2", "127.0.0.1")
	admitConn(r, a, 1, "nova", t0)
	admitConn(r, b, 2, "vega", t0.Add(time.Millisecond))

	gs, ok := last[protocol.GameState](t, b, protocol.MsgGameState)
	require.True(t, ok)
	assert.Len(t, gs.Players, 2)
}

func TestSaveAllQueuesEveryPlayer(t *testing.T) {
	r, saver := newTestRoom(t)
	admitConn(r, newFakeConn("c1", "127.0.0.1"), 1, "a", t0)
	admitConn(r, newFakeConn("c2", "127.0.0.1"), 2, "b", t0)

	assert.Equal(t, 2, r.SaveAll())
	assert.Len(t, saver.recs, 2)
}

func TestHandlerTablesCoverEveryInboundType(t *testing.T) {
	for _, typ := range protocol.InboundTypes() {
		_, auth := authHandlers[typ]
		_, tick := tickHandlers[typ]
		assert.True(t, auth != tick, "type %s must have exactly one handler", typ)
	}
	assert.Equal(t, len(protocol.InboundTypes()), len(authHandlers)+len(tickHandlers))
}

func TestClockStartStopIsIdempotent(t *testing.T) {
	r, _ := newTestRoom(t)
	clock := NewClock(r, 5*time.Millisecond, time.Hour)

	clock.Stop()
	clock.Start()
	clock.Start()
	assert.True(t, clock.Running())
	assert.Eventually(t, func() bool { return r.TickSeq() >= 2 }, time.Second, 5*time.Millisecond)

	called := false
	require.NoError(t, r.Do(func(*Room) { called = true }))
	assert.True(t, called)

	clock.Stop()
	clock.Stop()
	assert.False(t, clock.Running())
	seq := r.TickSeq()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, seq, r.TickSeq())
}
