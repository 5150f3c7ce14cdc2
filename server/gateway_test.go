package server

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacearena/protocol"
	"spacearena/store"
)

type testServer struct {
	url   string
	room  *Room
	store *store.Store
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.Open(store.Options{Driver: "sqlite"}, nil)
	require.NoError(t, err)

	metrics := &Metrics{}
	writer := NewWriter(st, 16, metrics)
	writer.Start()
	world := NewWorld(testWorldOptions(), writer, metrics)
	room := NewRoom(world, NewAddressRegistry(), metrics, RoomOptions{AFKTimeout: time.Minute})
	clock := NewClock(room, 10*time.Millisecond, time.Hour)
	clock.Start()

	gw := NewGateway(room, st, st, GatewayOptions{})
	srv := httptest.NewServer(http.HandlerFunc(gw.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		clock.Stop()
		writer.Close()
		_ = st.Close()
	})
	return &testServer{url: "ws" + strings.TrimPrefix(srv.URL, "http"), room: room, store: st}
}

type testClient struct {
	t     *testing.T
	ws    *websocket.Conn
	codec protocol.Codec
}

func (s *testServer) dial(t *testing.T, codec protocol.Codec) *testClient {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(s.url+"?codec="+codec.Name(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return &testClient{t: t, ws: ws, codec: codec}
}

func (c *testClient) send(typ protocol.MsgType, data any) {
	b, err := protocol.Encode(c.codec, typ, data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteMessage(c.codec.FrameType(), b))
}

// await 读取直到收到指定类型的消息
func await[T any](c *testClient, typ protocol.MsgType) T {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(c.t, c.ws.SetReadDeadline(deadline))
		frameType, b, err := c.ws.ReadMessage()
		require.NoError(c.t, err, "waiting for %s", typ)
		assert.Equal(c.t, c.codec.FrameType(), frameType)
		got, err := protocol.Peek(c.codec, b)
		require.NoError(c.t, err)
		if got == typ {
			v, err := protocol.DecodeOutbound[T](c.codec, b)
			require.NoError(c.t, err)
			return v
		}
	}
}

func TestGatewayRegisterLoginAndPlay(t *testing.T) {
	s := startTestServer(t)
	c := s.dial(t, protocol.JSON)

	c.send(protocol.MsgRegister, protocol.Register{Username: "nova", Password: "x"})
	resp := await[protocol.Response](c, protocol.MsgRegisterResponse)
	assert.False(t, resp.Success)

	c.send(protocol.MsgRegister, protocol.Register{Username: "nova", Password: "hunter22"})
	resp = await[protocol.Response](c, protocol.MsgRegisterResponse)
	require.True(t, resp.Success, resp.Message)

	c.send(protocol.MsgLogin, protocol.Login{Username: "nova", Password: "wrong"})
	resp = await[protocol.Response](c, protocol.MsgLoginResponse)
	assert.False(t, resp.Success)

	c.send(protocol.MsgLogin, protocol.Login{Username: "nova", Password: "hunter22"})
	ls := await[protocol.LoginSuccess](c, protocol.MsgLoginSuccess)
	assert.Equal(t, "nova", ls.Username)
	assert.NotEmpty(t, ls.SessionToken)
	assert.Equal(t, DefaultShip, ls.ShipType)

	inv := await[protocol.Inventory](c, protocol.MsgInventory)
	assert.Equal(t, int64(starterCredits), inv.Currency.Credits)

	c.send(protocol.MsgPlayerInput, protocol.PlayerInput{X: 4000, Y: 3000})
	for deadline := time.Now().Add(3 * time.Second); ; {
		gs := await[protocol.GameState](c, protocol.MsgGameState)
		if len(gs.Players) == 1 && gs.Players[0].X == 4000 {
			break
		}
		require.True(t, time.Now().Before(deadline), "input never reflected in snapshot")
	}

	c.send(protocol.MsgEnemyDestroyed, protocol.EnemyDestroyed{EnemyType: "drone"})
	inv = await[protocol.Inventory](c, protocol.MsgInventory)
	assert.Equal(t, int64(400), inv.Currency.Experience)

	c.send(protocol.MsgDisconnect, protocol.Disconnect{})
	require.Eventually(t, func() bool { return s.room.Online() == 0 }, 3*time.Second, 10*time.Millisecond)

	acc := s.store.Lookup(context.Background(), "nova")
	require.True(t, acc.Success)
	require.Eventually(t, func() bool {
		rec, err := s.store.LoadPlayer(context.Background(), acc.AccountID)
		return err == nil && rec.Experience == 400 && rec.X == 4000
	}, 3*time.Second, 20*time.Millisecond)
}

func TestGatewayResumeAndMsgPack(t *testing.T) {
	s := startTestServer(t)
	c := s.dial(t, protocol.MsgPack)

	c.send(protocol.MsgResumeSession, protocol.ResumeSession{Token: "abc", Username: "ghost"})
	resp := await[protocol.Response](c, protocol.MsgLoginResponse)
	assert.False(t, resp.Success)

	c.send(protocol.MsgRegister, protocol.Register{Username: "vega", Password: "hunter22"})
	require.True(t, await[protocol.Response](c, protocol.MsgRegisterResponse).Success)

	c.send(protocol.MsgResumeSession, protocol.ResumeSession{Token: "abc", Username: "vega"})
	ls := await[protocol.LoginSuccess](c, protocol.MsgLoginSuccess)
	assert.Equal(t, "abc", ls.SessionToken)
	assert.Equal(t, "vega", ls.Username)

	gs := await[protocol.GameState](c, protocol.MsgGameState)
	require.Len(t, gs.Players, 1)
	assert.Equal(t, ls.ID, gs.Players[0].ID)
}

func TestGatewayRejectsMalformedAndUnauthenticated(t *testing.T) {
	s := startTestServer(t)
	c := s.dial(t, protocol.JSON)

	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"warp","data":{}}`)))
	msg := await[protocol.ErrorMessage](c, protocol.MsgError)
	assert.Equal(t, "Unknown message type", msg.Message)

	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	msg = await[protocol.ErrorMessage](c, protocol.MsgError)
	assert.Equal(t, "Malformed message", msg.Message)

	c.send(protocol.MsgFireBeam, protocol.FireBeam{AmmoType: "x1"})
	msg = await[protocol.ErrorMessage](c, protocol.MsgError)
	assert.Equal(t, noticeNotLogged, msg.Message)
}

// signIn 注册并登录，消费掉 loginSuccess
func (c *testClient) signIn(name string) protocol.LoginSuccess {
	c.t.Helper()
	c.send(protocol.MsgRegister, protocol.Register{Username: name, Password: "hunter22"})
	require.True(c.t, await[protocol.Response](c, protocol.MsgRegisterResponse).Success)
	c.send(protocol.MsgLogin, protocol.Login{Username: name, Password: "hunter22"})
	return await[protocol.LoginSuccess](c, protocol.MsgLoginSuccess)
}

func TestGatewayRejectsNonFiniteNumbers(t *testing.T) {
	s := startTestServer(t)
	alice := s.dial(t, protocol.JSON)
	alice.signIn("alice")
	bob := s.dial(t, protocol.MsgPack)
	bob.signIn("bob")

	for _, m := range []struct {
		typ  protocol.MsgType
		data any
	}{
		{protocol.MsgPlayerInput, protocol.PlayerInput{X: math.NaN(), Y: 5}},
		{protocol.MsgPlayerInput, protocol.PlayerInput{X: 10, Y: 10, Rotation: math.Inf(1)}},
		{protocol.MsgDamageEntity, protocol.DamageEntity{ID: "h-000", Damage: math.NaN()}},
		{protocol.MsgPlayerDamaged, protocol.PlayerDamaged{Damage: math.NaN()}},
		{protocol.MsgPlayerHeal, protocol.PlayerHeal{Amount: math.Inf(-1)}},
	} {
		bob.send(m.typ, m.data)
		msg := await[protocol.ErrorMessage](bob, protocol.MsgError)
		assert.Equal(t, "Malformed message", msg.Message, m.typ)
	}

	// JSON 客户端持续收到快照，且数值都在合法区间
	for i := 0; i < 10; i++ {
		gs := await[protocol.GameState](alice, protocol.MsgGameState)
		for _, p := range gs.Players {
			assert.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y), p.Username)
			assert.GreaterOrEqual(t, p.Health, 0.0)
			assert.LessOrEqual(t, p.Health, p.MaxHealth)
			assert.GreaterOrEqual(t, p.Shield, 0.0)
			assert.LessOrEqual(t, p.Shield, p.MaxShield)
		}
	}
	assert.Equal(t, int64(5), atomic.LoadInt64(&s.room.Metrics().Malformed))
}

func TestClientAddress(t *testing.T) {
	g := &Gateway{}
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "198.51.100.4:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "198.51.100.4", g.clientAddress(r))

	g.opts.TrustProxy = true
	assert.Equal(t, "203.0.113.9", g.clientAddress(r))
}
