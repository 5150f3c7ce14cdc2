// Package client 无界面客户端：连接服务端，本地预测自己的飞船，
// 本地模拟弹道作为视觉反馈，并用权威快照做校正。
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"spacearena/combat"
	"spacearena/geom"
	"spacearena/predict"
	"spacearena/protocol"
)

var ErrRejected = errors.New("request rejected")

const writeWait = 5 * time.Second

// Options 客户端参数
type Options struct {
	URL        string
	Codec      protocol.Codec
	Speed      float64 // 本地预测使用的舰船速度
	Width      float64
	Height     float64
	InputEvery time.Duration
	Log        *zap.SugaredLogger
}

func (o *Options) defaults() {
	if o.Codec == nil {
		o.Codec = protocol.JSON
	}
	if o.Speed <= 0 {
		o.Speed = 320
	}
	if o.Width <= 0 {
		o.Width = 20000
	}
	if o.Height <= 0 {
		o.Height = 12500
	}
	if o.InputEvery <= 0 {
		o.InputEvery = 50 * time.Millisecond
	}
	if o.Log == nil {
		o.Log = zap.NewNop().Sugar()
	}
}

// Stats 运行统计
type Stats struct {
	Snapshots   int
	Corrections int
	ShotsFired  int
	LocalHits   int
	Kills       int
}

// Client 一条到服务端的会话
type Client struct {
	opts Options
	log  *zap.SugaredLogger

	ws      *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	id        string
	token     string
	pred      *predict.Context
	local     *combat.Resolver
	beam      combat.Weapon
	ammo      combat.Magazine
	ammoType  string
	engage    combat.Engagement
	hostiles  map[string]protocol.HostileState
	inventory protocol.Inventory
	stats     Stats
	seq       int64

	pendingKill string // 待上报的击毁类型
}

func newClient(opts Options) *Client {
	opts.defaults()
	return &Client{
		opts:     opts,
		log:      opts.Log,
		pred:     predict.NewContext(geom.Vec{}, opts.Speed, opts.Width, opts.Height),
		local:    combat.NewResolver(combat.DefaultConfig(), "local-"),
		beam:     combat.Weapon{FireRate: combat.BeamFireRate},
		ammo:     combat.Magazine{},
		ammoType: "x1",
		hostiles: make(map[string]protocol.HostileState),
	}
}

// Dial 建立 WebSocket 连接
func Dial(ctx context.Context, opts Options) (*Client, error) {
	c := newClient(opts)
	url := fmt.Sprintf("%s?codec=%s", c.opts.URL, c.opts.Codec.Name())
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	c.ws = ws
	return c, nil
}

func (c *Client) send(t protocol.MsgType, data any) error {
	b, err := protocol.Encode(c.opts.Codec, t, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(c.opts.Codec.FrameType(), b)
}

// await 同步读取直到收到 want 中任一类型；只在 Run 之前使用
func (c *Client) await(ctx context.Context, want ...protocol.MsgType) (protocol.MsgType, []byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(dl)
		defer c.ws.SetReadDeadline(time.Time{})
	}
	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			return "", nil, err
		}
		t, err := protocol.Peek(c.opts.Codec, b)
		if err != nil {
			return "", nil, err
		}
		for _, w := range want {
			if t == w {
				return t, b, nil
			}
		}
		c.handle(t, b)
	}
}

// Register 注册账号
func (c *Client) Register(ctx context.Context, username, password string) (protocol.Response, error) {
	if err := c.send(protocol.MsgRegister, protocol.Register{Username: username, Password: password}); err != nil {
		return protocol.Response{}, err
	}
	_, b, err := c.await(ctx, protocol.MsgRegisterResponse)
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.DecodeOutbound[protocol.Response](c.opts.Codec, b)
}

// Login 口令登录
func (c *Client) Login(ctx context.Context, username, password string) (protocol.LoginSuccess, error) {
	return c.admit(ctx, protocol.MsgLogin, protocol.Login{Username: username, Password: password})
}

// Resume 用之前拿到的 token 恢复会话
func (c *Client) Resume(ctx context.Context, token, username string) (protocol.LoginSuccess, error) {
	return c.admit(ctx, protocol.MsgResumeSession, protocol.ResumeSession{Token: token, Username: username})
}

func (c *Client) admit(ctx context.Context, t protocol.MsgType, msg any) (protocol.LoginSuccess, error) {
	if err := c.send(t, msg); err != nil {
		return protocol.LoginSuccess{}, err
	}
	got, b, err := c.await(ctx, protocol.MsgLoginSuccess, protocol.MsgLoginResponse)
	if err != nil {
		return protocol.LoginSuccess{}, err
	}
	if got == protocol.MsgLoginResponse {
		resp, err := protocol.DecodeOutbound[protocol.Response](c.opts.Codec, b)
		if err != nil {
			return protocol.LoginSuccess{}, err
		}
		return protocol.LoginSuccess{}, fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}
	ls, err := protocol.DecodeOutbound[protocol.LoginSuccess](c.opts.Codec, b)
	if err != nil {
		return ls, err
	}
	c.mu.Lock()
	c.id = ls.ID
	c.token = ls.SessionToken
	c.pred.Pos = geom.Vec{X: ls.Position.X, Y: ls.Position.Y}
	c.mu.Unlock()
	c.log.Infof("logged in: id=%s user=%s level=%d", ls.ID, ls.Username, ls.Level)
	return ls, nil
}

// Run 帧循环与读循环，ctx 结束时发送 disconnect 并关闭连接
func (c *Client) Run(ctx context.Context) error {
	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop() }()

	frame := time.NewTicker(time.Second / 60)
	defer frame.Stop()
	input := time.NewTicker(c.opts.InputEvery)
	defer input.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			_ = c.send(protocol.MsgDisconnect, protocol.Disconnect{})
			_ = c.ws.Close()
			return nil
		case err := <-readErr:
			_ = c.ws.Close()
			return fmt.Errorf("read: %w", err)
		case now := <-frame.C:
			dt := now.Sub(last).Seconds()
			last = now
			for _, out := range c.Frame(now, dt) {
				if err := c.send(out.Type, out.Data); err != nil {
					return fmt.Errorf("send %s: %w", out.Type, err)
				}
			}
		case <-input.C:
			if err := c.send(protocol.MsgPlayerInput, c.Input()); err != nil {
				return fmt.Errorf("send input: %w", err)
			}
		}
	}
}

func (c *Client) readLoop() error {
	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		t, err := protocol.Peek(c.opts.Codec, b)
		if err != nil {
			c.log.Warnf("bad frame: %v", err)
			continue
		}
		c.handle(t, b)
	}
}

func (c *Client) handle(t protocol.MsgType, b []byte) {
	switch t {
	case protocol.MsgGameState:
		gs, err := protocol.DecodeOutbound[protocol.GameState](c.opts.Codec, b)
		if err != nil {
			c.log.Warnf("decode gameState: %v", err)
			return
		}
		c.ApplySnapshot(gs)
	case protocol.MsgInventory:
		inv, err := protocol.DecodeOutbound[protocol.Inventory](c.opts.Codec, b)
		if err != nil {
			c.log.Warnf("decode inventory: %v", err)
			return
		}
		c.mu.Lock()
		c.inventory = inv
		c.ammo = combat.Magazine(inv.Ammo)
		if c.ammo == nil {
			c.ammo = combat.Magazine{}
		}
		c.mu.Unlock()
	case protocol.MsgError:
		msg, _ := protocol.DecodeOutbound[protocol.ErrorMessage](c.opts.Codec, b)
		c.log.Warnf("server error: %s", msg.Message)
	}
}

func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) Position() geom.Vec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pred.Pos
}

func (c *Client) Inventory() protocol.Inventory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inventory
}

func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Input 当前预测状态对应的 playerInput
func (c *Client) Input() protocol.PlayerInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return protocol.PlayerInput{
		X:        c.pred.Pos.X,
		Y:        c.pred.Pos.Y,
		VX:       c.pred.Vel.X,
		VY:       c.pred.Vel.Y,
		Rotation: c.pred.Rotation,
		TargetID: c.engage.Target(),
		Engaged:  c.engage.Engaged(),
		Seq:      c.seq,
	}
}
