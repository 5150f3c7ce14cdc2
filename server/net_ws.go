package server

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"spacearena/protocol"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 64 << 10
)

// Conn Tick 协程看到的连接：只能入队发送与关闭
type Conn interface {
	ID() ConnID
	Addr() string
	Codec() protocol.Codec
	Enqueue(frame []byte) bool
	Close()
}

// ClientConn 一条 WebSocket 连接：读写各一个协程，发送走有界队列
type ClientConn struct {
	id      ConnID
	addr    string
	codec   protocol.Codec
	ws      *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	metrics *Metrics

	closeOnce sync.Once
	done      chan struct{}
}

func NewClientConn(ws *websocket.Conn, addr string, codec protocol.Codec, opts GatewayOptions, metrics *Metrics) *ClientConn {
	return &ClientConn{
		id:      ConnID(uuid.NewString()),
		addr:    addr,
		codec:   codec,
		ws:      ws,
		send:    make(chan []byte, opts.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), opts.MessageBurst),
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

func (c *ClientConn) ID() ConnID            { return c.id }
func (c *ClientConn) Addr() string          { return c.addr }
func (c *ClientConn) Codec() protocol.Codec { return c.codec }

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		// 为了实时性，丢弃消息（防止阻塞 Tick）
		c.metrics.IncSendDropped()
		return false
	}
}

// Send 编码后入队
func (c *ClientConn) Send(t protocol.MsgType, data any) bool {
	b, err := protocol.Encode(c.codec, t, data)
	if err != nil {
		Log.Errorf("encode %s: %v", t, err)
		return false
	}
	return c.Enqueue(b)
}

// Close 可重复调用；写协程会先发完已入队的消息再关闭底层连接
func (c *ClientConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump 独立协程，负责从 send 队列写出到 WS
func (c *ClientConn) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.Close()
				return
			}
		case <-ping.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (c *ClientConn) write(msg []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(c.codec.FrameType(), msg)
}

// flush 关闭前写出剩余消息（例如踢出通知）
func (c *ClientConn) flush() {
	for {
		select {
		case msg := <-c.send:
			if c.write(msg) != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump 读取客户端消息，认证类就地处理，其余投递到 Tick 队列
func (c *ClientConn) readPump(g *Gateway) {
	defer func() {
		c.Close()
		// 读泵退出时，通知房间在 Tick 线程中移除该玩家
		g.room.Leave(c)
	}()
	c.ws.SetReadLimit(maxMessage)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				Log.Debugf("read error: conn=%s err=%v", c.id, err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if !c.limiter.Allow() {
			c.metrics.IncRateLimited()
			continue
		}
		msg, err := protocol.Decode(c.codec, payload)
		if err != nil {
			c.metrics.IncMalformed()
			Log.Debugf("bad message: conn=%s err=%v", c.id, err)
			if errors.Is(err, protocol.ErrUnknownType) {
				c.Send(protocol.MsgError, protocol.ErrorMessage{Message: "Unknown message type"})
			} else {
				c.Send(protocol.MsgError, protocol.ErrorMessage{Message: "Malformed message"})
			}
			continue
		}
		g.route(c, msg)
		if msg.Type() == protocol.MsgDisconnect {
			return
		}
	}
}

// GatewayOptions 连接层参数
type GatewayOptions struct {
	TrustProxy        bool
	MessagesPerSecond float64
	MessageBurst      int
	SendBuffer        int
	AuthTimeout       time.Duration
}

// Gateway 接入层：升级连接、认证、把消息交给房间
type Gateway struct {
	room     *Room
	auth     Auth
	db       Persistence
	metrics  *Metrics
	opts     GatewayOptions
	upgrader websocket.Upgrader
}

func NewGateway(room *Room, auth Auth, db Persistence, opts GatewayOptions) *Gateway {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = 120
	}
	if opts.MessageBurst <= 0 {
		opts.MessageBurst = 60
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 5 * time.Second
	}
	return &Gateway{
		room:    room,
		auth:    auth,
		db:      db,
		metrics: room.Metrics(),
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 演示环境：允许所有来源（生产环境需严格限制）
				return true
			},
		},
	}
}

func (g *Gateway) route(c *ClientConn, msg protocol.Inbound) {
	if h, ok := authHandlers[msg.Type()]; ok {
		h(g, c, msg)
		return
	}
	if !g.room.Submit(Command{Conn: c, Msg: msg}) {
		Log.Warnf("command dropped, queue full: conn=%s type=%s", c.id, msg.Type())
	}
}

// HandleWS WebSocket 接入：/ws?codec=json|msgpack
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	codec := protocol.CodecByName(r.URL.Query().Get("codec"))
	addr := g.clientAddress(r)

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnf("upgrade error: %v", err)
		return
	}
	c := NewClientConn(ws, addr, codec, g.opts, g.metrics)
	Log.Debugf("connection opened: conn=%s addr=%s codec=%s", c.id, addr, codec.Name())

	go c.writePump()
	go c.readPump(g)
}

// clientAddress 公网地址；反向代理后面时取 X-Forwarded-For 的第一个地址
func (g *Gateway) clientAddress(r *http.Request) string {
	if g.opts.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
