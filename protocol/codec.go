package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed message")
)

// Codec 线上编码：JSON 文本帧或 msgpack 二进制帧
type Codec interface {
	Name() string
	FrameType() int
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string                    { return "json" }
func (jsonCodec) FrameType() int                  { return websocket.TextMessage }
func (jsonCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (jsonCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// msgpackCodec 复用 json 标签，两种编码字段名一致
type msgpackCodec struct{}

func (msgpackCodec) Name() string   { return "msgpack" }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(b []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

var (
	JSON    Codec = jsonCodec{}
	MsgPack Codec = msgpackCodec{}
)

// CodecByName 未知名称回落到 JSON
func CodecByName(name string) Codec {
	if name == MsgPack.Name() {
		return MsgPack
	}
	return JSON
}

// envelope 线上格式：{"type":"...","data":{...}}
type envelope[T any] struct {
	Type MsgType `json:"type"`
	Data T       `json:"data"`
}

// Encode 封装出站消息
func Encode(c Codec, t MsgType, data any) ([]byte, error) {
	return c.Marshal(envelope[any]{Type: t, Data: data})
}

// validator 载荷自检；msgpack 能携带 NaN/Inf，JSON 不能
type validator interface {
	validate() error
}

func finite(vs ...float64) error {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite number", ErrMalformed)
		}
	}
	return nil
}

func decodeData[T Inbound](c Codec, b []byte) (Inbound, error) {
	var env envelope[T]
	if err := c.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if v, ok := any(env.Data).(validator); ok {
		if err := v.validate(); err != nil {
			return nil, err
		}
	}
	return env.Data, nil
}

// Peek 只读取消息类型
func Peek(c Codec, b []byte) (MsgType, error) {
	var head struct {
		Type MsgType `json:"type"`
	}
	if err := c.Unmarshal(b, &head); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return head.Type, nil
}

// Decode 解析入站消息；未知类型返回 ErrUnknownType
func Decode(c Codec, b []byte) (Inbound, error) {
	t, err := Peek(c, b)
	if err != nil {
		return nil, err
	}
	switch t {
	case MsgLogin:
		return decodeData[Login](c, b)
	case MsgRegister:
		return decodeData[Register](c, b)
	case MsgResumeSession:
		return decodeData[ResumeSession](c, b)
	case MsgPlayerInput:
		return decodeData[PlayerInput](c, b)
	case MsgEnemyDestroyed:
		return decodeData[EnemyDestroyed](c, b)
	case MsgCollectResource:
		return decodeData[CollectResource](c, b)
	case MsgSellResource:
		return decodeData[SellResource](c, b)
	case MsgRefineResource:
		return decodeData[RefineResource](c, b)
	case MsgFireBeam:
		return decodeData[FireBeam](c, b)
	case MsgFireGuided:
		return decodeData[FireGuided](c, b)
	case MsgDamageEntity:
		return decodeData[DamageEntity](c, b)
	case MsgPlayerDamaged:
		return decodeData[PlayerDamaged](c, b)
	case MsgPlayerHeal:
		return decodeData[PlayerHeal](c, b)
	case MsgRespawn:
		return decodeData[Respawn](c, b)
	case MsgDisconnect:
		return Disconnect{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

// DecodeOutbound 客户端侧：把 data 解为指定的出站载荷
func DecodeOutbound[T any](c Codec, b []byte) (T, error) {
	var env envelope[T]
	if err := c.Unmarshal(b, &env); err != nil {
		return env.Data, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env.Data, nil
}
