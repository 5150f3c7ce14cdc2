package protocol

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEveryInboundType(t *testing.T) {
	for _, codec := range []Codec{JSON, MsgPack} {
		for _, mt := range InboundTypes() {
			b, err := Encode(codec, mt, map[string]any{})
			require.NoError(t, err)
			in, err := Decode(codec, b)
			require.NoError(t, err, "%s/%s", codec.Name(), mt)
			assert.Equal(t, mt, in.Type())
		}
	}
}

func TestDecodePayloadFields(t *testing.T) {
	raw := []byte(`{"type":"sellResource","data":{"type":"prometium","amount":12}}`)
	in, err := Decode(JSON, raw)
	require.NoError(t, err)
	assert.Equal(t, SellResource{Resource: "prometium", Amount: 12}, in)

	raw = []byte(`{"type":"playerInput","data":{"x":10.5,"y":20,"vx":1,"vy":-1,"rotation":90,"targetId":"npc-3","engaged":true}}`)
	in, err = Decode(JSON, raw)
	require.NoError(t, err)
	input := in.(PlayerInput)
	assert.Equal(t, 10.5, input.X)
	assert.Equal(t, "npc-3", input.TargetID)
	assert.True(t, input.Engaged)
}

func TestDecodeRejectsNonFiniteNumbers(t *testing.T) {
	for _, in := range []Inbound{
		PlayerInput{X: math.NaN()},
		PlayerInput{Rotation: math.Inf(1)},
		DamageEntity{ID: "h-001", Damage: math.NaN()},
		PlayerDamaged{Damage: math.Inf(-1)},
		PlayerHeal{Amount: math.NaN()},
	} {
		b, err := Encode(MsgPack, in.Type(), in)
		require.NoError(t, err)
		_, err = Decode(MsgPack, b)
		assert.True(t, errors.Is(err, ErrMalformed), "%s: %v", in.Type(), err)
	}
}

func TestMsgPackRoundTripUsesJSONNames(t *testing.T) {
	b, err := Encode(MsgPack, MsgDamageEntity, DamageEntity{ID: "npc-7", Damage: 250})
	require.NoError(t, err)
	in, err := Decode(MsgPack, b)
	require.NoError(t, err)
	assert.Equal(t, DamageEntity{ID: "npc-7", Damage: 250}, in)

	var generic map[string]any
	require.NoError(t, MsgPack.Unmarshal(b, &generic))
	assert.Equal(t, "damageEntity", generic["type"])
}

func TestDecodeRejectsUnknownAndMalformed(t *testing.T) {
	_, err := Decode(JSON, []byte(`{"type":"teleport","data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode(JSON, []byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode(JSON, []byte(`{"type":"sellResource","data":{"amount":"lots"}}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeOutbound(t *testing.T) {
	state := GameState{
		Players:   []PlayerState{{ID: "c-1", X: 1, Y: 2}},
		Timestamp: 1234,
	}
	for _, codec := range []Codec{JSON, MsgPack} {
		b, err := Encode(codec, MsgGameState, state)
		require.NoError(t, err)
		mt, err := Peek(codec, b)
		require.NoError(t, err)
		assert.Equal(t, MsgGameState, mt)

		got, err := DecodeOutbound[GameState](codec, b)
		require.NoError(t, err)
		assert.Equal(t, int64(1234), got.Timestamp)
		require.Len(t, got.Players, 1)
		assert.Equal(t, "c-1", got.Players[0].ID)
	}
}

func TestCodecByName(t *testing.T) {
	assert.Equal(t, "msgpack", CodecByName("msgpack").Name())
	assert.Equal(t, "json", CodecByName("").Name())
	assert.Equal(t, "json", CodecByName("xml").Name())
}
