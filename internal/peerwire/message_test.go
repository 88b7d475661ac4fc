package peerwire

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeLengthPrefix(t *testing.T) {
	m := &Message{ID: Have, Payload: []byte{0, 0, 0, 42}}
	encoded := m.Serialize()
	require.Len(t, encoded, 4+len(m.Payload)+1)

	got, err := ReadMessage(bytes.NewReader(encoded), MaxNonPieceFrame)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestDecodeHaveFixture(t *testing.T) {
	raw := []byte{0x00, 0x00, 0x00, 0x05, 0x04, 0x00, 0x00, 0x00, 0x2A}
	msg, err := ReadMessage(bytes.NewReader(raw), MaxNonPieceFrame)
	require.NoError(t, err)
	index, err := ParseHave(msg)
	require.NoError(t, err)
	require.Equal(t, 42, index)
}

func TestDecodePieceFixture(t *testing.T) {
	block := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	payload := append([]byte{0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x10, 0x00}, block...)
	length := uint32(1 + len(payload))
	require.Equal(t, uint32(17), length, "prefix must equal 9 + len(block)")

	raw := []byte{byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length)}
	raw = append(raw, byte(Piece))
	raw = append(raw, payload...)

	msg, err := ReadMessage(bytes.NewReader(raw), 64)
	require.NoError(t, err)
	parsed, err := ParsePiece(msg)
	require.NoError(t, err)
	require.Equal(t, 3, parsed.Index)
	require.Equal(t, 4096, parsed.Begin)
	require.Equal(t, block, parsed.Block)
}

func TestKeepAliveDecodesToNil(t *testing.T) {
	raw := []byte{0, 0, 0, 0}
	msg, err := ReadMessage(bytes.NewReader(raw), MaxNonPieceFrame)
	require.NoError(t, err)
	require.Nil(t, msg)
}

func TestNilMessageSerializesToKeepAlive(t *testing.T) {
	var m *Message
	require.Equal(t, []byte{0, 0, 0, 0}, m.Serialize())
}

func TestStreamOfMessagesDecodesInOrder(t *testing.T) {
	msgs := []*Message{
		{ID: Unchoke},
		{ID: Have, Payload: []byte{0, 0, 0, 1}},
		nil,
		{ID: Interested},
	}
	var buf bytes.Buffer
	for _, m := range msgs {
		buf.Write(m.Serialize())
	}

	r := bufio.NewReader(&buf)
	for _, want := range msgs {
		got, err := ReadMessage(r, MaxNonPieceFrame)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestReadMessageRejectsOversizedFrame(t *testing.T) {
	raw := []byte{0x00, 0x01, 0x00, 0x01} // length = 65537, over MaxNonPieceFrame
	raw = append(raw, byte(Bitfield))
	_, err := ReadMessage(bytes.NewReader(raw), MaxNonPieceFrame)
	require.Error(t, err)
}

func TestFormatRequestRoundTrips(t *testing.T) {
	m := FormatRequest(5, 16384, 16384)
	encoded := m.Serialize()
	decoded, err := ReadMessage(bytes.NewReader(encoded), MaxNonPieceFrame)
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}
