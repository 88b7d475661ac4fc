package session

import (
	"testing"

	"gorent/internal/peerwire"

	"github.com/stretchr/testify/require"
)

func TestInitialState(t *testing.T) {
	s := New(8)
	require.True(t, s.Choked())
	require.False(t, s.Interested())
	require.False(t, s.KnowsBitfield())
}

func TestChokeUnchokeTransitions(t *testing.T) {
	s := New(8)
	require.NoError(t, s.Apply(&peerwire.Message{ID: peerwire.Unchoke}))
	require.False(t, s.Choked())
	require.NoError(t, s.Apply(&peerwire.Message{ID: peerwire.Choke}))
	require.True(t, s.Choked())
}

func TestKeepAliveIsNoop(t *testing.T) {
	s := New(8)
	require.NoError(t, s.Apply(nil))
	require.True(t, s.Choked())
}

func TestHavePiece(t *testing.T) {
	s := New(8)
	require.False(t, s.KnowsBitfield())
	require.False(t, s.HasPiece(3))

	require.NoError(t, s.Apply(peerwire.FormatHave(3)))
	require.True(t, s.KnowsBitfield())
	require.True(t, s.HasPiece(3))
	require.False(t, s.HasPiece(0))
}

func TestBitfieldMessageSetsClaimedPieces(t *testing.T) {
	s := New(16)
	// byte 0 = 0b10100000 -> pieces 0 and 2
	require.NoError(t, s.Apply(&peerwire.Message{ID: peerwire.Bitfield, Payload: []byte{0xA0, 0x00}}))
	require.True(t, s.HasPiece(0))
	require.False(t, s.HasPiece(1))
	require.True(t, s.HasPiece(2))
}

func TestOnlyFirstBitfieldIsMeaningful(t *testing.T) {
	s := New(8)
	require.NoError(t, s.Apply(&peerwire.Message{ID: peerwire.Bitfield, Payload: []byte{0x80}}))
	require.NoError(t, s.Apply(&peerwire.Message{ID: peerwire.Bitfield, Payload: []byte{0x01}}))
	require.True(t, s.HasPiece(0))
	require.False(t, s.HasPiece(7))
}

func TestApplyRejectsPieceMessages(t *testing.T) {
	s := New(8)
	err := s.Apply(&peerwire.Message{ID: peerwire.Piece, Payload: make([]byte, 8)})
	require.Error(t, err)
}

func TestSetInterestedTracksLocalFlag(t *testing.T) {
	s := New(8)
	require.False(t, s.Interested())
	s.SetInterested(true)
	require.True(t, s.Interested())
}
