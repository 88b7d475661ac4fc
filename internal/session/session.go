// Package session implements the peer session state machine: choke
// state, local interest, and the remote's claimed bitfield, updated by
// inbound peer wire messages.
package session

import (
	"fmt"

	"gorent/internal/bitfield"
	"gorent/internal/peerwire"
)

// Session tracks the mutable state of one live peer connection.
// Initial state is choked=true, interested=false, bitfield empty (no
// claim seen yet).
type Session struct {
	choked      bool
	interested  bool
	bitfield    bitfield.Bitfield
	numPieces   int
	gotBitfield bool
}

// New returns a freshly handshaken session for a torrent with
// numPieces pieces.
func New(numPieces int) *Session {
	return &Session{choked: true, interested: false, numPieces: numPieces}
}

// Choked reports whether the remote peer currently has us choked.
func (s *Session) Choked() bool { return s.choked }

// Interested reports whether we have signaled interest to the peer.
func (s *Session) Interested() bool { return s.interested }

// SetInterested records that we sent an Interested/NotInterested
// message; it does not itself write to the wire.
func (s *Session) SetInterested(v bool) { s.interested = v }

// HasPiece reports whether the peer has claimed piece index. Before
// any Bitfield or Have has been observed, this is always false (no
// claim seen yet, per the empty-bitfield convention).
func (s *Session) HasPiece(index int) bool {
	if !s.gotBitfield {
		return false
	}
	return s.bitfield.Has(index)
}

// KnowsBitfield reports whether a Bitfield or Have has been observed,
// i.e. whether HasPiece carries real information yet.
func (s *Session) KnowsBitfield() bool { return s.gotBitfield }

// Apply advances session state in response to an inbound message. msg
// is nil for a keep-alive, which is a no-op. Piece messages are not
// handled here: the piece downloader consumes them directly since
// they carry payload data, not session state.
func (s *Session) Apply(msg *peerwire.Message) error {
	if msg == nil {
		return nil // keep-alive
	}
	switch msg.ID {
	case peerwire.Choke:
		s.choked = true
	case peerwire.Unchoke:
		s.choked = false
	case peerwire.Interested, peerwire.NotInterested:
		// Remote's interest in us; informational only for this
		// single-client role, which never serves requests.
	case peerwire.Have:
		index, err := peerwire.ParseHave(msg)
		if err != nil {
			return err
		}
		s.ensureBitfield()
		s.bitfield.Set(index)
	case peerwire.Bitfield:
		// Only the first Bitfield is meaningful; later ones are
		// accepted but ignored, per the wire convention that a peer
		// announces its full set once, then deltas via Have.
		if !s.gotBitfield {
			s.bitfield = append(bitfield.Bitfield(nil), msg.Payload...)
			s.gotBitfield = true
		}
	case peerwire.Request, peerwire.Cancel:
		// We do not serve in this role; ignored.
	case peerwire.Piece:
		return fmt.Errorf("session: piece messages must be handled by the downloader, not Apply")
	}
	return nil
}

func (s *Session) ensureBitfield() {
	if s.bitfield == nil {
		s.bitfield = bitfield.New(s.numPieces)
	}
	s.gotBitfield = true
}
