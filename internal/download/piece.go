// Package download implements piece-download orchestration: the
// block request/response loop that reassembles and verifies a single
// piece, and the sequential, single-peer-at-a-time driver over all
// pieces of a torrent.
package download

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"
	"time"

	"gorent/internal/gorentlog"
	"gorent/internal/metainfo"
	"gorent/internal/peerconn"
	"gorent/internal/peerwire"
)

// Recoverable per-piece failure reasons. Callers distinguish them with
// errors.Is.
var (
	ErrNoSuchPiece          = errors.New("download: no such piece")
	ErrPeerDoesNotHavePiece = errors.New("download: peer does not have piece")
	ErrHashMismatch         = errors.New("download: piece hash mismatch")
	ErrPeerDisconnect       = errors.New("download: peer disconnected")
	ErrIndexMismatch        = errors.New("download: piece response index mismatch")
)

// BlockSize is the size of one requested block.
const BlockSize = 16 * 1024

// MaxBacklog bounds the number of in-flight block requests for one
// piece, pipelining requests rather than waiting on each reply in
// turn.
const MaxBacklog = 5

// DefaultReadTimeout is the short post-handshake read timeout that
// paces the request loop when a caller doesn't override it: a timeout
// here is the signal to issue the next request round, not a fatal
// disconnect.
const DefaultReadTimeout = 200 * time.Millisecond

// DefaultPieceTimeout bounds how long DownloadPiece will wait on one
// peer for one piece, choked or silent, before giving up on it.
const DefaultPieceTimeout = 30 * time.Second

type inFlight struct {
	begin  int
	length int
}

// DownloadPiece drives conn through the block request/response
// protocol for piece index, returning its verified bytes or one of
// the sentinel errors above. A readTimeout <= 0 falls back to
// DefaultReadTimeout; a pieceTimeout <= 0 falls back to
// DefaultPieceTimeout. pieceTimeout bounds the whole call: a peer that
// stays choked, or that unchokes and then falls silent, is abandoned
// with ErrPeerDisconnect once it elapses rather than spinning forever.
func DownloadPiece(conn *peerconn.Conn, t *metainfo.Torrent, index int, readTimeout, pieceTimeout time.Duration) ([]byte, error) {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if pieceTimeout <= 0 {
		pieceTimeout = DefaultPieceTimeout
	}
	if index < 0 || index >= t.NumPieces() {
		return nil, fmt.Errorf("%w: index %d", ErrNoSuchPiece, index)
	}
	sess := conn.Session
	if sess.KnowsBitfield() && !sess.HasPiece(index) {
		return nil, fmt.Errorf("%w: peer %s, piece %d", ErrPeerDoesNotHavePiece, conn.Addr, index)
	}

	log := gorentlog.ForPeer(conn.Addr).WithField("piece", index)

	if err := conn.SendInterested(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPeerDisconnect, err)
	}
	sess.SetInterested(true)

	length := int(t.PieceLen(index))
	buf := make([]byte, length)

	requested := 0
	downloaded := 0
	outstanding := map[int]inFlight{}
	deadline := time.Now().Add(pieceTimeout)

	for downloaded < length {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s gave us nothing for piece %d within %s", ErrPeerDisconnect, conn.Addr, index, pieceTimeout)
		}

		if !sess.Choked() {
			for len(outstanding) < MaxBacklog && requested < length {
				blockLen := BlockSize
				if length-requested < blockLen {
					blockLen = length - requested
				}
				if err := conn.SendRequest(index, requested, blockLen); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrPeerDisconnect, err)
				}
				outstanding[requested] = inFlight{begin: requested, length: blockLen}
				requested += blockLen
			}
		}

		msg, err := conn.Recv(readTimeout, 4+BlockSize+64)
		if err != nil {
			if peerconn.IsTimeout(err) {
				// Pacing signal, not a failure: drop whatever we
				// thought was outstanding and let the backlog-fill
				// above re-issue it (or wait for Unchoke if still
				// choked) on the next iteration.
				requested = downloaded
				outstanding = map[int]inFlight{}
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrPeerDisconnect, err)
		}
		if msg == nil {
			continue // keep-alive
		}

		if msg.ID != peerwire.Piece {
			if err := sess.Apply(msg); err != nil {
				log.WithError(err).Debug("ignoring malformed session message mid-piece")
			}
			continue
		}

		parsed, err := peerwire.ParsePiece(msg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPeerDisconnect, err)
		}
		if parsed.Index != index {
			return nil, fmt.Errorf("%w: expected %d, got %d", ErrIndexMismatch, index, parsed.Index)
		}
		block, ok := outstanding[parsed.Begin]
		if !ok || len(parsed.Block) != block.length {
			// Stale, duplicate, or out-of-order response for a
			// request we no longer (or never) tracked; discard.
			log.WithField("begin", parsed.Begin).Debug("discarding out-of-order block")
			continue
		}
		copy(buf[parsed.Begin:parsed.Begin+len(parsed.Block)], parsed.Block)
		delete(outstanding, parsed.Begin)
		downloaded += len(parsed.Block)
	}

	if err := conn.SendNotInterested(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPeerDisconnect, err)
	}
	sess.SetInterested(false)

	sum := sha1.Sum(buf)
	if !bytes.Equal(sum[:], t.Pieces[index][:]) {
		return nil, fmt.Errorf("%w: piece %d", ErrHashMismatch, index)
	}
	return buf, nil
}
