package download

import (
	"context"
	"fmt"
	"time"

	"gorent/internal/gorentlog"
	"gorent/internal/metainfo"
	"gorent/internal/peerconn"
	"gorent/internal/peerid"
	"gorent/internal/sink"
	"gorent/internal/tracker"
)

// Config bounds the network behavior of a Driver.
type Config struct {
	// Port is reported to the tracker as this client's listening
	// port. Nothing actually listens on it (Non-goal: no incoming
	// connections).
	Port uint16

	// DialTimeout bounds a single peer TCP connect + handshake.
	DialTimeout time.Duration

	// PeerTimeout bounds how long a Driver spends retrying one piece
	// across the peer list before giving up entirely.
	PeerTimeout time.Duration

	// ReadTimeout bounds a single read from an established peer
	// connection; see DefaultReadTimeout.
	ReadTimeout time.Duration
}

// DefaultConfig returns reasonable fixed timeouts for a single run.
func DefaultConfig() Config {
	return Config{
		Port:        6881,
		DialTimeout: 5 * time.Second,
		PeerTimeout: 30 * time.Second,
		ReadTimeout: DefaultReadTimeout,
	}
}

// Driver downloads every piece of a torrent sequentially, trying each
// known peer in turn until one serves a piece successfully. It never
// holds more than one open peer connection at a time (Non-goal:
// multi-peer concurrency).
type Driver struct {
	Torrent *metainfo.Torrent
	Peers   []tracker.PeerAddr
	Config  Config
	PeerID  [20]byte

	onPiece func(index int, total int)
}

// NewDriver builds a Driver for t using peers discovered from a
// tracker announce. PeerID defaults to this process's generated
// identifier.
func NewDriver(t *metainfo.Torrent, peers []tracker.PeerAddr, cfg Config) *Driver {
	return &Driver{
		Torrent: t,
		Peers:   peers,
		Config:  cfg,
		PeerID:  peerid.Generate(),
	}
}

// OnPiece registers a callback invoked after each piece is written,
// for progress reporting.
func (d *Driver) OnPiece(f func(index, total int)) { d.onPiece = f }

// Run downloads every piece in index order into out, returning once
// the whole payload has been written and verified or a piece could
// not be obtained from any peer.
func (d *Driver) Run(ctx context.Context, out *sink.Sink) error {
	total := d.Torrent.NumPieces()
	for index := 0; index < total; index++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("download: %w", ctx.Err())
		default:
		}

		buf, err := d.downloadPieceFromAnyPeer(ctx, index)
		if err != nil {
			return fmt.Errorf("download: piece %d: %w", index, err)
		}
		begin, _ := d.Torrent.PieceBounds(index)
		if err := out.WriteAt(buf, begin); err != nil {
			return err
		}
		if d.onPiece != nil {
			d.onPiece(index, total)
		}
	}
	return nil
}

// downloadPieceFromAnyPeer tries each peer in order until one serves
// index successfully, or the peer list and deadline are exhausted.
func (d *Driver) downloadPieceFromAnyPeer(ctx context.Context, index int) ([]byte, error) {
	if len(d.Peers) == 0 {
		return nil, fmt.Errorf("no peers available")
	}

	deadline := time.Now().Add(d.Config.PeerTimeout)
	var lastErr error
	for _, p := range d.Peers {
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		log := gorentlog.ForPiece(index).WithField("peer", p.String())

		conn, err := peerconn.Dial(p.String(), d.Torrent.InfoHash, d.PeerID, d.Torrent.NumPieces(), d.Config.DialTimeout)
		if err != nil {
			log.WithError(err).Debug("peer unreachable, trying next")
			lastErr = err
			continue
		}

		pieceTimeout := time.Until(deadline)
		buf, err := awaitBitfieldThenDownload(conn, d.Torrent, index, d.Config.ReadTimeout, pieceTimeout)
		conn.Close()
		if err != nil {
			log.WithError(err).Debug("piece attempt failed, trying next peer")
			lastErr = err
			continue
		}
		return buf, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no peer served piece %d before deadline", index)
	}
	return nil, lastErr
}

// awaitBitfieldThenDownload drains a peer's opening messages (usually
// a Bitfield or a run of Have) before starting the block request
// loop, so HasPiece checks reflect what the peer has actually
// announced.
func awaitBitfieldThenDownload(conn *peerconn.Conn, t *metainfo.Torrent, index int, readTimeout, pieceTimeout time.Duration) ([]byte, error) {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	const settleWindow = 500 * time.Millisecond
	settleDeadline := time.Now().Add(settleWindow)
	for !conn.Session.KnowsBitfield() && time.Now().Before(settleDeadline) {
		msg, err := conn.Recv(readTimeout, 4+BlockSize+64)
		if err != nil {
			if peerconn.IsTimeout(err) {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrPeerDisconnect, err)
		}
		if msg == nil {
			continue
		}
		if err := conn.Session.Apply(msg); err != nil {
			break
		}
	}
	return DownloadPiece(conn, t, index, readTimeout, pieceTimeout)
}
