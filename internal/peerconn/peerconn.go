// Package peerconn dials a single peer and drives its handshake and
// session, leaving piece-level orchestration to internal/download.
package peerconn

import (
	"fmt"
	"net"
	"time"

	"gorent/internal/peerwire"
	"gorent/internal/session"
)

// Conn is a live, handshaken connection to one peer.
type Conn struct {
	Addr    string
	Session *session.Session

	conn net.Conn
}

// Dial connects to addr, completes the handshake, and returns a Conn
// with a fresh session. A connect failure or handshake mismatch here
// is recoverable at the caller: skip this peer, try the next.
func Dial(addr string, infoHash, peerID [20]byte, numPieces int, dialTimeout time.Duration) (*Conn, error) {
	nc, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("peerconn: dial %s: %w", addr, err)
	}

	if _, err := peerwire.DoHandshake(nc, infoHash, peerID); err != nil {
		nc.Close()
		return nil, fmt.Errorf("peerconn: handshake with %s: %w", addr, err)
	}

	return &Conn{Addr: addr, Session: session.New(numPieces), conn: nc}, nil
}

// Close closes the underlying TCP connection.
func (c *Conn) Close() error { return c.conn.Close() }

// SendInterested sends an Interested message.
func (c *Conn) SendInterested() error {
	return c.send(&peerwire.Message{ID: peerwire.Interested})
}

// SendNotInterested sends a NotInterested message.
func (c *Conn) SendNotInterested() error {
	return c.send(&peerwire.Message{ID: peerwire.NotInterested})
}

// SendRequest sends a Request for one block.
func (c *Conn) SendRequest(index, begin, length int) error {
	return c.send(peerwire.FormatRequest(index, begin, length))
}

func (c *Conn) send(m *peerwire.Message) error {
	if _, err := c.conn.Write(m.Serialize()); err != nil {
		return fmt.Errorf("peerconn: write to %s: %w", c.Addr, err)
	}
	return nil
}

// Recv reads one frame under a short read deadline: the timeout is
// the loop's pacing signal, not a fatal disconnect, and is reported
// back via IsTimeout so the caller can distinguish it from a real I/O
// failure.
func (c *Conn) Recv(timeout time.Duration, maxPieceFrame int) (*peerwire.Message, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("peerconn: set read deadline: %w", err)
	}
	msg, err := peerwire.ReadMessage(c.conn, maxPieceFrame)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// IsTimeout reports whether err is a read-deadline timeout rather
// than a genuine disconnect.
func IsTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
