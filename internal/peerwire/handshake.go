// Package peerwire implements the BitTorrent peer wire protocol: the
// fixed 68-byte handshake and the length-prefixed message codec that
// follows it.
package peerwire

import (
	"bytes"
	"fmt"
	"io"
)

const protocolName = "BitTorrent protocol"

// HandshakeLen is the fixed wire size of a handshake: 1 + 19 + 8 + 20 + 20.
const HandshakeLen = 1 + len(protocolName) + 8 + 20 + 20

// Handshake is the 68-byte greeting exchanged at the start of every
// peer connection.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// Serialize encodes h to its 68-byte wire form.
func (h Handshake) Serialize() []byte {
	buf := make([]byte, HandshakeLen)
	cursor := 0
	buf[cursor] = byte(len(protocolName))
	cursor++
	cursor += copy(buf[cursor:], protocolName)
	cursor += 8 // reserved, all zero
	cursor += copy(buf[cursor:], h.InfoHash[:])
	copy(buf[cursor:], h.PeerID[:])
	return buf
}

// ReadHandshake reads and decodes exactly HandshakeLen bytes from r.
func ReadHandshake(r io.Reader) (Handshake, error) {
	buf := make([]byte, HandshakeLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Handshake{}, fmt.Errorf("peerwire: read handshake: %w", err)
	}
	pstrlen := int(buf[0])
	if 1+pstrlen+8+20+20 != HandshakeLen {
		return Handshake{}, fmt.Errorf("peerwire: unexpected protocol name length %d", pstrlen)
	}
	var h Handshake
	cursor := 1 + pstrlen + 8
	copy(h.InfoHash[:], buf[cursor:cursor+20])
	cursor += 20
	copy(h.PeerID[:], buf[cursor:cursor+20])
	return h, nil
}

// DoHandshake performs the client side of the handshake over rw: write
// ours, read theirs, and verify the remote's info_hash matches.
func DoHandshake(rw io.ReadWriter, infoHash, peerID [20]byte) (Handshake, error) {
	req := Handshake{InfoHash: infoHash, PeerID: peerID}
	if _, err := rw.Write(req.Serialize()); err != nil {
		return Handshake{}, fmt.Errorf("peerwire: write handshake: %w", err)
	}
	resp, err := ReadHandshake(rw)
	if err != nil {
		return Handshake{}, err
	}
	if !bytes.Equal(resp.InfoHash[:], infoHash[:]) {
		return Handshake{}, fmt.Errorf("peerwire: info_hash mismatch: expected %x got %x", infoHash, resp.InfoHash)
	}
	return resp, nil
}
