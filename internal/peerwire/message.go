package peerwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ID identifies a peer wire message type.
type ID uint8

const (
	Choke         ID = 0
	Unchoke       ID = 1
	Interested    ID = 2
	NotInterested ID = 3
	Have          ID = 4
	Bitfield      ID = 5
	Request       ID = 6
	Piece         ID = 7
	Cancel        ID = 8
)

func (id ID) String() string {
	switch id {
	case Choke:
		return "choke"
	case Unchoke:
		return "unchoke"
	case Interested:
		return "interested"
	case NotInterested:
		return "not_interested"
	case Have:
		return "have"
	case Bitfield:
		return "bitfield"
	case Request:
		return "request"
	case Piece:
		return "piece"
	case Cancel:
		return "cancel"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// MaxNonPieceFrame caps a non-Piece message body so a hostile or
// broken peer advertising a huge length can't force a giant
// allocation before we've even inspected the message ID.
const MaxNonPieceFrame = 64 * 1024

// Message is a decoded peer wire message. A nil *Message (returned
// alongside a nil error) represents a keep-alive: zero length, no ID,
// no payload.
type Message struct {
	ID      ID
	Payload []byte
}

// Serialize encodes m to its length-prefixed wire form. A nil
// receiver serializes to the 4-byte zero-length keep-alive.
func (m *Message) Serialize() []byte {
	if m == nil {
		return make([]byte, 4)
	}
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// ReadMessage reads one length-prefixed frame from r. maxPieceFrame
// bounds the body size allowed for a Piece message (typically
// 4 + piece_length); any other message is bounded by
// MaxNonPieceFrame. A declared length exceeding the applicable cap is
// a protocol error and the caller should drop the connection.
func ReadMessage(r io.Reader, maxPieceFrame int) (*Message, error) {
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBuf)
	if length == 0 {
		return nil, nil // keep-alive
	}

	bodyBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, bodyBuf); err != nil {
		return nil, fmt.Errorf("peerwire: read message id: %w", err)
	}
	id := ID(bodyBuf[0])

	limit := MaxNonPieceFrame
	if id == Piece {
		limit = maxPieceFrame
	}
	if int(length) > limit {
		return nil, fmt.Errorf("peerwire: frame length %d exceeds cap %d for %s", length, limit, id)
	}

	var payload []byte
	if length > 1 {
		payload = make([]byte, length-1)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("peerwire: read message payload: %w", err)
		}
	}
	return &Message{ID: id, Payload: payload}, nil
}

// FormatRequest builds a Request message for the given block.
func FormatRequest(index, begin, length int) *Message {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:12], uint32(length))
	return &Message{ID: Request, Payload: payload}
}

// FormatHave builds a Have message for the given piece index.
func FormatHave(index int) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(index))
	return &Message{ID: Have, Payload: payload}
}

// ParseHave decodes a Have message's piece index.
func ParseHave(msg *Message) (int, error) {
	if msg.ID != Have {
		return 0, fmt.Errorf("peerwire: expected have, got %s", msg.ID)
	}
	if len(msg.Payload) != 4 {
		return 0, fmt.Errorf("peerwire: malformed have payload length %d", len(msg.Payload))
	}
	return int(binary.BigEndian.Uint32(msg.Payload)), nil
}

// ParsedPiece is a decoded Piece message.
type ParsedPiece struct {
	Index int
	Begin int
	Block []byte
}

// ParsePiece decodes a Piece message's index, begin offset, and block
// bytes.
func ParsePiece(msg *Message) (ParsedPiece, error) {
	if msg.ID != Piece {
		return ParsedPiece{}, fmt.Errorf("peerwire: expected piece, got %s", msg.ID)
	}
	if len(msg.Payload) < 8 {
		return ParsedPiece{}, fmt.Errorf("peerwire: piece payload too short: %d bytes", len(msg.Payload))
	}
	return ParsedPiece{
		Index: int(binary.BigEndian.Uint32(msg.Payload[0:4])),
		Begin: int(binary.BigEndian.Uint32(msg.Payload[4:8])),
		Block: msg.Payload[8:],
	}, nil
}
