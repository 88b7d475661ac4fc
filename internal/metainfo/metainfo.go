// Package metainfo parses a .torrent metadata file into an immutable
// Torrent descriptor: announce URL, info_hash, piece layout, and
// payload (single- or multi-file).
package metainfo

import (
	"crypto/sha1"
	"fmt"
	"io"
	"unicode/utf8"

	"gorent/internal/bencode"
)

const pieceHashLen = 20

// Payload is either a single-file or multi-file layout. Exactly one
// of the concrete forms below applies; the downloader (Non-goals)
// only ever writes a Single payload.
type Payload struct {
	Name string

	// Single-file form. Length is meaningful iff Files is nil.
	Length int64

	// Multi-file form. Files is non-nil iff this is a multi-file
	// torrent.
	Files []File
}

// IsMulti reports whether this is a multi-file payload.
func (p Payload) IsMulti() bool { return p.Files != nil }

// TotalLength returns the sum of all file lengths.
func (p Payload) TotalLength() int64 {
	if !p.IsMulti() {
		return p.Length
	}
	var total int64
	for _, f := range p.Files {
		total += f.Length
	}
	return total
}

// File is one entry of a multi-file payload.
type File struct {
	Path   []string
	Length int64
}

// Torrent is the immutable descriptor derived from metadata. It is
// read-only after construction and may be shared by reference among
// any number of peer sessions.
type Torrent struct {
	Announce    string
	InfoHash    [20]byte
	PieceLength int64
	Pieces      [][20]byte
	Private     bool
	Payload     Payload
}

// NumPieces returns the number of pieces described by the metadata.
func (t *Torrent) NumPieces() int { return len(t.Pieces) }

// TotalLength returns the payload's total byte length.
func (t *Torrent) TotalLength() int64 { return t.Payload.TotalLength() }

// PieceBounds returns the half-open [begin, end) byte range of piece
// index within the reconstructed content.
func (t *Torrent) PieceBounds(index int) (begin, end int64) {
	begin = int64(index) * t.PieceLength
	end = begin + t.PieceLength
	if total := t.TotalLength(); end > total {
		end = total
	}
	return begin, end
}

// PieceLen returns the length of piece index: PieceLength for all but
// the final piece, which may be shorter.
func (t *Torrent) PieceLen(index int) int64 {
	begin, end := t.PieceBounds(index)
	return end - begin
}

// Parse reads metadata bytes from r and builds a Torrent. Every
// failure here is fatal at construction: unreadable input, malformed
// bencoding, or a missing/contradictory mandatory field.
func Parse(r io.Reader) (*Torrent, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("metainfo: read metadata: %w", err)
	}
	top, err := bencode.ParseAll(raw)
	if err != nil {
		return nil, fmt.Errorf("metainfo: parse bencoding: %w", err)
	}
	if top.Kind != bencode.KindDict {
		return nil, fmt.Errorf("metainfo: top-level value is not a dict")
	}

	announceVal, ok := bencode.Lookup(top, "announce")
	if !ok {
		return nil, fmt.Errorf("metainfo: missing %q", "announce")
	}
	announceBytes, ok := bencode.AsBstr(announceVal)
	if !ok {
		return nil, fmt.Errorf("metainfo: %q is not a byte string", "announce")
	}
	if !utf8.Valid(announceBytes) {
		return nil, fmt.Errorf("metainfo: %q is not valid UTF-8", "announce")
	}

	infoVal, ok := bencode.Lookup(top, "info")
	if !ok {
		return nil, fmt.Errorf("metainfo: missing %q", "info")
	}
	if infoVal.Kind != bencode.KindDict {
		return nil, fmt.Errorf("metainfo: %q is not a dict", "info")
	}

	infoHash := sha1.Sum(bencode.Encode(infoVal))

	nameVal, ok := bencode.Lookup(infoVal, "name")
	if !ok {
		return nil, fmt.Errorf("metainfo: missing %q", "info.name")
	}
	nameBytes, ok := bencode.AsBstr(nameVal)
	if !ok {
		return nil, fmt.Errorf("metainfo: %q is not a byte string", "info.name")
	}

	pieceLengthVal, ok := bencode.Lookup(infoVal, "piece length")
	if !ok {
		return nil, fmt.Errorf("metainfo: missing %q", "info.piece length")
	}
	pieceLength, ok := bencode.AsInt(pieceLengthVal)
	if !ok || pieceLength <= 0 {
		return nil, fmt.Errorf("metainfo: %q must be a positive integer", "info.piece length")
	}

	piecesVal, ok := bencode.Lookup(infoVal, "pieces")
	if !ok {
		return nil, fmt.Errorf("metainfo: missing %q", "info.pieces")
	}
	piecesBytes, ok := bencode.AsBstr(piecesVal)
	if !ok {
		return nil, fmt.Errorf("metainfo: %q is not a byte string", "info.pieces")
	}
	pieces, err := splitPieceHashes(piecesBytes)
	if err != nil {
		return nil, err
	}

	private := false
	if privateVal, ok := bencode.Lookup(infoVal, "private"); ok {
		n, ok := bencode.AsInt(privateVal)
		if !ok {
			return nil, fmt.Errorf("metainfo: %q is not an integer", "info.private")
		}
		private = n == 1
	}

	payload, err := parsePayload(string(nameBytes), infoVal)
	if err != nil {
		return nil, err
	}

	return &Torrent{
		Announce:    string(announceBytes),
		InfoHash:    infoHash,
		PieceLength: pieceLength,
		Pieces:      pieces,
		Private:     private,
		Payload:     payload,
	}, nil
}

func splitPieceHashes(b []byte) ([][20]byte, error) {
	if len(b)%pieceHashLen != 0 {
		return nil, fmt.Errorf("metainfo: %q length %d is not a multiple of %d", "info.pieces", len(b), pieceHashLen)
	}
	n := len(b) / pieceHashLen
	out := make([][20]byte, n)
	for i := 0; i < n; i++ {
		copy(out[i][:], b[i*pieceHashLen:(i+1)*pieceHashLen])
	}
	return out, nil
}

func parsePayload(name string, info bencode.Value) (Payload, error) {
	lengthVal, hasLength := bencode.Lookup(info, "length")
	filesVal, hasFiles := bencode.Lookup(info, "files")

	switch {
	case hasLength && hasFiles:
		return Payload{}, fmt.Errorf("metainfo: info contains both %q and %q", "length", "files")
	case !hasLength && !hasFiles:
		return Payload{}, fmt.Errorf("metainfo: info contains neither %q nor %q", "length", "files")
	case hasLength:
		length, ok := bencode.AsInt(lengthVal)
		if !ok || length < 0 {
			return Payload{}, fmt.Errorf("metainfo: %q must be a non-negative integer", "info.length")
		}
		return Payload{Name: name, Length: length}, nil
	default:
		items, ok := bencode.AsList(filesVal)
		if !ok {
			return Payload{}, fmt.Errorf("metainfo: %q is not a list", "info.files")
		}
		files := make([]File, len(items))
		for i, item := range items {
			f, err := parseFile(item)
			if err != nil {
				return Payload{}, fmt.Errorf("metainfo: files[%d]: %w", i, err)
			}
			files[i] = f
		}
		return Payload{Name: name, Files: files}, nil
	}
}

func parseFile(v bencode.Value) (File, error) {
	if v.Kind != bencode.KindDict {
		return File{}, fmt.Errorf("entry is not a dict")
	}
	lengthVal, ok := bencode.Lookup(v, "length")
	if !ok {
		return File{}, fmt.Errorf("missing %q", "length")
	}
	length, ok := bencode.AsInt(lengthVal)
	if !ok || length < 0 {
		return File{}, fmt.Errorf("%q must be a non-negative integer", "length")
	}
	pathVal, ok := bencode.Lookup(v, "path")
	if !ok {
		return File{}, fmt.Errorf("missing %q", "path")
	}
	pathItems, ok := bencode.AsList(pathVal)
	if !ok {
		return File{}, fmt.Errorf("%q is not a list", "path")
	}
	path := make([]string, len(pathItems))
	for i, item := range pathItems {
		b, ok := bencode.AsBstr(item)
		if !ok {
			return File{}, fmt.Errorf("path[%d] is not a byte string", i)
		}
		path[i] = string(b)
	}
	return File{Path: path, Length: length}, nil
}
