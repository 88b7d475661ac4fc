package metainfo

import (
	"bytes"
	"crypto/sha1"
	"strings"
	"testing"

	"gorent/internal/bencode"

	"github.com/stretchr/testify/require"
)

func buildSingleFileTorrent(t *testing.T, pieces []byte) []byte {
	t.Helper()
	info := bencode.Dict([]bencode.KV{
		{Key: bencode.Str("length"), Val: bencode.Int(32768)},
		{Key: bencode.Str("name"), Val: bencode.Str("payload.bin")},
		{Key: bencode.Str("piece length"), Val: bencode.Int(16384)},
		{Key: bencode.Str("pieces"), Val: bencode.Bstr(pieces)},
	})
	top := bencode.Dict([]bencode.KV{
		{Key: bencode.Str("announce"), Val: bencode.Str("http://tracker.example/announce")},
		{Key: bencode.Str("info"), Val: info},
	})
	return bencode.Encode(top)
}

func TestParseSingleFileTorrent(t *testing.T) {
	hash1 := sha1.Sum([]byte("piece-one-content"))
	hash2 := sha1.Sum([]byte("piece-two-content"))
	pieces := append(append([]byte{}, hash1[:]...), hash2[:]...)

	raw := buildSingleFileTorrent(t, pieces)
	tf, err := Parse(bytes.NewReader(raw))
	require.NoError(t, err)

	require.Equal(t, "http://tracker.example/announce", tf.Announce)
	require.Equal(t, int64(16384), tf.PieceLength)
	require.Equal(t, 2, tf.NumPieces())
	require.Equal(t, hash1, tf.Pieces[0])
	require.Equal(t, hash2, tf.Pieces[1])
	require.False(t, tf.Private)
	require.False(t, tf.Payload.IsMulti())
	require.Equal(t, "payload.bin", tf.Payload.Name)
	require.Equal(t, int64(32768), tf.TotalLength())
}

func TestInfoHashMatchesIndependentCanonicalEncoding(t *testing.T) {
	hash := sha1.Sum([]byte("x"))
	raw := buildSingleFileTorrent(t, hash[:])

	top, err := bencode.ParseAll(raw)
	require.NoError(t, err)
	infoVal, ok := bencode.Lookup(top, "info")
	require.True(t, ok)
	want := sha1.Sum(bencode.Encode(infoVal))

	tf, err := Parse(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, want, tf.InfoHash)
}

func TestInfoHashUsesCanonicalOrderNotInputOrder(t *testing.T) {
	hash := sha1.Sum([]byte("x"))
	// Deliberately out-of-canonical-order keys in the info dict.
	info := bencode.Dict([]bencode.KV{
		{Key: bencode.Str("pieces"), Val: bencode.Bstr(hash[:])},
		{Key: bencode.Str("piece length"), Val: bencode.Int(16384)},
		{Key: bencode.Str("name"), Val: bencode.Str("a")},
		{Key: bencode.Str("length"), Val: bencode.Int(1)},
	})
	top := bencode.Dict([]bencode.KV{
		{Key: bencode.Str("announce"), Val: bencode.Str("http://t")},
		{Key: bencode.Str("info"), Val: info},
	})
	raw := bencode.Encode(top)

	tf, err := Parse(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, sha1.Sum(bencode.Encode(info)), tf.InfoHash)
}

func TestParseMultiFileTorrent(t *testing.T) {
	hash := sha1.Sum([]byte("x"))
	files := bencode.List([]bencode.Value{
		bencode.Dict([]bencode.KV{
			{Key: bencode.Str("length"), Val: bencode.Int(100)},
			{Key: bencode.Str("path"), Val: bencode.List([]bencode.Value{bencode.Str("dir"), bencode.Str("a.txt")})},
		}),
		bencode.Dict([]bencode.KV{
			{Key: bencode.Str("length"), Val: bencode.Int(200)},
			{Key: bencode.Str("path"), Val: bencode.List([]bencode.Value{bencode.Str("b.txt")})},
		}),
	})
	info := bencode.Dict([]bencode.KV{
		{Key: bencode.Str("name"), Val: bencode.Str("bundle")},
		{Key: bencode.Str("piece length"), Val: bencode.Int(16384)},
		{Key: bencode.Str("pieces"), Val: bencode.Bstr(hash[:])},
		{Key: bencode.Str("files"), Val: files},
	})
	top := bencode.Dict([]bencode.KV{
		{Key: bencode.Str("announce"), Val: bencode.Str("http://t")},
		{Key: bencode.Str("info"), Val: info},
	})

	tf, err := Parse(bytes.NewReader(bencode.Encode(top)))
	require.NoError(t, err)
	require.True(t, tf.Payload.IsMulti())
	require.Len(t, tf.Payload.Files, 2)
	require.Equal(t, []string{"dir", "a.txt"}, tf.Payload.Files[0].Path)
	require.Equal(t, int64(300), tf.TotalLength())
}

func TestParseRejectsBothLengthAndFiles(t *testing.T) {
	info := bencode.Dict([]bencode.KV{
		{Key: bencode.Str("name"), Val: bencode.Str("a")},
		{Key: bencode.Str("piece length"), Val: bencode.Int(16384)},
		{Key: bencode.Str("pieces"), Val: bencode.Bstr(make([]byte, 20))},
		{Key: bencode.Str("length"), Val: bencode.Int(1)},
		{Key: bencode.Str("files"), Val: bencode.List(nil)},
	})
	top := bencode.Dict([]bencode.KV{
		{Key: bencode.Str("announce"), Val: bencode.Str("http://t")},
		{Key: bencode.Str("info"), Val: info},
	})
	_, err := Parse(bytes.NewReader(bencode.Encode(top)))
	require.Error(t, err)
}

func TestParseRejectsNeitherLengthNorFiles(t *testing.T) {
	info := bencode.Dict([]bencode.KV{
		{Key: bencode.Str("name"), Val: bencode.Str("a")},
		{Key: bencode.Str("piece length"), Val: bencode.Int(16384)},
		{Key: bencode.Str("pieces"), Val: bencode.Bstr(make([]byte, 20))},
	})
	top := bencode.Dict([]bencode.KV{
		{Key: bencode.Str("announce"), Val: bencode.Str("http://t")},
		{Key: bencode.Str("info"), Val: info},
	})
	_, err := Parse(bytes.NewReader(bencode.Encode(top)))
	require.Error(t, err)
}

func TestParseRejectsBadPiecesLength(t *testing.T) {
	info := bencode.Dict([]bencode.KV{
		{Key: bencode.Str("name"), Val: bencode.Str("a")},
		{Key: bencode.Str("piece length"), Val: bencode.Int(16384)},
		{Key: bencode.Str("pieces"), Val: bencode.Bstr(make([]byte, 19))},
		{Key: bencode.Str("length"), Val: bencode.Int(1)},
	})
	top := bencode.Dict([]bencode.KV{
		{Key: bencode.Str("announce"), Val: bencode.Str("http://t")},
		{Key: bencode.Str("info"), Val: info},
	})
	_, err := Parse(bytes.NewReader(bencode.Encode(top)))
	require.Error(t, err)
}

func TestParseRejectsMissingMandatoryFields(t *testing.T) {
	top := bencode.Dict([]bencode.KV{
		{Key: bencode.Str("announce"), Val: bencode.Str("http://t")},
	})
	_, err := Parse(bytes.NewReader(bencode.Encode(top)))
	require.Error(t, err)
}

func TestParseRejectsMalformedBencoding(t *testing.T) {
	_, err := Parse(strings.NewReader("not bencoded"))
	require.Error(t, err)
}

func TestParseRejectsNonUTF8Announce(t *testing.T) {
	info := bencode.Dict([]bencode.KV{
		{Key: bencode.Str("name"), Val: bencode.Str("a")},
		{Key: bencode.Str("piece length"), Val: bencode.Int(16384)},
		{Key: bencode.Str("pieces"), Val: bencode.Bstr(make([]byte, 20))},
		{Key: bencode.Str("length"), Val: bencode.Int(1)},
	})
	top := bencode.Dict([]bencode.KV{
		{Key: bencode.Str("announce"), Val: bencode.Bstr([]byte{0xff, 0xfe, 0x00})},
		{Key: bencode.Str("info"), Val: info},
	})
	_, err := Parse(bytes.NewReader(bencode.Encode(top)))
	require.Error(t, err)
}

func TestPieceLenLastPieceShorter(t *testing.T) {
	hash1 := sha1.Sum([]byte("a"))
	hash2 := sha1.Sum([]byte("b"))
	tf := &Torrent{
		PieceLength: 16384,
		Pieces:      [][20]byte{hash1, hash2},
		Payload:     Payload{Name: "x", Length: 20000},
	}
	require.Equal(t, int64(16384), tf.PieceLen(0))
	require.Equal(t, int64(20000-16384), tf.PieceLen(1))
}
