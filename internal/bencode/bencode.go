// Package bencode implements the bencoding used by the BitTorrent v1
// metadata, tracker, and wire formats: a recursive value with four
// shapes (byte string, integer, list, dictionary) and a canonical
// re-encoding used to compute info_hash.
package bencode

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// Kind tags the shape a Value holds.
type Kind int

const (
	KindBstr Kind = iota
	KindInt
	KindList
	KindDict
)

// KV is a single dictionary entry. Keys are always byte strings;
// insertion order is preserved on parse.
type KV struct {
	Key Value
	Val Value
}

// Value is a tagged bencoded value. Only the field matching Kind is
// meaningful.
type Value struct {
	Kind Kind
	Bstr []byte
	Int  int64
	List []Value
	Dict []KV
}

// Bstr builds a byte-string value.
func Bstr(b []byte) Value { return Value{Kind: KindBstr, Bstr: b} }

// Str builds a byte-string value from a Go string.
func Str(s string) Value { return Value{Kind: KindBstr, Bstr: []byte(s)} }

// Int builds an integer value.
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }

// List builds a list value.
func List(items []Value) Value { return Value{Kind: KindList, List: items} }

// Dict builds a dict value from ordered entries.
func Dict(entries []KV) Value { return Value{Kind: KindDict, Dict: entries} }

// Parse decodes the first bencoded value from b and returns it
// together with any unconsumed trailing bytes.
func Parse(b []byte) (Value, []byte, error) {
	if len(b) == 0 {
		return Value{}, nil, fmt.Errorf("bencode: empty input")
	}
	switch {
	case b[0] == 'i':
		return parseInt(b)
	case b[0] == 'l':
		return parseList(b)
	case b[0] == 'd':
		return parseDict(b)
	case b[0] >= '0' && b[0] <= '9':
		return parseBstr(b)
	default:
		return Value{}, nil, fmt.Errorf("bencode: unknown prefix %q", b[0])
	}
}

// ParseAll decodes a value and requires that no trailing bytes remain.
func ParseAll(b []byte) (Value, error) {
	v, rest, err := Parse(b)
	if err != nil {
		return Value{}, err
	}
	if len(rest) != 0 {
		return Value{}, fmt.Errorf("bencode: %d trailing bytes after value", len(rest))
	}
	return v, nil
}

func parseInt(b []byte) (Value, []byte, error) {
	end := bytes.IndexByte(b, 'e')
	if end < 0 {
		return Value{}, nil, fmt.Errorf("bencode: integer missing terminator")
	}
	digits := string(b[1:end])
	if digits == "" {
		return Value{}, nil, fmt.Errorf("bencode: empty integer")
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return Value{}, nil, fmt.Errorf("bencode: malformed integer %q: %w", digits, err)
	}
	return Int(n), b[end+1:], nil
}

func parseBstr(b []byte) (Value, []byte, error) {
	colon := bytes.IndexByte(b, ':')
	if colon < 0 {
		return Value{}, nil, fmt.Errorf("bencode: byte string missing length separator")
	}
	length, err := strconv.Atoi(string(b[:colon]))
	if err != nil {
		return Value{}, nil, fmt.Errorf("bencode: malformed byte string length: %w", err)
	}
	if length < 0 {
		return Value{}, nil, fmt.Errorf("bencode: negative byte string length %d", length)
	}
	start := colon + 1
	if length > len(b)-start {
		return Value{}, nil, fmt.Errorf("bencode: byte string length %d exceeds remaining input", length)
	}
	return Bstr(b[start : start+length]), b[start+length:], nil
}

func parseList(b []byte) (Value, []byte, error) {
	rest := b[1:]
	var items []Value
	for {
		if len(rest) == 0 {
			return Value{}, nil, fmt.Errorf("bencode: list missing terminator")
		}
		if rest[0] == 'e' {
			return List(items), rest[1:], nil
		}
		item, next, err := Parse(rest)
		if err != nil {
			return Value{}, nil, err
		}
		items = append(items, item)
		rest = next
	}
}

func parseDict(b []byte) (Value, []byte, error) {
	rest := b[1:]
	var entries []KV
	for {
		if len(rest) == 0 {
			return Value{}, nil, fmt.Errorf("bencode: dict missing terminator")
		}
		if rest[0] == 'e' {
			return Dict(entries), rest[1:], nil
		}
		if rest[0] < '0' || rest[0] > '9' {
			return Value{}, nil, fmt.Errorf("bencode: dict key must be a byte string")
		}
		key, next, err := parseBstr(rest)
		if err != nil {
			return Value{}, nil, err
		}
		if len(next) == 0 {
			return Value{}, nil, fmt.Errorf("bencode: dict missing value for key %q", key.Bstr)
		}
		val, next2, err := Parse(next)
		if err != nil {
			return Value{}, nil, err
		}
		entries = append(entries, KV{Key: key, Val: val})
		rest = next2
	}
}

// Encode writes v's canonical bencoding: dict entries sorted by
// lexicographic byte order of their keys. This is the form info_hash
// is computed over, regardless of the order keys appeared in the
// original input.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encode(&buf, v)
	return buf.Bytes()
}

func encode(buf *bytes.Buffer, v Value) {
	switch v.Kind {
	case KindBstr:
		buf.WriteString(strconv.Itoa(len(v.Bstr)))
		buf.WriteByte(':')
		buf.Write(v.Bstr)
	case KindInt:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(v.Int, 10))
		buf.WriteByte('e')
	case KindList:
		buf.WriteByte('l')
		for _, item := range v.List {
			encode(buf, item)
		}
		buf.WriteByte('e')
	case KindDict:
		buf.WriteByte('d')
		sorted := make([]KV, len(v.Dict))
		copy(sorted, v.Dict)
		sort.SliceStable(sorted, func(i, j int) bool {
			return bytes.Compare(sorted[i].Key.Bstr, sorted[j].Key.Bstr) < 0
		})
		for _, kv := range sorted {
			encode(buf, kv.Key)
			encode(buf, kv.Val)
		}
		buf.WriteByte('e')
	}
}

// Lookup returns the value of the first entry in a Dict whose key
// byte-equals key, or ok=false if d is not a dict or has no such key.
func Lookup(d Value, key string) (Value, bool) {
	if d.Kind != KindDict {
		return Value{}, false
	}
	kb := []byte(key)
	for _, kv := range d.Dict {
		if bytes.Equal(kv.Key.Bstr, kb) {
			return kv.Val, true
		}
	}
	return Value{}, false
}

// AsBstr narrows v to a byte string.
func AsBstr(v Value) ([]byte, bool) {
	if v.Kind != KindBstr {
		return nil, false
	}
	return v.Bstr, true
}

// AsInt narrows v to an integer.
func AsInt(v Value) (int64, bool) {
	if v.Kind != KindInt {
		return 0, false
	}
	return v.Int, true
}

// AsList narrows v to a list.
func AsList(v Value) ([]Value, bool) {
	if v.Kind != KindList {
		return nil, false
	}
	return v.List, true
}

// AsDict narrows v to a dict, returning it unchanged (the Value itself
// carries the Dict field, callers use Lookup/field access directly).
func AsDict(v Value) (Value, bool) {
	if v.Kind != KindDict {
		return Value{}, false
	}
	return v, true
}

// Equal reports whether two values are structurally equal. Dict
// comparison ignores entry order, matching the parse-then-round-trip
// law (parse(encode(v)) == v up to canonical ordering).
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindBstr:
		return bytes.Equal(a.Bstr, b.Bstr)
	case KindInt:
		return a.Int == b.Int
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(a.Dict) != len(b.Dict) {
			return false
		}
		ae := append([]KV(nil), a.Dict...)
		be := append([]KV(nil), b.Dict...)
		sort.Slice(ae, func(i, j int) bool { return bytes.Compare(ae[i].Key.Bstr, ae[j].Key.Bstr) < 0 })
		sort.Slice(be, func(i, j int) bool { return bytes.Compare(be[i].Key.Bstr, be[j].Key.Bstr) < 0 })
		for i := range ae {
			if !Equal(ae[i].Key, be[i].Key) || !Equal(ae[i].Val, be[i].Val) {
				return false
			}
		}
		return true
	}
	return false
}
