// Package tracker builds the HTTP tracker announce request and
// decodes its compact-peer response.
package tracker

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gorent/internal/bencode"
)

// PeerAddr is a compact peer record: IPv4 address plus port.
type PeerAddr struct {
	IP   net.IP
	Port uint16
}

// String renders the address in host:port form suitable for
// net.Dial.
func (p PeerAddr) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// Response is the parsed tracker announce response.
type Response struct {
	Interval int
	Peers    []PeerAddr
}

// Request describes the parameters needed to build an announce URL.
// Port is this client's listening port (unused for incoming
// connections in this single-peer downloader, but still reported, as
// all trackers expect it).
type Request struct {
	Announce string
	InfoHash [20]byte
	PeerID   [20]byte
	Port     uint16
	Left     int64
}

// BuildURL assembles the announce GET URL with the required query
// parameters, percent-encoding binary fields byte-for-byte (each byte
// becomes %XX, uppercase hex — an intentional over-encoding that
// trackers accept even for bytes url.Values.Encode would leave bare).
func BuildURL(req Request) (string, error) {
	base, err := url.Parse(req.Announce)
	if err != nil {
		return "", fmt.Errorf("tracker: parse announce url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return "", fmt.Errorf("tracker: unsupported announce scheme %q", base.Scheme)
	}

	params := url.Values{
		"port":       {strconv.Itoa(int(req.Port))},
		"uploaded":   {"0"},
		"downloaded": {"0"},
		"left":       {strconv.FormatInt(req.Left, 10)},
		"compact":    {"1"},
	}
	query := params.Encode()
	query += "&info_hash=" + percentEncode(req.InfoHash[:])
	query += "&peer_id=" + percentEncode(req.PeerID[:])
	base.RawQuery = query
	return base.String(), nil
}

func percentEncode(b []byte) string {
	var sb strings.Builder
	sb.Grow(3 * len(b))
	for _, v := range b {
		fmt.Fprintf(&sb, "%%%02X", v)
	}
	return sb.String()
}

func parseResponse(body []byte) (Response, error) {
	v, err := bencode.ParseAll(body)
	if err != nil {
		return Response{}, fmt.Errorf("tracker: parse response: %w", err)
	}

	intervalVal, ok := bencode.Lookup(v, "interval")
	if !ok {
		return Response{}, fmt.Errorf("tracker: response missing %q", "interval")
	}
	interval, ok := bencode.AsInt(intervalVal)
	if !ok {
		return Response{}, fmt.Errorf("tracker: %q is not an integer", "interval")
	}

	peersVal, ok := bencode.Lookup(v, "peers")
	if !ok {
		return Response{}, fmt.Errorf("tracker: response missing %q", "peers")
	}
	peersBytes, ok := bencode.AsBstr(peersVal)
	if !ok {
		return Response{}, fmt.Errorf("tracker: non-compact %q form is not supported", "peers")
	}

	peers, err := decodeCompactPeers(peersBytes)
	if err != nil {
		return Response{}, err
	}
	return Response{Interval: int(interval), Peers: peers}, nil
}

const compactPeerSize = 6

func decodeCompactPeers(b []byte) ([]PeerAddr, error) {
	if len(b)%compactPeerSize != 0 {
		return nil, fmt.Errorf("tracker: compact peers length %d is not a multiple of %d", len(b), compactPeerSize)
	}
	n := len(b) / compactPeerSize
	peers := make([]PeerAddr, n)
	for i := 0; i < n; i++ {
		off := i * compactPeerSize
		ip := make(net.IP, 4)
		copy(ip, b[off:off+4])
		peers[i] = PeerAddr{
			IP:   ip,
			Port: binary.BigEndian.Uint16(b[off+4 : off+6]),
		}
	}
	return peers, nil
}

// Announce issues the tracker GET and returns the parsed response.
// The HTTP round trip is the one external collaborator this package
// depends on: everything else is pure URL-building and bencode
// decoding, independently testable without the network.
func Announce(ctx context.Context, client *http.Client, req Request) (Response, error) {
	u, err := BuildURL(req)
	if err != nil {
		return Response{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Response{}, fmt.Errorf("tracker: build request: %w", err)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("tracker: announce request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("tracker: read response body: %w", err)
	}
	return parseResponse(body)
}
