// Package sink implements the disk output this downloader writes
// verified pieces to: a single file, created new, never overwriting an
// existing one.
package sink

import (
	"fmt"
	"io"
	"os"
)

// Sink is a byte sink backed by a single file on disk. Each write
// lands at an explicit offset; writes need not arrive in offset order.
type Sink struct {
	f *os.File
}

// Create opens name for writing, failing if it already exists rather
// than silently truncating or appending to a stale file.
func Create(name string) (*Sink, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: create %s: %w", name, err)
	}
	return &Sink{f: f}, nil
}

// WriteAt writes piece bytes at the given byte offset. Pieces are
// expected in index order by the caller, but WriteAt takes an
// explicit offset so a driver that retries a piece doesn't have to
// track a running cursor separately from piece bounds.
func (s *Sink) WriteAt(b []byte, offset int64) error {
	if _, err := s.f.WriteAt(b, offset); err != nil {
		return fmt.Errorf("sink: write at offset %d: %w", offset, err)
	}
	return nil
}

// Close closes the underlying file.
func (s *Sink) Close() error {
	return s.f.Close()
}

var _ io.Closer = (*Sink)(nil)
