// Command gorent downloads a single-file torrent from one peer at a
// time, or decodes a raw bencoded value for inspection.
package main

import (
	"context"
	"fmt"
	"os"

	"gorent/internal/gorentlog"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		gorentlog.Base().WithError(err).Error("gorent failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
