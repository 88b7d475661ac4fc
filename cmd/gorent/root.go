package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gorent/internal/download"
	"gorent/internal/gorentlog"
	"gorent/internal/metainfo"
	"gorent/internal/peerid"
	"gorent/internal/sink"
	"gorent/internal/tracker"
)

type rootFlags struct {
	port        uint16
	dialTimeout time.Duration
	peerTimeout time.Duration
	readTimeout time.Duration
	outDir      string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	var f rootFlags

	root := &cobra.Command{
		Use:   "gorent <metadata-file>",
		Short: "Download a single-file torrent from one peer at a time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gorentlog.SetVerbose(f.verbose)
			return runDownload(cmd.Context(), args[0], f)
		},
	}

	root.PersistentFlags().Uint16Var(&f.port, "port", 6881, "port reported to the tracker")
	root.PersistentFlags().DurationVar(&f.dialTimeout, "dial-timeout", 5*time.Second, "per-peer connect and handshake timeout")
	root.PersistentFlags().DurationVar(&f.peerTimeout, "peer-timeout", 30*time.Second, "how long to keep retrying a piece across peers before giving up")
	root.PersistentFlags().DurationVar(&f.readTimeout, "read-timeout", download.DefaultReadTimeout, "read deadline on an established peer connection")
	root.PersistentFlags().StringVar(&f.outDir, "out-dir", ".", "directory to write the downloaded file into")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newDecodeCmd())
	return root
}

func runDownload(ctx context.Context, metadataPath string, f rootFlags) error {
	file, err := os.Open(metadataPath)
	if err != nil {
		return fmt.Errorf("gorent: open metadata file: %w", err)
	}
	defer file.Close()

	t, err := metainfo.Parse(file)
	if err != nil {
		return fmt.Errorf("gorent: parse metadata: %w", err)
	}
	if t.Payload.IsMulti() {
		return fmt.Errorf("gorent: multi-file torrents are not supported")
	}

	clientID := peerid.Generate()

	announceReq := tracker.Request{
		Announce: t.Announce,
		InfoHash: t.InfoHash,
		PeerID:   clientID,
		Port:     f.port,
		Left:     t.TotalLength(),
	}
	announceURL, err := tracker.BuildURL(announceReq)
	if err != nil {
		return fmt.Errorf("gorent: build tracker URL: %w", err)
	}
	gorentlog.Base().WithField("url", announceURL).Debug("announcing to tracker")

	httpClient := &http.Client{Timeout: 15 * time.Second}
	resp, err := tracker.Announce(ctx, httpClient, announceReq)
	if err != nil {
		return fmt.Errorf("gorent: announce: %w", err)
	}
	fmt.Printf("discovered %d peer(s)\n", len(resp.Peers))

	cfg := download.Config{
		Port:        f.port,
		DialTimeout: f.dialTimeout,
		PeerTimeout: f.peerTimeout,
		ReadTimeout: f.readTimeout,
	}
	driver := download.NewDriver(t, resp.Peers, cfg)
	driver.OnPiece(func(index, total int) {
		color.New(color.FgGreen).Printf("piece %d/%d verified\n", index+1, total)
	})

	outPath := filepath.Join(f.outDir, t.Payload.Name)
	out, err := sink.Create(outPath)
	if err != nil {
		return fmt.Errorf("gorent: create output file: %w", err)
	}
	defer out.Close()

	if err := driver.Run(ctx, out); err != nil {
		return fmt.Errorf("gorent: download: %w", err)
	}

	color.New(color.FgCyan, color.Bold).Printf("saved to %s\n", outPath)
	return nil
}
