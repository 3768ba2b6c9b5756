/*
Copyright © 2021 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/namvu9/btcore/internal/ports"
	"github.com/namvu9/btcore/internal/session"
	"github.com/namvu9/btcore/internal/status"
	"github.com/namvu9/btcore/pkg/btorrent/size"
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <torrent>",
	Short: "Download a torrent into a single file",
	Long: `This command downloads every piece of a torrent and writes the verified content to the output file. Pieces are held in memory until the download is complete. Files of a multi-file torrent are written back to back.

Peers are taken from the torrent's UDP trackers unless --peer is given. While downloading, other peers may fetch completed pieces from the listen port.

Examples:

bitsy download /path/to/file.torrent
bitsy download -o out.iso --peer 10.0.0.2:6881 /path/to/file.torrent
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, _ := cmd.Flags().GetString("out")
		peers, _ := cmd.Flags().GetStringSlice("peer")

		t, err := loadTorrent(args[0])
		if err != nil {
			return fmt.Errorf("could not load torrent: %w", err)
		}

		if outPath == "" {
			outPath = t.Name()
		}

		s, err := newSession(t)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		stop := startServices(ctx, s)
		defer stop()

		var (
			content = make([]byte, t.TotalLength())
			done    = make(chan struct{})
		)

		go func() {
			defer close(done)

			var have int
			for p := range s.Pieces() {
				copy(content[int64(p.Index)*t.Info.PieceLength:], p.Data)
				have++

				logf("\r%d / %d pieces (%s left)", have, t.NumPieces(), size.Size(s.Stat().Left))
			}
			logf("\n")
		}()

		logf("Downloading %s (%s)\n", t.Name(), size.Size(t.TotalLength()))

		if len(peers) > 0 {
			s.Download(ctx, peers)
		} else if err := s.Run(ctx); err != nil {
			return err
		}

		if !s.PieceManager().Complete() {
			return fmt.Errorf("download incomplete: %s left", size.Size(s.Stat().Left))
		}

		<-done

		if err := writeFile(outPath, content); err != nil {
			return err
		}

		logf("Wrote %s\n", outPath)

		return nil
	},
}

// startServices starts accepting peers and, when
// configured, the status API and port forwarding. The
// returned func releases them.
func startServices(ctx context.Context, s *session.Session) func() {
	ctx, cancel := context.WithCancel(ctx)
	cleanup := []func(){cancel}

	stop := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(int(cfg.Listen.Port))))
	if err != nil {
		log.Warn().Err(err).Msg("not accepting inbound peers")
		return stop
	}

	go func() {
		if err := s.Serve(ctx, ln); err != nil {
			log.Error().Err(err).Msg("stopped accepting peers")
		}
	}()

	if cfg.Listen.UPnP {
		svc := ports.NewService()
		if err := svc.Forward(ctx, cfg.Listen.Port); err != nil {
			log.Warn().Err(err).Msg("UPnP port forwarding failed")
		} else {
			cleanup = append(cleanup, func() { svc.Close() })
		}
	}

	if cfg.HTTP.Addr != "" {
		go func() {
			if err := status.ListenAndServe(ctx, cfg.HTTP.Addr, s); err != nil {
				log.Error().Err(err).Msg("status API stopped")
			}
		}()
	}

	return stop
}

func init() {
	downloadCmd.Flags().StringP("out", "o", "", "file to write the content to (default: the torrent's name)")
	downloadCmd.Flags().StringSlice("peer", nil, "peer address to download from instead of asking trackers, may be repeated")
	rootCmd.AddCommand(downloadCmd)
}
