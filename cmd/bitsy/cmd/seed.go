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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/namvu9/btcore/internal/errors"
	"github.com/namvu9/btcore/pkg/btorrent/size"
	"github.com/namvu9/btcore/pkg/btorrent/tracker"
)

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed <torrent> <file>",
	Short: "Serve a torrent's content to other peers",
	Long: `This command verifies every piece of the file against the torrent, then accepts peers on the listen port and serves them until interrupted. The UDP trackers listed by the torrent are announced to periodically so other peers can find this client.

Examples:

bitsy seed movie.torrent movie.mkv
bitsy seed --port 51413 --upnp movie.torrent movie.mkv
`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := loadTorrent(args[0])
		if err != nil {
			return fmt.Errorf("could not load torrent: %w", err)
		}

		content, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}

		if int64(len(content)) != t.TotalLength() {
			return fmt.Errorf("%s is %s, torrent describes %s", args[1], size.Size(len(content)), size.Size(t.TotalLength()))
		}

		s, err := newSession(t)
		if err != nil {
			return err
		}

		logf("Verifying %d pieces... ", t.NumPieces())
		for i := 0; i < t.NumPieces(); i++ {
			begin := int64(i) * t.Info.PieceLength
			if err := s.Seed(i, content[begin:begin+t.PieceLen(i)]); err != nil {
				logf("\n")
				return err
			}
		}
		logf("done\n")

		ctx, cancel := signalContext()
		defer cancel()

		stop := startServices(ctx, s)
		defer stop()

		logf("Seeding %s on port %d\n", t.Name(), cfg.Listen.Port)

		for {
			wait := 30 * time.Minute

			res, err := s.Announce(ctx)
			switch {
			case errors.Is(err, tracker.ErrNoUDPTracker):
				log.Warn().Msg("torrent lists no UDP tracker; waiting for peers to connect")
				wait = 24 * time.Hour
			case err != nil:
				return err
			default:
				log.Info().Int("seeders", res.Seeders).Int("leechers", res.Leechers).Msg("announced")
				if next := time.Until(s.NextAnnounce()); next > time.Second {
					wait = next
				} else {
					wait = time.Second
				}
			}

			select {
			case <-ctx.Done():
				stat := s.Stat()
				logf("Uploaded %s to %d peers\n", size.Size(stat.Uploaded), stat.Peers)
				return nil
			case <-time.After(wait):
			}
		}
	},
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return err
		}
	}

	return os.WriteFile(path, data, 0644)
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
