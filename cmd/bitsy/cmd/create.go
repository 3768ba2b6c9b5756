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

	"github.com/spf13/cobra"

	"github.com/namvu9/btcore/pkg/btorrent"
	"github.com/namvu9/btcore/pkg/btorrent/size"
)

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Create a torrent file",
	Long: `This command hashes a file into pieces and writes a single-file .torrent describing it. The first tracker becomes the announce URL; every tracker is listed in its own announce-list tier.

Examples:

bitsy create -t udp://tracker.example:6969/announce movie.mkv > movie.torrent
bitsy create --piece-length 512KiB -o movie.torrent movie.mkv
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()

		trackers, _ := flags.GetStringSlice("tracker")
		comment, _ := flags.GetString("comment")
		outPath, _ := flags.GetString("out")
		pieceLengthStr, _ := flags.GetString("piece-length")

		pieceLength, err := size.Parse(pieceLengthStr)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		torrent, err := btorrent.Create(btorrent.CreateOptions{
			Name:         filepath.Base(args[0]),
			Data:         data,
			PieceLength:  int(pieceLength),
			Trackers:     trackers,
			Comment:      comment,
			CreatedBy:    "bitsy",
			CreationDate: time.Now(),
		})
		if err != nil {
			return err
		}

		if outPath == "" {
			_, err = cmd.OutOrStdout().Write(torrent)
			return err
		}

		if err := os.WriteFile(outPath, torrent, 0644); err != nil {
			return err
		}

		t, err := btorrent.Parse(torrent)
		if err != nil {
			return err
		}

		logf("Wrote %s (%s, info hash %s)\n", outPath, size.Size(len(torrent)), t.HexHash())

		return nil
	},
}

func init() {
	createCmd.Flags().StringSliceP("tracker", "t", nil, "tracker URL, may be repeated")
	createCmd.Flags().String("piece-length", fmt.Sprint(btorrent.DefaultPieceLength), "piece length, e.g. 262144 or 256KiB")
	createCmd.Flags().String("comment", "", "free-form comment")
	createCmd.Flags().StringP("out", "o", "", "file to write the torrent file to (default stdout)")
	rootCmd.AddCommand(createCmd)
}
