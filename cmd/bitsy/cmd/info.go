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
	"time"

	"github.com/spf13/cobra"

	"github.com/namvu9/btcore/pkg/btorrent/size"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <torrent>",
	Short: "Print the metadata of a torrent file",
	Long: `This command prints the name, info hash, piece layout, files and trackers of a .torrent file.

Examples:

bitsy info /path/to/file.torrent
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := loadTorrent(args[0])
		if err != nil {
			return fmt.Errorf("could not load torrent: %w", err)
		}

		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "-------\n%s\n-------\n", t.Name())
		fmt.Fprintf(out, "Info Hash: %s\n", t.HexHash())
		fmt.Fprintf(out, "Piece length: %s\n", size.Size(t.Info.PieceLength))
		fmt.Fprintf(out, "Pieces: %d\n", t.NumPieces())
		fmt.Fprintf(out, "Total size: %s\n", size.Size(t.TotalLength()))

		if t.Comment != "" {
			fmt.Fprintf(out, "Comment: %s\n", t.Comment)
		}

		if t.CreatedBy != "" {
			fmt.Fprintf(out, "Created by: %s\n", t.CreatedBy)
		}

		if !t.CreationDate.IsZero() {
			fmt.Fprintf(out, "Created: %s\n", t.CreationDate.Format(time.ANSIC))
		}

		if len(t.Info.Files) > 0 {
			fmt.Fprintln(out, "Files:")
			for i, file := range t.Info.Files {
				fmt.Fprintf(out, "  %d: %s %s\n", i, file.FullPath(), size.Size(file.Length))
			}
		}

		fmt.Fprintln(out, "Trackers:")
		for _, tracker := range t.Trackers() {
			fmt.Fprintf(out, "  %s\n", tracker)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
