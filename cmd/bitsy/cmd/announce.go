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
	"time"

	"github.com/spf13/cobra"
)

// announceCmd represents the announce command
var announceCmd = &cobra.Command{
	Use:   "announce <torrent>",
	Short: "Ask the torrent's UDP trackers for peers",
	Long: `This command announces to every UDP tracker listed by the torrent and prints the peers they return, along with any tracker that failed.

Examples:

bitsy announce /path/to/file.torrent
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := loadTorrent(args[0])
		if err != nil {
			return fmt.Errorf("could not load torrent: %w", err)
		}

		s, err := newSession(t)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		ctx, cancel = context.WithTimeout(ctx, 2*cfg.Tracker.Timeout)
		defer cancel()

		logf("Announcing... ")
		start := time.Now()

		res, err := s.Announce(ctx)
		if err != nil {
			return err
		}

		logf("done (took %.2fs)\n", time.Since(start).Seconds())

		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Seeders: %d\n", res.Seeders)
		fmt.Fprintf(out, "Leechers: %d\n", res.Leechers)
		fmt.Fprintf(out, "Interval: %s\n", res.Interval)
		fmt.Fprintf(out, "Peers: %d\n", len(res.Peers))

		for _, p := range res.Peers {
			fmt.Fprintf(out, "  %s\n", p)
		}

		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			for _, stat := range s.Trackers() {
				fmt.Fprint(out, stat)
			}

			return nil
		}

		for url, err := range res.Errors {
			fmt.Fprintf(out, "Failed: %s: %s\n", url, err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(announceCmd)

	announceCmd.Flags().BoolP("verbose", "v", false, "Print the state of every tracker")
}
