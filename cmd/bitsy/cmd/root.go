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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/namvu9/btcore/internal/config"
	"github.com/namvu9/btcore/internal/session"
	"github.com/namvu9/btcore/pkg/btorrent"
	"github.com/namvu9/btcore/pkg/btorrent/peer"
)

var (
	cfgFile string
	v       = config.New()
	cfg     config.Config
)

// Flags that override config keys
var flagKeys = map[string]string{
	"log-level":       config.LogLevel,
	"port":            config.ListenPort,
	"upnp":            config.ListenUPnP,
	"workers":         config.DownloadWorkers,
	"peer-timeout":    config.PeerTimeout,
	"tracker-timeout": config.TrackerTimeout,
	"http":            config.HTTPAddr,
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bitsy",
	Short: "A BitTorrent client",
	Long: `bitsy downloads and seeds torrents whose trackers speak the UDP tracker protocol.

Settings are read from $HOME/.bitsy.yaml (or --config), BITSY_* environment
variables and flags, in increasing order of precedence.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bitsy.yaml)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.Uint16("port", 6881, "port to accept peers on and announce to trackers")
	flags.Bool("upnp", false, "forward the listen port with UPnP")
	flags.Int("workers", 30, "maximum number of outbound peer connections")
	flags.Duration("peer-timeout", 10*time.Second, "timeout for each peer read or write")
	flags.Duration("tracker-timeout", 5*time.Second, "timeout for each tracker request")
	flags.String("http", "", "serve the status API on this address, e.g. 127.0.0.1:8000")

	cobra.CheckErr(config.BindFlags(v, flags, flagKeys))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	cobra.CheckErr(config.ReadFile(v, cfgFile))

	var err error
	cfg, err = config.Load(v)
	cobra.CheckErr(err)

	level, err := cfg.Level()
	cobra.CheckErr(err)

	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if used := v.ConfigFileUsed(); used != "" {
		log.Debug().Str("file", used).Msg("using config file")
	}
}

// logf writes progress output to stderr so stdout can be
// redirected
func logf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadTorrent(path string) (*btorrent.Torrent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return btorrent.Parse(data)
}

func newSession(t *btorrent.Torrent) (*session.Session, error) {
	id, err := peer.GeneratePeerID(cfg.PeerID.Prefix)
	if err != nil {
		return nil, err
	}

	return session.New(t, session.Config{
		PeerID:         id,
		Port:           cfg.Listen.Port,
		PeerTimeout:    cfg.Peer.Timeout,
		TrackerTimeout: cfg.Tracker.Timeout,
		Workers:        cfg.Download.Workers,
	})
}
