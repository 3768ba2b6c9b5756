// Package config resolves bitsy's settings from defaults,
// an optional config file, BITSY_* environment variables
// and command line flags.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/namvu9/btcore/internal/errors"
)

const (
	EnvPrefix = "BITSY"
	FileName  = ".bitsy"
)

// Keys
const (
	PeerTimeout     = "peer.timeout"
	TrackerTimeout  = "tracker.timeout"
	ListenPort      = "listen.port"
	ListenUPnP      = "listen.upnp"
	DownloadWorkers = "download.workers"
	PeerIDPrefix    = "peer_id.prefix"
	HTTPAddr        = "http.addr"
	LogLevel        = "log.level"
)

var defaults = map[string]interface{}{
	PeerTimeout:     10 * time.Second,
	TrackerTimeout:  5 * time.Second,
	ListenPort:      6881,
	ListenUPnP:      false,
	DownloadWorkers: 30,
	PeerIDPrefix:    "-BY0100-",
	HTTPAddr:        "",
	LogLevel:        "info",
}

type Config struct {
	Peer struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"peer"`

	Tracker struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"tracker"`

	Listen struct {
		Port uint16 `mapstructure:"port"`
		UPnP bool   `mapstructure:"upnp"`
	} `mapstructure:"listen"`

	Download struct {
		Workers int `mapstructure:"workers"`
	} `mapstructure:"download"`

	PeerID struct {
		Prefix string `mapstructure:"prefix"`
	} `mapstructure:"peer_id"`

	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// New returns a viper instance with bitsy's defaults and
// environment bindings. BITSY_PEER_TIMEOUT overrides
// peer.timeout, and so on.
func New() *viper.Viper {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// ReadFile reads cfgFile, or $HOME/.bitsy.yaml when
// cfgFile is empty. A missing default file is not an
// error.
func ReadFile(v *viper.Viper, cfgFile string) error {
	var op errors.Op = "config.ReadFile"

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return errors.Wrap(err, op, errors.IO)
		}

		v.AddConfigPath(home)
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}

		return errors.Wrap(err, op, errors.IO)
	}

	return nil
}

// BindFlags lets flags override the keys they are mapped
// to, e.g. {"port": ListenPort}
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	var op errors.Op = "config.BindFlags"

	for name, key := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}

		if err := v.BindPFlag(key, flag); err != nil {
			return errors.Wrap(err, op, errors.Internal)
		}
	}

	return nil
}

// Load decodes and validates the settings held by v
func Load(v *viper.Viper) (Config, error) {
	var (
		op  errors.Op = "config.Load"
		cfg Config
	)

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, op, errors.BadArgument)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, op, errors.BadArgument)
	}

	return cfg, nil
}

func (cfg Config) Validate() error {
	if cfg.Peer.Timeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", PeerTimeout, cfg.Peer.Timeout)
	}

	if cfg.Tracker.Timeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", TrackerTimeout, cfg.Tracker.Timeout)
	}

	if cfg.Download.Workers <= 0 {
		return fmt.Errorf("%s must be positive, got %d", DownloadWorkers, cfg.Download.Workers)
	}

	if len(cfg.PeerID.Prefix) >= 20 {
		return fmt.Errorf("%s %q leaves no room for random bytes", PeerIDPrefix, cfg.PeerID.Prefix)
	}

	if _, err := cfg.Level(); err != nil {
		return fmt.Errorf("%s: %w", LogLevel, err)
	}

	return nil
}

// Level returns the configured log level
func (cfg Config) Level() (zerolog.Level, error) {
	return zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
}

// YAML renders the settings in the config file format
func (cfg Config) YAML() ([]byte, error) {
	doc := map[string]map[string]interface{}{
		"peer":     {"timeout": cfg.Peer.Timeout.String()},
		"tracker":  {"timeout": cfg.Tracker.Timeout.String()},
		"listen":   {"port": cfg.Listen.Port, "upnp": cfg.Listen.UPnP},
		"download": {"workers": cfg.Download.Workers},
		"peer_id":  {"prefix": cfg.PeerID.Prefix},
		"http":     {"addr": cfg.HTTP.Addr},
		"log":      {"level": cfg.Log.Level},
	}

	return yaml.Marshal(doc)
}

// DefaultFile returns the path of the default config file
func DefaultFile() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, FileName+".yaml"), nil
}
