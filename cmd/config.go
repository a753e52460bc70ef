// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The me4l Authors

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fwioo/me4l/pkg/rcr"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the resolved configuration of one invocation.
type Config struct {
	Port     string   `mapstructure:"port"`
	Patterns []string `mapstructure:"patterns"`
	Verbose  bool     `mapstructure:"verbose"`
	LogFile  string   `mapstructure:"log_file"`

	Settle          time.Duration `mapstructure:"settle"`
	ReadPoll        time.Duration `mapstructure:"read_poll"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	WatchdogTimeout time.Duration `mapstructure:"watchdog_timeout"`
	MoveWindow      time.Duration `mapstructure:"move_window"`

	Bridge BridgeConfig `mapstructure:"bridge"`
}

// BridgeConfig configures the WebSocket bridge.
type BridgeConfig struct {
	Listen   string `mapstructure:"listen"`
	Path     string `mapstructure:"path"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// flagKeys maps persistent flag names to config keys.
var flagKeys = map[string]string{
	"port":     "port",
	"patterns": "patterns",
	"verbose":  "verbose",
	"log-file": "log_file",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("patterns", rcr.DefaultPatterns)
	v.SetDefault("settle", rcr.DefaultSettle)
	v.SetDefault("read_poll", rcr.DefaultReadPoll)
	v.SetDefault("poll_interval", rcr.DefaultPollInterval)
	v.SetDefault("watchdog_timeout", rcr.DefaultWatchdog)
	v.SetDefault("move_window", rcr.DefaultMoveWindow)

	v.SetDefault("bridge.listen", ":8056")
	v.SetDefault("bridge.path", "/ws")
}

// newViper returns a viper instance with defaults and ME4L_* environment
// bindings.
func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ME4L")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func defaultConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "me4l", "config.yaml")
}

// loadConfig resolves flags, environment and config file for cmd.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	// A missing .env is normal
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := newViper()
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	path := cfgFile
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
			if explicit || !missing {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	return decodeConfig(v)
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = rcr.DefaultPatterns
	}
	return &cfg, nil
}

// LinkConfig returns the serial link timing.
func (c *Config) LinkConfig() rcr.LinkConfig {
	return rcr.LinkConfig{Settle: c.Settle, ReadPoll: c.ReadPoll}
}

// DriverConfig returns the poll loop timing.
func (c *Config) DriverConfig() rcr.DriverConfig {
	cfg := rcr.DefaultDriverConfig()
	cfg.PollInterval = c.PollInterval
	cfg.WatchdogTimeout = c.WatchdogTimeout
	cfg.MoveWindow = c.MoveWindow
	return cfg
}

// newLink builds a closed link over a fresh port catalog.
func newLink() *rcr.Link {
	catalog := rcr.NewCatalog(appConfig.Patterns, rcr.OpenSerial, logger)
	return rcr.NewLink(catalog, rcr.OpenSerial, appConfig.LinkConfig(), logger)
}

// openLink opens the port named by --port, or the first discovered port.
func openLink() (*rcr.Link, error) {
	link := newLink()
	name := appConfig.Port
	if name == "" {
		names := link.Catalog().Names()
		if len(names) == 0 {
			return nil, fmt.Errorf("no serial ports found (patterns: %s)", strings.Join(appConfig.Patterns, ", "))
		}
		name = names[0]
	}
	if err := link.Open(name); err != nil {
		return nil, err
	}
	return link, nil
}
