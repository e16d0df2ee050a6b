// Copyright (C) 2024, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// BuildFlagSet returns the command line flags of receiverd. Every config key
// can also be set in the config file or the environment.
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("receiverd", pflag.ContinueOnError)
	fs.String(ConfigFileKey, "", "Specifies the config file (JSON)")
	fs.Bool(VersionKey, false, "Display receiverd version")
	fs.Bool(HelpKey, false, "Display receiverd usage")
	return fs
}

func DisplayUsageText() {
	usageText := `
Usage:
receiverd --config-file path-to-config                Specifies the config file and starts the receiver.
receiverd --help                                      Display receiverd usage and exit.
receiverd --version                                   Display receiverd version and exit.

The config file may be given through the %s environment variable instead.
Any config key may be overridden by an environment variable of the same name,
upper-cased, with hyphens replaced by underscores (e.g. LOG_LEVEL).
`
	fmt.Fprintf(os.Stderr, usageText, ConfigFileEnvKey)
}

// Build the viper instance. The config file must be provided via the command line flag or environment variable.
// All config keys may be provided via config file or environment variable.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	// Map flag names to env var names. Flags are capitalized, and hyphens are replaced with underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	// Verify required flags are set
	if !v.IsSet(ConfigFileKey) || v.GetString(ConfigFileKey) == "" {
		DisplayUsageText()
		return nil, fmt.Errorf("config file not set")
	}

	filename := v.GetString(ConfigFileKey)
	v.SetConfigFile(filename)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(APIPortKey, defaultAPIPort)
	v.SetDefault(MetricsPortKey, defaultMetricsPort)
	v.SetDefault(StorageTypeKey, StorageTypeMemory)
	v.SetDefault(Bech32PrefixKey, defaultBech32Prefix)
	v.SetDefault(
		SettledCacheSizeKey,
		DefaultSettledCacheSize,
	)
}

// BuildConfig constructs the receiver config using Viper.
// The following precedence order is used. Each item takes precedence over the item below it:
//  1. Flags
//  2. Environment
//  3. Config file
//
// Returns the Config
func BuildConfig(v *viper.Viper) (Config, error) {
	// Set default values
	SetDefaultConfigValues(v)

	// Build the config from Viper
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	cfg.StorageLocation = getExpandedPath(v, StorageLocationKey)

	return cfg, nil
}

// getExpandedPath gets the string in viper corresponding to [key] and expands
// any variables using the OS env.
func getExpandedPath(v *viper.Viper, key string) string {
	return os.Expand(
		v.GetString(key),
		func(strVar string) string {
			return os.Getenv(strVar)
		},
	)
}
