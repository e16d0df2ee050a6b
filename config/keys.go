// Copyright (C) 2024, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"
	VersionKey    = "version"
	HelpKey       = "help"

	// Environment variable keys
	ConfigFileEnvKey = "CONFIG_FILE"

	// Top-level configuration keys
	LogLevelKey         = "log-level"
	APIPortKey          = "api-port"
	MetricsPortKey      = "metrics-port"
	StorageTypeKey      = "storage-type"
	StorageLocationKey  = "storage-location"
	Bech32PrefixKey     = "bech32-prefix"
	TrustedGatewayKey   = "trusted-gateway"
	GatewayPublicKeyKey = "gateway-public-key"
	AdminKey            = "admin"
	AdminPublicKeyKey   = "admin-public-key"
	AllowedSendersKey   = "allowed-senders"
	DenominationsKey    = "denominations"
	EscrowFundingKey    = "escrow-funding"
	SettledCacheSizeKey = "settled-cache-size"
)
