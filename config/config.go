// Copyright (C) 2024, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/usdrise/receiver"
	"github.com/usdrise/receiver/payload"
	"go.uber.org/zap/zapcore"
)

const (
	StorageTypeMemory = "memory"
	StorageTypeSQLite = "sqlite"

	DefaultSettledCacheSize = 10_000

	defaultLogLevel     = "info"
	defaultAPIPort      = uint16(8080)
	defaultMetricsPort  = uint16(9090)
	defaultBech32Prefix = receiver.DefaultBech32Prefix
)

// AllowedSenderConfig is an allow-listed remote (chain, address) pair
type AllowedSenderConfig struct {
	SourceChain   string `mapstructure:"source-chain" json:"source-chain"`
	SourceAddress string `mapstructure:"source-address" json:"source-address"`
}

// DenominationConfig maps a remote token id to a local denom. TokenID is raw
// text, or hex when prefixed with 0x.
type DenominationConfig struct {
	TokenID      string `mapstructure:"token-id" json:"token-id"`
	Denom        string `mapstructure:"denom" json:"denom"`
	Transferable bool   `mapstructure:"transferable" json:"transferable"`
}

// EscrowFundingConfig credits the escrow at startup. Amount is a decimal
// string in the smallest unit of the denom.
type EscrowFundingConfig struct {
	Denom  string `mapstructure:"denom" json:"denom"`
	Amount string `mapstructure:"amount" json:"amount"`
}

// Top-level configuration. The public keys are hex-encoded compressed BLS
// keys the gateway and the admin sign their API requests with.
type Config struct {
	LogLevel         string                `mapstructure:"log-level" json:"log-level"`
	APIPort          uint16                `mapstructure:"api-port" json:"api-port"`
	MetricsPort      uint16                `mapstructure:"metrics-port" json:"metrics-port"`
	StorageType      string                `mapstructure:"storage-type" json:"storage-type"`
	StorageLocation  string                `mapstructure:"storage-location" json:"storage-location"`
	Bech32Prefix     string                `mapstructure:"bech32-prefix" json:"bech32-prefix"`
	TrustedGateway   string                `mapstructure:"trusted-gateway" json:"trusted-gateway"`
	GatewayPublicKey string                `mapstructure:"gateway-public-key" json:"gateway-public-key"`
	Admin            string                `mapstructure:"admin" json:"admin"`
	AdminPublicKey   string                `mapstructure:"admin-public-key" json:"admin-public-key"`
	AllowedSenders   []AllowedSenderConfig `mapstructure:"allowed-senders" json:"allowed-senders"`
	Denominations    []DenominationConfig  `mapstructure:"denominations" json:"denominations"`
	EscrowFunding    []EscrowFundingConfig `mapstructure:"escrow-funding" json:"escrow-funding"`
	SettledCacheSize int                   `mapstructure:"settled-cache-size" json:"settled-cache-size"`
}

func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.APIPort == 0 {
		return errors.New("api port must be set")
	}
	if c.APIPort == c.MetricsPort {
		return fmt.Errorf("api port and metrics port must differ, both are %d", c.APIPort)
	}
	switch c.StorageType {
	case StorageTypeMemory:
	case StorageTypeSQLite:
		if c.StorageLocation == "" {
			return fmt.Errorf("%s storage requires %s", StorageTypeSQLite, StorageLocationKey)
		}
	default:
		return fmt.Errorf("invalid storage type %q", c.StorageType)
	}
	if c.Bech32Prefix == "" {
		return fmt.Errorf("%s must be set", Bech32PrefixKey)
	}
	if c.TrustedGateway != "" {
		if _, err := receiver.ParseIdentity(c.Bech32Prefix, c.TrustedGateway); err != nil {
			return fmt.Errorf("invalid %s: %w", TrustedGatewayKey, err)
		}
		// The first start stores these; without them nobody could call the
		// API as gateway or admin.
		if c.Admin == "" {
			return fmt.Errorf("%s requires %s", TrustedGatewayKey, AdminKey)
		}
		if c.GatewayPublicKey == "" || c.AdminPublicKey == "" {
			return fmt.Errorf("%s requires %s and %s", TrustedGatewayKey, GatewayPublicKeyKey, AdminPublicKeyKey)
		}
	}
	if c.Admin != "" {
		if _, err := receiver.ParseIdentity(c.Bech32Prefix, c.Admin); err != nil {
			return fmt.Errorf("invalid %s: %w", AdminKey, err)
		}
	}
	if _, err := receiver.ParseCallerKey(c.GatewayPublicKey); err != nil {
		return fmt.Errorf("invalid %s: %w", GatewayPublicKeyKey, err)
	}
	if _, err := receiver.ParseCallerKey(c.AdminPublicKey); err != nil {
		return fmt.Errorf("invalid %s: %w", AdminPublicKeyKey, err)
	}
	for i, s := range c.AllowedSenders {
		if s.SourceChain == "" || s.SourceAddress == "" {
			return fmt.Errorf("allowed sender %d needs both source-chain and source-address", i)
		}
	}
	if len(c.Denominations) == 0 {
		return errors.New("at least one denomination must be configured")
	}
	denoms, err := c.GetDenominations()
	if err != nil {
		return err
	}
	if _, err := payload.NewDecoder(c.Bech32Prefix, denoms); err != nil {
		return fmt.Errorf("invalid denominations: %w", err)
	}
	if _, err := c.GetEscrowFunding(); err != nil {
		return err
	}
	if c.SettledCacheSize < 0 {
		return fmt.Errorf("%s must not be negative", SettledCacheSizeKey)
	}
	return nil
}

// GetDenominations returns the configured denomination registry
func (c *Config) GetDenominations() ([]receiver.Denomination, error) {
	denoms := make([]receiver.Denomination, 0, len(c.Denominations))
	for _, d := range c.Denominations {
		tokenID, err := payload.ParseTokenID(d.TokenID)
		if err != nil {
			return nil, err
		}
		denoms = append(denoms, receiver.Denomination{
			TokenID:      tokenID,
			Denom:        d.Denom,
			Transferable: d.Transferable,
		})
	}
	return denoms, nil
}

// GetAllowedSenders returns the initial allow-list
func (c *Config) GetAllowedSenders() []receiver.RemoteSender {
	senders := make([]receiver.RemoteSender, 0, len(c.AllowedSenders))
	for _, s := range c.AllowedSenders {
		senders = append(senders, receiver.RemoteSender{
			SourceChain:   s.SourceChain,
			SourceAddress: s.SourceAddress,
		})
	}
	return senders
}

// GetEscrowFunding parses the startup escrow credits. Every denom must be one
// of the configured denominations.
func (c *Config) GetEscrowFunding() (map[string]*uint256.Int, error) {
	known := make(map[string]struct{}, len(c.Denominations))
	for _, d := range c.Denominations {
		known[d.Denom] = struct{}{}
	}
	funding := make(map[string]*uint256.Int, len(c.EscrowFunding))
	for _, f := range c.EscrowFunding {
		if _, ok := known[f.Denom]; !ok {
			return nil, fmt.Errorf("escrow funding for unknown denom %q", f.Denom)
		}
		amount, err := uint256.FromDecimal(f.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid escrow funding amount %q for %s: %w", f.Amount, f.Denom, err)
		}
		if amount.IsZero() {
			return nil, fmt.Errorf("escrow funding for %s must be positive", f.Denom)
		}
		if prev, ok := funding[f.Denom]; ok {
			sum, overflow := new(uint256.Int).AddOverflow(prev, amount)
			if overflow {
				return nil, fmt.Errorf("escrow funding for %s overflows", f.Denom)
			}
			amount = sum
		}
		funding[f.Denom] = amount
	}
	return funding, nil
}
