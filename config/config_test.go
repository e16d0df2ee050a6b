// Copyright (C) 2024, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/luxfi/crypto/bls"
	"github.com/stretchr/testify/require"
	"github.com/usdrise/receiver"
)

func testIdentity(t *testing.T, b byte) string {
	t.Helper()
	id, err := receiver.IdentityFromBytes(receiver.DefaultBech32Prefix, bytes.Repeat([]byte{b}, receiver.AccountAddressLen))
	require.NoError(t, err)
	return id.String()
}

func testGateway(t *testing.T) string {
	return testIdentity(t, 0x01)
}

func testAdmin(t *testing.T) string {
	return testIdentity(t, 0x0a)
}

func testPublicKey(t *testing.T) string {
	t.Helper()
	sk, err := bls.NewSecretKey()
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(bls.PublicKeyToCompressedBytes(sk.PublicKey()))
}

func validConfig(t *testing.T) Config {
	return Config{
		LogLevel:         "info",
		APIPort:          8080,
		MetricsPort:      9090,
		StorageType:      StorageTypeMemory,
		Bech32Prefix:     receiver.DefaultBech32Prefix,
		TrustedGateway:   testGateway(t),
		GatewayPublicKey: testPublicKey(t),
		Admin:            testAdmin(t),
		AdminPublicKey:   testPublicKey(t),
		AllowedSenders:   []AllowedSenderConfig{{SourceChain: "sui", SourceAddress: "0xabc"}},
		Denominations:    []DenominationConfig{{TokenID: "uusdrise", Denom: "uusdrise", Transferable: true}},
		EscrowFunding:    []EscrowFundingConfig{{Denom: "uusdrise", Amount: "1000000000"}},
		SettledCacheSize: DefaultSettledCacheSize,
	}
}

func writeConfigFile(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestBuildConfigFromFile(t *testing.T) {
	require := require.New(t)

	gatewayKey := testPublicKey(t)
	path := writeConfigFile(t, map[string]any{
		"trusted-gateway":    testGateway(t),
		"gateway-public-key": gatewayKey,
		"admin":              testAdmin(t),
		"admin-public-key":   testPublicKey(t),
		"storage-type":       "sqlite",
		"storage-location":   "$RECEIVER_TEST_DIR/receiver.db",
		"allowed-senders": []map[string]string{
			{"source-chain": "sui", "source-address": "0xabc"},
		},
		"denominations": []map[string]any{
			{"token-id": "uusdrise", "denom": "uusdrise", "transferable": true},
			{"token-id": "0xdead", "denom": "ibc/DEAD", "transferable": false},
		},
		"escrow-funding": []map[string]string{
			{"denom": "uusdrise", "amount": "500"},
			{"denom": "uusdrise", "amount": "250"},
		},
	})
	t.Setenv("RECEIVER_TEST_DIR", "/var/lib/receiver")

	fs := BuildFlagSet()
	require.NoError(fs.Parse([]string{"--" + ConfigFileKey, path}))
	v, err := BuildViper(fs)
	require.NoError(err)
	cfg, err := NewConfig(v)
	require.NoError(err)

	require.Equal(defaultLogLevel, cfg.LogLevel)
	require.Equal(defaultAPIPort, cfg.APIPort)
	require.Equal(defaultMetricsPort, cfg.MetricsPort)
	require.Equal(StorageTypeSQLite, cfg.StorageType)
	require.Equal("/var/lib/receiver/receiver.db", cfg.StorageLocation)
	require.Equal(receiver.DefaultBech32Prefix, cfg.Bech32Prefix)
	require.Equal(testAdmin(t), cfg.Admin)
	require.Equal(gatewayKey, cfg.GatewayPublicKey)
	require.Equal(DefaultSettledCacheSize, cfg.SettledCacheSize)
	require.Equal([]receiver.RemoteSender{{SourceChain: "sui", SourceAddress: "0xabc"}}, cfg.GetAllowedSenders())

	denoms, err := cfg.GetDenominations()
	require.NoError(err)
	require.Equal([]receiver.Denomination{
		{TokenID: []byte("uusdrise"), Denom: "uusdrise", Transferable: true},
		{TokenID: []byte{0xde, 0xad}, Denom: "ibc/DEAD", Transferable: false},
	}, denoms)

	funding, err := cfg.GetEscrowFunding()
	require.NoError(err)
	require.Equal(uint64(750), funding["uusdrise"].Uint64())
}

func TestBuildConfigEnvOverride(t *testing.T) {
	require := require.New(t)

	path := writeConfigFile(t, map[string]any{
		"denominations": []map[string]any{
			{"token-id": "uusdrise", "denom": "uusdrise", "transferable": true},
		},
	})
	t.Setenv("LOG_LEVEL", "debug")

	fs := BuildFlagSet()
	require.NoError(fs.Parse([]string{"--" + ConfigFileKey, path}))
	v, err := BuildViper(fs)
	require.NoError(err)
	cfg, err := NewConfig(v)
	require.NoError(err)
	require.Equal("debug", cfg.LogLevel)
}

func TestBuildViperRequiresConfigFile(t *testing.T) {
	fs := BuildFlagSet()
	require.NoError(t, fs.Parse(nil))
	_, err := BuildViper(fs)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"no api port", func(c *Config) { c.APIPort = 0 }},
		{"same ports", func(c *Config) { c.MetricsPort = c.APIPort }},
		{"unknown storage", func(c *Config) { c.StorageType = "redis" }},
		{"sqlite without location", func(c *Config) { c.StorageType = StorageTypeSQLite }},
		{"empty prefix", func(c *Config) { c.Bech32Prefix = "" }},
		{"bad gateway", func(c *Config) { c.TrustedGateway = "gw1" }},
		{"bad admin", func(c *Config) { c.Admin = "cosmos1xyz" }},
		{"gateway without admin", func(c *Config) { c.Admin = "" }},
		{"gateway without gateway key", func(c *Config) { c.GatewayPublicKey = "" }},
		{"gateway without admin key", func(c *Config) { c.AdminPublicKey = "" }},
		{"bad gateway key", func(c *Config) { c.GatewayPublicKey = "0x1234" }},
		{"bad admin key", func(c *Config) { c.AdminPublicKey = "not hex" }},
		{"partial sender", func(c *Config) { c.AllowedSenders = []AllowedSenderConfig{{SourceChain: "sui"}} }},
		{"no denominations", func(c *Config) { c.Denominations = nil }},
		{"bad token id", func(c *Config) { c.Denominations[0].TokenID = "0xzz" }},
		{"bad denom", func(c *Config) { c.Denominations[0].Denom = "9" }},
		{"funding unknown denom", func(c *Config) { c.EscrowFunding[0].Denom = "uatom" }},
		{"funding not a number", func(c *Config) { c.EscrowFunding[0].Amount = "lots" }},
		{"funding zero", func(c *Config) { c.EscrowFunding[0].Amount = "0" }},
		{"negative cache size", func(c *Config) { c.SettledCacheSize = -1 }},
	}

	base := validConfig(t)
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestValidateWithoutGateway(t *testing.T) {
	// A restart against an initialized store needs no gateway settings.
	cfg := validConfig(t)
	cfg.TrustedGateway = ""
	cfg.GatewayPublicKey = ""
	cfg.Admin = ""
	cfg.AdminPublicKey = ""
	require.NoError(t, cfg.Validate())
}
