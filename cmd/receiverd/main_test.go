// Copyright (C) 2024, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto/bls"
	"github.com/stretchr/testify/require"
	"github.com/usdrise/receiver"
	"github.com/usdrise/receiver/backend"
	"github.com/usdrise/receiver/bridge"
	"github.com/usdrise/receiver/config"
	"github.com/usdrise/receiver/payload"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

const testDenom = "uusdrise"

func testIdentity(t *testing.T, b byte) string {
	t.Helper()
	raw := [payload.RecipientLen]byte{b}
	id, err := receiver.IdentityFromBytes(receiver.DefaultBech32Prefix, raw[:])
	require.NoError(t, err)
	return id.String()
}

func testPublicKey(t *testing.T) string {
	t.Helper()
	sk, err := bls.NewSecretKey()
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(bls.PublicKeyToCompressedBytes(sk.PublicKey()))
}

func testConfig(t *testing.T) config.Config {
	return config.Config{
		LogLevel:         "info",
		APIPort:          8080,
		MetricsPort:      9090,
		StorageType:      config.StorageTypeMemory,
		Bech32Prefix:     receiver.DefaultBech32Prefix,
		TrustedGateway:   testIdentity(t, 0x01),
		GatewayPublicKey: testPublicKey(t),
		Admin:            testIdentity(t, 0x0a),
		AdminPublicKey:   testPublicKey(t),
		AllowedSenders:   []config.AllowedSenderConfig{{SourceChain: "sui", SourceAddress: "0xabc"}},
		Denominations: []config.DenominationConfig{
			{TokenID: testDenom, Denom: testDenom, Transferable: true},
			{TokenID: "ulocked", Denom: "ulocked"},
		},
		EscrowFunding: []config.EscrowFundingConfig{
			{Denom: testDenom, Amount: "600"},
			{Denom: "ulocked", Amount: "9"},
			{Denom: testDenom, Amount: "400"},
		},
	}
}

func newTestReceiver(t *testing.T, b backend.Backend, cfg config.Config) *bridge.Receiver {
	t.Helper()
	return newTestReceiverWithLogger(t, b, cfg, zaptest.NewLogger(t))
}

func newTestReceiverWithLogger(t *testing.T, b backend.Backend, cfg config.Config, logger *zap.Logger) *bridge.Receiver {
	t.Helper()
	denoms, err := cfg.GetDenominations()
	require.NoError(t, err)
	decoder, err := payload.NewDecoder(cfg.Bech32Prefix, denoms)
	require.NoError(t, err)
	r, err := bridge.NewReceiver(bridge.Config{
		Decoder: decoder,
		Backend: b,
		Logger:  logger,
	})
	require.NoError(t, err)
	return r
}

func requireBalance(t *testing.T, r *bridge.Receiver, denom string, want uint64) {
	t.Helper()
	bal, err := r.EscrowBalance(context.Background(), denom)
	require.NoError(t, err)
	require.Equal(t, want, bal.Uint64())
}

func TestInitializeReceiver(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	cfg := testConfig(t)
	require.NoError(cfg.Validate())
	store := backend.NewMemoryBackend()
	r := newTestReceiver(t, store, cfg)

	require.NoError(initializeReceiver(ctx, zaptest.NewLogger(t), r, cfg))

	stored, err := r.GetConfig(ctx)
	require.NoError(err)
	require.Equal(receiver.Identity(cfg.TrustedGateway), stored.TrustedGateway)
	require.Equal(receiver.Identity(cfg.Admin), stored.Admin)
	require.Equal(cfg.GatewayPublicKey, stored.GatewayKey.String())
	require.Equal(cfg.AdminPublicKey, stored.AdminKey.String())
	requireBalance(t, r, testDenom, 1000)
	requireBalance(t, r, "ulocked", 9)

	// A restart against the same store neither re-initializes nor funds
	// the escrow a second time.
	restarted := newTestReceiver(t, store, cfg)
	require.NoError(initializeReceiver(ctx, zaptest.NewLogger(t), restarted, cfg))
	requireBalance(t, restarted, testDenom, 1000)
	requireBalance(t, restarted, "ulocked", 9)
}

// failingFundBackend fails escrow credits until healed
type failingFundBackend struct {
	backend.Backend
	failing bool
}

type failingFundTx struct {
	backend.Tx
}

func (failingFundTx) Fund(string, *uint256.Int) error {
	return errors.New("disk full")
}

func (b *failingFundBackend) Update(ctx context.Context, fn func(backend.Tx) error) error {
	if !b.failing {
		return b.Backend.Update(ctx, fn)
	}
	return b.Backend.Update(ctx, func(tx backend.Tx) error {
		return fn(failingFundTx{Tx: tx})
	})
}

func TestInitializeReceiverFundingFailure(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	cfg := testConfig(t)
	store := &failingFundBackend{Backend: backend.NewMemoryBackend(), failing: true}
	r := newTestReceiver(t, store, cfg)

	require.ErrorContains(initializeReceiver(ctx, zaptest.NewLogger(t), r, cfg), "disk full")

	// Nothing was stored, so the next start retries initialization and
	// funding together.
	initialized, err := r.IsInitialized(ctx)
	require.NoError(err)
	require.False(initialized)

	store.failing = false
	require.NoError(initializeReceiver(ctx, zaptest.NewLogger(t), r, cfg))
	requireBalance(t, r, testDenom, 1000)
}

func TestInitializeReceiverWithoutGateway(t *testing.T) {
	cfg := testConfig(t)
	cfg.TrustedGateway = ""
	r := newTestReceiver(t, backend.NewMemoryBackend(), cfg)
	require.Error(t, initializeReceiver(context.Background(), zaptest.NewLogger(t), r, cfg))
}

func TestInitializeReceiverLogsFundingOnce(t *testing.T) {
	require := require.New(t)
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	cfg := testConfig(t)
	r := newTestReceiverWithLogger(t, backend.NewMemoryBackend(), cfg, logger)

	require.NoError(initializeReceiver(context.Background(), logger, r, cfg))

	funded := logs.FilterMessage("Funded escrow").AllUntimed()
	require.Len(funded, 2)
	amounts := map[string]string{}
	for _, entry := range funded {
		fields := entry.ContextMap()
		amounts[fields["denom"].(string)] = fields["amount"].(string)
	}
	require.Equal(map[string]string{testDenom: "1000", "ulocked": "9"}, amounts)
}
