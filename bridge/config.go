// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/usdrise/receiver"
	"github.com/usdrise/receiver/backend"
	"go.uber.org/zap"
)

// InitMsg is the one-time initialization input of a receiver. The keys are
// hex-encoded compressed BLS public keys the API verifies callers against.
type InitMsg struct {
	TrustedGateway string                  `json:"trusted_gateway"`
	GatewayKey     string                  `json:"gateway_key,omitempty"`
	Admin          string                  `json:"admin,omitempty"`
	AdminKey       string                  `json:"admin_key,omitempty"`
	AllowedSenders []receiver.RemoteSender `json:"allowed_senders,omitempty"`
	// EscrowFunding is credited in the same transaction that stores the
	// config, so a receiver is never initialized with an unfunded escrow.
	EscrowFunding []EscrowCredit `json:"-"`
}

// EscrowCredit is an amount of denom credited to the escrow
type EscrowCredit struct {
	Denom  string
	Amount *uint256.Int
}

// Initialize stores the gateway config. Admin defaults to instantiator. It
// can only succeed once per backend.
func (r *Receiver) Initialize(
	ctx context.Context,
	instantiator receiver.Identity,
	msg InitMsg,
) (receiver.GatewayConfig, error) {
	cfg, err := r.initialize(ctx, instantiator, msg)
	r.recordConfigOperation("initialize", err)
	if err != nil {
		return receiver.GatewayConfig{}, err
	}
	r.logger.Info(
		"Initialized receiver",
		zap.String("trustedGateway", cfg.TrustedGateway.String()),
		zap.String("admin", cfg.Admin.String()),
		zap.Int("allowedSenders", len(msg.AllowedSenders)),
	)
	for _, c := range msg.EscrowFunding {
		r.logger.Info("Funded escrow", zap.String("denom", c.Denom), zap.String("amount", c.Amount.Dec()))
	}
	return cfg, nil
}

func (r *Receiver) initialize(
	ctx context.Context,
	instantiator receiver.Identity,
	msg InitMsg,
) (receiver.GatewayConfig, error) {
	gateway, err := r.parseIdentity(msg.TrustedGateway)
	if err != nil {
		return receiver.GatewayConfig{}, err
	}
	adminAddr := msg.Admin
	if adminAddr == "" {
		adminAddr = instantiator.String()
	}
	admin, err := r.parseIdentity(adminAddr)
	if err != nil {
		return receiver.GatewayConfig{}, err
	}
	gatewayKey, err := receiver.ParseCallerKey(msg.GatewayKey)
	if err != nil {
		return receiver.GatewayConfig{}, err
	}
	adminKey, err := receiver.ParseCallerKey(msg.AdminKey)
	if err != nil {
		return receiver.GatewayConfig{}, err
	}
	for _, s := range msg.AllowedSenders {
		if err := validateSender(s); err != nil {
			return receiver.GatewayConfig{}, err
		}
	}
	for _, c := range msg.EscrowFunding {
		if err := validateCredit(c); err != nil {
			return receiver.GatewayConfig{}, err
		}
	}

	cfg := receiver.GatewayConfig{
		TrustedGateway: gateway,
		GatewayKey:     gatewayKey,
		Admin:          admin,
		AdminKey:       adminKey,
	}
	err = r.backend.Update(ctx, func(tx backend.Tx) error {
		_, err := tx.Config()
		switch {
		case err == nil:
			return receiver.ErrAlreadyInitialized
		case !errors.Is(err, backend.ErrNotFound):
			return err
		}
		if err := tx.SetConfig(cfg); err != nil {
			return err
		}
		for _, s := range msg.AllowedSenders {
			if err := tx.AddSender(s); err != nil {
				return err
			}
		}
		for _, c := range msg.EscrowFunding {
			if err := tx.Fund(c.Denom, c.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return receiver.GatewayConfig{}, err
	}
	return cfg, nil
}

// Reconfigure replaces the trusted gateway and its key. Only the admin may
// call it. An empty key leaves the new gateway unable to sign API requests.
func (r *Receiver) Reconfigure(
	ctx context.Context,
	caller receiver.Identity,
	newGateway string,
	gatewayKey string,
) (receiver.GatewayConfig, error) {
	cfg, err := r.updateConfig(ctx, "reconfigure", caller, func(cfg *receiver.GatewayConfig) error {
		gateway, err := r.parseIdentity(newGateway)
		if err != nil {
			return err
		}
		key, err := receiver.ParseCallerKey(gatewayKey)
		if err != nil {
			return err
		}
		cfg.TrustedGateway = gateway
		cfg.GatewayKey = key
		return nil
	})
	if err != nil {
		return receiver.GatewayConfig{}, err
	}
	r.logger.Info(
		"Reconfigured trusted gateway",
		zap.String("admin", caller.String()),
		zap.String("trustedGateway", cfg.TrustedGateway.String()),
	)
	return cfg, nil
}

// UpdateAdmin hands administration to newAdmin, who signs with adminKey.
// Only the admin may call it.
func (r *Receiver) UpdateAdmin(
	ctx context.Context,
	caller receiver.Identity,
	newAdmin string,
	adminKey string,
) (receiver.GatewayConfig, error) {
	cfg, err := r.updateConfig(ctx, "update_admin", caller, func(cfg *receiver.GatewayConfig) error {
		admin, err := r.parseIdentity(newAdmin)
		if err != nil {
			return err
		}
		key, err := receiver.ParseCallerKey(adminKey)
		if err != nil {
			return err
		}
		cfg.Admin = admin
		cfg.AdminKey = key
		return nil
	})
	if err != nil {
		return receiver.GatewayConfig{}, err
	}
	r.logger.Info(
		"Updated admin",
		zap.String("previousAdmin", caller.String()),
		zap.String("admin", cfg.Admin.String()),
	)
	return cfg, nil
}

func (r *Receiver) updateConfig(
	ctx context.Context,
	operation string,
	caller receiver.Identity,
	mutate func(*receiver.GatewayConfig) error,
) (receiver.GatewayConfig, error) {
	var cfg receiver.GatewayConfig
	err := r.backend.Update(ctx, func(tx backend.Tx) error {
		var err error
		cfg, err = requireAdmin(tx, caller)
		if err != nil {
			return err
		}
		if err := mutate(&cfg); err != nil {
			return err
		}
		return tx.SetConfig(cfg)
	})
	r.recordConfigOperation(operation, err)
	if err != nil {
		return receiver.GatewayConfig{}, err
	}
	return cfg, nil
}

// AllowSender adds s to the allow-list. Only the admin may call it.
func (r *Receiver) AllowSender(ctx context.Context, caller receiver.Identity, s receiver.RemoteSender) error {
	err := r.backend.Update(ctx, func(tx backend.Tx) error {
		if _, err := requireAdmin(tx, caller); err != nil {
			return err
		}
		if err := validateSender(s); err != nil {
			return err
		}
		return tx.AddSender(s)
	})
	r.recordConfigOperation("allow_sender", err)
	if err != nil {
		return err
	}
	r.logger.Info(
		"Allowed remote sender",
		zap.String("sourceChain", s.SourceChain),
		zap.String("sourceAddress", s.SourceAddress),
	)
	return nil
}

// RevokeSender removes s from the allow-list. Only the admin may call it.
// Revoking the last sender disables allow-list enforcement.
func (r *Receiver) RevokeSender(ctx context.Context, caller receiver.Identity, s receiver.RemoteSender) error {
	var remaining int
	err := r.backend.Update(ctx, func(tx backend.Tx) error {
		if _, err := requireAdmin(tx, caller); err != nil {
			return err
		}
		if err := tx.RemoveSender(s); err != nil {
			return err
		}
		senders, err := tx.AllowedSenders()
		remaining = len(senders)
		return err
	})
	r.recordConfigOperation("revoke_sender", err)
	if err != nil {
		return err
	}
	r.logger.Info(
		"Revoked remote sender",
		zap.String("sourceChain", s.SourceChain),
		zap.String("sourceAddress", s.SourceAddress),
	)
	if remaining == 0 {
		r.logger.Warn(
			"Allow-list is empty, messages from every remote sender are accepted",
			zap.String("revokedSourceChain", s.SourceChain),
			zap.String("revokedSourceAddress", s.SourceAddress),
		)
	}
	return nil
}

// GetConfig returns the stored gateway config
func (r *Receiver) GetConfig(ctx context.Context) (receiver.GatewayConfig, error) {
	var cfg receiver.GatewayConfig
	err := r.backend.View(ctx, func(tx backend.Tx) error {
		var err error
		cfg, _, err = loadConfig(tx)
		return err
	})
	return cfg, err
}

// IsInitialized reports whether a gateway config has been stored
func (r *Receiver) IsInitialized(ctx context.Context) (bool, error) {
	_, err := r.GetConfig(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, receiver.ErrNotInitialized):
		return false, nil
	default:
		return false, err
	}
}

// AllowedSenders lists the allow-list, sorted by chain then address
func (r *Receiver) AllowedSenders(ctx context.Context) ([]receiver.RemoteSender, error) {
	var senders []receiver.RemoteSender
	err := r.backend.View(ctx, func(tx backend.Tx) error {
		var err error
		senders, err = tx.AllowedSenders()
		return err
	})
	return senders, err
}

// Settlement returns the settled-set record of id, or backend.ErrNotFound
func (r *Receiver) Settlement(ctx context.Context, id ids.ID) (*receiver.SettlementRecord, error) {
	var rec *receiver.SettlementRecord
	err := r.backend.View(ctx, func(tx backend.Tx) error {
		var err error
		rec, err = tx.Settlement(id)
		return err
	})
	return rec, err
}

// Transfers returns the outbox of issued transfers in settlement order
func (r *Receiver) Transfers(ctx context.Context) ([]receiver.Transfer, error) {
	var transfers []receiver.Transfer
	err := r.backend.View(ctx, func(tx backend.Tx) error {
		var err error
		transfers, err = tx.Transfers()
		return err
	})
	return transfers, err
}

// FundEscrow credits the escrow the receiver pays transfers out of. Only the
// admin may call it.
func (r *Receiver) FundEscrow(
	ctx context.Context,
	caller receiver.Identity,
	denom string,
	amount *uint256.Int,
) error {
	err := r.backend.Update(ctx, func(tx backend.Tx) error {
		if _, err := requireAdmin(tx, caller); err != nil {
			return err
		}
		if err := validateCredit(EscrowCredit{Denom: denom, Amount: amount}); err != nil {
			return err
		}
		return tx.Fund(denom, amount)
	})
	r.recordConfigOperation("fund_escrow", err)
	if err != nil {
		return err
	}
	r.logger.Info("Funded escrow", zap.String("denom", denom), zap.String("amount", amount.Dec()))
	return nil
}

// EscrowBalance returns the escrow balance of denom
func (r *Receiver) EscrowBalance(ctx context.Context, denom string) (*uint256.Int, error) {
	var bal *uint256.Int
	err := r.backend.View(ctx, func(tx backend.Tx) error {
		var err error
		bal, err = tx.Balance(denom)
		return err
	})
	return bal, err
}

func (r *Receiver) parseIdentity(s string) (receiver.Identity, error) {
	return receiver.ParseIdentity(r.decoder.Prefix(), s)
}

func (r *Receiver) recordConfigOperation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = receiver.CodeName(receiver.CodeOf(err))
		r.logger.Warn("Configuration operation failed", zap.String("operation", operation), zap.Error(err))
	}
	r.metrics.ConfigOperation(operation, result)
}

func requireAdmin(tx backend.Tx, caller receiver.Identity) (receiver.GatewayConfig, error) {
	cfg, err := tx.Config()
	if errors.Is(err, backend.ErrNotFound) {
		return cfg, receiver.ErrNotInitialized
	}
	if err != nil {
		return cfg, err
	}
	if cfg.Admin.IsEmpty() || caller != cfg.Admin {
		return cfg, fmt.Errorf("%w: caller %q is not the admin", receiver.ErrUnauthorized, caller)
	}
	return cfg, nil
}

func validateCredit(c EscrowCredit) error {
	if c.Denom == "" {
		return fmt.Errorf("%w: escrow funding needs a denom", receiver.ErrConfig)
	}
	if c.Amount == nil || c.Amount.IsZero() {
		return fmt.Errorf("%w: escrow funding must be positive", receiver.ErrConfig)
	}
	return nil
}

func validateSender(s receiver.RemoteSender) error {
	if s.SourceChain == "" || s.SourceAddress == "" {
		return fmt.Errorf("%w: remote sender needs both source chain and source address", receiver.ErrConfig)
	}
	return nil
}
