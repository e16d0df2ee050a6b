// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package bridge settles relayed cross-chain transfers. A relayed message is
// authorized, decoded, checked against the settled set and turned into exactly
// one transfer out of escrow, all in a single backend unit of work.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/math/set"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/usdrise/receiver"
	"github.com/usdrise/receiver/backend"
	"github.com/usdrise/receiver/metrics"
	"github.com/usdrise/receiver/payload"
	"go.uber.org/zap"
)

// ActionReceiveAndForward is the action attribute of every settlement receipt
const ActionReceiveAndForward = "receive_and_forward_usdrise"

// Receipt attribute keys
const (
	AttrAction        = "action"
	AttrSourceChain   = "source_chain"
	AttrSourceAddress = "source_address"
	AttrRecipient     = "recipient"
	AttrAmount        = "amount"
	AttrDenom         = "denom"
	AttrMessageID     = "message_id"
)

// Config holds the collaborators of a Receiver
type Config struct {
	Decoder *payload.Decoder
	Backend backend.Backend
	Logger  *zap.Logger
	Metrics *metrics.ReceiverMetrics

	// SettledCacheSize bounds the in-memory cache of settled ids. Zero
	// disables it.
	SettledCacheSize int
}

// Receiver is the settlement engine
type Receiver struct {
	decoder *payload.Decoder
	backend backend.Backend
	logger  *zap.Logger
	metrics *metrics.ReceiverMetrics
	settled *settledCache
}

// NewReceiver creates a settlement engine
func NewReceiver(cfg Config) (*Receiver, error) {
	if cfg.Decoder == nil {
		return nil, errors.New("decoder required")
	}
	if cfg.Backend == nil {
		return nil, errors.New("backend required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewReceiverMetrics(prometheus.NewRegistry())
	}
	return &Receiver{
		decoder: cfg.Decoder,
		backend: cfg.Backend,
		logger:  logger,
		metrics: m,
		settled: newSettledCache(cfg.SettledCacheSize),
	}, nil
}

// ReceiveMessage settles msg on behalf of caller. On success exactly one
// transfer has been issued; on failure no state has changed.
func (r *Receiver) ReceiveMessage(
	ctx context.Context,
	caller receiver.Identity,
	msg *receiver.RelayedMessage,
) (*receiver.SettlementReceipt, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", receiver.ErrDecode)
	}
	startTime := time.Now()
	logger := r.logger.With(
		zap.String("caller", caller.String()),
		zap.String("sourceChain", msg.SourceChain),
		zap.String("sourceAddress", msg.SourceAddress),
		zap.Int("payloadLen", len(msg.Payload)),
	)

	receipt, err := r.receive(ctx, caller, msg)
	if err != nil {
		reason := receiver.CodeName(receiver.CodeOf(err))
		r.metrics.Rejected(reason)
		if receiver.CodeOf(err) == receiver.CodeUnknown {
			logger.Error("Failed to settle relayed message", zap.Error(err))
		} else {
			logger.Warn("Rejected relayed message", zap.String("reason", reason), zap.Error(err))
		}
		return nil, err
	}

	r.settled.add(receipt.MessageID)
	r.metrics.Settled(msg.SourceChain, receipt.Denom, receipt.Sequence, time.Since(startTime).Milliseconds())
	logger.Info(
		"Settled relayed message",
		zap.String("messageID", receiver.FormatMessageID(receipt.MessageID)),
		zap.String("recipient", receipt.Recipient.String()),
		zap.String("amount", receipt.Amount.Dec()),
		zap.String("denom", receipt.Denom),
		zap.Uint64("sequence", receipt.Sequence),
	)
	return receipt, nil
}

func (r *Receiver) receive(
	ctx context.Context,
	caller receiver.Identity,
	msg *receiver.RelayedMessage,
) (*receiver.SettlementReceipt, error) {
	var receipt *receiver.SettlementReceipt
	err := r.backend.Update(ctx, func(tx backend.Tx) error {
		cfg, allowed, err := loadConfig(tx)
		if err != nil {
			return err
		}
		if err := Authorize(caller, msg.SourceChain, msg.SourceAddress, cfg, allowed); err != nil {
			return err
		}
		if err := msg.Verify(); err != nil {
			return fmt.Errorf("%w: %v", receiver.ErrDecode, err)
		}

		instr, err := r.decode(msg.Payload)
		if err != nil {
			return err
		}

		id := msg.ID()
		if r.settled.contains(id) {
			r.metrics.SettledCacheHit()
			return fmt.Errorf("%w: %s", receiver.ErrAlreadySettled, receiver.FormatMessageID(id))
		}
		rec := &receiver.SettlementRecord{
			MessageID:     id,
			SourceChain:   msg.SourceChain,
			SourceAddress: msg.SourceAddress,
			Recipient:     instr.Recipient,
			Amount:        instr.Amount,
			Denom:         instr.Denom,
		}
		if err := admit(tx, rec); err != nil {
			return err
		}

		err = tx.Send(receiver.Transfer{
			MessageID: id,
			To:        instr.Recipient,
			Denom:     instr.Denom,
			Amount:    instr.Amount,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", receiver.ErrTransferFailed, err)
		}

		receipt = newReceipt(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func loadConfig(tx backend.Tx) (receiver.GatewayConfig, set.Set[receiver.RemoteSender], error) {
	cfg, err := tx.Config()
	if errors.Is(err, backend.ErrNotFound) {
		return cfg, nil, receiver.ErrNotInitialized
	}
	if err != nil {
		return cfg, nil, err
	}
	senders, err := tx.AllowedSenders()
	if err != nil {
		return cfg, nil, err
	}
	return cfg, set.Of(senders...), nil
}

func newReceipt(rec *receiver.SettlementRecord) *receiver.SettlementReceipt {
	return &receiver.SettlementReceipt{
		MessageID:     rec.MessageID,
		SourceChain:   rec.SourceChain,
		SourceAddress: rec.SourceAddress,
		Recipient:     rec.Recipient,
		Amount:        rec.Amount,
		Denom:         rec.Denom,
		Sequence:      rec.Sequence,
		Attributes: []receiver.Attribute{
			{Key: AttrAction, Value: ActionReceiveAndForward},
			{Key: AttrSourceChain, Value: rec.SourceChain},
			{Key: AttrSourceAddress, Value: rec.SourceAddress},
			{Key: AttrRecipient, Value: rec.Recipient.String()},
			{Key: AttrAmount, Value: rec.Amount.Dec()},
			{Key: AttrDenom, Value: rec.Denom},
			{Key: AttrMessageID, Value: receiver.FormatMessageID(rec.MessageID)},
		},
	}
}
