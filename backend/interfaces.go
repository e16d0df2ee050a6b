// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package backend

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/usdrise/receiver"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient escrow balance")
	ErrReadOnly          = errors.New("write in read-only transaction")
)

// Backend is the transactional state store of the receiver.
//
// Update runs fn as one atomic unit of work: either every write fn made is
// committed, or none are. Units of work never interleave on the same state.
type Backend interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error

	// Ping reports whether the store is reachable
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the view of state inside a unit of work.
type Tx interface {
	// Config returns ErrNotFound until a config has been stored
	Config() (receiver.GatewayConfig, error)
	SetConfig(cfg receiver.GatewayConfig) error

	AllowedSenders() ([]receiver.RemoteSender, error)
	AddSender(s receiver.RemoteSender) error
	RemoveSender(s receiver.RemoteSender) error

	// Settlement returns ErrNotFound for unknown ids
	Settlement(id ids.ID) (*receiver.SettlementRecord, error)
	// PutSettlement assigns the record's Sequence and SettledAt. Inserting an
	// id twice fails with receiver.ErrAlreadySettled.
	PutSettlement(rec *receiver.SettlementRecord) error

	// Send debits the escrow and appends the transfer to the outbox. It fails
	// with ErrInsufficientFunds when the escrow cannot cover the amount.
	Send(t receiver.Transfer) error
	Fund(denom string, amount *uint256.Int) error
	Balance(denom string) (*uint256.Int, error)
	Transfers() ([]receiver.Transfer, error)
}
