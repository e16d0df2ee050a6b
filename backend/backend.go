// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package backend

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/usdrise/receiver"
)

type memoryState struct {
	config      *receiver.GatewayConfig
	senders     map[receiver.RemoteSender]struct{}
	settlements map[ids.ID]*receiver.SettlementRecord
	balances    map[string]*uint256.Int
	outbox      []receiver.Transfer
	sequence    uint64
}

// MemoryBackend is an in-memory implementation of the receiver backend
type MemoryBackend struct {
	mu    sync.RWMutex
	state memoryState
	now   func() time.Time
}

// NewMemoryBackend creates a new memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		state: memoryState{
			senders:     make(map[receiver.RemoteSender]struct{}),
			settlements: make(map[ids.ID]*receiver.SettlementRecord),
			balances:    make(map[string]*uint256.Int),
		},
		now: time.Now,
	}
}

// Update runs fn with the backend locked. Writes are staged and only applied
// when fn returns nil.
func (b *MemoryBackend) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	tx := newMemoryTx(&b.state, b.now, false)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// View runs fn against a read-only snapshot
func (b *MemoryBackend) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	return fn(newMemoryTx(&b.state, b.now, true))
}

// Ping always succeeds
func (b *MemoryBackend) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op
func (*MemoryBackend) Close() error {
	return nil
}

type memoryTx struct {
	base     *memoryState
	now      func() time.Time
	readOnly bool

	config      *receiver.GatewayConfig
	senders     map[receiver.RemoteSender]bool
	settlements map[ids.ID]*receiver.SettlementRecord
	balances    map[string]*uint256.Int
	outbox      []receiver.Transfer
	sequence    uint64
}

func newMemoryTx(base *memoryState, now func() time.Time, readOnly bool) *memoryTx {
	return &memoryTx{
		base:        base,
		now:         now,
		readOnly:    readOnly,
		senders:     make(map[receiver.RemoteSender]bool),
		settlements: make(map[ids.ID]*receiver.SettlementRecord),
		balances:    make(map[string]*uint256.Int),
		sequence:    base.sequence,
	}
}

func (t *memoryTx) commit() {
	if t.config != nil {
		t.base.config = t.config
	}
	for s, present := range t.senders {
		if present {
			t.base.senders[s] = struct{}{}
		} else {
			delete(t.base.senders, s)
		}
	}
	for id, rec := range t.settlements {
		t.base.settlements[id] = rec
	}
	for denom, bal := range t.balances {
		t.base.balances[denom] = bal
	}
	t.base.outbox = append(t.base.outbox, t.outbox...)
	t.base.sequence = t.sequence
}

func (t *memoryTx) Config() (receiver.GatewayConfig, error) {
	switch {
	case t.config != nil:
		return *t.config, nil
	case t.base.config != nil:
		return *t.base.config, nil
	default:
		return receiver.GatewayConfig{}, ErrNotFound
	}
}

func (t *memoryTx) SetConfig(cfg receiver.GatewayConfig) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.config = &cfg
	return nil
}

func (t *memoryTx) AllowedSenders() ([]receiver.RemoteSender, error) {
	var senders []receiver.RemoteSender
	for s := range t.base.senders {
		if present, staged := t.senders[s]; staged && !present {
			continue
		}
		senders = append(senders, s)
	}
	for s, present := range t.senders {
		if _, exists := t.base.senders[s]; present && !exists {
			senders = append(senders, s)
		}
	}
	sortSenders(senders)
	return senders, nil
}

func (t *memoryTx) AddSender(s receiver.RemoteSender) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.senders[s] = true
	return nil
}

func (t *memoryTx) RemoveSender(s receiver.RemoteSender) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.senders[s] = false
	return nil
}

func (t *memoryTx) Settlement(id ids.ID) (*receiver.SettlementRecord, error) {
	if rec, ok := t.settlements[id]; ok {
		return copyRecord(rec), nil
	}
	if rec, ok := t.base.settlements[id]; ok {
		return copyRecord(rec), nil
	}
	return nil, ErrNotFound
}

func (t *memoryTx) PutSettlement(rec *receiver.SettlementRecord) error {
	if t.readOnly {
		return ErrReadOnly
	}
	if _, err := t.Settlement(rec.MessageID); err == nil {
		return fmt.Errorf("%w: %s", receiver.ErrAlreadySettled, receiver.FormatMessageID(rec.MessageID))
	}
	t.sequence++
	rec.Sequence = t.sequence
	rec.SettledAt = t.now().UTC()
	t.settlements[rec.MessageID] = copyRecord(rec)
	return nil
}

func (t *memoryTx) Send(tr receiver.Transfer) error {
	if t.readOnly {
		return ErrReadOnly
	}
	bal, err := t.Balance(tr.Denom)
	if err != nil {
		return err
	}
	if bal.Lt(tr.Amount) {
		return fmt.Errorf("%w: have %s%s, need %s%s", ErrInsufficientFunds, bal.Dec(), tr.Denom, tr.Amount.Dec(), tr.Denom)
	}
	t.balances[tr.Denom] = bal.Sub(bal, tr.Amount)
	tr.Amount = new(uint256.Int).Set(tr.Amount)
	t.outbox = append(t.outbox, tr)
	return nil
}

func (t *memoryTx) Fund(denom string, amount *uint256.Int) error {
	if t.readOnly {
		return ErrReadOnly
	}
	bal, err := t.Balance(denom)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return fmt.Errorf("escrow balance of %s overflows", denom)
	}
	t.balances[denom] = sum
	return nil
}

func (t *memoryTx) Balance(denom string) (*uint256.Int, error) {
	if bal, ok := t.balances[denom]; ok {
		return new(uint256.Int).Set(bal), nil
	}
	if bal, ok := t.base.balances[denom]; ok {
		return new(uint256.Int).Set(bal), nil
	}
	return new(uint256.Int), nil
}

func (t *memoryTx) Transfers() ([]receiver.Transfer, error) {
	out := make([]receiver.Transfer, 0, len(t.base.outbox)+len(t.outbox))
	out = append(out, t.base.outbox...)
	out = append(out, t.outbox...)
	return out, nil
}

func copyRecord(rec *receiver.SettlementRecord) *receiver.SettlementRecord {
	c := *rec
	if rec.Amount != nil {
		c.Amount = new(uint256.Int).Set(rec.Amount)
	}
	return &c
}

func sortSenders(senders []receiver.RemoteSender) {
	slices.SortFunc(senders, func(a, b receiver.RemoteSender) int {
		if c := cmp.Compare(a.SourceChain, b.SourceChain); c != 0 {
			return c
		}
		return cmp.Compare(a.SourceAddress, b.SourceAddress)
	})
}

var _ Backend = (*MemoryBackend)(nil)
