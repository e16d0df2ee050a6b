// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package backend

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
	"github.com/usdrise/receiver"
)

const testDenom = "uusdrise"

func testBackends(t *testing.T) map[string]Backend {
	t.Helper()
	sqlBackend, err := NewSQLBackend(context.Background(), filepath.Join(t.TempDir(), "receiver.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, sqlBackend.Close())
	})
	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"sqlite": sqlBackend,
	}
}

func testRecord(seed byte) *receiver.SettlementRecord {
	return &receiver.SettlementRecord{
		MessageID:     ids.ID{seed},
		SourceChain:   "sui",
		SourceAddress: "0xabc",
		Recipient:     receiver.Identity("neutron1recipient"),
		Amount:        uint256.NewInt(1_000_000),
		Denom:         testDenom,
	}
}

func TestGatewayConfig(t *testing.T) {
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			ctx := context.Background()

			err := b.View(ctx, func(tx Tx) error {
				_, err := tx.Config()
				return err
			})
			require.ErrorIs(err, ErrNotFound)

			cfg := receiver.GatewayConfig{
				TrustedGateway: "neutron1gw",
				GatewayKey:     []byte{0x01, 0x02},
				Admin:          "neutron1admin",
				AdminKey:       []byte{0x0a},
			}
			require.NoError(b.Update(ctx, func(tx Tx) error {
				return tx.SetConfig(cfg)
			}))

			var got receiver.GatewayConfig
			require.NoError(b.View(ctx, func(tx Tx) error {
				var err error
				got, err = tx.Config()
				return err
			}))
			require.Equal(cfg, got)

			err = b.View(ctx, func(tx Tx) error {
				return tx.SetConfig(receiver.GatewayConfig{})
			})
			require.ErrorIs(err, ErrReadOnly)
		})
	}
}

func TestAllowedSenders(t *testing.T) {
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			ctx := context.Background()

			sui := receiver.RemoteSender{SourceChain: "sui", SourceAddress: "0xabc"}
			eth := receiver.RemoteSender{SourceChain: "ethereum", SourceAddress: "0xdef"}
			require.NoError(b.Update(ctx, func(tx Tx) error {
				if err := tx.AddSender(sui); err != nil {
					return err
				}
				// Adding twice is a no-op.
				if err := tx.AddSender(sui); err != nil {
					return err
				}
				return tx.AddSender(eth)
			}))

			listed := func() []receiver.RemoteSender {
				var senders []receiver.RemoteSender
				require.NoError(b.View(ctx, func(tx Tx) error {
					var err error
					senders, err = tx.AllowedSenders()
					return err
				}))
				return senders
			}
			require.Equal([]receiver.RemoteSender{eth, sui}, listed())

			// A failed unit of work leaves the list untouched.
			errAbort := errors.New("abort")
			err := b.Update(ctx, func(tx Tx) error {
				if err := tx.RemoveSender(sui); err != nil {
					return err
				}
				return errAbort
			})
			require.ErrorIs(err, errAbort)
			require.Equal([]receiver.RemoteSender{eth, sui}, listed())

			require.NoError(b.Update(ctx, func(tx Tx) error {
				return tx.RemoveSender(eth)
			}))
			require.Equal([]receiver.RemoteSender{sui}, listed())
		})
	}
}

func TestPutSettlement(t *testing.T) {
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			ctx := context.Background()

			first := testRecord(1)
			require.NoError(b.Update(ctx, func(tx Tx) error {
				return tx.PutSettlement(first)
			}))
			require.Equal(uint64(1), first.Sequence)
			require.False(first.SettledAt.IsZero())

			err := b.Update(ctx, func(tx Tx) error {
				return tx.PutSettlement(testRecord(1))
			})
			require.ErrorIs(err, receiver.ErrAlreadySettled)

			second := testRecord(2)
			require.NoError(b.Update(ctx, func(tx Tx) error {
				return tx.PutSettlement(second)
			}))
			require.Equal(uint64(2), second.Sequence)

			var stored *receiver.SettlementRecord
			require.NoError(b.View(ctx, func(tx Tx) error {
				var err error
				stored, err = tx.Settlement(first.MessageID)
				return err
			}))
			require.Equal(first.MessageID, stored.MessageID)
			require.Equal(first.Recipient, stored.Recipient)
			require.Equal(first.Sequence, stored.Sequence)
			require.Zero(first.Amount.Cmp(stored.Amount))

			err = b.View(ctx, func(tx Tx) error {
				_, err := tx.Settlement(ids.ID{9})
				return err
			})
			require.ErrorIs(err, ErrNotFound)
		})
	}
}

func TestSendRollsBackSettlement(t *testing.T) {
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			ctx := context.Background()

			require.NoError(b.Update(ctx, func(tx Tx) error {
				return tx.Fund(testDenom, uint256.NewInt(100))
			}))

			rec := testRecord(1)
			transfer := receiver.Transfer{
				MessageID: rec.MessageID,
				To:        rec.Recipient,
				Denom:     testDenom,
				Amount:    uint256.NewInt(150),
			}
			err := b.Update(ctx, func(tx Tx) error {
				if err := tx.PutSettlement(rec); err != nil {
					return err
				}
				return tx.Send(transfer)
			})
			require.ErrorIs(err, ErrInsufficientFunds)

			require.NoError(b.View(ctx, func(tx Tx) error {
				_, err := tx.Settlement(rec.MessageID)
				require.ErrorIs(err, ErrNotFound)

				bal, err := tx.Balance(testDenom)
				require.NoError(err)
				require.Equal(uint64(100), bal.Uint64())

				transfers, err := tx.Transfers()
				require.NoError(err)
				require.Empty(transfers)
				return nil
			}))

			transfer.Amount = uint256.NewInt(60)
			require.NoError(b.Update(ctx, func(tx Tx) error {
				if err := tx.PutSettlement(testRecord(1)); err != nil {
					return err
				}
				return tx.Send(transfer)
			}))

			require.NoError(b.View(ctx, func(tx Tx) error {
				bal, err := tx.Balance(testDenom)
				require.NoError(err)
				require.Equal(uint64(40), bal.Uint64())

				transfers, err := tx.Transfers()
				require.NoError(err)
				require.Len(transfers, 1)
				require.Equal(rec.MessageID, transfers[0].MessageID)
				require.Equal(rec.Recipient, transfers[0].To)
				require.Equal(uint64(60), transfers[0].Amount.Uint64())
				return nil
			}))
		})
	}
}

func TestConcurrentPutSettlement(t *testing.T) {
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			const workers = 16
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				admitted  int
				duplicate int
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := b.Update(context.Background(), func(tx Tx) error {
						if _, err := tx.Settlement(ids.ID{7}); err == nil {
							return receiver.ErrAlreadySettled
						}
						return tx.PutSettlement(testRecord(7))
					})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						admitted++
					case errors.Is(err, receiver.ErrAlreadySettled):
						duplicate++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()
			require.Equal(t, 1, admitted)
			require.Equal(t, workers-1, duplicate)
		})
	}
}
