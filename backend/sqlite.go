// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package backend

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"
	"github.com/luxfi/ids"
	"github.com/usdrise/receiver"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

// InMemoryLocation opens a private in-memory database
const InMemoryLocation = ":memory:"

// SQLBackend persists receiver state in SQLite. A single connection is used
// and every write transaction starts with BEGIN IMMEDIATE, so units of work
// are serialized by the database itself.
type SQLBackend struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLBackend opens (or creates) the database at path and applies the schema.
func NewSQLBackend(ctx context.Context, path string) (*SQLBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage location is required")
	}
	if path != InMemoryLocation {
		path = filepath.Clean(path)
	}
	dsn := "file:" + path + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return NewSQLBackendWithDB(db), nil
}

// NewSQLBackendWithDB wraps an already opened database. The schema is assumed
// to be in place.
func NewSQLBackendWithDB(db *sqlx.DB) *SQLBackend {
	return &SQLBackend{
		db:  db,
		now: time.Now,
	}
}

func applySchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Update runs fn inside a write transaction
func (b *SQLBackend) Update(ctx context.Context, fn func(Tx) error) error {
	return b.run(ctx, false, fn)
}

// View runs fn inside a transaction that rejects writes
func (b *SQLBackend) View(ctx context.Context, fn func(Tx) error) error {
	return b.run(ctx, true, fn)
}

func (b *SQLBackend) run(ctx context.Context, readOnly bool, fn func(Tx) error) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&sqlTx{ctx: ctx, tx: tx, now: b.now, readOnly: readOnly}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (b *SQLBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close closes the database handle
func (b *SQLBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

type configRow struct {
	TrustedGateway string `db:"trusted_gateway"`
	GatewayKey     []byte `db:"gateway_key"`
	Admin          string `db:"admin"`
	AdminKey       []byte `db:"admin_key"`
}

type senderRow struct {
	SourceChain   string `db:"source_chain"`
	SourceAddress string `db:"source_address"`
}

type settlementRow struct {
	MessageID     []byte `db:"message_id"`
	SourceChain   string `db:"source_chain"`
	SourceAddress string `db:"source_address"`
	Recipient     string `db:"recipient"`
	Amount        string `db:"amount"`
	Denom         string `db:"denom"`
	Sequence      int64  `db:"sequence"`
	SettledAt     int64  `db:"settled_at"`
}

type transferRow struct {
	MessageID []byte `db:"message_id"`
	Recipient string `db:"recipient"`
	Denom     string `db:"denom"`
	Amount    string `db:"amount"`
}

type sqlTx struct {
	ctx      context.Context
	tx       *sqlx.Tx
	now      func() time.Time
	readOnly bool
}

func (t *sqlTx) Config() (receiver.GatewayConfig, error) {
	var row configRow
	err := t.tx.GetContext(t.ctx, &row, `SELECT trusted_gateway, gateway_key, admin, admin_key FROM gateway_config WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return receiver.GatewayConfig{}, ErrNotFound
	}
	if err != nil {
		return receiver.GatewayConfig{}, fmt.Errorf("get gateway config: %w", err)
	}
	return receiver.GatewayConfig{
		TrustedGateway: receiver.Identity(row.TrustedGateway),
		GatewayKey:     row.GatewayKey,
		Admin:          receiver.Identity(row.Admin),
		AdminKey:       row.AdminKey,
	}, nil
}

func (t *sqlTx) SetConfig(cfg receiver.GatewayConfig) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.tx.ExecContext(
		t.ctx,
		`INSERT INTO gateway_config (id, trusted_gateway, gateway_key, admin, admin_key) VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   trusted_gateway = excluded.trusted_gateway,
		   gateway_key = excluded.gateway_key,
		   admin = excluded.admin,
		   admin_key = excluded.admin_key`,
		cfg.TrustedGateway.String(),
		[]byte(cfg.GatewayKey),
		cfg.Admin.String(),
		[]byte(cfg.AdminKey),
	)
	if err != nil {
		return fmt.Errorf("put gateway config: %w", err)
	}
	return nil
}

func (t *sqlTx) AllowedSenders() ([]receiver.RemoteSender, error) {
	var rows []senderRow
	err := t.tx.SelectContext(
		t.ctx,
		&rows,
		`SELECT source_chain, source_address FROM allowed_senders ORDER BY source_chain, source_address`,
	)
	if err != nil {
		return nil, fmt.Errorf("list allowed senders: %w", err)
	}
	senders := make([]receiver.RemoteSender, 0, len(rows))
	for _, r := range rows {
		senders = append(senders, receiver.RemoteSender{SourceChain: r.SourceChain, SourceAddress: r.SourceAddress})
	}
	return senders, nil
}

func (t *sqlTx) AddSender(s receiver.RemoteSender) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.tx.ExecContext(
		t.ctx,
		`INSERT OR IGNORE INTO allowed_senders (source_chain, source_address) VALUES (?, ?)`,
		s.SourceChain,
		s.SourceAddress,
	)
	if err != nil {
		return fmt.Errorf("add allowed sender: %w", err)
	}
	return nil
}

func (t *sqlTx) RemoveSender(s receiver.RemoteSender) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.tx.ExecContext(
		t.ctx,
		`DELETE FROM allowed_senders WHERE source_chain = ? AND source_address = ?`,
		s.SourceChain,
		s.SourceAddress,
	)
	if err != nil {
		return fmt.Errorf("remove allowed sender: %w", err)
	}
	return nil
}

func (t *sqlTx) Settlement(id ids.ID) (*receiver.SettlementRecord, error) {
	var row settlementRow
	err := t.tx.GetContext(
		t.ctx,
		&row,
		`SELECT message_id, source_chain, source_address, recipient, amount, denom, sequence, settled_at
		 FROM settlements WHERE message_id = ?`,
		id[:],
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get settlement: %w", err)
	}
	amount, err := uint256.FromDecimal(row.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", row.Amount, err)
	}
	messageID, err := toID(row.MessageID)
	if err != nil {
		return nil, err
	}
	return &receiver.SettlementRecord{
		MessageID:     messageID,
		SourceChain:   row.SourceChain,
		SourceAddress: row.SourceAddress,
		Recipient:     receiver.Identity(row.Recipient),
		Amount:        amount,
		Denom:         row.Denom,
		Sequence:      uint64(row.Sequence),
		SettledAt:     time.UnixMilli(row.SettledAt).UTC(),
	}, nil
}

func (t *sqlTx) PutSettlement(rec *receiver.SettlementRecord) error {
	if t.readOnly {
		return ErrReadOnly
	}
	var last int64
	if err := t.tx.GetContext(t.ctx, &last, `SELECT COALESCE(MAX(sequence), 0) FROM settlements`); err != nil {
		return fmt.Errorf("get settlement sequence: %w", err)
	}
	settledAt := t.now().UTC()
	_, err := t.tx.ExecContext(
		t.ctx,
		`INSERT INTO settlements (
		   message_id,
		   source_chain,
		   source_address,
		   recipient,
		   amount,
		   denom,
		   sequence,
		   settled_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.MessageID[:],
		rec.SourceChain,
		rec.SourceAddress,
		rec.Recipient.String(),
		rec.Amount.Dec(),
		rec.Denom,
		last+1,
		settledAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", receiver.ErrAlreadySettled, receiver.FormatMessageID(rec.MessageID))
		}
		return fmt.Errorf("put settlement: %w", err)
	}
	rec.Sequence = uint64(last + 1)
	rec.SettledAt = time.UnixMilli(settledAt.UnixMilli()).UTC()
	return nil
}

func (t *sqlTx) Send(tr receiver.Transfer) error {
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
	if err := t.setBalance(tr.Denom, bal.Sub(bal, tr.Amount)); err != nil {
		return err
	}
	_, err = t.tx.ExecContext(
		t.ctx,
		`INSERT INTO transfers (message_id, recipient, denom, amount) VALUES (?, ?, ?, ?)`,
		tr.MessageID[:],
		tr.To.String(),
		tr.Denom,
		tr.Amount.Dec(),
	)
	if err != nil {
		return fmt.Errorf("record transfer: %w", err)
	}
	return nil
}

func (t *sqlTx) Fund(denom string, amount *uint256.Int) error {
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
	return t.setBalance(denom, sum)
}

func (t *sqlTx) Balance(denom string) (*uint256.Int, error) {
	var raw string
	err := t.tx.GetContext(t.ctx, &raw, `SELECT balance FROM escrow WHERE denom = ?`, denom)
	if errors.Is(err, sql.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get escrow balance: %w", err)
	}
	bal, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid stored balance %q: %w", raw, err)
	}
	return bal, nil
}

func (t *sqlTx) setBalance(denom string, bal *uint256.Int) error {
	_, err := t.tx.ExecContext(
		t.ctx,
		`INSERT INTO escrow (denom, balance) VALUES (?, ?)
		 ON CONFLICT (denom) DO UPDATE SET balance = excluded.balance`,
		denom,
		bal.Dec(),
	)
	if err != nil {
		return fmt.Errorf("put escrow balance: %w", err)
	}
	return nil
}

func (t *sqlTx) Transfers() ([]receiver.Transfer, error) {
	var rows []transferRow
	err := t.tx.SelectContext(
		t.ctx,
		&rows,
		`SELECT message_id, recipient, denom, amount FROM transfers ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	transfers := make([]receiver.Transfer, 0, len(rows))
	for _, r := range rows {
		amount, err := uint256.FromDecimal(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid stored amount %q: %w", r.Amount, err)
		}
		messageID, err := toID(r.MessageID)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, receiver.Transfer{
			MessageID: messageID,
			To:        receiver.Identity(r.Recipient),
			Denom:     r.Denom,
			Amount:    amount,
		})
	}
	return transfers, nil
}

func toID(b []byte) (ids.ID, error) {
	var id ids.ID
	if len(b) != len(id) {
		return ids.Empty, fmt.Errorf("stored message id has length %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ Backend = (*SQLBackend)(nil)
