// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package payload

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/holiman/uint256"
	"github.com/usdrise/receiver"
)

// Same pattern the bank module enforces for coin denominations.
var denomRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9/:._-]{2,127}$`)

// Decoder turns raw payloads into transfer instructions using a read-only
// registry of denominations.
type Decoder struct {
	prefix string
	denoms map[string]receiver.Denomination
}

// NewDecoder creates a decoder for recipients with the given bech32 prefix.
func NewDecoder(prefix string, denoms []receiver.Denomination) (*Decoder, error) {
	if prefix == "" {
		return nil, errors.New("bech32 prefix required")
	}
	registry := make(map[string]receiver.Denomination, len(denoms))
	for _, d := range denoms {
		if len(d.TokenID) == 0 || len(d.TokenID) > MaxTokenIDLen {
			return nil, fmt.Errorf("token id for %q must be 1-%d bytes", d.Denom, MaxTokenIDLen)
		}
		if !denomRegex.MatchString(d.Denom) {
			return nil, fmt.Errorf("invalid denom %q", d.Denom)
		}
		key := string(d.TokenID)
		if _, exists := registry[key]; exists {
			return nil, fmt.Errorf("duplicate token id %x", d.TokenID)
		}
		registry[key] = receiver.Denomination{
			TokenID:      append([]byte(nil), d.TokenID...),
			Denom:        d.Denom,
			Transferable: d.Transferable,
		}
	}
	return &Decoder{
		prefix: prefix,
		denoms: registry,
	}, nil
}

// Prefix returns the bech32 prefix recipients are encoded with
func (d *Decoder) Prefix() string {
	return d.prefix
}

// Decode parses raw and resolves it against the denomination registry.
func (d *Decoder) Decode(raw []byte) (receiver.TransferInstruction, error) {
	p, err := Parse(raw)
	if err != nil {
		return receiver.TransferInstruction{}, err
	}
	return d.Resolve(p)
}

// Resolve maps an already parsed payload to a transfer instruction.
func (d *Decoder) Resolve(p Payload) (receiver.TransferInstruction, error) {
	switch p := p.(type) {
	case *InterchainTransfer:
		return d.resolveTransfer(p)
	default:
		return receiver.TransferInstruction{}, fmt.Errorf("%w: %s", ErrUnknownType, p.Type())
	}
}

func (d *Decoder) resolveTransfer(p *InterchainTransfer) (receiver.TransferInstruction, error) {
	if err := p.Verify(); err != nil {
		return receiver.TransferInstruction{}, err
	}
	denom, ok := d.denoms[string(p.TokenID)]
	if !ok {
		return receiver.TransferInstruction{}, fmt.Errorf("%w: %s", ErrUnknownToken, FormatTokenID(p.TokenID))
	}
	if !denom.Transferable {
		return receiver.TransferInstruction{}, fmt.Errorf("%w: %s", ErrNotTransferable, denom.Denom)
	}
	recipient, err := receiver.IdentityFromBytes(d.prefix, p.Recipient[:])
	if err != nil {
		return receiver.TransferInstruction{}, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	return receiver.TransferInstruction{
		Recipient: recipient,
		Amount:    new(uint256.Int).Set(p.Amount),
		Denom:     denom.Denom,
		Nonce:     p.Nonce,
	}, nil
}

// ParseTokenID reads a token identifier from configuration: 0x-prefixed
// values are hex, anything else is taken as raw bytes.
func ParseTokenID(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b, err := hex.DecodeString(s[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid hex token id %q: %w", s, err)
		}
		return b, nil
	}
	return []byte(s), nil
}

// FormatTokenID is the inverse of ParseTokenID for display
func FormatTokenID(b []byte) string {
	for _, c := range b {
		if c < 0x21 || c > 0x7e {
			return "0x" + hex.EncodeToString(b)
		}
	}
	return string(b)
}
