// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package payload

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/usdrise/receiver"
)

// Interchain transfer layout
const (
	NonceLen     = 8
	RecipientLen = receiver.AccountAddressLen
	AmountLen    = 32
	TokenLenSize = 2

	// MaxTokenIDLen bounds the token identifier
	MaxTokenIDLen = 64

	// HeaderLen is the size of everything before the token identifier
	HeaderLen = 1 + NonceLen + RecipientLen + AmountLen + TokenLenSize

	// MinInterchainTransferLen is the shortest valid encoding
	MinInterchainTransferLen = HeaderLen + 1

	// MaxAmountBits is the width of the local amount representation
	MaxAmountBits = 128
)

// InterchainTransfer asserts that Amount of the token TokenID was locked or
// burned remotely and must be released to Recipient.
type InterchainTransfer struct {
	// Nonce distinguishes otherwise identical transfers from the same sender
	Nonce uint64
	// Recipient account bytes on the local chain
	Recipient [RecipientLen]byte
	// Amount in the smallest unit of the token
	Amount *uint256.Int
	// TokenID is the remote token identifier
	TokenID []byte
}

// NewInterchainTransfer creates a new interchain transfer payload
func NewInterchainTransfer(
	nonce uint64,
	recipient [RecipientLen]byte,
	amount *uint256.Int,
	tokenID []byte,
) (*InterchainTransfer, error) {
	p := &InterchainTransfer{
		Nonce:     nonce,
		Recipient: recipient,
		Amount:    amount,
		TokenID:   tokenID,
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}

// Type returns InterchainTransferType
func (*InterchainTransfer) Type() Type {
	return InterchainTransferType
}

// Verify verifies the field invariants
func (p *InterchainTransfer) Verify() error {
	if p.Amount == nil || p.Amount.IsZero() {
		return ErrZeroAmount
	}
	if p.Amount.BitLen() > MaxAmountBits {
		return fmt.Errorf("%w: %d bits", ErrAmountOverflow, p.Amount.BitLen())
	}
	if p.Recipient == ([RecipientLen]byte{}) {
		return fmt.Errorf("%w: zero address", ErrInvalidRecipient)
	}
	if len(p.TokenID) == 0 || len(p.TokenID) > MaxTokenIDLen {
		return fmt.Errorf("%w: token id length %d", ErrInvalidLength, len(p.TokenID))
	}
	return nil
}

// Bytes serializes the payload
func (p *InterchainTransfer) Bytes() []byte {
	buf := make([]byte, HeaderLen+len(p.TokenID))
	offset := 0

	buf[offset] = byte(InterchainTransferType)
	offset++

	binary.BigEndian.PutUint64(buf[offset:], p.Nonce)
	offset += NonceLen

	copy(buf[offset:], p.Recipient[:])
	offset += RecipientLen

	amount := p.Amount
	if amount == nil {
		amount = new(uint256.Int)
	}
	word := amount.Bytes32()
	copy(buf[offset:], word[:])
	offset += AmountLen

	binary.BigEndian.PutUint16(buf[offset:], uint16(len(p.TokenID)))
	offset += TokenLenSize
	copy(buf[offset:], p.TokenID)

	return buf
}

// ParseInterchainTransfer deserializes an interchain transfer payload. The
// buffer must be consumed exactly.
func ParseInterchainTransfer(data []byte) (*InterchainTransfer, error) {
	if len(data) < MinInterchainTransferLen {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrTooShort, len(data), MinInterchainTransferLen)
	}

	offset := 0
	if t := Type(data[offset]); t != InterchainTransferType {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	offset++

	p := &InterchainTransfer{}

	p.Nonce = binary.BigEndian.Uint64(data[offset:])
	offset += NonceLen

	copy(p.Recipient[:], data[offset:offset+RecipientLen])
	offset += RecipientLen

	// Decode the full word so that out-of-range values are rejected rather than
	// truncated.
	p.Amount = new(uint256.Int).SetBytes32(data[offset : offset+AmountLen])
	offset += AmountLen

	tokenLen := int(binary.BigEndian.Uint16(data[offset:]))
	offset += TokenLenSize
	if tokenLen == 0 || tokenLen > MaxTokenIDLen {
		return nil, fmt.Errorf("%w: token id length %d", ErrInvalidLength, tokenLen)
	}
	switch end := offset + tokenLen; {
	case end > len(data):
		return nil, fmt.Errorf("%w: token id needs %d bytes, have %d", ErrInvalidLength, tokenLen, len(data)-offset)
	case end < len(data):
		return nil, fmt.Errorf("%w: %d", ErrTrailingBytes, len(data)-end)
	}
	p.TokenID = make([]byte, tokenLen)
	copy(p.TokenID, data[offset:])

	return p, nil
}
