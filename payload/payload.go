// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package payload decodes the cross-chain token transfer payloads carried by
// relayed messages.
package payload

import (
	"fmt"

	"github.com/usdrise/receiver"
)

// Type is the leading tag byte of every payload
type Type uint8

// Payload types
const (
	// InterchainTransferType releases tokens to a local recipient
	InterchainTransferType Type = 0x00
)

func (t Type) String() string {
	switch t {
	case InterchainTransferType:
		return "interchain_transfer"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

var (
	ErrTooShort         = fmt.Errorf("%w: payload too short", receiver.ErrDecode)
	ErrUnknownType      = fmt.Errorf("%w: unknown payload type", receiver.ErrDecode)
	ErrInvalidLength    = fmt.Errorf("%w: invalid field length", receiver.ErrDecode)
	ErrTrailingBytes    = fmt.Errorf("%w: trailing bytes", receiver.ErrDecode)
	ErrZeroAmount       = fmt.Errorf("%w: zero amount", receiver.ErrDecode)
	ErrAmountOverflow   = fmt.Errorf("%w: amount exceeds 128 bits", receiver.ErrDecode)
	ErrInvalidRecipient = fmt.Errorf("%w: invalid recipient", receiver.ErrDecode)
	ErrUnknownToken     = fmt.Errorf("%w: unknown token", receiver.ErrDecode)
	ErrNotTransferable  = fmt.Errorf("%w: token not transferable", receiver.ErrDecode)
	ErrInvalidPayload   = fmt.Errorf("%w: invalid payload", receiver.ErrDecode)
)

// Payload is a decoded relayed payload. The set of implementations is closed:
// one per Type registered in parsers.
type Payload interface {
	// Type returns the tag the payload is encoded with
	Type() Type

	// Bytes returns the byte representation of the payload
	Bytes() []byte

	// Verify verifies the payload
	Verify() error
}

type parseFunc func([]byte) (Payload, error)

var parsers = map[Type]parseFunc{
	InterchainTransferType: func(b []byte) (Payload, error) {
		return ParseInterchainTransfer(b)
	},
}

// Parse decodes a payload of any registered type. It performs structural
// validation only; token resolution is done by Decoder.
func Parse(b []byte) (Payload, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrTooShort)
	}
	parse, ok := parsers[Type(b[0])]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, b[0])
	}
	p, err := parse(b)
	if err != nil {
		return nil, err
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}
