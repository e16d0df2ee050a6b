// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package receiver

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
)

const MaxMessageSize = 64 * KiB

var ErrInvalidMessage = errors.New("invalid message")

// RelayedMessage is a message as delivered by the messaging gateway
type RelayedMessage struct {
	SourceChain   string
	SourceAddress string
	Payload       []byte
}

// NewRelayedMessage creates a new relayed message
func NewRelayedMessage(sourceChain, sourceAddress string, payload []byte) (*RelayedMessage, error) {
	msg := &RelayedMessage{
		SourceChain:   sourceChain,
		SourceAddress: sourceAddress,
		Payload:       payload,
	}
	if err := msg.Verify(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Verify verifies the envelope of the relayed message. The payload itself is
// validated by the payload codec.
func (m *RelayedMessage) Verify() error {
	if m.SourceChain == "" {
		return fmt.Errorf("%w: empty source chain", ErrInvalidMessage)
	}
	if m.SourceAddress == "" {
		return fmt.Errorf("%w: empty source address", ErrInvalidMessage)
	}
	b, err := Codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal relayed message: %w", err)
	}
	if len(b) > MaxMessageSize {
		return fmt.Errorf("%w: message size %d exceeds maximum %d", ErrInvalidMessage, len(b), MaxMessageSize)
	}
	return nil
}

// Bytes returns the canonical byte representation of the relayed message
func (m *RelayedMessage) Bytes() []byte {
	b, _ := Codec.Marshal(m)
	return b
}

// ID returns the hash of the canonical encoding. The same
// (source chain, source address, payload) triple always yields the same ID.
func (m *RelayedMessage) ID() ids.ID {
	return ids.ID(ComputeHash256Array(m.Bytes()))
}

// FormatMessageID renders a message ID as 0x-prefixed hex
func FormatMessageID(id ids.ID) string {
	return common.Hash(id).Hex()
}

// ParseMessageID accepts either 0x-prefixed/bare hex or cb58.
func ParseMessageID(s string) (ids.ID, error) {
	s = strings.TrimSpace(s)
	hexStr := SanitizeHexString(s)
	if len(hexStr) == 2*len(ids.ID{}) {
		b, err := hex.DecodeString(hexStr)
		if err == nil {
			return ids.ID(b), nil
		}
	}
	id, err := ids.FromString(s)
	if err != nil {
		return ids.Empty, fmt.Errorf("invalid message ID %q: %w", s, err)
	}
	return id, nil
}
