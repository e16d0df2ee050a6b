// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package receiver

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/luxfi/geth/rlp"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func TestRelayedMessage(t *testing.T) {
	payload := []byte("test payload")

	msg, err := NewRelayedMessage("sui", "0xabc", payload)
	require.NoError(t, err)
	require.NotNil(t, msg)

	require.Equal(t, "sui", msg.SourceChain)
	require.Equal(t, "0xabc", msg.SourceAddress)
	require.Equal(t, payload, msg.Payload)

	b := msg.Bytes()
	require.NotEmpty(t, b)

	// the preimage is the RLP list of the three envelope fields
	want, err := rlp.EncodeToBytes([]interface{}{"sui", "0xabc", payload})
	require.NoError(t, err)
	require.Equal(t, want, b)
	require.Equal(t, ids.ID(sha256.Sum256(want)), msg.ID())
}

func TestInvalidRelayedMessage(t *testing.T) {
	tests := []struct {
		name          string
		sourceChain   string
		sourceAddress string
		payload       []byte
	}{
		{
			name:          "empty source chain",
			sourceAddress: "0xabc",
			payload:       []byte{1},
		},
		{
			name:        "empty source address",
			sourceChain: "sui",
			payload:     []byte{1},
		},
		{
			name:          "oversized",
			sourceChain:   "sui",
			sourceAddress: "0xabc",
			payload:       bytes.Repeat([]byte{1}, MaxMessageSize),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRelayedMessage(tt.sourceChain, tt.sourceAddress, tt.payload)
			require.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}

func TestMessageIDDeterminism(t *testing.T) {
	require := require.New(t)

	a := &RelayedMessage{SourceChain: "sui", SourceAddress: "0xabc", Payload: []byte{1, 2, 3}}
	b := &RelayedMessage{SourceChain: "sui", SourceAddress: "0xabc", Payload: []byte{1, 2, 3}}
	require.Equal(a.ID(), b.ID())

	// Field boundaries are part of the preimage.
	c := &RelayedMessage{SourceChain: "su", SourceAddress: "i0xabc", Payload: []byte{1, 2, 3}}
	require.NotEqual(a.ID(), c.ID())

	d := &RelayedMessage{SourceChain: "sui", SourceAddress: "0xabc", Payload: []byte{1, 2, 4}}
	require.NotEqual(a.ID(), d.ID())
}

func TestMessageIDFormatting(t *testing.T) {
	require := require.New(t)

	msg := &RelayedMessage{SourceChain: "sui", SourceAddress: "0xabc", Payload: []byte{9}}
	id := msg.ID()

	formatted := FormatMessageID(id)
	require.True(strings.HasPrefix(formatted, "0x"))
	require.Len(formatted, 66)

	parsed, err := ParseMessageID(formatted)
	require.NoError(err)
	require.Equal(id, parsed)

	parsed, err = ParseMessageID(strings.TrimPrefix(formatted, "0x"))
	require.NoError(err)
	require.Equal(id, parsed)

	parsed, err = ParseMessageID(id.String())
	require.NoError(err)
	require.Equal(id, parsed)

	_, err = ParseMessageID("not-an-id")
	require.Error(err)
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		code int32
	}{
		{ErrUnauthorized, CodeUnauthorized},
		{fmt.Errorf("%w: caller x", ErrUntrustedSource), CodeUntrustedSource},
		{fmt.Errorf("outer: %w", fmt.Errorf("%w: short", ErrDecode)), CodeDecode},
		{ErrAlreadyInitialized, CodeConfig},
		{errors.New("boom"), CodeUnknown},
		{nil, CodeUnknown},
	}
	for _, tt := range tests {
		require.Equal(t, tt.code, CodeOf(tt.err))
	}
}

func TestErrorForCode(t *testing.T) {
	for code := CodeUnauthorized; code <= CodeNotInitialized; code++ {
		err := ErrorForCode(code)
		require.Error(t, err)
		require.Equal(t, code, CodeOf(err))
		require.NotEqual(t, "unknown", CodeName(code))
	}
	require.NoError(t, ErrorForCode(CodeUnknown))
	require.NoError(t, ErrorForCode(42))
	require.Equal(t, "unknown", CodeName(42))
}
