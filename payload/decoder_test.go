// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package payload

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/usdrise/receiver"
)

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder(receiver.DefaultBech32Prefix, []receiver.Denomination{
		{TokenID: []byte("uusdrise"), Denom: "uusdrise", Transferable: true},
		{TokenID: []byte{0xde, 0xad}, Denom: "ibc/DEAD", Transferable: true},
		{TokenID: []byte("ulocked"), Denom: "ulocked", Transferable: false},
	})
	require.NoError(t, err)
	return d
}

func TestDecode(t *testing.T) {
	require := require.New(t)
	d := newTestDecoder(t)

	raw := newTestTransfer(t, uint256.NewInt(1_000_000), "uusdrise").Bytes()
	instr, err := d.Decode(raw)
	require.NoError(err)

	expected, err := receiver.IdentityFromBytes(receiver.DefaultBech32Prefix, testRecipient[:])
	require.NoError(err)
	require.Equal(expected, instr.Recipient)
	require.Equal(uint64(1_000_000), instr.Amount.Uint64())
	require.Equal("uusdrise", instr.Denom)
	require.Equal(uint64(7), instr.Nonce)

	// Decoding is a pure function of its input.
	again, err := d.Decode(raw)
	require.NoError(err)
	require.Equal(instr, again)

	p, err := NewInterchainTransfer(1, testRecipient, uint256.NewInt(5), []byte{0xde, 0xad})
	require.NoError(err)
	instr, err = d.Decode(p.Bytes())
	require.NoError(err)
	require.Equal("ibc/DEAD", instr.Denom)
}

func TestDecodeRegistryRejections(t *testing.T) {
	d := newTestDecoder(t)

	tests := []struct {
		name  string
		token string
		err   error
	}{
		{"unknown token", "uatom", ErrUnknownToken},
		{"token prefix of known token", "uusdris", ErrUnknownToken},
		{"not transferable", "ulocked", ErrNotTransferable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(newTestTransfer(t, uint256.NewInt(1), tt.token).Bytes())
			require.ErrorIs(t, err, tt.err)
			require.ErrorIs(t, err, receiver.ErrDecode)
		})
	}

	_, err := d.Decode(nil)
	require.ErrorIs(t, err, ErrTooShort)
}

func TestNewDecoderValidation(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		denoms []receiver.Denomination
	}{
		{"empty prefix", "", nil},
		{"empty token id", "neutron", []receiver.Denomination{{Denom: "uusdrise"}}},
		{"long token id", "neutron", []receiver.Denomination{{TokenID: bytes.Repeat([]byte{1}, MaxTokenIDLen+1), Denom: "uusdrise"}}},
		{"invalid denom", "neutron", []receiver.Denomination{{TokenID: []byte("x"), Denom: "1bad"}}},
		{"short denom", "neutron", []receiver.Denomination{{TokenID: []byte("x"), Denom: "ux"}}},
		{"duplicate token id", "neutron", []receiver.Denomination{
			{TokenID: []byte("x"), Denom: "uone"},
			{TokenID: []byte("x"), Denom: "utwo"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(tt.prefix, tt.denoms)
			require.Error(t, err)
		})
	}
}

func TestTokenIDFormatting(t *testing.T) {
	require := require.New(t)

	b, err := ParseTokenID("uusdrise")
	require.NoError(err)
	require.Equal([]byte("uusdrise"), b)
	require.Equal("uusdrise", FormatTokenID(b))

	b, err = ParseTokenID("0xdead")
	require.NoError(err)
	require.Equal([]byte{0xde, 0xad}, b)
	require.Equal("0xdead", FormatTokenID(b))

	_, err = ParseTokenID("0xzz")
	require.Error(err)
}
