// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package receiver

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	// DefaultBech32Prefix is the account prefix of the settlement chain
	DefaultBech32Prefix = "neutron"

	// AccountAddressLen is the length of a regular account address
	AccountAddressLen = 20

	// ContractAddressLen is the length of a contract (or module) address
	ContractAddressLen = 32
)

// Identity is a canonical, lower-case bech32 address on the local chain.
type Identity string

// String implements fmt.Stringer
func (i Identity) String() string {
	return string(i)
}

// IsEmpty reports whether the identity is unset.
func (i Identity) IsEmpty() bool {
	return i == ""
}

// ParseIdentity validates s as a bech32 address with the given prefix and
// returns its canonical form. Both account and contract lengths are accepted.
func ParseIdentity(prefix, s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty address", ErrConfig)
	}
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: invalid bech32 address %q: %v", ErrConfig, s, err)
	}
	if hrp != prefix {
		return "", fmt.Errorf("%w: address %q has prefix %q, expected %q", ErrConfig, s, hrp, prefix)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("%w: invalid address data %q: %v", ErrConfig, s, err)
	}
	if len(raw) != AccountAddressLen && len(raw) != ContractAddressLen {
		return "", fmt.Errorf("%w: address %q has length %d", ErrConfig, s, len(raw))
	}
	return IdentityFromBytes(prefix, raw)
}

// IdentityFromBytes bech32-encodes raw address bytes with the given prefix.
func IdentityFromBytes(prefix string, raw []byte) (Identity, error) {
	conv, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	s, err := bech32.Encode(prefix, conv)
	if err != nil {
		return "", err
	}
	return Identity(s), nil
}

// Bytes returns the raw address bytes of i.
func (i Identity) Bytes() ([]byte, error) {
	_, data, err := bech32.Decode(string(i))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid bech32 address %q: %v", ErrConfig, i, err)
	}
	return bech32.ConvertBits(data, 5, 8, false)
}
