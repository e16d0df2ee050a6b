// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package receiver

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/geth/common/hexutil"
)

// ParseCallerKey parses a hex-encoded compressed BLS public key. An empty
// string yields no key.
func ParseCallerKey(s string) (hexutil.Bytes, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(SanitizeHexString(s))
	if err != nil {
		return nil, fmt.Errorf("%w: caller key is not hex: %v", ErrConfig, err)
	}
	if len(raw) != bls.PublicKeyLen {
		return nil, fmt.Errorf("%w: caller key must be %d bytes, got %d", ErrConfig, bls.PublicKeyLen, len(raw))
	}
	if _, err := bls.PublicKeyFromCompressedBytes(raw); err != nil {
		return nil, fmt.Errorf("%w: invalid caller key: %v", ErrConfig, err)
	}
	return raw, nil
}

// VerifyCaller reports whether sig signs msg under any of keys.
func VerifyCaller(keys [][]byte, msg, sig []byte) bool {
	s, err := bls.SignatureFromBytes(sig)
	if err != nil {
		return false
	}
	for _, key := range keys {
		pk, err := bls.PublicKeyFromCompressedBytes(key)
		if err != nil {
			continue
		}
		if bls.Verify(pk, s, msg) {
			return true
		}
	}
	return false
}
