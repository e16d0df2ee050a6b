// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package receiver

import (
	"crypto/sha256"
	"strings"
)

// KiB is 1024 bytes
const KiB = 1024

// ComputeHash256 computes SHA256 hash
func ComputeHash256(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// ComputeHash256Array computes SHA256 hash as a fixed size array
func ComputeHash256Array(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// SanitizeHexString strips an optional 0x prefix
func SanitizeHexString(hex string) string {
	hex = strings.TrimSpace(hex)
	if strings.HasPrefix(hex, "0x") || strings.HasPrefix(hex, "0X") {
		return hex[2:]
	}
	return hex
}
