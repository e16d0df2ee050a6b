// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package receiver

import (
	"github.com/luxfi/geth/rlp"
)

// CodecImpl is used for the canonical encoding of relayed messages
type CodecImpl struct{}

// Codec is the default codec instance
var Codec = &CodecImpl{}

// Marshal serializes the value. The encoding has a single version, so
// nothing but the value enters the message-id preimage.
func (c *CodecImpl) Marshal(v interface{}) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}
