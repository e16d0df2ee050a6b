// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package receiver

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/ids"
)

// GatewayConfig is the process-wide receiver configuration. The keys are
// compressed BLS public keys that callers claiming the gateway or admin
// identity must sign their requests with.
type GatewayConfig struct {
	TrustedGateway Identity      `json:"trusted_gateway"`
	GatewayKey     hexutil.Bytes `json:"gateway_key,omitempty"`
	Admin          Identity      `json:"admin"`
	AdminKey       hexutil.Bytes `json:"admin_key,omitempty"`
}

// CallerKeys returns the keys registered for id. An identity that is both
// gateway and admin has two.
func (c GatewayConfig) CallerKeys(id Identity) [][]byte {
	var keys [][]byte
	if id.IsEmpty() {
		return nil
	}
	if id == c.TrustedGateway && len(c.GatewayKey) > 0 {
		keys = append(keys, c.GatewayKey)
	}
	if id == c.Admin && len(c.AdminKey) > 0 {
		keys = append(keys, c.AdminKey)
	}
	return keys
}

// RemoteSender is an allow-listed (chain, address) origin on the remote side.
type RemoteSender struct {
	SourceChain   string `json:"source_chain"`
	SourceAddress string `json:"source_address"`
}

// Denomination maps a remote token identifier to a local denom.
type Denomination struct {
	TokenID      []byte
	Denom        string
	Transferable bool
}

// TransferInstruction is a decoded, validated transfer request.
type TransferInstruction struct {
	Recipient Identity
	Amount    *uint256.Int
	Denom     string
	Nonce     uint64
}

// Transfer is the balance-transfer instruction handed to the ledger.
type Transfer struct {
	MessageID ids.ID
	To        Identity
	Denom     string
	Amount    *uint256.Int
}

// SettlementRecord is the permanent replay-set entry for a settled message.
type SettlementRecord struct {
	MessageID     ids.ID
	SourceChain   string
	SourceAddress string
	Recipient     Identity
	Amount        *uint256.Int
	Denom         string
	Sequence      uint64
	SettledAt     time.Time
}

// Attribute is a key/value pair emitted for off-chain auditing.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SettlementReceipt is returned for every successful settlement.
type SettlementReceipt struct {
	MessageID     ids.ID
	SourceChain   string
	SourceAddress string
	Recipient     Identity
	Amount        *uint256.Int
	Denom         string
	Sequence      uint64
	Attributes    []Attribute
}

// Attribute returns the value of the attribute with the given key.
func (r *SettlementReceipt) Attribute(key string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}
