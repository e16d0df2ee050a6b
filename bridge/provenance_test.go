// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"testing"

	"github.com/luxfi/math/set"
	"github.com/stretchr/testify/require"
	"github.com/usdrise/receiver"
)

func TestAuthorize(t *testing.T) {
	cfg := receiver.GatewayConfig{TrustedGateway: "neutron1gw", Admin: "neutron1admin"}
	allowed := set.Of(receiver.RemoteSender{SourceChain: "sui", SourceAddress: "0xabc"})

	tests := []struct {
		name          string
		caller        receiver.Identity
		sourceChain   string
		sourceAddress string
		cfg           receiver.GatewayConfig
		allowed       set.Set[receiver.RemoteSender]
		err           error
	}{
		{
			name:          "trusted gateway, no allow-list",
			caller:        "neutron1gw",
			sourceChain:   "anything",
			sourceAddress: "0x1",
			cfg:           cfg,
		},
		{
			name:          "trusted gateway, allowed sender",
			caller:        "neutron1gw",
			sourceChain:   "sui",
			sourceAddress: "0xabc",
			cfg:           cfg,
			allowed:       allowed,
		},
		{
			name:          "other caller",
			caller:        "neutron1other",
			sourceChain:   "sui",
			sourceAddress: "0xabc",
			cfg:           cfg,
			allowed:       allowed,
			err:           receiver.ErrUnauthorized,
		},
		{
			name:          "admin is not the gateway",
			caller:        "neutron1admin",
			sourceChain:   "sui",
			sourceAddress: "0xabc",
			cfg:           cfg,
			err:           receiver.ErrUnauthorized,
		},
		{
			name:          "unset gateway rejects empty caller",
			caller:        "",
			sourceChain:   "sui",
			sourceAddress: "0xabc",
			err:           receiver.ErrUnauthorized,
		},
		{
			name:          "sender not allowed",
			caller:        "neutron1gw",
			sourceChain:   "sui",
			sourceAddress: "0xdef",
			cfg:           cfg,
			allowed:       allowed,
			err:           receiver.ErrUntrustedSource,
		},
		{
			name:          "chain compared exactly",
			caller:        "neutron1gw",
			sourceChain:   "Sui",
			sourceAddress: "0xabc",
			cfg:           cfg,
			allowed:       allowed,
			err:           receiver.ErrUntrustedSource,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.caller, tt.sourceChain, tt.sourceAddress, tt.cfg, tt.allowed)
			if tt.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.err)
		})
	}
}
