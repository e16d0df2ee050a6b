// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"fmt"

	"github.com/luxfi/math/set"
	"github.com/usdrise/receiver"
)

// Authorize checks that a relayed message was delivered by the trusted gateway
// and, when the allow-list is non-empty, that it originates from an allowed
// remote sender. Identities are compared exactly.
func Authorize(
	caller receiver.Identity,
	sourceChain string,
	sourceAddress string,
	cfg receiver.GatewayConfig,
	allowed set.Set[receiver.RemoteSender],
) error {
	if cfg.TrustedGateway.IsEmpty() || caller != cfg.TrustedGateway {
		return fmt.Errorf("%w: caller %q is not the trusted gateway", receiver.ErrUnauthorized, caller)
	}
	if allowed.Len() == 0 {
		return nil
	}
	sender := receiver.RemoteSender{
		SourceChain:   sourceChain,
		SourceAddress: sourceAddress,
	}
	if !allowed.Contains(sender) {
		return fmt.Errorf("%w: %s/%s", receiver.ErrUntrustedSource, sourceChain, sourceAddress)
	}
	return nil
}
