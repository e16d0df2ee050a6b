// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"fmt"

	"github.com/usdrise/receiver"
	"github.com/usdrise/receiver/payload"
)

// handler turns one payload variant into the transfer it authorizes
type handler func(r *Receiver, p payload.Payload) (receiver.TransferInstruction, error)

var handlers = map[payload.Type]handler{
	payload.InterchainTransferType: handleInterchainTransfer,
}

func handleInterchainTransfer(r *Receiver, p payload.Payload) (receiver.TransferInstruction, error) {
	transfer, ok := p.(*payload.InterchainTransfer)
	if !ok {
		return receiver.TransferInstruction{}, fmt.Errorf("%w: %T", payload.ErrInvalidPayload, p)
	}
	return r.decoder.Resolve(transfer)
}

// decode parses raw and dispatches it to the handler of its variant
func (r *Receiver) decode(raw []byte) (receiver.TransferInstruction, error) {
	p, err := payload.Parse(raw)
	if err != nil {
		return receiver.TransferInstruction{}, err
	}
	handle, ok := handlers[p.Type()]
	if !ok {
		return receiver.TransferInstruction{}, fmt.Errorf("%w: %s", payload.ErrUnknownType, p.Type())
	}
	return handle(r, p)
}
