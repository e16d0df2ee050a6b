// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package receiver

import (
	"errors"
	"fmt"
)

// Error is a settlement error with a stable, machine-matchable code.
type Error struct {
	Code    int32
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("receiver error %d: %s", e.Code, e.Message)
}

// Error codes. Values are part of the API surface and must not be renumbered.
const (
	CodeUnknown int32 = iota
	CodeUnauthorized
	CodeUntrustedSource
	CodeDecode
	CodeAlreadySettled
	CodeTransferFailed
	CodeConfig
	CodeNotInitialized
)

var (
	// ErrUnauthorized is returned when the caller is not the trusted gateway,
	// or not the admin for administrative operations.
	ErrUnauthorized = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	// ErrUntrustedSource is returned when the remote sender is not allow-listed.
	ErrUntrustedSource = &Error{Code: CodeUntrustedSource, Message: "untrusted source"}
	// ErrDecode is returned for malformed, unsupported or overflowing payloads.
	ErrDecode = &Error{Code: CodeDecode, Message: "decode error"}
	// ErrAlreadySettled is returned when a message has been settled before.
	ErrAlreadySettled = &Error{Code: CodeAlreadySettled, Message: "already settled"}
	// ErrTransferFailed is returned when the ledger rejects the transfer.
	ErrTransferFailed = &Error{Code: CodeTransferFailed, Message: "transfer failed"}
	// ErrConfig is returned for invalid identities or repeated initialization.
	ErrConfig = &Error{Code: CodeConfig, Message: "invalid configuration"}
	// ErrNotInitialized is returned when no gateway config has been stored yet.
	ErrNotInitialized = &Error{Code: CodeNotInitialized, Message: "not initialized"}

	ErrAlreadyInitialized = fmt.Errorf("%w: already initialized", ErrConfig)
)

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) int32 {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// CodeName returns a short, label-safe name for code.
func CodeName(code int32) string {
	switch code {
	case CodeUnauthorized:
		return "unauthorized"
	case CodeUntrustedSource:
		return "untrusted_source"
	case CodeDecode:
		return "decode"
	case CodeAlreadySettled:
		return "already_settled"
	case CodeTransferFailed:
		return "transfer_failed"
	case CodeConfig:
		return "config"
	case CodeNotInitialized:
		return "not_initialized"
	default:
		return "unknown"
	}
}

// ErrorForCode returns the sentinel error with the given code, or nil.
func ErrorForCode(code int32) error {
	for _, err := range []*Error{
		ErrUnauthorized,
		ErrUntrustedSource,
		ErrDecode,
		ErrAlreadySettled,
		ErrTransferFailed,
		ErrConfig,
		ErrNotInitialized,
	} {
		if err.Code == code {
			return err
		}
	}
	return nil
}
