// Copyright (C) 2024, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/luxfi/crypto/bls"
	"github.com/usdrise/receiver"
	"github.com/usdrise/receiver/bridge"
	"github.com/usdrise/receiver/cache"
)

const (
	// SignatureHeader carries the hex-encoded BLS signature of the request
	SignatureHeader = "X-Receiver-Signature"
	// TimestampHeader carries the signing time in unix milliseconds
	TimestampHeader = "X-Receiver-Timestamp"

	// MaxClockSkew bounds how far a request timestamp may be from the
	// server clock
	MaxClockSkew = 5 * time.Minute

	seenSignaturesSize = 16384
)

// SigningMessage is the preimage a caller signs. It binds the signature to
// one method, path, time and body.
func SigningMessage(method, path string, timestamp int64, body []byte) []byte {
	return fmt.Appendf(nil, "%s\n%s\n%d\n%x", method, path, timestamp, receiver.ComputeHash256(body))
}

// Signer signs API requests on behalf of the gateway or the admin. The
// timestamps it signs strictly increase, so two identical requests never
// carry the same signature.
type Signer struct {
	sk *bls.SecretKey

	mu            sync.Mutex
	lastTimestamp int64
}

func NewSigner() (*Signer, error) {
	sk, err := bls.NewSecretKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &Signer{sk: sk}, nil
}

// ParseSigner loads a hex-encoded BLS secret key
func ParseSigner(s string) (*Signer, error) {
	raw, err := hex.DecodeString(receiver.SanitizeHexString(s))
	if err != nil {
		return nil, fmt.Errorf("secret key is not hex: %w", err)
	}
	sk, err := bls.SecretKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	return &Signer{sk: sk}, nil
}

func (s *Signer) SecretKey() []byte {
	return bls.SecretKeyToBytes(s.sk)
}

// PublicKey returns the compressed public key to register in the gateway
// config.
func (s *Signer) PublicKey() []byte {
	return bls.PublicKeyToCompressedBytes(s.sk.PublicKey())
}

func (s *Signer) timestamp(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := now.UnixMilli()
	if ts <= s.lastTimestamp {
		ts = s.lastTimestamp + 1
	}
	s.lastTimestamp = ts
	return ts
}

func (s *Signer) sign(req *http.Request, body []byte, now time.Time) error {
	ts := s.timestamp(now)
	sig, err := s.sk.Sign(SigningMessage(req.Method, req.URL.Path, ts, body))
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	req.Header.Set(TimestampHeader, strconv.FormatInt(ts, 10))
	req.Header.Set(SignatureHeader, hex.EncodeToString(bls.SignatureToBytes(sig)))
	return nil
}

// authenticator checks that a request was signed with a key registered for
// the identity it claims.
type authenticator struct {
	receiver *bridge.Receiver
	seen     *cache.LRUCache[string, struct{}]
	now      func() time.Time
}

func newAuthenticator(r *bridge.Receiver) *authenticator {
	return &authenticator{
		receiver: r,
		seen:     cache.NewLRUCache[string, struct{}](seenSignaturesSize),
		now:      time.Now,
	}
}

func (a *authenticator) authenticate(req *http.Request, body []byte, caller receiver.Identity) error {
	sigHex := req.Header.Get(SignatureHeader)
	if sigHex == "" {
		return fmt.Errorf("%w: missing %s header", receiver.ErrUnauthorized, SignatureHeader)
	}
	sig, err := hex.DecodeString(receiver.SanitizeHexString(sigHex))
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", receiver.ErrUnauthorized)
	}
	ts, err := strconv.ParseInt(req.Header.Get(TimestampHeader), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: missing or invalid %s header", receiver.ErrUnauthorized, TimestampHeader)
	}
	skew := a.now().Sub(time.UnixMilli(ts))
	if skew > MaxClockSkew || skew < -MaxClockSkew {
		return fmt.Errorf("%w: request timestamp is %s off", receiver.ErrUnauthorized, skew.Round(time.Second))
	}

	cfg, err := a.receiver.GetConfig(req.Context())
	if err != nil {
		return err
	}
	keys := cfg.CallerKeys(caller)
	if len(keys) == 0 {
		return fmt.Errorf("%w: no key registered for %q", receiver.ErrUnauthorized, caller)
	}
	if !receiver.VerifyCaller(keys, SigningMessage(req.Method, req.URL.Path, ts, body), sig) {
		return fmt.Errorf("%w: bad signature for %q", receiver.ErrUnauthorized, caller)
	}
	// Only verified signatures enter the replay cache.
	if a.seen.ContainsOrAdd(hex.EncodeToString(sig), struct{}{}) {
		return fmt.Errorf("%w: replayed signature", receiver.ErrUnauthorized)
	}
	return nil
}
