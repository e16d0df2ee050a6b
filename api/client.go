// Copyright (C) 2024, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/usdrise/receiver"
	"github.com/usdrise/receiver/utils"
	"go.uber.org/zap"
)

const DefaultRetryTimeout = 10 * time.Second

// APIError is a non-2xx response of the receiver API
type APIError struct {
	StatusCode int
	Response   ErrorResponse
}

func (e *APIError) Error() string {
	if e.Response.Kind != "" {
		return fmt.Sprintf("receiver API %d (%s): %s", e.StatusCode, e.Response.Kind, e.Response.Error)
	}
	return fmt.Sprintf("receiver API %d: %s", e.StatusCode, e.Response.Error)
}

// Unwrap lets errors.Is match the receiver error carried in the response.
func (e *APIError) Unwrap() error {
	return receiver.ErrorForCode(e.Response.Code)
}

// Client talks to a receiverd instance. Transport errors and 5xx responses
// are retried until the retry timeout; 4xx responses are returned at once.
// Requests that act as the gateway or the admin need WithSigner.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	logger       *zap.Logger
	retryTimeout time.Duration
	signer       *Signer
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) { client.httpClient = c }
}

func WithRetryTimeout(d time.Duration) ClientOption {
	return func(client *Client) { client.retryTimeout = d }
}

// WithSigner signs every request with s. Each retry is signed afresh.
func WithSigner(s *Signer) ClientOption {
	return func(client *Client) { client.signer = s }
}

func NewClient(baseURL string, logger *zap.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   http.DefaultClient,
		logger:       logger,
		retryTimeout: DefaultRetryTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ReceiveMessage(
	ctx context.Context,
	sender receiver.Identity,
	msg *receiver.RelayedMessage,
) (*ReceiveMessageResponse, error) {
	req := ReceiveMessageRequest{
		Sender:        sender.String(),
		SourceChain:   msg.SourceChain,
		SourceAddress: msg.SourceAddress,
		Payload:       "0x" + hex.EncodeToString(msg.Payload),
	}
	var resp ReceiveMessageResponse
	if err := c.do(ctx, http.MethodPost, ReceiveMessagePath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetConfig(ctx context.Context) (*receiver.GatewayConfig, error) {
	var cfg receiver.GatewayConfig
	if err := c.do(ctx, http.MethodGet, ConfigPath, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Client) AllowedSenders(ctx context.Context) ([]receiver.RemoteSender, error) {
	var senders []receiver.RemoteSender
	if err := c.do(ctx, http.MethodGet, AllowedSendersPath, nil, &senders); err != nil {
		return nil, err
	}
	return senders, nil
}

func (c *Client) Settlement(ctx context.Context, id ids.ID) (*SettlementResponse, error) {
	var resp SettlementResponse
	path := SettlementsPath + "/" + url.PathEscape(receiver.FormatMessageID(id))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Transfers(ctx context.Context) ([]TransferResponse, error) {
	var resp []TransferResponse
	if err := c.do(ctx, http.MethodGet, TransfersPath, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Reconfigure(
	ctx context.Context,
	sender receiver.Identity,
	gateway string,
	gatewayKey string,
) (*receiver.GatewayConfig, error) {
	var cfg receiver.GatewayConfig
	req := ReconfigureRequest{Sender: sender.String(), TrustedGateway: gateway, GatewayKey: gatewayKey}
	if err := c.do(ctx, http.MethodPost, ReconfigurePath, req, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Client) UpdateAdmin(
	ctx context.Context,
	sender receiver.Identity,
	admin string,
	adminKey string,
) (*receiver.GatewayConfig, error) {
	var cfg receiver.GatewayConfig
	req := UpdateAdminRequest{Sender: sender.String(), Admin: admin, AdminKey: adminKey}
	if err := c.do(ctx, http.MethodPost, UpdateAdminPath, req, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Client) AllowSender(ctx context.Context, sender receiver.Identity, s receiver.RemoteSender) error {
	req := RemoteSenderRequest{Sender: sender.String(), SourceChain: s.SourceChain, SourceAddress: s.SourceAddress}
	return c.do(ctx, http.MethodPost, AllowSenderPath, req, nil)
}

func (c *Client) RevokeSender(ctx context.Context, sender receiver.Identity, s receiver.RemoteSender) error {
	req := RemoteSenderRequest{Sender: sender.String(), SourceChain: s.SourceChain, SourceAddress: s.SourceAddress}
	return c.do(ctx, http.MethodPost, RevokeSenderPath, req, nil)
}

func (c *Client) EscrowBalance(ctx context.Context, denom string) (*EscrowResponse, error) {
	var resp EscrowResponse
	path := EscrowPath + "?" + url.Values{"denom": {denom}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) FundEscrow(
	ctx context.Context,
	sender receiver.Identity,
	denom string,
	amount *uint256.Int,
) (*EscrowResponse, error) {
	var resp EscrowResponse
	req := FundEscrowRequest{Sender: sender.String(), Denom: denom, Amount: amount.Dec()}
	if err := c.do(ctx, http.MethodPost, FundEscrowPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.signer != nil {
			if err := c.signer.sign(req, body, time.Now()); err != nil {
				return backoff.Permanent(err)
			}
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusBadRequest {
			apiErr := &APIError{StatusCode: resp.StatusCode}
			if err := json.Unmarshal(respBody, &apiErr.Response); err != nil {
				apiErr.Response.Error = strings.TrimSpace(string(respBody))
			}
			if resp.StatusCode >= http.StatusInternalServerError {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		if out == nil || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to unmarshal response: %w", err))
		}
		return nil
	}

	err := utils.WithRetriesTimeout(c.logger, operation, c.retryTimeout)
	if err != nil {
		c.logger.Debug(
			"Receiver API request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
	}
	return err
}
