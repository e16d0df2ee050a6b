// Copyright (C) 2024, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/usdrise/receiver"
	"github.com/usdrise/receiver/backend"
	"github.com/usdrise/receiver/bridge"
	"go.uber.org/zap"
)

const (
	ReceiveMessagePath = "/v1/receive-message"
	ConfigPath         = "/v1/config"
	AllowedSendersPath = "/v1/allowed-senders"
	SettlementsPath    = "/v1/settlements"
	TransfersPath      = "/v1/transfers"
	EscrowPath         = "/v1/escrow"
	ReconfigurePath    = "/v1/admin/reconfigure"
	UpdateAdminPath    = "/v1/admin/update-admin"
	AllowSenderPath    = "/v1/admin/allow-sender"
	RevokeSenderPath   = "/v1/admin/revoke-sender"
	FundEscrowPath     = "/v1/admin/fund-escrow"

	// hex doubles the payload size
	maxRequestBodySize = 4 * receiver.MaxMessageSize
)

// Defines a request to settle a relayed message. Sender is the identity of
// the caller, which must be the trusted gateway and must sign the request
// with the gateway key.
type ReceiveMessageRequest struct {
	Sender        string `json:"sender"`
	SourceChain   string `json:"source_chain"`
	SourceAddress string `json:"source_address"`
	// hex-encoded payload, optionally prefixed with "0x".
	Payload string `json:"payload"`
}

type ReceiveMessageResponse struct {
	MessageID     string               `json:"message_id"`
	SourceChain   string               `json:"source_chain"`
	SourceAddress string               `json:"source_address"`
	Recipient     string               `json:"recipient"`
	Amount        string               `json:"amount"`
	Denom         string               `json:"denom"`
	Sequence      uint64               `json:"sequence"`
	Attributes    []receiver.Attribute `json:"attributes"`
}

type SettlementResponse struct {
	MessageID     string    `json:"message_id"`
	SourceChain   string    `json:"source_chain"`
	SourceAddress string    `json:"source_address"`
	Recipient     string    `json:"recipient"`
	Amount        string    `json:"amount"`
	Denom         string    `json:"denom"`
	Sequence      uint64    `json:"sequence"`
	SettledAt     time.Time `json:"settled_at"`
}

type TransferResponse struct {
	MessageID string `json:"message_id"`
	To        string `json:"to"`
	Denom     string `json:"denom"`
	Amount    string `json:"amount"`
}

type ReconfigureRequest struct {
	Sender         string `json:"sender"`
	TrustedGateway string `json:"trusted_gateway"`
	// hex-encoded compressed BLS public key of the new gateway
	GatewayKey string `json:"gateway_key,omitempty"`
}

type UpdateAdminRequest struct {
	Sender   string `json:"sender"`
	Admin    string `json:"admin"`
	AdminKey string `json:"admin_key,omitempty"`
}

type RemoteSenderRequest struct {
	Sender        string `json:"sender"`
	SourceChain   string `json:"source_chain"`
	SourceAddress string `json:"source_address"`
}

type FundEscrowRequest struct {
	Sender string `json:"sender"`
	Denom  string `json:"denom"`
	// decimal amount in the smallest unit of denom
	Amount string `json:"amount"`
}

type EscrowResponse struct {
	Denom   string `json:"denom"`
	Balance string `json:"balance"`
}

// signedRequest is a request body naming the identity that signed it
type signedRequest interface {
	caller() receiver.Identity
}

func (r ReceiveMessageRequest) caller() receiver.Identity { return receiver.Identity(r.Sender) }
func (r ReconfigureRequest) caller() receiver.Identity    { return receiver.Identity(r.Sender) }
func (r UpdateAdminRequest) caller() receiver.Identity    { return receiver.Identity(r.Sender) }
func (r RemoteSenderRequest) caller() receiver.Identity   { return receiver.Identity(r.Sender) }
func (r FundEscrowRequest) caller() receiver.Identity     { return receiver.Identity(r.Sender) }

type ErrorResponse struct {
	Error string `json:"error"`
	// Code is the receiver error code, zero for errors without one
	Code int32  `json:"code,omitempty"`
	Kind string `json:"kind,omitempty"`
}

// NewRouter returns the HTTP API of r. Every POST must be signed by the key
// registered for the sender it names.
func NewRouter(logger *zap.Logger, r *bridge.Receiver) *chi.Mux {
	return newRouter(logger, r, newAuthenticator(r))
}

func newRouter(logger *zap.Logger, r *bridge.Receiver, auth *authenticator) *chi.Mux {
	router := chi.NewRouter()
	router.Use(limitRequestBody)

	router.Post(ReceiveMessagePath, receiveMessageHandler(logger, r, auth))
	router.Get(ConfigPath, configHandler(logger, r))
	router.Get(AllowedSendersPath, allowedSendersHandler(logger, r))
	router.Get(SettlementsPath+"/{message_id}", settlementHandler(logger, r))
	router.Get(TransfersPath, transfersHandler(logger, r))
	router.Get(EscrowPath, escrowHandler(logger, r))
	router.Post(ReconfigurePath, reconfigureHandler(logger, r, auth))
	router.Post(UpdateAdminPath, updateAdminHandler(logger, r, auth))
	router.Post(AllowSenderPath, remoteSenderHandler(logger, auth, r.AllowSender))
	router.Post(RevokeSenderPath, remoteSenderHandler(logger, auth, r.RevokeSender))
	router.Post(FundEscrowPath, fundEscrowHandler(logger, r, auth))
	return router
}

func limitRequestBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		next.ServeHTTP(w, r)
	})
}

// StatusCode maps a receiver error to its HTTP status
func StatusCode(err error) int {
	switch receiver.CodeOf(err) {
	case receiver.CodeUnauthorized, receiver.CodeUntrustedSource:
		return http.StatusForbidden
	case receiver.CodeDecode, receiver.CodeConfig:
		return http.StatusBadRequest
	case receiver.CodeAlreadySettled:
		return http.StatusConflict
	case receiver.CodeTransferFailed:
		return http.StatusUnprocessableEntity
	case receiver.CodeNotInitialized:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, backend.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSONError(
	logger *zap.Logger,
	w http.ResponseWriter,
	httpStatusCode int,
	errorMsg string,
	code int32,
) {
	errResp := ErrorResponse{
		Error: errorMsg,
		Code:  code,
	}
	if code != receiver.CodeUnknown {
		errResp.Kind = receiver.CodeName(code)
	}
	resp, err := json.Marshal(errResp)
	if err != nil {
		msg := "Error marshalling JSON error response"
		logger.Error(msg, zap.Error(err))
		resp = []byte(msg)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)

	_, err = w.Write(resp)
	if err != nil {
		logger.Error("Error writing error response", zap.Error(err))
	}
}

func writeReceiverError(logger *zap.Logger, w http.ResponseWriter, err error) {
	status := StatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("Internal error", zap.Error(err))
		msg = "internal error"
	}
	writeJSONError(logger, w, status, msg, receiver.CodeOf(err))
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, v any) {
	resp, err := json.Marshal(v)
	if err != nil {
		msg := "Failed to marshal response"
		logger.Error(msg, zap.Error(err))
		writeJSONError(logger, w, http.StatusInternalServerError, msg, receiver.CodeUnknown)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(resp)
	if err != nil {
		logger.Error("Error writing response", zap.Error(err))
	}
}

// decodeSignedRequest decodes the body into v and authenticates the sender
// it names. It writes the error response and returns false on failure.
func decodeSignedRequest(
	logger *zap.Logger,
	w http.ResponseWriter,
	r *http.Request,
	auth *authenticator,
	v signedRequest,
) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		msg := "Could not read request body"
		logger.Warn(msg, zap.Error(err))
		writeJSONError(logger, w, http.StatusBadRequest, msg, receiver.CodeUnknown)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		msg := "Could not decode request body"
		logger.Warn(msg, zap.Error(err))
		writeJSONError(logger, w, http.StatusBadRequest, msg, receiver.CodeUnknown)
		return false
	}
	if err := auth.authenticate(r, body, v.caller()); err != nil {
		logger.Warn(
			"Rejected unauthenticated request",
			zap.String("path", r.URL.Path),
			zap.String("sender", v.caller().String()),
			zap.Error(err),
		)
		writeReceiverError(logger, w, err)
		return false
	}
	return true
}

func receiveMessageHandler(logger *zap.Logger, r *bridge.Receiver, auth *authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body ReceiveMessageRequest
		if !decodeSignedRequest(logger, w, req, auth, &body) {
			return
		}
		payload, err := hex.DecodeString(receiver.SanitizeHexString(body.Payload))
		if err != nil {
			msg := "Could not decode payload"
			logger.Warn(
				msg,
				zap.String("payload", body.Payload),
				zap.Error(err),
			)
			writeJSONError(logger, w, http.StatusBadRequest, msg, receiver.CodeDecode)
			return
		}

		msg := &receiver.RelayedMessage{
			SourceChain:   body.SourceChain,
			SourceAddress: body.SourceAddress,
			Payload:       payload,
		}
		receipt, err := r.ReceiveMessage(req.Context(), body.caller(), msg)
		if err != nil {
			writeReceiverError(logger, w, err)
			return
		}
		writeJSON(logger, w, ReceiveMessageResponse{
			MessageID:     receiver.FormatMessageID(receipt.MessageID),
			SourceChain:   receipt.SourceChain,
			SourceAddress: receipt.SourceAddress,
			Recipient:     receipt.Recipient.String(),
			Amount:        receipt.Amount.Dec(),
			Denom:         receipt.Denom,
			Sequence:      receipt.Sequence,
			Attributes:    receipt.Attributes,
		})
	}
}

func configHandler(logger *zap.Logger, r *bridge.Receiver) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		cfg, err := r.GetConfig(req.Context())
		if err != nil {
			writeReceiverError(logger, w, err)
			return
		}
		writeJSON(logger, w, cfg)
	}
}

func allowedSendersHandler(logger *zap.Logger, r *bridge.Receiver) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		senders, err := r.AllowedSenders(req.Context())
		if err != nil {
			writeReceiverError(logger, w, err)
			return
		}
		if senders == nil {
			senders = []receiver.RemoteSender{}
		}
		writeJSON(logger, w, senders)
	}
}

func settlementHandler(logger *zap.Logger, r *bridge.Receiver) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		raw := chi.URLParam(req, "message_id")
		id, err := receiver.ParseMessageID(raw)
		if err != nil {
			msg := "Could not parse message ID"
			logger.Warn(msg, zap.String("input", raw), zap.Error(err))
			writeJSONError(logger, w, http.StatusBadRequest, msg, receiver.CodeUnknown)
			return
		}
		rec, err := r.Settlement(req.Context(), id)
		if err != nil {
			writeReceiverError(logger, w, err)
			return
		}
		writeJSON(logger, w, SettlementResponse{
			MessageID:     receiver.FormatMessageID(rec.MessageID),
			SourceChain:   rec.SourceChain,
			SourceAddress: rec.SourceAddress,
			Recipient:     rec.Recipient.String(),
			Amount:        rec.Amount.Dec(),
			Denom:         rec.Denom,
			Sequence:      rec.Sequence,
			SettledAt:     rec.SettledAt,
		})
	}
}

func transfersHandler(logger *zap.Logger, r *bridge.Receiver) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		transfers, err := r.Transfers(req.Context())
		if err != nil {
			writeReceiverError(logger, w, err)
			return
		}
		resp := make([]TransferResponse, 0, len(transfers))
		for _, t := range transfers {
			resp = append(resp, TransferResponse{
				MessageID: receiver.FormatMessageID(t.MessageID),
				To:        t.To.String(),
				Denom:     t.Denom,
				Amount:    t.Amount.Dec(),
			})
		}
		writeJSON(logger, w, resp)
	}
}

func reconfigureHandler(logger *zap.Logger, r *bridge.Receiver, auth *authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body ReconfigureRequest
		if !decodeSignedRequest(logger, w, req, auth, &body) {
			return
		}
		cfg, err := r.Reconfigure(req.Context(), body.caller(), body.TrustedGateway, body.GatewayKey)
		if err != nil {
			writeReceiverError(logger, w, err)
			return
		}
		writeJSON(logger, w, cfg)
	}
}

func updateAdminHandler(logger *zap.Logger, r *bridge.Receiver, auth *authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body UpdateAdminRequest
		if !decodeSignedRequest(logger, w, req, auth, &body) {
			return
		}
		cfg, err := r.UpdateAdmin(req.Context(), body.caller(), body.Admin, body.AdminKey)
		if err != nil {
			writeReceiverError(logger, w, err)
			return
		}
		writeJSON(logger, w, cfg)
	}
}

func remoteSenderHandler(
	logger *zap.Logger,
	auth *authenticator,
	apply func(ctx context.Context, caller receiver.Identity, s receiver.RemoteSender) error,
) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body RemoteSenderRequest
		if !decodeSignedRequest(logger, w, req, auth, &body) {
			return
		}
		s := receiver.RemoteSender{
			SourceChain:   body.SourceChain,
			SourceAddress: body.SourceAddress,
		}
		if err := apply(req.Context(), body.caller(), s); err != nil {
			writeReceiverError(logger, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// escrowHandler reports the escrow balance of the denom query parameter.
// Denoms may contain slashes, so it is not a path parameter.
func escrowHandler(logger *zap.Logger, r *bridge.Receiver) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		denom := req.URL.Query().Get("denom")
		if denom == "" {
			writeJSONError(logger, w, http.StatusBadRequest, "denom query parameter required", receiver.CodeUnknown)
			return
		}
		bal, err := r.EscrowBalance(req.Context(), denom)
		if err != nil {
			writeReceiverError(logger, w, err)
			return
		}
		writeJSON(logger, w, EscrowResponse{Denom: denom, Balance: bal.Dec()})
	}
}

func fundEscrowHandler(logger *zap.Logger, r *bridge.Receiver, auth *authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body FundEscrowRequest
		if !decodeSignedRequest(logger, w, req, auth, &body) {
			return
		}
		amount, err := uint256.FromDecimal(body.Amount)
		if err != nil {
			msg := "Could not parse amount"
			logger.Warn(msg, zap.String("amount", body.Amount), zap.Error(err))
			writeJSONError(logger, w, http.StatusBadRequest, msg, receiver.CodeConfig)
			return
		}
		if err := r.FundEscrow(req.Context(), body.caller(), body.Denom, amount); err != nil {
			writeReceiverError(logger, w, err)
			return
		}
		bal, err := r.EscrowBalance(req.Context(), body.Denom)
		if err != nil {
			writeReceiverError(logger, w, err)
			return
		}
		writeJSON(logger, w, EscrowResponse{Denom: body.Denom, Balance: bal.Dec()})
	}
}
