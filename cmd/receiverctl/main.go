// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"github.com/usdrise/receiver"
	"github.com/usdrise/receiver/api"
	"github.com/usdrise/receiver/payload"
	"go.uber.org/zap"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "receiverctl",
	Short: "Operator CLI for the USDRise settlement receiver",
	Long: `receiverctl builds and inspects interchain transfer payloads and talks to a
running receiverd instance.`,
	Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "receiverd API base URL")
	rootCmd.PersistentFlags().Duration("retry-timeout", api.DefaultRetryTimeout, "How long to retry failed API requests")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log retries to stderr")
	rootCmd.PersistentFlags().String("key-file", "", "File holding the hex BLS secret key that signs gateway and admin requests")

	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(messageIDCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(settlementCmd)
	rootCmd.AddCommand(transfersCmd)
	rootCmd.AddCommand(escrowCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(keygenCmd)

	encodeCmd.Flags().Uint64("nonce", 0, "Transfer nonce")
	encodeCmd.Flags().String("recipient", "", "Recipient bech32 account address")
	encodeCmd.Flags().String("amount", "", "Amount in the smallest unit (decimal)")
	encodeCmd.Flags().String("token", "", "Remote token identifier (raw, or 0x-prefixed hex)")
	_ = encodeCmd.MarkFlagRequired("recipient")
	_ = encodeCmd.MarkFlagRequired("amount")
	_ = encodeCmd.MarkFlagRequired("token")

	decodeCmd.Flags().String("prefix", receiver.DefaultBech32Prefix, "Bech32 prefix used to render the recipient")

	for _, cmd := range []*cobra.Command{messageIDCmd, submitCmd} {
		cmd.Flags().String("source-chain", "", "Remote source chain name")
		cmd.Flags().String("source-address", "", "Remote sender address")
		_ = cmd.MarkFlagRequired("source-chain")
		_ = cmd.MarkFlagRequired("source-address")
	}
	submitCmd.Flags().String("sender", "", "Caller identity, must be the trusted gateway")
	_ = submitCmd.MarkFlagRequired("sender")

	adminCmd.PersistentFlags().String("sender", "", "Caller identity, must be the admin")
	_ = adminCmd.MarkPersistentFlagRequired("sender")
	adminCmd.AddCommand(reconfigureCmd, updateAdminCmd, allowSenderCmd, revokeSenderCmd, fundEscrowCmd)
	reconfigureCmd.Flags().String("gateway-key", "", "Hex BLS public key of the new gateway")
	updateAdminCmd.Flags().String("admin-key", "", "Hex BLS public key of the new admin")
	_ = reconfigureCmd.MarkFlagRequired("gateway-key")
	_ = updateAdminCmd.MarkFlagRequired("admin-key")
	for _, cmd := range []*cobra.Command{allowSenderCmd, revokeSenderCmd} {
		cmd.Flags().String("source-chain", "", "Remote source chain name")
		cmd.Flags().String("source-address", "", "Remote sender address")
		_ = cmd.MarkFlagRequired("source-chain")
		_ = cmd.MarkFlagRequired("source-address")
	}
}

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode an interchain transfer payload",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		nonce, _ := cmd.Flags().GetUint64("nonce")
		recipientStr, _ := cmd.Flags().GetString("recipient")
		amountStr, _ := cmd.Flags().GetString("amount")
		token, _ := cmd.Flags().GetString("token")

		raw, err := receiver.Identity(recipientStr).Bytes()
		if err != nil {
			return err
		}
		if len(raw) != payload.RecipientLen {
			return fmt.Errorf("recipient must be a %d-byte account address, got %d bytes", payload.RecipientLen, len(raw))
		}
		amount, err := uint256.FromDecimal(amountStr)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", amountStr, err)
		}
		tokenID, err := payload.ParseTokenID(token)
		if err != nil {
			return err
		}
		p, err := payload.NewInterchainTransfer(nonce, [payload.RecipientLen]byte(raw), amount, tokenID)
		if err != nil {
			return err
		}
		fmt.Printf("0x%s\n", hex.EncodeToString(p.Bytes()))
		return nil
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode <payload-hex>",
	Short: "Decode an interchain transfer payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		raw, err := decodeHex(args[0])
		if err != nil {
			return err
		}
		p, err := payload.Parse(raw)
		if err != nil {
			return err
		}
		transfer, ok := p.(*payload.InterchainTransfer)
		if !ok {
			return fmt.Errorf("unsupported payload type %s", p.Type())
		}
		recipient, err := receiver.IdentityFromBytes(prefix, transfer.Recipient[:])
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"type":      p.Type().String(),
			"nonce":     transfer.Nonce,
			"recipient": recipient.String(),
			"amount":    transfer.Amount.Dec(),
			"token_id":  payload.FormatTokenID(transfer.TokenID),
		})
	},
}

var messageIDCmd = &cobra.Command{
	Use:   "message-id <payload-hex>",
	Short: "Compute the message ID of a relayed message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := relayedMessageFromFlags(cmd, args[0])
		if err != nil {
			return err
		}
		fmt.Println(receiver.FormatMessageID(msg.ID()))
		return nil
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <payload-hex>",
	Short: "Submit a relayed message for settlement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sender, _ := cmd.Flags().GetString("sender")
		msg, err := relayedMessageFromFlags(cmd, args[0])
		if err != nil {
			return err
		}
		client, err := newSignedClient(cmd)
		if err != nil {
			return err
		}
		resp, err := client.ReceiveMessage(cmd.Context(), receiver.Identity(sender), msg)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the gateway config and allow-list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := newClient(cmd)
		cfg, err := client.GetConfig(cmd.Context())
		if err != nil {
			return err
		}
		senders, err := client.AllowedSenders(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"config":          cfg,
			"allowed_senders": senders,
		})
	},
}

var settlementCmd = &cobra.Command{
	Use:   "settlement <message-id>",
	Short: "Show the settlement record of a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := receiver.ParseMessageID(args[0])
		if err != nil {
			return err
		}
		rec, err := newClient(cmd).Settlement(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var transfersCmd = &cobra.Command{
	Use:   "transfers",
	Short: "List issued transfers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		transfers, err := newClient(cmd).Transfers(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(transfers)
	},
}

var escrowCmd = &cobra.Command{
	Use:   "escrow <denom>",
	Short: "Show the escrow balance of a denom",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bal, err := newClient(cmd).EscrowBalance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(bal)
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative operations",
}

var reconfigureCmd = &cobra.Command{
	Use:   "reconfigure <trusted-gateway>",
	Short: "Replace the trusted gateway",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gatewayKey, _ := cmd.Flags().GetString("gateway-key")
		client, err := newSignedClient(cmd)
		if err != nil {
			return err
		}
		cfg, err := client.Reconfigure(cmd.Context(), adminSender(cmd), args[0], gatewayKey)
		if err != nil {
			return err
		}
		return printJSON(cfg)
	},
}

var updateAdminCmd = &cobra.Command{
	Use:   "update-admin <admin>",
	Short: "Hand over the admin role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		adminKey, _ := cmd.Flags().GetString("admin-key")
		client, err := newSignedClient(cmd)
		if err != nil {
			return err
		}
		cfg, err := client.UpdateAdmin(cmd.Context(), adminSender(cmd), args[0], adminKey)
		if err != nil {
			return err
		}
		return printJSON(cfg)
	},
}

var allowSenderCmd = &cobra.Command{
	Use:   "allow-sender",
	Short: "Add a remote sender to the allow-list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newSignedClient(cmd)
		if err != nil {
			return err
		}
		return client.AllowSender(cmd.Context(), adminSender(cmd), remoteSenderFromFlags(cmd))
	},
}

var revokeSenderCmd = &cobra.Command{
	Use:   "revoke-sender",
	Short: "Remove a remote sender from the allow-list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newSignedClient(cmd)
		if err != nil {
			return err
		}
		return client.RevokeSender(cmd.Context(), adminSender(cmd), remoteSenderFromFlags(cmd))
	},
}

var fundEscrowCmd = &cobra.Command{
	Use:   "fund-escrow <denom> <amount>",
	Short: "Credit the escrow the receiver pays transfers out of",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := uint256.FromDecimal(args[1])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}
		client, err := newSignedClient(cmd)
		if err != nil {
			return err
		}
		bal, err := client.FundEscrow(cmd.Context(), adminSender(cmd), args[0], amount)
		if err != nil {
			return err
		}
		return printJSON(bal)
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a BLS key pair for signing gateway or admin requests",
	Long: `keygen prints a new secret key and its public key. Store the secret key in
the file passed to --key-file and register the public key in the receiverd
config (gateway-public-key or admin-public-key).`,
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		signer, err := api.NewSigner()
		if err != nil {
			return err
		}
		return printJSON(map[string]string{
			"secret_key": "0x" + hex.EncodeToString(signer.SecretKey()),
			"public_key": "0x" + hex.EncodeToString(signer.PublicKey()),
		})
	},
}

func newClient(cmd *cobra.Command, opts ...api.ClientOption) *api.Client {
	url, _ := cmd.Flags().GetString("url")
	retryTimeout, _ := cmd.Flags().GetDuration("retry-timeout")
	verbose, _ := cmd.Flags().GetBool("verbose")

	logger := zap.NewNop()
	if verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}
	opts = append([]api.ClientOption{api.WithRetryTimeout(retryTimeout)}, opts...)
	return api.NewClient(url, logger, opts...)
}

// newSignedClient returns a client that signs with the key in --key-file
func newSignedClient(cmd *cobra.Command) (*api.Client, error) {
	path, _ := cmd.Flags().GetString("key-file")
	if path == "" {
		return nil, errors.New("--key-file is required to act as gateway or admin")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	signer, err := api.ParseSigner(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, err
	}
	return newClient(cmd, api.WithSigner(signer)), nil
}

func adminSender(cmd *cobra.Command) receiver.Identity {
	sender, _ := cmd.Flags().GetString("sender")
	return receiver.Identity(sender)
}

func remoteSenderFromFlags(cmd *cobra.Command) receiver.RemoteSender {
	chain, _ := cmd.Flags().GetString("source-chain")
	address, _ := cmd.Flags().GetString("source-address")
	return receiver.RemoteSender{SourceChain: chain, SourceAddress: address}
}

func relayedMessageFromFlags(cmd *cobra.Command, payloadHex string) (*receiver.RelayedMessage, error) {
	chain, _ := cmd.Flags().GetString("source-chain")
	address, _ := cmd.Flags().GetString("source-address")
	raw, err := decodeHex(payloadHex)
	if err != nil {
		return nil, err
	}
	return receiver.NewRelayedMessage(chain, address, raw)
}

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(receiver.SanitizeHexString(s))
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return b, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
