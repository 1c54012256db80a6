package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gbdevw/gowstestclient/wstestclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Flags of the send command
type sendFlags struct {
	insecure      bool
	library       string
	timeout       time.Duration
	noCompression bool
	headers       []string
	subprotocols  []string
	otlpEndpoint  string
}

func newSendCommand(logLevel *string) *cobra.Command {
	flags := &sendFlags{}
	cmd := &cobra.Command{
		Use:   "send <url> <text>",
		Short: "Connect to a WebSocket server, send a text message and print the reply",
		Long: `Connect to a ws:// or wss:// endpoint, send one text message, wait for the next text
message sent by the server, print it and close the connection.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger(*logLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			reply, err := runSend(cmd.Context(), args[0], args[1], flags, logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	cmd.Flags().BoolVar(&flags.insecure, "insecure", envBool(envAllowInsecureTLS, false),
		"Skip server certificate verification for wss (env "+envAllowInsecureTLS+")")
	cmd.Flags().StringVar(&flags.library, "library", defaultLibrary(),
		"WebSocket library: nhooyr, gorilla or coder (env "+envLibrary+")")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 10*time.Second,
		"Maximum time to wait for the reply")
	cmd.Flags().BoolVar(&flags.noCompression, "no-compression", false,
		"Do not offer permessage-deflate")
	cmd.Flags().StringArrayVar(&flags.headers, "header", nil,
		"Header sent with the upgrade request (key:value, repeatable)")
	cmd.Flags().StringArrayVar(&flags.subprotocols, "subprotocol", nil,
		"Subprotocol offered to the server (repeatable)")
	cmd.Flags().StringVar(&flags.otlpEndpoint, "otlp-endpoint", envString(envOTLPEndpoint, ""),
		"OTLP/HTTP collector (host:port) spans are exported to (env "+envOTLPEndpoint+")")
	return cmd
}

// # Description
//
// Connect to rawURL, send text, wait for the next text message and shut the client down.
//
// # Return
//
// The received text message or an error.
func runSend(ctx context.Context, rawURL string, text string, flags *sendFlags, logger *zap.Logger) (string, error) {
	headers, err := parseHeaders(flags.headers)
	if err != nil {
		return "", err
	}
	opts := wstestclient.NewWebsocketTestClientConfigurationOptions().
		WithLibrary(flags.library).
		WithAllowInsecureTLS(flags.insecure).
		WithCompressionEnabled(!flags.noCompression).
		WithHTTPHeader(headers).
		WithSubprotocols(flags.subprotocols...)
	tp, shutdownTracing, err := provideTracerProvider(ctx, flags.otlpEndpoint)
	if err != nil {
		return "", fmt.Errorf("failed to configure tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("failed to flush spans", zap.Error(err))
		}
	}()
	client, err := wstestclient.NewWebsocketTestClient(rawURL, opts, logger, tp, nil)
	if err != nil {
		return "", fmt.Errorf("invalid options: %w", err)
	}
	defer func() {
		if err := client.ShutDown(context.Background()); err != nil {
			logger.Warn("shutdown failed", zap.Error(err))
		}
	}()
	ok, err := client.Handshake(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("handshake failed")
	}
	waitCtx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()
	count := client.ReceivedCount()
	if err := client.SendText(waitCtx, text); err != nil {
		return "", err
	}
	reply, err := client.WaitTextReceived(waitCtx, count)
	if err != nil {
		return "", fmt.Errorf("no reply received: %w", err)
	}
	return reply, nil
}

// Parse key:value headers.
func parseHeaders(values []string) (http.Header, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := http.Header{}
	for _, value := range values {
		key, val, found := strings.Cut(value, ":")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid header %q, expected key:value", value)
		}
		headers.Add(key, strings.TrimSpace(val))
	}
	return headers, nil
}
