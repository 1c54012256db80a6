package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gbdevw/gowstestclient/echowsserver"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Delay granted to the echo server to stop.
const echoServerStopTimeout = 10 * time.Second

// Flags of the echo-server command
type echoServerFlags struct {
	addr    string
	withTLS bool
}

func newEchoServerCommand(logLevel *string) *cobra.Command {
	flags := &echoServerFlags{}
	cmd := &cobra.Command{
		Use:   "echo-server",
		Short: "Run a WebSocket server which echoes every message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger(*logLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			var srv *echowsserver.EchoWebsocketServer
			app := newEchoServerApp(logger, flags, fx.Populate(&srv))
			if err := app.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), srv.URL())
			// Wait for shutdown
			<-cmd.Context().Done()
			logger.Info("shutdown initiated")
			stopCtx, cancel := context.WithTimeout(context.Background(), echoServerStopTimeout)
			defer cancel()
			return app.Stop(stopCtx)
		},
	}
	cmd.Flags().StringVar(&flags.addr, "addr", echowsserver.DefaultAddr, "Listen address")
	cmd.Flags().BoolVar(&flags.withTLS, "tls", false, "Serve wss with a generated self-signed certificate")
	return cmd
}

// Build the application which runs the echo server. Extra options are appended to the app.
func newEchoServerApp(logger *zap.Logger, flags *echoServerFlags, opts ...fx.Option) *fx.App {
	return fx.New(append([]fx.Option{
		fx.Supply(logger, flags),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Provide(provideHTTPServer),
		fx.Provide(provideEchoServer),
		// Use invoke to force dependency to be instantiated and hooks to be registered and executed
		fx.Invoke(func(*echowsserver.EchoWebsocketServer) {}),
	}, opts...)...)
}

// Build the HTTP server the echo server runs on. A self-signed certificate is generated when TLS
// is enabled.
func provideHTTPServer(flags *echoServerFlags) (*http.Server, error) {
	httpServer := &http.Server{Addr: flags.addr}
	if flags.withTLS {
		cert, err := echowsserver.GenerateSelfSignedCertificate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate certificate: %w", err)
		}
		httpServer.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}
	return httpServer, nil
}

// Build the echo server and register hooks which start and stop it with the app.
func provideEchoServer(lc fx.Lifecycle, httpServer *http.Server, logger *zap.Logger) *echowsserver.EchoWebsocketServer {
	srv := echowsserver.NewEchoWebsocketServer(httpServer, logger)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop()
		},
	})
	return srv
}
