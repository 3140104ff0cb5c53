package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seera-networks/yakserv/pkg/attest"
	"github.com/seera-networks/yakserv/pkg/bridge"
	"github.com/seera-networks/yakserv/pkg/config"
	"github.com/seera-networks/yakserv/pkg/flightclient"
)

func serveCmd() *cobra.Command {
	var (
		listenAddr       string
		flightAddr       string
		useTLS           bool
		clientCertPEM    string
		clientKeyPEM     string
		caCertPEM        string
		useTestChallenge bool
		logLevel         string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP-to-Flight bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(logLevel)

			connectOpt := flightclient.ConnectOptions{
				ServerURL:     flightAddr,
				UseTLS:        useTLS,
				ClientCertPEM: []byte(clientCertPEM),
				ClientKeyPEM:  []byte(clientKeyPEM),
				CACertPEM:     []byte(caCertPEM),
			}

			handler := bridge.New(logger, connectOpt, reportProvider(useTestChallenge))

			mux := http.NewServeMux()
			handler.Routes(mux)

			httpServer := &http.Server{
				Addr:    listenAddr,
				Handler: mux,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("yakbridge started", "addr", listenAddr, "flight_addr", flightAddr)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logger.Info("shutdown signal received", "signal", sig.String())
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return httpServer.Shutdown(ctx)
			case err := <-errCh:
				return fmt.Errorf("serve: bridge error: %w", err)
			}
		},
	}

	cfg := config.LoadBridgeConfig()
	cmd.Flags().StringVar(&listenAddr, "listen", cfg.ListenAddr, "bridge listen address")
	cmd.Flags().StringVar(&flightAddr, "flight-addr", cfg.FlightAddr, "upstream gateway address")
	cmd.Flags().BoolVar(&useTLS, "use-tls", cfg.UseTLS, "use TLS when dialing the gateway")
	cmd.Flags().StringVar(&clientCertPEM, "client-cert", cfg.ClientCertPEM, "client certificate PEM")
	cmd.Flags().StringVar(&clientKeyPEM, "client-key", cfg.ClientKeyPEM, "client key PEM")
	cmd.Flags().StringVar(&caCertPEM, "ca-cert", cfg.CACertPEM, "CA certificate PEM")
	cmd.Flags().BoolVar(&useTestChallenge, "use-test-challenge", false, "answer handshakes with the deterministic test attestation report instead of a real one")
	cmd.Flags().StringVar(&logLevel, "log-level", cfg.LogLevel, "log level (DEBUG, INFO, WARN, ERROR)")

	return cmd
}

// reportProvider builds the function the Flight handshake calls with the
// server-issued nonce to obtain an encoded attestation report. The
// test-challenge path answers with a report whose report_data is the nonce
// itself, exercising the wire format without real SEV-SNP hardware; the
// production path has no report-generation source wired in yet.
func reportProvider(useTestChallenge bool) func(nonce []byte) ([]byte, error) {
	return func(nonce []byte) ([]byte, error) {
		if !useTestChallenge {
			return nil, fmt.Errorf("yakbridge: hardware attestation report generation is not configured")
		}
		report, err := attest.NewTestReport(attest.ProcTypeMilan, attest.EndorsementVCEK, nonce)
		if err != nil {
			return nil, fmt.Errorf("yakbridge: %w", err)
		}
		return report.Encode(), nil
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
