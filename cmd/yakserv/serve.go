package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/seera-networks/yakserv/pkg/attest"
	"github.com/seera-networks/yakserv/pkg/auth"
	"github.com/seera-networks/yakserv/pkg/config"
	"github.com/seera-networks/yakserv/pkg/dataset"
	"github.com/seera-networks/yakserv/pkg/flightserver"
	"github.com/seera-networks/yakserv/pkg/observability"
	"github.com/seera-networks/yakserv/pkg/storage"
)

func serveCmd() *cobra.Command {
	var (
		listenAddr        string
		storageDBPath     string
		policyDBPath      string
		jwksPath          string
		useTestChallenge  bool
		logLevel          string
		otlpEndpoint      string
		noTLS             bool
		authorizedSubject string
		csvFile           string
		edinetDB          string
		parquetPath       string
		serverLD          string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the attested Flight gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(logLevel)

			provider, err := observability.New(cmd.Context(), &observability.Config{
				ServiceName:  "yakserv",
				OTLPEndpoint: otlpEndpoint,
			})
			if err != nil {
				return fmt.Errorf("serve: init tracing: %w", err)
			}
			defer func() { _ = provider.Shutdown(context.Background()) }()

			store, err := storage.Open(storageDBPath, policyDBPath)
			if err != nil {
				return fmt.Errorf("serve: open storage: %w", err)
			}
			defer store.Close()

			keys, err := loadKeySet(jwksPath)
			if err != nil {
				return fmt.Errorf("serve: load JWKS: %w", err)
			}

			verifier := selectVerifier(useTestChallenge)

			measurement, err := decodeServerLD(serverLD)
			if err != nil {
				return fmt.Errorf("serve: parse server-ld: %w", err)
			}

			srv := flightserver.New(logger, store, dataset.NewCSVProvider(csvFiles(csvFile)), keys, verifier)
			srv.Measurement = measurement
			srv.UseTestChallenge = useTestChallenge
			srv.AuthorizedSubject = authorizedSubject

			lis, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return fmt.Errorf("serve: listen on %s: %w", listenAddr, err)
			}

			grpcServer := grpc.NewServer()
			flight.RegisterFlightServiceServer(grpcServer, srv)

			errCh := make(chan error, 1)
			go func() {
				logger.Info("yakserv gateway started", "addr", listenAddr)
				if err := grpcServer.Serve(lis); err != nil {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logger.Info("shutdown signal received", "signal", sig.String())
				stopped := make(chan struct{})
				go func() {
					grpcServer.GracefulStop()
					close(stopped)
				}()
				select {
				case <-stopped:
				case <-time.After(10 * time.Second):
					grpcServer.Stop()
				}
				return nil
			case err := <-errCh:
				return fmt.Errorf("serve: gateway error: %w", err)
			}
		},
	}

	cfg := config.LoadServerConfig()
	cmd.Flags().StringVar(&listenAddr, "listen", cfg.ListenAddr, "gateway listen address")
	cmd.Flags().StringVar(&storageDBPath, "storage-db", cfg.StorageDBPath, "path to the subject table SQLite database")
	cmd.Flags().StringVar(&policyDBPath, "policy-db", cfg.PolicyDBPath, "path to the policy SQLite database")
	cmd.Flags().StringVar(&jwksPath, "jwks", cfg.JWKSPath, "path to a JSON object of kid -> RSA public key PEM")
	cmd.Flags().BoolVar(&useTestChallenge, "use-test-challenge", cfg.UseTestChallenge, "accept the deterministic test attestation verifier instead of hardware attestation")
	cmd.Flags().StringVar(&logLevel, "log-level", cfg.LogLevel, "log level (DEBUG, INFO, WARN, ERROR)")
	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", cfg.OTLPEndpoint, "OTLP gRPC endpoint for trace export (empty disables tracing)")
	cmd.Flags().BoolVar(&noTLS, "no-tls", cfg.NoTLS, "disable server TLS (reserved: TLS material loading is not yet implemented)")
	cmd.Flags().StringVar(&authorizedSubject, "authorized-subject", cfg.AuthorizedSubject, "restrict the gateway to one subject; empty allows any resolved subject")
	cmd.Flags().StringVar(&csvFile, "csv-file", cfg.CSVFile, "serve this CSV file as the \"system\" dataset-provider target")
	cmd.Flags().StringVar(&edinetDB, "edinet-db", cfg.EDINETDB, "EDINET database path (reserved for a future dataset provider)")
	cmd.Flags().StringVar(&parquetPath, "parquet-path", cfg.ParquetPath, "reserved filesystem location for a future Parquet dataset provider")
	cmd.Flags().StringVar(&serverLD, "server-ld", cfg.ServerLD, "expected 48-byte launch measurement, base64-encoded; empty disables the check")

	return cmd
}

// csvFiles builds the CSVProvider file map for the "system" dataset-provider
// target. An empty path yields a nil map, so readColumns fails closed
// instead of silently serving an unconfigured file.
func csvFiles(path string) map[string]string {
	if path == "" {
		return nil
	}
	return map[string]string{flightserver.SystemTarget: path}
}

// decodeServerLD parses the base64-encoded server_ld flag into the expected
// launch measurement. An empty string disables the measurement check.
func decodeServerLD(encoded string) (*[attest.MeasurementSize]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if len(raw) != attest.MeasurementSize {
		return nil, fmt.Errorf("expected %d bytes, got %d", attest.MeasurementSize, len(raw))
	}
	var m [attest.MeasurementSize]byte
	copy(m[:], raw)
	return &m, nil
}

func selectVerifier(useTestChallenge bool) attest.Verifier {
	if useTestChallenge {
		return attest.NewTestVerifier()
	}
	return attest.NewHardwareVerifier()
}

// loadKeySet reads a JSON object mapping JWT "kid" header values to RSA
// public keys in PEM form. An empty path yields an empty key set: every
// bearer JWT is then rejected and only the default "test" subject (used
// when no authorization header is sent at all) is reachable.
func loadKeySet(path string) (auth.StaticKeySet, error) {
	keys := auth.StaticKeySet{}
	if path == "" {
		return keys, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jwks file: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse jwks file: %w", err)
	}

	for kid, pem := range raw {
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("parse public key for kid %q: %w", kid, err)
		}
		keys[kid] = pub
	}
	return keys, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
