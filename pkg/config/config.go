// Package config loads the server and bridge configuration from environment
// variables, with the defaults a local development deployment expects.
package config

import "os"

// ServerConfig holds the attested Flight data server's configuration.
type ServerConfig struct {
	ListenAddr        string
	StorageDBPath     string
	PolicyDBPath      string
	CertsDir          string
	JWKSPath          string
	UseTestChallenge  bool
	ProcType          string
	EndorsementType   string
	LogLevel          string
	OTLPEndpoint      string

	NoTLS             bool   // disable server TLS
	AuthorizedSubject string // restrict the gateway to one OIDC subject; empty allows any
	CSVFile           string // dataset provider: serve this CSV file as the "system" target
	EDINETDB          string // dataset provider: EDINET database path (out of scope; reserved)
	ParquetPath       string // reserved filesystem location for a future Parquet dataset provider
	ServerLD          string // expected 48-byte launch measurement, base64-encoded; empty disables the check
}

// LoadServerConfig loads ServerConfig from environment variables.
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr:       getenv("YAK_LISTEN_ADDR", ":8815"),
		StorageDBPath:    getenv("YAK_STORAGE_DB", "storage.db"),
		PolicyDBPath:     getenv("YAK_POLICY_DB", "policy.db"),
		CertsDir:         getenv("YAK_CERTS_DIR", "./certs"),
		JWKSPath:         getenv("YAK_JWKS_PATH", ""),
		UseTestChallenge: os.Getenv("YAK_USE_TEST_CHALLENGE") == "true",
		ProcType:         getenv("YAK_PROC_TYPE", "milan"),
		EndorsementType:  getenv("YAK_ENDORSEMENT", "vcek"),
		LogLevel:         getenv("YAK_LOG_LEVEL", "INFO"),
		OTLPEndpoint:     getenv("YAK_OTLP_ENDPOINT", ""),

		NoTLS:             os.Getenv("YAK_NO_TLS") == "true",
		AuthorizedSubject: getenv("YAK_AUTHORIZED_SUBJECT", ""),
		CSVFile:           getenv("YAK_CSV_FILE", ""),
		EDINETDB:          getenv("YAK_EDINET_DB", ""),
		ParquetPath:       getenv("YAK_PARQUET_PATH", ""),
		ServerLD:          getenv("YAK_SERVER_LD", ""),
	}
}

// BridgeConfig holds the HTTP-to-Flight bridge's configuration.
type BridgeConfig struct {
	ListenAddr    string
	FlightAddr    string
	UseTLS        bool
	ClientCertPEM string
	ClientKeyPEM  string
	CACertPEM     string
	LogLevel      string
}

// LoadBridgeConfig loads BridgeConfig from environment variables.
func LoadBridgeConfig() *BridgeConfig {
	return &BridgeConfig{
		ListenAddr:    getenv("YAK_BRIDGE_LISTEN_ADDR", ":8080"),
		FlightAddr:    getenv("YAK_FLIGHT_ADDR", "localhost:8815"),
		UseTLS:        os.Getenv("YAK_BRIDGE_USE_TLS") == "true",
		ClientCertPEM: os.Getenv("YAK_BRIDGE_CLIENT_CERT"),
		ClientKeyPEM:  os.Getenv("YAK_BRIDGE_CLIENT_KEY"),
		CACertPEM:     os.Getenv("YAK_BRIDGE_CA_CERT"),
		LogLevel:      getenv("YAK_LOG_LEVEL", "INFO"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
