// Package config loads the token service configuration from YAML, expands
// environment variables, applies defaults and validates the result.
package config

import "time"

// Oracle source selectors.
const (
	OracleSourceStatic = "static"
	OracleSourceHermes = "hermes"
	OracleSourceStream = "stream"
)

// Ledger backend selectors.
const (
	LedgerBackendMemory = "memory"
	LedgerBackendSQLite = "sqlite"
)

// ServiceConfig is the root configuration for the token service.
//
// The native/USD exchange rate never appears here: it is a compile-time
// constant of the exchange package, not an operator knob.
type ServiceConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Token   TokenConfig   `yaml:"token"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Journal JournalConfig `yaml:"journal"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TokenConfig identifies the token the service manages.
type TokenConfig struct {
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// OracleConfig selects and tunes the price source.
type OracleConfig struct {
	// Source is one of "static", "hermes" or "stream".
	Source string `yaml:"source"`

	// Endpoint overrides the source's URL (REST base for hermes, websocket
	// for stream); empty keeps the public Hermes one.
	Endpoint string `yaml:"endpoint"`

	// FeedID is the hex Pyth price feed identifier, required for the
	// hermes and stream sources.
	FeedID string `yaml:"feed_id"`

	Timeout time.Duration `yaml:"timeout"`

	// StaticPrice is the fixed 8-decimal price served by the static source.
	StaticPrice int64 `yaml:"static_price"`
}

// LedgerConfig selects the balance store.
type LedgerConfig struct {
	// Backend is one of "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the sqlite database file, required for the sqlite backend.
	Path string `yaml:"path"`
}

// JournalConfig holds the optional Postgres receipt journal settings.
type JournalConfig struct {
	Enabled       bool           `yaml:"enabled"`
	Postgres      PostgresConfig `yaml:"postgres"`
	BatchSize     int            `yaml:"batch_size"`
	FlushInterval time.Duration  `yaml:"flush_interval"`
}

// PostgresConfig holds a single database connection.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
