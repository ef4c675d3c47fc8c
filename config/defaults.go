package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultTokenName       = "Pyth USD"
	DefaultTokenSymbol     = "PUSD"
	DefaultTokenDecimals   = 18
	DefaultOracleSource    = OracleSourceHermes
	DefaultOracleTimeout   = 5 * time.Second
	DefaultLedgerBackend   = LedgerBackendMemory
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 4
	DefaultMinConns        = 1
	DefaultBatchSize       = 256
	DefaultFlushInterval   = 1 * time.Second
)

func (c *ServiceConfig) applyDefaults() {
	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Token defaults
	if c.Token.Name == "" {
		c.Token.Name = DefaultTokenName
	}
	if c.Token.Symbol == "" {
		c.Token.Symbol = DefaultTokenSymbol
	}
	if c.Token.Decimals == 0 {
		c.Token.Decimals = DefaultTokenDecimals
	}

	// Oracle defaults
	if c.Oracle.Source == "" {
		c.Oracle.Source = DefaultOracleSource
	}
	if c.Oracle.Timeout == 0 {
		c.Oracle.Timeout = DefaultOracleTimeout
	}

	// Ledger defaults
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = DefaultLedgerBackend
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	applyDBDefaults(&c.Journal.Postgres)
}

func applyDBDefaults(db *PostgresConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
