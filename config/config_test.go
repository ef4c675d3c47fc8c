package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
server:
  addr: ":9000"
token:
  name: Pyth USD
  symbol: PUSD
  decimals: 18
oracle:
  source: hermes
  feed_id: ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace
  timeout: 3s
ledger:
  backend: sqlite
  path: /var/lib/pythusd/ledger.db
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":9000")
	}
	if cfg.Oracle.Source != "hermes" {
		t.Errorf("Oracle.Source = %q, want %q", cfg.Oracle.Source, "hermes")
	}
	if cfg.Oracle.Timeout != 3*time.Second {
		t.Errorf("Oracle.Timeout = %v, want %v", cfg.Oracle.Timeout, 3*time.Second)
	}
	if cfg.Ledger.Path != "/var/lib/pythusd/ledger.db" {
		t.Errorf("Ledger.Path = %q, want %q", cfg.Ledger.Path, "/var/lib/pythusd/ledger.db")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_JOURNAL_PASSWORD", "secret123")

	yaml := `
journal:
  enabled: true
  postgres:
    host: localhost
    name: pythusd
    user: journal
    password: ${TEST_JOURNAL_PASSWORD}
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Journal.Postgres.Password != "secret123" {
		t.Errorf("Journal.Postgres.Password = %q, want %q", cfg.Journal.Postgres.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
oracle:
  source: static
  static_price: 200000000000
`
	cfg, err := LoadWithDefaults(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if cfg.Token.Symbol != DefaultTokenSymbol {
		t.Errorf("Token.Symbol = %q, want %q", cfg.Token.Symbol, DefaultTokenSymbol)
	}
	if cfg.Token.Decimals != DefaultTokenDecimals {
		t.Errorf("Token.Decimals = %d, want %d", cfg.Token.Decimals, DefaultTokenDecimals)
	}
	if cfg.Oracle.Timeout != DefaultOracleTimeout {
		t.Errorf("Oracle.Timeout = %v, want %v", cfg.Oracle.Timeout, DefaultOracleTimeout)
	}
	if cfg.Ledger.Backend != LedgerBackendMemory {
		t.Errorf("Ledger.Backend = %q, want %q", cfg.Ledger.Backend, LedgerBackendMemory)
	}
	if cfg.Journal.BatchSize != DefaultBatchSize {
		t.Errorf("Journal.BatchSize = %d, want %d", cfg.Journal.BatchSize, DefaultBatchSize)
	}
	// The static source keeps the configured price untouched.
	if cfg.Oracle.StaticPrice != 200000000000 {
		t.Errorf("Oracle.StaticPrice = %d, want %d", cfg.Oracle.StaticPrice, 200000000000)
	}
}

func TestLoadAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "valid hermes",
			yaml: `
oracle:
  feed_id: ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace
`,
		},
		{
			name:    "hermes without feed",
			yaml:    `oracle: {source: hermes}`,
			wantErr: "oracle.feed_id is required",
		},
		{
			name:    "unknown oracle source",
			yaml:    `oracle: {source: chainlink}`,
			wantErr: "oracle.source must be",
		},
		{
			name:    "static without price",
			yaml:    `oracle: {source: static}`,
			wantErr: "oracle.static_price must be positive",
		},
		{
			name: "sqlite without path",
			yaml: `
oracle: {source: static, static_price: 1}
ledger: {backend: sqlite}
`,
			wantErr: "ledger.path is required",
		},
		{
			name: "unknown ledger backend",
			yaml: `
oracle: {source: static, static_price: 1}
ledger: {backend: dynamo}
`,
			wantErr: "ledger.backend must be",
		},
		{
			name: "journal missing credentials",
			yaml: `
oracle: {source: static, static_price: 1}
journal:
  enabled: true
  postgres: {host: localhost, name: pythusd, user: journal}
`,
			wantErr: "journal.postgres.password is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAndValidate(writeTempFile(t, tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("LoadAndValidate failed: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("LoadAndValidate succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default("ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Oracle.Source != OracleSourceHermes {
		t.Errorf("Oracle.Source = %q, want %q", cfg.Oracle.Source, OracleSourceHermes)
	}
}
