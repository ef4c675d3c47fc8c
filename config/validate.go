package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *ServiceConfig) Validate() error {
	switch c.Oracle.Source {
	case OracleSourceStatic:
		if c.Oracle.StaticPrice <= 0 {
			return errors.New("oracle.static_price must be positive when oracle.source is static")
		}
	case OracleSourceHermes, OracleSourceStream:
		if c.Oracle.FeedID == "" {
			return fmt.Errorf("oracle.feed_id is required when oracle.source is %s", c.Oracle.Source)
		}
	default:
		return fmt.Errorf("oracle.source must be static, hermes or stream, got %q", c.Oracle.Source)
	}

	switch c.Ledger.Backend {
	case LedgerBackendMemory:
	case LedgerBackendSQLite:
		if c.Ledger.Path == "" {
			return errors.New("ledger.path is required when ledger.backend is sqlite")
		}
	default:
		return fmt.Errorf("ledger.backend must be memory or sqlite, got %q", c.Ledger.Backend)
	}

	if c.Journal.Enabled {
		if err := c.Journal.Postgres.validate("journal.postgres"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
	}

	return nil
}

func (db *PostgresConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
