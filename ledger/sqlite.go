package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	pythusd "github.com/chewyuenrachael/pythUsdToken"
	"github.com/holiman/uint256"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS balances (
    account TEXT PRIMARY KEY,
    balance TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS supply (
    id    INTEGER PRIMARY KEY CHECK (id = 1),
    total TEXT NOT NULL
);

INSERT OR IGNORE INTO supply (id, total) VALUES (1, '0');
`

// SQLite is a Ledger persisted in a SQLite database file. Amounts are stored
// as decimal strings so the full 256-bit range survives the round trip.
type SQLite struct {
	info pythusd.TokenInfo
	db   *sql.DB
}

// NewSQLite opens (creating if necessary) the database at path and prepares
// the schema. The pool is capped at a single connection so writes serialize
// inside SQLite rather than failing with a busy error.
func NewSQLite(path string, info pythusd.TokenInfo) (*SQLite, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare schema: %w", err)
	}
	return &SQLite{info: info, db: db}, nil
}

func sqliteDSN(path string) string {
	if path == "" || path == ":memory:" {
		return ":memory:"
	}
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Token returns the identity fixed at construction.
func (s *SQLite) Token() pythusd.TokenInfo {
	return s.info
}

// BalanceOf returns the holder's balance; absent holders have zero.
func (s *SQLite) BalanceOf(ctx context.Context, account pythusd.Address) (*uint256.Int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM balances WHERE account = ?`, string(account)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return uint256.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query balance: %w", err)
	}
	return decodeAmount(raw)
}

// TotalSupply returns total issued minus total redeemed.
func (s *SQLite) TotalSupply(ctx context.Context) (*uint256.Int, error) {
	var raw string
	if err := s.db.QueryRowContext(ctx, `SELECT total FROM supply WHERE id = 1`).Scan(&raw); err != nil {
		return nil, fmt.Errorf("query supply: %w", err)
	}
	return decodeAmount(raw)
}

// Issue credits newly created tokens to an account.
func (s *SQLite) Issue(ctx context.Context, to pythusd.Address, amount *uint256.Int) error {
	amount = valueOrZero(amount)
	if amount.IsZero() {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		supply, err := readSupply(ctx, tx)
		if err != nil {
			return err
		}
		next, overflow := new(uint256.Int).AddOverflow(supply, amount)
		if overflow {
			return pythusd.ErrAmountOverflow
		}

		balance, err := readBalance(ctx, tx, to)
		if err != nil {
			return err
		}
		if err := writeBalance(ctx, tx, to, new(uint256.Int).Add(balance, amount)); err != nil {
			return err
		}
		return writeSupply(ctx, tx, next)
	})
}

// Redeem destroys tokens held by an account.
func (s *SQLite) Redeem(ctx context.Context, from pythusd.Address, amount *uint256.Int) error {
	amount = valueOrZero(amount)
	if amount.IsZero() {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		balance, err := readBalance(ctx, tx, from)
		if err != nil {
			return err
		}
		if balance.Lt(amount) {
			return pythusd.ErrInsufficientBalance
		}

		supply, err := readSupply(ctx, tx)
		if err != nil {
			return err
		}
		if err := writeBalance(ctx, tx, from, new(uint256.Int).Sub(balance, amount)); err != nil {
			return err
		}
		return writeSupply(ctx, tx, new(uint256.Int).Sub(supply, amount))
	})
}

// Transfer moves tokens between accounts.
func (s *SQLite) Transfer(ctx context.Context, from, to pythusd.Address, amount *uint256.Int) error {
	amount = valueOrZero(amount)
	if amount.IsZero() {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		balance, err := readBalance(ctx, tx, from)
		if err != nil {
			return err
		}
		if balance.Lt(amount) {
			return pythusd.ErrInsufficientBalance
		}
		if from == to {
			return nil
		}

		dest, err := readBalance(ctx, tx, to)
		if err != nil {
			return err
		}
		if err := writeBalance(ctx, tx, from, new(uint256.Int).Sub(balance, amount)); err != nil {
			return err
		}
		return writeBalance(ctx, tx, to, new(uint256.Int).Add(dest, amount))
	})
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func readBalance(ctx context.Context, tx *sql.Tx, account pythusd.Address) (*uint256.Int, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT balance FROM balances WHERE account = ?`, string(account)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return uint256.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query balance: %w", err)
	}
	return decodeAmount(raw)
}

func writeBalance(ctx context.Context, tx *sql.Tx, account pythusd.Address, balance *uint256.Int) error {
	// Zero balances are removed rather than stored so absent and zero stay
	// indistinguishable.
	if balance.IsZero() {
		if _, err := tx.ExecContext(ctx, `DELETE FROM balances WHERE account = ?`, string(account)); err != nil {
			return fmt.Errorf("delete balance: %w", err)
		}
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO balances (account, balance) VALUES (?, ?)
		ON CONFLICT (account) DO UPDATE SET balance = excluded.balance`,
		string(account), balance.Dec())
	if err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	return nil
}

func readSupply(ctx context.Context, tx *sql.Tx) (*uint256.Int, error) {
	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT total FROM supply WHERE id = 1`).Scan(&raw); err != nil {
		return nil, fmt.Errorf("query supply: %w", err)
	}
	return decodeAmount(raw)
}

func writeSupply(ctx context.Context, tx *sql.Tx, total *uint256.Int) error {
	if _, err := tx.ExecContext(ctx, `UPDATE supply SET total = ? WHERE id = 1`, total.Dec()); err != nil {
		return fmt.Errorf("write supply: %w", err)
	}
	return nil
}

func decodeAmount(raw string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode stored amount %q: %w", raw, err)
	}
	return v, nil
}
