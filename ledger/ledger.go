// Package ledger implements the fungible-token ledger the exchange engine
// mutates: per-holder balances and the total supply, with issue, redeem and
// transfer operations. Conservation holds at all times: the sum of balances
// equals total issued minus total redeemed, and an entry at zero is
// indistinguishable from an absent one.
package ledger

import (
	"context"
	"sync"

	pythusd "github.com/chewyuenrachael/pythUsdToken"
	"github.com/holiman/uint256"
)

// Ledger tracks token balances for holder accounts.
// Implementations must be safe for concurrent use.
type Ledger interface {
	// Token returns the identity fixed at construction.
	Token() pythusd.TokenInfo

	// BalanceOf returns the holder's balance; absent holders have zero.
	BalanceOf(ctx context.Context, account pythusd.Address) (*uint256.Int, error)

	// TotalSupply returns total issued minus total redeemed.
	TotalSupply(ctx context.Context) (*uint256.Int, error)

	// Issue credits newly created tokens to an account.
	Issue(ctx context.Context, to pythusd.Address, amount *uint256.Int) error

	// Redeem destroys tokens held by an account. Fails with
	// pythusd.ErrInsufficientBalance when the account holds less than amount.
	Redeem(ctx context.Context, from pythusd.Address, amount *uint256.Int) error

	// Transfer moves tokens between accounts. Fails with
	// pythusd.ErrInsufficientBalance when from holds less than amount.
	Transfer(ctx context.Context, from, to pythusd.Address, amount *uint256.Int) error
}

// Memory is an in-process Ledger backed by a map.
type Memory struct {
	info pythusd.TokenInfo

	// mu synchronizes access to balances and supply
	mu       sync.RWMutex
	balances map[pythusd.Address]*uint256.Int
	supply   *uint256.Int
}

// NewMemory returns an empty in-memory ledger for the given token.
func NewMemory(info pythusd.TokenInfo) *Memory {
	return &Memory{
		info:     info,
		balances: map[pythusd.Address]*uint256.Int{},
		supply:   uint256.NewInt(0),
	}
}

// Token returns the identity fixed at construction.
func (m *Memory) Token() pythusd.TokenInfo {
	return m.info
}

// BalanceOf returns the holder's balance; absent holders have zero.
func (m *Memory) BalanceOf(_ context.Context, account pythusd.Address) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.balances[account]
	if !ok {
		return uint256.NewInt(0), nil
	}
	return b.Clone(), nil
}

// TotalSupply returns total issued minus total redeemed.
func (m *Memory) TotalSupply(_ context.Context) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.supply.Clone(), nil
}

// Issue credits newly created tokens to an account.
func (m *Memory) Issue(_ context.Context, to pythusd.Address, amount *uint256.Int) error {
	amount = valueOrZero(amount)
	if amount.IsZero() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(m.supply, amount)
	if overflow {
		return pythusd.ErrAmountOverflow
	}
	m.supply = supply

	// No balance can overflow while the supply does not: each balance is at
	// most the supply.
	b, ok := m.balances[to]
	if !ok {
		b = uint256.NewInt(0)
	}
	m.balances[to] = new(uint256.Int).Add(b, amount)
	return nil
}

// Redeem destroys tokens held by an account.
func (m *Memory) Redeem(_ context.Context, from pythusd.Address, amount *uint256.Int) error {
	amount = valueOrZero(amount)
	if amount.IsZero() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.balances[from]
	if !ok || b.Lt(amount) {
		return pythusd.ErrInsufficientBalance
	}

	rest := new(uint256.Int).Sub(b, amount)
	if rest.IsZero() {
		delete(m.balances, from)
	} else {
		m.balances[from] = rest
	}
	m.supply = new(uint256.Int).Sub(m.supply, amount)
	return nil
}

// Transfer moves tokens between accounts.
func (m *Memory) Transfer(_ context.Context, from, to pythusd.Address, amount *uint256.Int) error {
	amount = valueOrZero(amount)
	if amount.IsZero() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.balances[from]
	if !ok || b.Lt(amount) {
		return pythusd.ErrInsufficientBalance
	}
	if from == to {
		return nil
	}

	rest := new(uint256.Int).Sub(b, amount)
	if rest.IsZero() {
		delete(m.balances, from)
	} else {
		m.balances[from] = rest
	}

	dest, ok := m.balances[to]
	if !ok {
		dest = uint256.NewInt(0)
	}
	m.balances[to] = new(uint256.Int).Add(dest, amount)
	return nil
}

func valueOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return v
}
