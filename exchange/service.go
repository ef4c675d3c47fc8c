// Package exchange implements the mint and burn engine. It prices the token
// against an oracle sample at a fixed native/USD rate, keeps the native
// reserve in step with the circulating supply, and serializes all state
// mutation behind a single mutex so each operation is all or nothing.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pythusd "github.com/chewyuenrachael/pythUsdToken"
	"github.com/chewyuenrachael/pythUsdToken/ledger"
	"github.com/chewyuenrachael/pythUsdToken/oracle"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// NativeRate is the USD price of one native unit, as an 8-decimal
// fixed-point integer: 2400 USD. The value is fixed at compile time; the
// constructor receives it as a parameter so tests can exercise other rates.
const NativeRate uint64 = 2400 * 1e8

// ErrOracleUnavailable wraps failures to reach or read the price source.
var ErrOracleUnavailable = errors.New("exchange: oracle unavailable")

// PayoutFunc releases native value to an account after a burn has debited
// the ledger. A nil hook drops the value. Returning an error aborts the burn
// and the engine restores the debited state.
type PayoutFunc func(ctx context.Context, to pythusd.Address, value *uint256.Int) error

// Service is the exchange engine.
type Service interface {
	// FetchPrice reads one oracle sample and returns it as an unsigned
	// 8-decimal fixed-point magnitude. Samples are used once, never cached.
	// Non-positive prices fail with pythusd.ErrInvalidPrice.
	FetchPrice(ctx context.Context) (*uint256.Int, error)

	// Mint converts value native base units into tokens at the current
	// price and credits them to account; the value joins the reserve.
	// minTokens is the caller's slippage guard: a conversion below it aborts
	// with pythusd.ErrSlippageExceeded and no state changes.
	Mint(ctx context.Context, account pythusd.Address, value, minTokens *uint256.Int) (pythusd.Receipt, error)

	// Burn redeems amount tokens held by account and releases the
	// equivalent native value from the reserve through the payout hook.
	Burn(ctx context.Context, account pythusd.Address, amount *uint256.Int) (pythusd.Receipt, error)

	// Info snapshots the token identity, rate, reserve and supply.
	Info(ctx context.Context) (pythusd.SystemInfo, error)
}

// service implements Service over an oracle and a ledger.
type service struct {
	oracle oracle.Service
	ledger ledger.Ledger
	payout PayoutFunc
	rate   *uint256.Int

	// mu serializes every operation end to end, the stand-in for a
	// one-call-at-a-time execution host. Burn releases it before invoking
	// the payout hook, so a payout that calls back into the engine observes
	// the already debited state instead of deadlocking.
	mu      sync.Mutex
	reserve *uint256.Int
}

// NewService constructs an engine over the given collaborators. rate is the
// native/USD conversion rate in 8-decimal fixed point and must be positive;
// callers normally pass NativeRate.
func NewService(o oracle.Service, l ledger.Ledger, payout PayoutFunc, rate uint64) (Service, error) {
	if rate == 0 {
		return nil, errors.New("exchange: rate must be positive")
	}
	return &service{
		oracle:  o,
		ledger:  l,
		payout:  payout,
		rate:    uint256.NewInt(rate),
		reserve: uint256.NewInt(0),
	}, nil
}

func (s *service) FetchPrice(ctx context.Context) (*uint256.Int, error) {
	return s.fetchPrice(ctx)
}

// fetchPrice reads and validates one oracle sample.
func (s *service) fetchPrice(ctx context.Context) (*uint256.Int, error) {
	sample, err := s.oracle.Price(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if sample.Price <= 0 {
		return nil, fmt.Errorf("%w: oracle reported %d", pythusd.ErrInvalidPrice, sample.Price)
	}
	return uint256.NewInt(uint64(sample.Price)), nil
}

// Mint computes tokens = floor(value * rate / price) against a fresh oracle
// sample. The division floors, so any remainder stays in the reserve.
func (s *service) Mint(ctx context.Context, account pythusd.Address, value, minTokens *uint256.Int) (pythusd.Receipt, error) {
	value = orZero(value)
	minTokens = orZero(minTokens)

	s.mu.Lock()
	defer s.mu.Unlock()

	price, err := s.fetchPrice(ctx)
	if err != nil {
		return pythusd.Receipt{}, err
	}

	tokens, overflow := new(uint256.Int).MulDivOverflow(value, s.rate, price)
	if overflow {
		return pythusd.Receipt{}, fmt.Errorf("%w: mint of %v native units", pythusd.ErrAmountOverflow, value.Dec())
	}
	if tokens.Lt(minTokens) {
		return pythusd.Receipt{}, fmt.Errorf("%w: need %v tokens, price %v yields %v",
			pythusd.ErrSlippageExceeded, minTokens.Dec(), price.Dec(), tokens.Dec())
	}

	// All checks passed; mutate. The reserve sum is checked first so a
	// failure leaves no partial state behind.
	reserve, overflow := new(uint256.Int).AddOverflow(s.reserve, value)
	if overflow {
		return pythusd.Receipt{}, fmt.Errorf("%w: reserve", pythusd.ErrAmountOverflow)
	}
	if err := s.ledger.Issue(ctx, account, tokens); err != nil {
		return pythusd.Receipt{}, fmt.Errorf("issue tokens: %w", err)
	}
	s.reserve = reserve

	return s.receipt(pythusd.OpMint, account, value, tokens, price), nil
}

// Burn debits the ledger and the reserve under the lock, then hands the
// native value to the payout hook outside it. The debit happens strictly
// before any value moves.
func (s *service) Burn(ctx context.Context, account pythusd.Address, amount *uint256.Int) (pythusd.Receipt, error) {
	amount = orZero(amount)

	rcpt, value, err := s.debit(ctx, account, amount)
	if err != nil {
		return pythusd.Receipt{}, err
	}

	if s.payout != nil && !value.IsZero() {
		if err := s.payout(ctx, account, value.Clone()); err != nil {
			if cerr := s.compensate(ctx, account, amount, value); cerr != nil {
				return pythusd.Receipt{}, fmt.Errorf("release value: %w (restoring state also failed: %v)", err, cerr)
			}
			return pythusd.Receipt{}, fmt.Errorf("release value: %w", err)
		}
	}
	return rcpt, nil
}

// debit runs the burn checks and state mutation under the lock and returns
// the native value owed to the account.
func (s *service) debit(ctx context.Context, account pythusd.Address, amount *uint256.Int) (pythusd.Receipt, *uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The balance gate comes before the price fetch: an impossible burn is
	// rejected without an oracle round trip.
	balance, err := s.ledger.BalanceOf(ctx, account)
	if err != nil {
		return pythusd.Receipt{}, nil, fmt.Errorf("read balance: %w", err)
	}
	if balance.Lt(amount) {
		return pythusd.Receipt{}, nil, fmt.Errorf("%w: balance %v, burn %v",
			pythusd.ErrInsufficientBalance, balance.Dec(), amount.Dec())
	}

	price, err := s.fetchPrice(ctx)
	if err != nil {
		return pythusd.Receipt{}, nil, err
	}

	value, overflow := new(uint256.Int).MulDivOverflow(amount, price, s.rate)
	if overflow {
		return pythusd.Receipt{}, nil, fmt.Errorf("%w: burn of %v tokens", pythusd.ErrAmountOverflow, amount.Dec())
	}
	if s.reserve.Lt(value) {
		return pythusd.Receipt{}, nil, fmt.Errorf("%w: reserve %v, owed %v",
			pythusd.ErrInsufficientReserve, s.reserve.Dec(), value.Dec())
	}

	if err := s.ledger.Redeem(ctx, account, amount); err != nil {
		return pythusd.Receipt{}, nil, fmt.Errorf("redeem tokens: %w", err)
	}
	s.reserve = new(uint256.Int).Sub(s.reserve, value)

	return s.receipt(pythusd.OpBurn, account, value, amount, price), value, nil
}

// compensate undoes a burn whose payout failed: the redeemed tokens are
// reissued and the reserve restored, so the caller observes no net effect.
// Anything a reentrant call committed in between stays committed.
func (s *service) compensate(ctx context.Context, account pythusd.Address, amount, value *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.Issue(ctx, account, amount); err != nil {
		return fmt.Errorf("reissue tokens: %w", err)
	}
	s.reserve = new(uint256.Int).Add(s.reserve, value)
	return nil
}

func (s *service) Info(ctx context.Context) (pythusd.SystemInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supply, err := s.ledger.TotalSupply(ctx)
	if err != nil {
		return pythusd.SystemInfo{}, fmt.Errorf("read supply: %w", err)
	}
	return pythusd.SystemInfo{
		Token:       s.ledger.Token(),
		Rate:        s.rate.Clone(),
		Reserve:     s.reserve.Clone(),
		TotalSupply: supply,
	}, nil
}

func (s *service) receipt(op pythusd.Operation, account pythusd.Address, value, tokens, price *uint256.Int) pythusd.Receipt {
	return pythusd.Receipt{
		ID:      uuid.New(),
		Op:      op,
		Account: account,
		Value:   value.Clone(),
		Tokens:  tokens.Clone(),
		Price:   price.Clone(),
		At:      time.Now().UTC(),
	}
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return v
}
