package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pythusd "github.com/chewyuenrachael/pythUsdToken"
	"github.com/chewyuenrachael/pythUsdToken/ledger"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = pythusd.Address("0xa11ce")
	bob   = pythusd.Address("0xb0b")
)

var testToken = pythusd.TokenInfo{Name: "Pyth USD", Symbol: "PUSD", Decimals: 18}

// fakeOracle serves a settable fixed price.
type fakeOracle struct {
	mu    sync.Mutex
	price int64
	err   error
	calls int
}

func (o *fakeOracle) Price(context.Context) (pythusd.PriceData, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return pythusd.PriceData{}, o.err
	}
	return pythusd.PriceData{Price: o.price, Expo: -8, PublishTime: time.Now()}, nil
}

func (o *fakeOracle) set(price int64) {
	o.mu.Lock()
	o.price = price
	o.mu.Unlock()
}

// payoutRecorder captures every released payment, optionally failing.
type payoutRecorder struct {
	mu       sync.Mutex
	payments []payment
	err      error
}

type payment struct {
	to    pythusd.Address
	value *uint256.Int
}

func (p *payoutRecorder) hook(_ context.Context, to pythusd.Address, value *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.payments = append(p.payments, payment{to: to, value: value})
	return nil
}

func u(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

func newEngine(t *testing.T, o *fakeOracle, l ledger.Ledger, payout PayoutFunc) Service {
	t.Helper()
	svc, err := NewService(o, l, payout, NativeRate)
	require.NoError(t, err)
	return svc
}

func reserveOf(t *testing.T, svc Service) *uint256.Int {
	t.Helper()
	info, err := svc.Info(context.Background())
	require.NoError(t, err)
	return info.Reserve
}

func TestNewService_RejectsZeroRate(t *testing.T) {
	_, err := NewService(&fakeOracle{price: 2000 * 1e8}, ledger.NewMemory(testToken), nil, 0)
	assert.Error(t, err)
}

func TestService_FetchPrice(t *testing.T) {
	tests := []struct {
		name  string
		price int64
		want  *uint256.Int
		err   error
	}{
		{"positive", 2000 * 1e8, u(2000 * 1e8), nil},
		{"zero", 0, nil, pythusd.ErrInvalidPrice},
		{"negative", -5, nil, pythusd.ErrInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newEngine(t, &fakeOracle{price: tt.price}, ledger.NewMemory(testToken), nil)
			got, err := svc.FetchPrice(context.Background())
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_FetchPriceOracleDown(t *testing.T) {
	svc := newEngine(t, &fakeOracle{err: errors.New("connection refused")}, ledger.NewMemory(testToken), nil)
	_, err := svc.FetchPrice(context.Background())
	assert.ErrorIs(t, err, ErrOracleUnavailable)
}

// At price 2000 USD and rate 2400 USD, one native unit buys 1.2 tokens.
func TestService_Mint(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory(testToken)
	svc := newEngine(t, &fakeOracle{price: 2000 * 1e8}, l, nil)

	rcpt, err := svc.Mint(ctx, alice, u(1e18), u(1.2e18))
	require.NoError(t, err)

	assert.Equal(t, pythusd.OpMint, rcpt.Op)
	assert.Equal(t, alice, rcpt.Account)
	assert.Equal(t, u(1e18), rcpt.Value)
	assert.Equal(t, u(1.2e18), rcpt.Tokens)
	assert.Equal(t, u(2000*1e8), rcpt.Price)
	assert.NotZero(t, rcpt.ID)
	assert.False(t, rcpt.At.IsZero())

	balance, err := l.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, u(1.2e18), balance)

	supply, err := l.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, u(1.2e18), supply)
	assert.Equal(t, u(1e18), reserveOf(t, svc))
}

func TestService_MintSlippageBoundary(t *testing.T) {
	ctx := context.Background()

	// The conversion yields exactly 1.2e18 tokens: demanding that many
	// succeeds, demanding one more aborts without side effects.
	t.Run("at the floor", func(t *testing.T) {
		svc := newEngine(t, &fakeOracle{price: 2000 * 1e8}, ledger.NewMemory(testToken), nil)
		_, err := svc.Mint(ctx, alice, u(1e18), u(1.2e18))
		assert.NoError(t, err)
	})

	t.Run("one above the floor", func(t *testing.T) {
		l := ledger.NewMemory(testToken)
		svc := newEngine(t, &fakeOracle{price: 2000 * 1e8}, l, nil)

		_, err := svc.Mint(ctx, alice, u(1e18), new(uint256.Int).AddUint64(u(1.2e18), 1))
		assert.ErrorIs(t, err, pythusd.ErrSlippageExceeded)

		supply, err := l.TotalSupply(ctx)
		require.NoError(t, err)
		assert.True(t, supply.IsZero())
		assert.True(t, reserveOf(t, svc).IsZero())
	})
}

func TestService_MintInvalidPrice(t *testing.T) {
	for _, price := range []int64{0, -2000 * 1e8} {
		l := ledger.NewMemory(testToken)
		svc := newEngine(t, &fakeOracle{price: price}, l, nil)

		_, err := svc.Mint(context.Background(), alice, u(1e18), u(0))
		assert.ErrorIs(t, err, pythusd.ErrInvalidPrice)

		supply, err := l.TotalSupply(context.Background())
		require.NoError(t, err)
		assert.True(t, supply.IsZero())
		assert.True(t, reserveOf(t, svc).IsZero())
	}
}

func TestService_MintZeroValue(t *testing.T) {
	ctx := context.Background()
	svc := newEngine(t, &fakeOracle{price: 2000 * 1e8}, ledger.NewMemory(testToken), nil)

	rcpt, err := svc.Mint(ctx, alice, u(0), u(0))
	require.NoError(t, err)
	assert.True(t, rcpt.Tokens.IsZero())
	assert.True(t, reserveOf(t, svc).IsZero())

	// With nothing paid in, any positive minimum is unreachable.
	_, err = svc.Mint(ctx, alice, u(0), u(1))
	assert.ErrorIs(t, err, pythusd.ErrSlippageExceeded)
}

func TestService_MintOverflow(t *testing.T) {
	svc := newEngine(t, &fakeOracle{price: 2000 * 1e8}, ledger.NewMemory(testToken), nil)

	// rate/price > 1, so converting the maximum representable value cannot
	// fit and the whole operation aborts.
	_, err := svc.Mint(context.Background(), alice, new(uint256.Int).SetAllOne(), u(0))
	assert.ErrorIs(t, err, pythusd.ErrAmountOverflow)
	assert.True(t, reserveOf(t, svc).IsZero())
}

// Burning everything minted at an unchanged price returns the exact native
// value paid in.
func TestService_BurnRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory(testToken)
	payouts := &payoutRecorder{}
	svc := newEngine(t, &fakeOracle{price: 2000 * 1e8}, l, payouts.hook)

	_, err := svc.Mint(ctx, alice, u(1e18), u(0))
	require.NoError(t, err)

	rcpt, err := svc.Burn(ctx, alice, u(1.2e18))
	require.NoError(t, err)

	assert.Equal(t, pythusd.OpBurn, rcpt.Op)
	assert.Equal(t, u(1e18), rcpt.Value)
	assert.Equal(t, u(1.2e18), rcpt.Tokens)

	require.Len(t, payouts.payments, 1)
	assert.Equal(t, alice, payouts.payments[0].to)
	assert.Equal(t, u(1e18), payouts.payments[0].value)

	balance, err := l.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	supply, err := l.TotalSupply(ctx)
	require.NoError(t, err)
	assert.True(t, supply.IsZero())
	assert.True(t, reserveOf(t, svc).IsZero())
}

func TestService_BurnInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory(testToken)
	o := &fakeOracle{err: errors.New("oracle down")}
	svc := newEngine(t, o, l, nil)
	require.NoError(t, l.Issue(ctx, alice, u(100)))

	// The balance gate fires before any oracle traffic: the burn fails on
	// the balance even though the oracle would error.
	_, err := svc.Burn(ctx, alice, u(101))
	assert.ErrorIs(t, err, pythusd.ErrInsufficientBalance)
	assert.Zero(t, o.calls)

	balance, err := l.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, u(100), balance)
}

func TestService_BurnInvalidPrice(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory(testToken)
	o := &fakeOracle{price: 2000 * 1e8}
	svc := newEngine(t, o, l, nil)

	_, err := svc.Mint(ctx, alice, u(1e18), u(0))
	require.NoError(t, err)

	o.set(0)
	_, err = svc.Burn(ctx, alice, u(1e18))
	assert.ErrorIs(t, err, pythusd.ErrInvalidPrice)

	balance, err := l.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, u(1.2e18), balance)
	assert.Equal(t, u(1e18), reserveOf(t, svc))
}

func TestService_BurnInsufficientReserve(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory(testToken)
	o := &fakeOracle{price: 2000 * 1e8}
	svc := newEngine(t, o, l, nil)

	_, err := svc.Mint(ctx, alice, u(1e18), u(0))
	require.NoError(t, err)

	// A price rise makes the holding worth more native value than the
	// reserve holds: 1.2e18 tokens at 2500 USD are owed 1.25e18.
	o.set(2500 * 1e8)
	_, err = svc.Burn(ctx, alice, u(1.2e18))
	assert.ErrorIs(t, err, pythusd.ErrInsufficientReserve)

	balance, err := l.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, u(1.2e18), balance)
	assert.Equal(t, u(1e18), reserveOf(t, svc))
}

func TestService_BurnZeroAmount(t *testing.T) {
	ctx := context.Background()
	payouts := &payoutRecorder{}
	svc := newEngine(t, &fakeOracle{price: 2000 * 1e8}, ledger.NewMemory(testToken), payouts.hook)

	rcpt, err := svc.Burn(ctx, alice, u(0))
	require.NoError(t, err)
	assert.True(t, rcpt.Value.IsZero())
	assert.Empty(t, payouts.payments)
}

// Conversions floor, so a small position can lose up to one base unit per
// direction; the remainder stays in the reserve.
func TestService_FloorRoundingDust(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory(testToken)
	payouts := &payoutRecorder{}
	svc := newEngine(t, &fakeOracle{price: 7 * 1e8}, l, payouts.hook)

	// 10 native units at 7 USD buy floor(10*2400/7) = 3428 tokens.
	rcpt, err := svc.Mint(ctx, alice, u(10), u(0))
	require.NoError(t, err)
	assert.Equal(t, u(3428), rcpt.Tokens)

	// Burning them back returns floor(3428*7/2400) = 9 native units.
	rcpt, err = svc.Burn(ctx, alice, u(3428))
	require.NoError(t, err)
	assert.Equal(t, u(9), rcpt.Value)

	// The dust unit remains in the reserve.
	assert.Equal(t, u(1), reserveOf(t, svc))
}

// The reserve always equals native value taken in minus native value paid
// out, across accounts and price moves.
func TestService_Conservation(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory(testToken)
	o := &fakeOracle{price: 2000 * 1e8}
	payouts := &payoutRecorder{}
	svc := newEngine(t, o, l, payouts.hook)

	_, err := svc.Mint(ctx, alice, u(1e18), u(0))
	require.NoError(t, err)
	assert.Equal(t, u(1e18), reserveOf(t, svc))

	o.set(3000 * 1e8)
	rcpt, err := svc.Mint(ctx, bob, u(5e17), u(0))
	require.NoError(t, err)
	assert.Equal(t, u(4e17), rcpt.Tokens)
	assert.Equal(t, u(1.5e18), reserveOf(t, svc))

	o.set(2600 * 1e8)
	rcpt, err = svc.Burn(ctx, alice, u(6e17))
	require.NoError(t, err)
	assert.Equal(t, u(6.5e17), rcpt.Value)
	assert.Equal(t, u(8.5e17), reserveOf(t, svc))

	o.set(2400 * 1e8)
	rcpt, err = svc.Burn(ctx, bob, u(4e17))
	require.NoError(t, err)
	assert.Equal(t, u(4e17), rcpt.Value)
	assert.Equal(t, u(4.5e17), reserveOf(t, svc))

	// Taken in 1.5e18, paid out 1.05e18, difference held in reserve.
	paid := uint256.NewInt(0)
	for _, p := range payouts.payments {
		paid.Add(paid, p.value)
	}
	assert.Equal(t, u(1.05e18), paid)

	supply, err := l.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, u(6e17), supply)
}

// A payout that calls back into the engine runs against the already debited
// ledger and must not deadlock.
func TestService_ReentrantPayout(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory(testToken)
	o := &fakeOracle{price: 2000 * 1e8}

	var (
		svc            Service
		reentered      bool
		observedDuring *uint256.Int
		mu             sync.Mutex
	)
	hook := func(ctx context.Context, to pythusd.Address, value *uint256.Int) error {
		mu.Lock()
		first := !reentered
		reentered = true
		mu.Unlock()
		if !first {
			return nil
		}
		b, err := l.BalanceOf(ctx, to)
		if err != nil {
			return err
		}
		mu.Lock()
		observedDuring = b
		mu.Unlock()
		_, err = svc.Burn(ctx, to, b)
		return err
	}

	svc = newEngine(t, o, l, hook)
	_, err := svc.Mint(ctx, alice, u(1e18), u(0))
	require.NoError(t, err)

	// Burn half the position; the payout burns the rest from inside.
	_, err = svc.Burn(ctx, alice, u(6e17))
	require.NoError(t, err)

	// The nested call saw the outer debit already applied.
	assert.Equal(t, u(6e17), observedDuring)

	balance, err := l.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.True(t, reserveOf(t, svc).IsZero())
}

func TestService_FailedPayoutRestoresState(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory(testToken)
	payouts := &payoutRecorder{err: errors.New("wire transfer rejected")}
	svc := newEngine(t, &fakeOracle{price: 2000 * 1e8}, l, payouts.hook)

	_, err := svc.Mint(ctx, alice, u(1e18), u(0))
	require.NoError(t, err)

	_, err = svc.Burn(ctx, alice, u(1.2e18))
	require.Error(t, err)

	// The failed release nets out to nothing: tokens and reserve are back.
	balance, err := l.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, u(1.2e18), balance)
	assert.Equal(t, u(1e18), reserveOf(t, svc))
}

func TestService_ConcurrentMints(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory(testToken)
	svc := newEngine(t, &fakeOracle{price: 2400 * 1e8}, l, nil)

	const workers = 16
	const mintsPerWorker = 10

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < mintsPerWorker; j++ {
				if _, err := svc.Mint(ctx, alice, u(1e15), u(1e15)); err != nil {
					t.Errorf("mint: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	supply, err := l.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, u(workers*mintsPerWorker*1e15), supply)
	assert.Equal(t, u(workers*mintsPerWorker*1e15), reserveOf(t, svc))
}

func TestService_Info(t *testing.T) {
	ctx := context.Background()
	svc := newEngine(t, &fakeOracle{price: 2000 * 1e8}, ledger.NewMemory(testToken), nil)

	_, err := svc.Mint(ctx, alice, u(1e18), u(0))
	require.NoError(t, err)

	info, err := svc.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, testToken, info.Token)
	assert.Equal(t, u(NativeRate), info.Rate)
	assert.Equal(t, u(1e18), info.Reserve)
	assert.Equal(t, u(1.2e18), info.TotalSupply)
}
