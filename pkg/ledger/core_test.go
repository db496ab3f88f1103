package ledger_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fxledger/fxledger/pkg/ledger"
	"github.com/fxledger/fxledger/pkg/storage"
	"github.com/fxledger/fxledger/pkg/util"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return ledger.New(store, util.FixedClock{T: testTime}, zap.NewNop().Sugar())
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func eurUSD(t *testing.T) ledger.Pair {
	t.Helper()
	p, err := ledger.ParsePair("EUR/USD")
	require.NoError(t, err)
	return p
}

func TestCreateOrderValidation(t *testing.T) {
	l := newTestLedger(t)
	pair := eurUSD(t)

	_, err := l.CreateOrder("alice", pair, ledger.SideBuy, dec(t, "0"), dec(t, "5"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = l.CreateOrder("alice", pair, ledger.SideBuy, dec(t, "-1"), dec(t, "5"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = l.CreateOrder("alice", pair, ledger.SideBuy, dec(t, "10"), dec(t, "0"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	o, err := l.CreateOrder("alice", pair, ledger.SideBuy, dec(t, "10"), dec(t, "5"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, o.Status)
	assert.Equal(t, testTime, o.CreatedAt)
	assert.NotEmpty(t, o.ID)
}

func TestDeposit(t *testing.T) {
	l := newTestLedger(t)

	b, err := l.Deposit("alice", "USD", dec(t, "100"))
	require.NoError(t, err)
	assert.True(t, b.Amount.Equal(dec(t, "100")))
	assert.Equal(t, testTime, b.UpdatedAt)

	// Second deposit adds to the existing record.
	b, err = l.Deposit("alice", "USD", dec(t, "25.5"))
	require.NoError(t, err)
	assert.True(t, b.Amount.Equal(dec(t, "125.5")))

	_, err = l.Deposit("alice", "USD", dec(t, "0"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = l.Deposit("alice", "USD", dec(t, "-10"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestSettleBuyRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Deposit("alice", "USD", dec(t, "100"))
	require.NoError(t, err)

	o, err := l.CreateOrder("alice", eurUSD(t), ledger.SideBuy, dec(t, "10"), dec(t, "5"))
	require.NoError(t, err)

	res, err := l.Settle(o.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, res.Order.Status)

	// Debit quote by quantity x price, credit base by quantity.
	assert.Equal(t, "USD", res.Debited.Asset)
	assert.True(t, res.Debited.Amount.Equal(dec(t, "50")), "quote balance = %s", res.Debited.Amount)
	assert.Equal(t, "EUR", res.Credited.Asset)
	assert.True(t, res.Credited.Amount.Equal(dec(t, "10")), "base balance = %s", res.Credited.Amount)
	assert.Equal(t, testTime, res.Debited.UpdatedAt)
	assert.Equal(t, testTime, res.Credited.UpdatedAt)

	// Persisted state matches the result.
	usd, err := l.GetBalance("alice", "USD")
	require.NoError(t, err)
	assert.True(t, usd.Amount.Equal(dec(t, "50")))
	eur, err := l.GetBalance("alice", "EUR")
	require.NoError(t, err)
	assert.True(t, eur.Amount.Equal(dec(t, "10")))
}

func TestSettleSell(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Deposit("alice", "EUR", dec(t, "10"))
	require.NoError(t, err)

	o, err := l.CreateOrder("alice", eurUSD(t), ledger.SideSell, dec(t, "4"), dec(t, "2"))
	require.NoError(t, err)

	res, err := l.Settle(o.ID, "alice")
	require.NoError(t, err)

	// Debit base by quantity, credit quote by quantity x price. The quote
	// wallet did not exist and is created lazily.
	assert.Equal(t, "EUR", res.Debited.Asset)
	assert.True(t, res.Debited.Amount.Equal(dec(t, "6")))
	assert.Equal(t, "USD", res.Credited.Asset)
	assert.True(t, res.Credited.Amount.Equal(dec(t, "8")))
}

func TestSettleInsufficientFunds(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Deposit("alice", "USD", dec(t, "10"))
	require.NoError(t, err)

	o, err := l.CreateOrder("alice", eurUSD(t), ledger.SideBuy, dec(t, "10"), dec(t, "5"))
	require.NoError(t, err)

	_, err = l.Settle(o.ID, "alice")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	// Order stays pending so the party can fund and retry; balance untouched.
	got, err := l.GetOrder(o.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, got.Status)
	usd, err := l.GetBalance("alice", "USD")
	require.NoError(t, err)
	assert.True(t, usd.Amount.Equal(dec(t, "10")))

	// Fund and retry.
	_, err = l.Deposit("alice", "USD", dec(t, "40"))
	require.NoError(t, err)
	res, err := l.Settle(o.ID, "alice")
	require.NoError(t, err)
	assert.True(t, res.Debited.Amount.Equal(dec(t, "0")))
}

func TestSettleWalletNotFound(t *testing.T) {
	l := newTestLedger(t)

	o, err := l.CreateOrder("alice", eurUSD(t), ledger.SideBuy, dec(t, "1"), dec(t, "1"))
	require.NoError(t, err)

	_, err = l.Settle(o.ID, "alice")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)

	// A wallet in the wrong asset does not count.
	_, err = l.Deposit("alice", "EUR", dec(t, "100"))
	require.NoError(t, err)
	_, err = l.Settle(o.ID, "alice")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
}

func TestSettleForbidden(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Deposit("alice", "USD", dec(t, "100"))
	require.NoError(t, err)

	o, err := l.CreateOrder("alice", eurUSD(t), ledger.SideBuy, dec(t, "1"), dec(t, "1"))
	require.NoError(t, err)

	_, err = l.Settle(o.ID, "mallory")
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	got, err := l.GetOrder(o.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, got.Status)
}

func TestSettleNotFound(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Settle("no-such-order", "alice")
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)
}

func TestSettleIdempotencyGuard(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Deposit("alice", "USD", dec(t, "100"))
	require.NoError(t, err)

	o, err := l.CreateOrder("alice", eurUSD(t), ledger.SideBuy, dec(t, "10"), dec(t, "5"))
	require.NoError(t, err)

	_, err = l.Settle(o.ID, "alice")
	require.NoError(t, err)

	// Retried settlement is rejected, not reapplied.
	_, err = l.Settle(o.ID, "alice")
	assert.ErrorIs(t, err, ledger.ErrAlreadySettled)

	usd, err := l.GetBalance("alice", "USD")
	require.NoError(t, err)
	assert.True(t, usd.Amount.Equal(dec(t, "50")), "double debit: %s", usd.Amount)
	eur, err := l.GetBalance("alice", "EUR")
	require.NoError(t, err)
	assert.True(t, eur.Amount.Equal(dec(t, "10")), "double credit: %s", eur.Amount)
}

func TestCancel(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Deposit("alice", "USD", dec(t, "100"))
	require.NoError(t, err)

	o, err := l.CreateOrder("alice", eurUSD(t), ledger.SideBuy, dec(t, "1"), dec(t, "1"))
	require.NoError(t, err)

	_, err = l.Cancel(o.ID, "mallory")
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	got, err := l.Cancel(o.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCancelled, got.Status)

	// Cancellation performs no balance mutation.
	usd, err := l.GetBalance("alice", "USD")
	require.NoError(t, err)
	assert.True(t, usd.Amount.Equal(dec(t, "100")))

	// Terminal states never transition.
	_, err = l.Cancel(o.ID, "alice")
	assert.ErrorIs(t, err, ledger.ErrAlreadySettled)
	_, err = l.Settle(o.ID, "alice")
	assert.ErrorIs(t, err, ledger.ErrAlreadySettled)
}

func TestSettlementRounding(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Deposit("alice", "USD", dec(t, "1"))
	require.NoError(t, err)

	// 1 x 0.12345 = 0.12345; half-even at 4 places gives 0.1234.
	o, err := l.CreateOrder("alice", eurUSD(t), ledger.SideBuy, dec(t, "1"), dec(t, "0.12345"))
	require.NoError(t, err)

	res, err := l.Settle(o.ID, "alice")
	require.NoError(t, err)
	assert.True(t, res.Debited.Amount.Equal(dec(t, "0.8766")), "debited balance = %s", res.Debited.Amount)
}

func TestConcurrentSettleExactlyOnce(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Deposit("alice", "USD", dec(t, "1000"))
	require.NoError(t, err)

	o, err := l.CreateOrder("alice", eurUSD(t), ledger.SideBuy, dec(t, "10"), dec(t, "5"))
	require.NoError(t, err)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		settled   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, err := l.Settle(o.ID, "alice")
				if ledger.IsRetryable(err) {
					continue
				}
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, ledger.ErrAlreadySettled):
					settled++
				default:
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded, "exactly one settlement must win")
	assert.Equal(t, workers-1, settled)

	// Balances reflect the effect exactly once.
	usd, err := l.GetBalance("alice", "USD")
	require.NoError(t, err)
	assert.True(t, usd.Amount.Equal(dec(t, "950")), "usd = %s", usd.Amount)
	eur, err := l.GetBalance("alice", "EUR")
	require.NoError(t, err)
	assert.True(t, eur.Amount.Equal(dec(t, "10")), "eur = %s", eur.Amount)
}

func TestConcurrentDepositsNoLostUpdate(t *testing.T) {
	l := newTestLedger(t)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Deposit("alice", "USD", decimal.NewFromInt(1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	b, err := l.GetBalance("alice", "USD")
	require.NoError(t, err)
	assert.True(t, b.Amount.Equal(decimal.NewFromInt(workers)), "final = %s", b.Amount)
}

func TestConcurrentDepositAndSettleSerialize(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Deposit("alice", "USD", dec(t, "50"))
	require.NoError(t, err)

	o, err := l.CreateOrder("alice", eurUSD(t), ledger.SideBuy, dec(t, "10"), dec(t, "5"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := l.Deposit("alice", "USD", dec(t, "30"))
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		for {
			_, err := l.Settle(o.ID, "alice")
			if ledger.IsRetryable(err) {
				continue
			}
			assert.NoError(t, err)
			return
		}
	}()
	wg.Wait()

	// Both deltas must survive: 50 + 30 - 50 = 30.
	usd, err := l.GetBalance("alice", "USD")
	require.NoError(t, err)
	assert.True(t, usd.Amount.Equal(dec(t, "30")), "usd = %s", usd.Amount)
}

func TestOrderListing(t *testing.T) {
	l := newTestLedger(t)
	pair := eurUSD(t)

	a, err := l.CreateOrder("alice", pair, ledger.SideBuy, dec(t, "1"), dec(t, "1"))
	require.NoError(t, err)
	b, err := l.CreateOrder("alice", pair, ledger.SideSell, dec(t, "2"), dec(t, "1"))
	require.NoError(t, err)
	_, err = l.CreateOrder("bob", pair, ledger.SideBuy, dec(t, "3"), dec(t, "1"))
	require.NoError(t, err)

	mine, err := l.Orders("alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	ids := []string{mine[0].ID, mine[1].ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	all, err := l.AllOrders()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
