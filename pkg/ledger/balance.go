package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementScale is the fixed decimal scale monetary amounts are rounded to
// at the settlement boundary.
const SettlementScale = 4

// Balance is a party's held amount of one asset. Exactly one record exists
// per (owner, asset); the amount never goes negative.
type Balance struct {
	Owner     string          `json:"owner"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NewBalance returns a zero-amount record for (owner, asset).
func NewBalance(owner, asset string) *Balance {
	return &Balance{Owner: owner, Asset: asset, Amount: decimal.Zero}
}

// adjusted returns a copy with Amount shifted by delta and UpdatedAt set.
// This is the only mutation path into a balance record, so non-negativity is
// enforced in exactly one place. The receiver is never modified; callers
// persist the returned copy, which keeps failed settlements free of partial
// mutations.
func (b *Balance) adjusted(delta decimal.Decimal, now time.Time) (*Balance, error) {
	next := b.Amount.Add(delta)
	if next.IsNegative() {
		return nil, fmt.Errorf("%w: %s %s balance is %s, short %s",
			ErrInsufficientFunds, b.Owner, b.Asset, b.Amount, next.Neg())
	}
	out := *b
	out.Amount = next
	out.UpdatedAt = now
	return &out, nil
}
