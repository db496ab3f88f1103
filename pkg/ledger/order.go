package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order relative to the base asset.
type Side int8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide parses "buy" or "sell" (case-insensitive).
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	default:
		return 0, fmt.Errorf("invalid order side %q", s)
	}
}

// Status is the lifecycle state of an order.
// Transitions: pending -> completed (settle), pending -> cancelled (cancel).
// Completed and cancelled are terminal.
type Status int8

const (
	StatusPending Status = iota
	StatusCompleted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Pair is an ordered currency pair: quantity is in Base, price in Quote per Base.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// ParsePair parses "EUR/USD" into a Pair. Asset codes are upper-cased.
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return Pair{}, fmt.Errorf("invalid currency pair %q, want BASE/QUOTE", s)
	}
	p := Pair{
		Base:  strings.ToUpper(strings.TrimSpace(parts[0])),
		Quote: strings.ToUpper(strings.TrimSpace(parts[1])),
	}
	if err := p.Validate(); err != nil {
		return Pair{}, err
	}
	return p, nil
}

func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// Validate checks both asset codes are present and distinct.
func (p Pair) Validate() error {
	if p.Base == "" || p.Quote == "" {
		return fmt.Errorf("currency pair %q has an empty asset code", p.String())
	}
	if p.Base == p.Quote {
		return fmt.Errorf("currency pair %q trades an asset against itself", p.String())
	}
	return nil
}

// Order is a party's request to exchange Quantity of Pair.Base against
// Pair.Quote at a limit Price. Once created it is mutated only by the
// settlement core.
type Order struct {
	ID        string          `json:"id"`
	Owner     string          `json:"owner"`
	Pair      Pair            `json:"pair"`
	Side      Side            `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Validate checks the order invariants: positive quantity and price,
// a well-formed pair and a non-empty owner.
func (o *Order) Validate() error {
	if o.Owner == "" {
		return fmt.Errorf("order %s has no owner", o.ID)
	}
	if err := o.Pair.Validate(); err != nil {
		return err
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity %s must be positive", ErrInvalidAmount, o.Quantity)
	}
	if !o.Price.IsPositive() {
		return fmt.Errorf("%w: price %s must be positive", ErrInvalidAmount, o.Price)
	}
	return nil
}

// Cost is the quote-asset value of the order, quantity x price rounded
// half-even to the settlement scale. Rounding happens here and nowhere else.
func (o *Order) Cost() decimal.Decimal {
	return o.Quantity.Mul(o.Price).RoundBank(SettlementScale)
}

// FundingAsset is the asset debited when the order settles:
// the quote asset for buys, the base asset for sells.
func (o *Order) FundingAsset() string {
	if o.Side == SideBuy {
		return o.Pair.Quote
	}
	return o.Pair.Base
}

// CreditAsset is the asset credited when the order settles.
func (o *Order) CreditAsset() string {
	if o.Side == SideBuy {
		return o.Pair.Base
	}
	return o.Pair.Quote
}
