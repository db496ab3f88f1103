package api

import (
	"time"

	"github.com/fxledger/fxledger/pkg/ledger"
)

// ==============================
// REST request types
// ==============================

// CreateOrderRequest is the payload for POST /api/v1/orders.
type CreateOrderRequest struct {
	Pair     string `json:"pair"`     // "EUR/USD"
	Side     string `json:"side"`     // "buy" or "sell"
	Quantity string `json:"quantity"` // decimal string, units of base
	Price    string `json:"price"`    // decimal string, quote per base
}

// DepositRequest is the payload for POST /api/v1/balances/{owner}/{asset}/deposit.
type DepositRequest struct {
	Amount string `json:"amount"`
}

// ==============================
// REST response types
// ==============================

// OrderInfo is the wire form of an order.
type OrderInfo struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Pair      string    `json:"pair"`
	Side      string    `json:"side"`
	Quantity  string    `json:"quantity"`
	Price     string    `json:"price"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// BalanceInfo is the wire form of a balance record.
type BalanceInfo struct {
	Owner     string    `json:"owner"`
	Asset     string    `json:"asset"`
	Amount    string    `json:"amount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SettleResponse reports a completed settlement.
type SettleResponse struct {
	Order    OrderInfo   `json:"order"`
	Debited  BalanceInfo `json:"debited"`
	Credited BalanceInfo `json:"credited"`
}

// ErrorResponse is returned for all errors. Code is stable per error kind so
// clients can tell "retry after funding" from "already done" from
// "transient, retry now".
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

func orderInfo(o *ledger.Order) OrderInfo {
	return OrderInfo{
		ID:        o.ID,
		Owner:     o.Owner,
		Pair:      o.Pair.String(),
		Side:      o.Side.String(),
		Quantity:  o.Quantity.String(),
		Price:     o.Price.String(),
		Status:    o.Status.String(),
		CreatedAt: o.CreatedAt,
	}
}

func balanceInfo(b *ledger.Balance) BalanceInfo {
	return BalanceInfo{
		Owner:     b.Owner,
		Asset:     b.Asset,
		Amount:    b.Amount.String(),
		UpdatedAt: b.UpdatedAt,
	}
}

// ==============================
// WebSocket message types
// ==============================

// WSSubscribeRequest is sent by clients to manage channel subscriptions,
// e.g. {"op":"subscribe","channels":["rates","orders:alice"]}.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// OrderEvent is broadcast on channel "orders:{owner}" when an order reaches a
// terminal state.
type OrderEvent struct {
	Type      string    `json:"type"` // "order"
	OrderID   string    `json:"orderId"`
	Owner     string    `json:"owner"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// RateUpdate is broadcast on channel "rates" by the poller.
type RateUpdate struct {
	Type  string             `json:"type"` // "rates"
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}
