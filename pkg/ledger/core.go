package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fxledger/fxledger/pkg/util"
)

// Store is the durable ledger storage the core runs on. Lookups return
// (nil, nil) when the record is absent. CommitSettlement must apply the order
// and both balance records as one atomic write.
type Store interface {
	GetOrder(id string) (*Order, error)
	PutOrder(o *Order) error
	OrdersByOwner(owner string) ([]*Order, error)
	AllOrders() ([]*Order, error)

	GetBalance(owner, asset string) (*Balance, error)
	PutBalance(b *Balance) error
	BalancesByOwner(owner string) ([]*Balance, error)

	CommitSettlement(o *Order, debited, credited *Balance) error
}

// Ledger is the settlement core: the only component that mutates orders and
// balance records. Every mutation is serialized per record key, so an order
// settles at most once and no balance update is lost.
type Ledger struct {
	store Store
	locks *keyLocks
	clock util.Clock
	log   *zap.SugaredLogger
}

// New builds a settlement core on top of store.
func New(store Store, clock util.Clock, log *zap.SugaredLogger) *Ledger {
	return &Ledger{
		store: store,
		locks: newKeyLocks(),
		clock: clock,
		log:   log,
	}
}

// SettlementResult is the outcome of a successful settlement: the completed
// order plus the two balance records it touched.
type SettlementResult struct {
	Order    *Order
	Debited  *Balance
	Credited *Balance
}

// CreateOrder validates and persists a new pending order.
func (l *Ledger) CreateOrder(owner string, pair Pair, side Side, quantity, price decimal.Decimal) (*Order, error) {
	o := &Order{
		ID:        uuid.NewString(),
		Owner:     owner,
		Pair:      pair,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Status:    StatusPending,
		CreatedAt: l.clock.Now().UTC(),
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if err := l.store.PutOrder(o); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}
	l.log.Infow("order_created",
		"order_id", o.ID, "owner", o.Owner, "pair", o.Pair.String(),
		"side", o.Side.String(), "quantity", o.Quantity, "price", o.Price)
	return o, nil
}

// Settle executes a pending order against its owner's balances with an
// at-most-once guarantee. Validation order, first failure wins:
// order exists, order still pending, requester owns it, the funding wallet
// exists, the funding wallet covers the debit. On any failure the order and
// balances are left untouched.
func (l *Ledger) Settle(orderID, requestingOwner string) (*SettlementResult, error) {
	// First read is only for lock-key discovery; everything is re-checked
	// under the locks.
	peek, err := l.store.GetOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if peek == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	release, ok := l.locks.tryAcquire(
		orderLockKey(orderID),
		balanceLockKey(peek.Owner, peek.Pair.Base),
		balanceLockKey(peek.Owner, peek.Pair.Quote),
	)
	if !ok {
		return nil, fmt.Errorf("%w: order %s", ErrConflict, orderID)
	}
	defer release()

	o, err := l.store.GetOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if o == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if o.Status != StatusPending {
		return nil, fmt.Errorf("%w: order %s is %s", ErrAlreadySettled, orderID, o.Status)
	}
	if o.Owner != requestingOwner {
		return nil, fmt.Errorf("%w: order %s", ErrForbidden, orderID)
	}

	funding, err := l.store.GetBalance(o.Owner, o.FundingAsset())
	if err != nil {
		return nil, fmt.Errorf("load balance %s/%s: %w", o.Owner, o.FundingAsset(), err)
	}
	if funding == nil {
		return nil, fmt.Errorf("%w: no %s wallet for %s", ErrWalletNotFound, o.FundingAsset(), o.Owner)
	}

	// buy: debit quote by quantity x price, credit base by quantity.
	// sell: debit base by quantity, credit quote by quantity x price.
	debitAmount := o.Quantity
	creditAmount := o.Cost()
	if o.Side == SideBuy {
		debitAmount, creditAmount = creditAmount, debitAmount
	}

	now := l.clock.Now().UTC()
	debited, err := funding.adjusted(debitAmount.Neg(), now)
	if err != nil {
		return nil, fmt.Errorf("settle order %s: %w", orderID, err)
	}

	// The credited wallet is created lazily, like a deposit: crediting can
	// never violate non-negativity.
	credit, err := l.store.GetBalance(o.Owner, o.CreditAsset())
	if err != nil {
		return nil, fmt.Errorf("load balance %s/%s: %w", o.Owner, o.CreditAsset(), err)
	}
	if credit == nil {
		credit = NewBalance(o.Owner, o.CreditAsset())
	}
	credited, err := credit.adjusted(creditAmount, now)
	if err != nil {
		return nil, fmt.Errorf("settle order %s: %w", orderID, err)
	}

	settled := *o
	settled.Status = StatusCompleted
	if err := l.store.CommitSettlement(&settled, debited, credited); err != nil {
		return nil, fmt.Errorf("commit settlement of %s: %w", orderID, err)
	}

	l.log.Infow("order_settled",
		"order_id", settled.ID, "owner", settled.Owner, "side", settled.Side.String(),
		"debit", debitAmount, "debit_asset", debited.Asset,
		"credit", creditAmount, "credit_asset", credited.Asset)

	return &SettlementResult{Order: &settled, Debited: debited, Credited: credited}, nil
}

// Cancel moves a pending order to cancelled. No balance is touched.
func (l *Ledger) Cancel(orderID, requestingOwner string) (*Order, error) {
	release := l.locks.acquire(orderLockKey(orderID))
	defer release()

	o, err := l.store.GetOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if o == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if o.Status != StatusPending {
		return nil, fmt.Errorf("%w: order %s is %s", ErrAlreadySettled, orderID, o.Status)
	}
	if o.Owner != requestingOwner {
		return nil, fmt.Errorf("%w: order %s", ErrForbidden, orderID)
	}

	cancelled := *o
	cancelled.Status = StatusCancelled
	if err := l.store.PutOrder(&cancelled); err != nil {
		return nil, fmt.Errorf("persist order %s: %w", orderID, err)
	}
	l.log.Infow("order_cancelled", "order_id", orderID, "owner", requestingOwner)
	return &cancelled, nil
}

// Deposit appends external funds to a party's wallet, creating the record if
// absent. This is the one mutation path into the ledger that bypasses
// settlement.
func (l *Ledger) Deposit(owner, asset string, amount decimal.Decimal) (*Balance, error) {
	if owner == "" || asset == "" {
		return nil, fmt.Errorf("%w: owner and asset are required", ErrInvalidAmount)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit of %s", ErrInvalidAmount, amount)
	}

	release := l.locks.acquire(balanceLockKey(owner, asset))
	defer release()

	b, err := l.store.GetBalance(owner, asset)
	if err != nil {
		return nil, fmt.Errorf("load balance %s/%s: %w", owner, asset, err)
	}
	if b == nil {
		b = NewBalance(owner, asset)
	}
	funded, err := b.adjusted(amount, l.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := l.store.PutBalance(funded); err != nil {
		return nil, fmt.Errorf("persist balance %s/%s: %w", owner, asset, err)
	}
	l.log.Infow("deposit", "owner", owner, "asset", asset, "amount", amount, "balance", funded.Amount)
	return funded, nil
}

// GetOrder returns an order by id.
func (l *Ledger) GetOrder(orderID string) (*Order, error) {
	o, err := l.store.GetOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if o == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return o, nil
}

// Orders lists a party's orders, newest first.
func (l *Ledger) Orders(owner string) ([]*Order, error) {
	return l.store.OrdersByOwner(owner)
}

// AllOrders lists every order, newest first.
func (l *Ledger) AllOrders() ([]*Order, error) {
	return l.store.AllOrders()
}

// GetBalance returns a party's wallet for one asset.
func (l *Ledger) GetBalance(owner, asset string) (*Balance, error) {
	b, err := l.store.GetBalance(owner, asset)
	if err != nil {
		return nil, fmt.Errorf("load balance %s/%s: %w", owner, asset, err)
	}
	if b == nil {
		return nil, fmt.Errorf("%w: no %s wallet for %s", ErrWalletNotFound, asset, owner)
	}
	return b, nil
}

// Balances lists all of a party's wallets.
func (l *Ledger) Balances(owner string) ([]*Balance, error) {
	return l.store.BalancesByOwner(owner)
}
