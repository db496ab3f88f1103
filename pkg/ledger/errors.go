package ledger

import "errors"

// Error kinds reported by the settlement core. Callers distinguish them with
// errors.Is: "retry after funding" (ErrInsufficientFunds) is not "already
// done" (ErrAlreadySettled) is not "transient, retry now" (ErrConflict).
var (
	// ErrOrderNotFound: no order exists with the given id.
	ErrOrderNotFound = errors.New("order not found")

	// ErrAlreadySettled: the order is in a terminal state; retried
	// settlement requests are rejected, never reapplied.
	ErrAlreadySettled = errors.New("order already settled or cancelled")

	// ErrForbidden: the requesting party does not own the order.
	ErrForbidden = errors.New("order owned by another party")

	// ErrWalletNotFound: no balance record exists for the asset the
	// settlement would debit.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInsufficientFunds: the debit would leave a negative balance.
	// The order stays pending so the party can retry after funding.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount: a non-positive amount, quantity or price.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrConflict: a concurrent mutation holds one of the records this
	// operation needs. Safe to retry immediately.
	ErrConflict = errors.New("concurrent ledger mutation")
)

// IsRetryable reports whether the caller may immediately retry the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
