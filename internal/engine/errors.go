package engine

import "errors"

var (
	// ErrQuantityExceedsAvailable rejects a cancellation asking for more
	// than the line currently holds. Nothing is mutated.
	ErrQuantityExceedsAvailable = errors.New("requested quantity exceeds current line quantity")

	// ErrReasonRequired rejects a cancellation that touches already-sent
	// quantity without giving a reason.
	ErrReasonRequired = errors.New("cancellation reason required for already-sent items")

	// ErrReconciliationShortfall reports that open tickets could not account
	// for the full sent quantity being cancelled. The distributed portion
	// stays applied; this is a correctness alarm, not a rollback.
	ErrReconciliationShortfall = errors.New("open tickets cannot account for requested cancellation")

	// ErrInvalidTransition rejects any ticket status change that is not the
	// single next step of the lifecycle.
	ErrInvalidTransition = errors.New("invalid ticket status transition")

	ErrOrderNotFound  = errors.New("order not found")
	ErrLineNotFound   = errors.New("line item not found")
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrOrderCompleted rejects reconciliation and cancellation against an
	// order frozen by payment.
	ErrOrderCompleted = errors.New("order already completed")
)

// errNoChange aborts a mutation without committing or signalling; used for
// no-op reconciliations.
var errNoChange = errors.New("no change")
