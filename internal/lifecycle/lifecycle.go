// Package lifecycle holds the order and payment status rules shared by the
// server (status updates, webhook reconciliation) and the client tracker.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/kusina-pos/api/internal/enum"
)

var (
	ErrUnknownStatus     = errors.New("unknown order status")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// terminalRank sorts the absorbing alternates after every forward status.
const terminalRank = 5

var forwardRank = map[string]int{
	enum.OrderStatusPendingPayment: 0,
	enum.OrderStatusPending:        1,
	enum.OrderStatusPreparing:      2,
	enum.OrderStatusReady:          3,
	enum.OrderStatusCompleted:      4,
}

var absorbing = map[string]bool{
	enum.OrderStatusCancelled: true,
	enum.OrderStatusFailed:    true,
	enum.OrderStatusExpired:   true,
}

// IsKnownStatus reports whether s is a valid order status.
func IsKnownStatus(s string) bool {
	_, ok := forwardRank[s]
	return ok || absorbing[s]
}

// IsTerminal reports whether no further transition is possible from s.
func IsTerminal(s string) bool {
	return s == enum.OrderStatusCompleted || absorbing[s]
}

// Rank orders statuses along the lifecycle. Unknown statuses rank -1.
func Rank(s string) int {
	if r, ok := forwardRank[s]; ok {
		return r
	}
	if absorbing[s] {
		return terminalRank
	}
	return -1
}

// CanTransition validates a move from one order status to another.
// Status only moves forward; any non-terminal status may drop into
// cancelled, failed or expired.
func CanTransition(from, to string) error {
	if !IsKnownStatus(to) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if IsTerminal(from) {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	if absorbing[to] {
		return nil
	}
	if Rank(to) <= Rank(from) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, from, to)
	}
	// pending is only reached from pending_payment or at placement.
	if to == enum.OrderStatusPending && from != enum.OrderStatusPendingPayment {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// SettlePaid returns the order status once its payment is confirmed.
// pending_payment moves to pending. An expired order that is paid late is
// revived to pending; that is the only way out of an absorbing status.
func SettlePaid(status string) (string, bool) {
	switch status {
	case enum.OrderStatusPendingPayment, enum.OrderStatusExpired:
		return enum.OrderStatusPending, true
	}
	return status, false
}

// Revived reports whether from -> to is the late-payment revival allowed by
// SettlePaid.
func Revived(from, to string) bool {
	return from == enum.OrderStatusExpired && to == enum.OrderStatusPending
}

var paymentRank = map[string]int{
	enum.PaymentStatusPending: 0,
	enum.PaymentStatusExpired: 1,
	enum.PaymentStatusFailed:  1,
	enum.PaymentStatusPaid:    2,
}

// MergePaymentStatus decides the payment status after an incoming signal.
// paid never regresses; failed and expired can still be upgraded to paid by a
// later successful attempt on the same intent.
func MergePaymentStatus(current, incoming string) (string, bool) {
	in, ok := paymentRank[incoming]
	if !ok || incoming == current {
		return current, false
	}
	cur, ok := paymentRank[current]
	if !ok {
		return incoming, true
	}
	if in < cur || (in == cur && cur > 0) {
		return current, false
	}
	return incoming, true
}
