package anchor

import (
	"strings"

	"remit/internal/domain"
)

// NormalizeStatus folds the anchor status vocabulary into the internal order
// lifecycle: incomplete and pending_* map to processing, completed to
// completed, error and expired to failed. Unknown statuses are treated as
// still processing rather than guessed terminal.
func NormalizeStatus(anchorStatus string) domain.OrderStatus {
	s := strings.ToLower(strings.TrimSpace(anchorStatus))
	switch {
	case s == "completed":
		return domain.OrderStatusCompleted
	case s == "error", s == "expired":
		return domain.OrderStatusFailed
	case s == "incomplete", strings.HasPrefix(s, "pending"):
		return domain.OrderStatusProcessing
	default:
		return domain.OrderStatusProcessing
	}
}

// IsTerminal reports whether an anchor status maps to a terminal order
// status, and whether that terminal state is completed.
func IsTerminal(anchorStatus string) (terminal, completed bool) {
	switch NormalizeStatus(anchorStatus) {
	case domain.OrderStatusCompleted:
		return true, true
	case domain.OrderStatusFailed:
		return true, false
	default:
		return false, false
	}
}
