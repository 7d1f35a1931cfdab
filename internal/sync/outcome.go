package sync

import "fmt"

// Outcome classifies a single push attempt. The engine never returns errors
// from its public entry points; every failure path collapses into one of
// these values plus a PushError for diagnostics.
type Outcome int

const (
	// OutcomeSuccess: the mutation was applied remotely and removed.
	OutcomeSuccess Outcome = iota
	// OutcomeRetry: transient failure, the mutation stays queued and the
	// cycle halts to preserve ordering.
	OutcomeRetry
	// OutcomeDropped: permanent rejection, the mutation was removed so the
	// queue can drain; counted like a success by the cycle loop.
	OutcomeDropped
	// OutcomeAuthExpired: the service answered 401. The attempt counter is
	// not incremented, operator action is required.
	OutcomeAuthExpired
)

const (
	CodeNoRoomID          = "NO_ROOM_ID"
	CodeAuthExpired       = "AUTH_EXPIRED"
	CodeValidationError   = "VALIDATION_ERROR"
	CodeValidationDropped = "VALIDATION_DROPPED"
	CodeServerError       = "SERVER_ERROR"
	CodeNetworkError      = "NETWORK_ERROR"
	CodeMalformedPayload  = "MALFORMED_PAYLOAD"
)

// PushError carries the context of the most recent failed push.
type PushError struct {
	Code     string `json:"code"`
	Status   int    `json:"status,omitempty"`
	Message  string `json:"message,omitempty"`
	OutboxID string `json:"outbox_id,omitempty"`
}

func (e *PushError) Error() string {
	if e == nil {
		return ""
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func classifyStatus(status int) string {
	switch {
	case status >= 500:
		return CodeServerError
	case status == 400:
		return CodeValidationError
	default:
		return fmt.Sprintf("HTTP_%d", status)
	}
}

// CycleResult summarizes one drain of the outbox. Remaining is a cheap
// existence probe (0 or 1), not an exact count.
type CycleResult struct {
	Pushed      int        `json:"pushed"`
	Failures    int        `json:"failures"`
	Remaining   int        `json:"remaining"`
	AuthExpired bool       `json:"auth_expired"`
	LastError   *PushError `json:"last_error,omitempty"`
}
