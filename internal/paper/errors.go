package paper

import "fmt"

// RejectKind categorizes why the engine refused an operation. The boundary
// layer maps kinds to HTTP classes: validation and risk rejections are 4xx,
// upstream faults 5xx, safety-guard violations halt the caller.
type RejectKind string

const (
	KindValidation  RejectKind = "validation"
	KindRiskLimit   RejectKind = "risk_limit"
	KindFunds       RejectKind = "insufficient_funds"
	KindNotFound    RejectKind = "not_found"
	KindOrderState  RejectKind = "order_state"
	KindSafetyGuard RejectKind = "safety_guard"
	KindUpstream    RejectKind = "upstream"
)

// RejectError is returned for every refused operation. Rule carries the
// specific limit that fired (e.g. "max_trades_per_day") so callers can show
// which rule rejected the order.
type RejectError struct {
	Kind    RejectKind
	Rule    string
	Message string
}

func (e *RejectError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Rule, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func reject(kind RejectKind, rule, format string, args ...interface{}) *RejectError {
	return &RejectError{Kind: kind, Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// IsReject returns the RejectError if err is one.
func IsReject(err error) (*RejectError, bool) {
	re, ok := err.(*RejectError)
	return re, ok
}
