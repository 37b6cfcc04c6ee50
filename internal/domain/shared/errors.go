package shared

import (
	"errors"
)

// ErrorKind is the machine-readable category of a ledger failure
type ErrorKind string

const (
	KindInvalidAmount     ErrorKind = "INVALID_AMOUNT"
	KindInsufficientFunds ErrorKind = "INSUFFICIENT_FUNDS"
	KindRecipientNotFound ErrorKind = "RECIPIENT_NOT_FOUND"
	KindAccountNotFound   ErrorKind = "ACCOUNT_NOT_FOUND"
	KindConditionFailed   ErrorKind = "CONDITION_FAILED"
	KindStoreUnavailable  ErrorKind = "STORE_UNAVAILABLE"
	KindInconsistentState ErrorKind = "INCONSISTENT_STATE"
)

// LedgerError carries a kind, a human-readable message and an optional cause.
// Two LedgerErrors match under errors.Is when their kinds are equal.
type LedgerError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Is implements the errors.Is interface for LedgerError
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels usable as errors.Is targets
var (
	ErrInvalidAmount     = &LedgerError{Kind: KindInvalidAmount, Message: "amount must be positive"}
	ErrInsufficientFunds = &LedgerError{Kind: KindInsufficientFunds, Message: "insufficient funds"}
	ErrRecipientNotFound = &LedgerError{Kind: KindRecipientNotFound, Message: "recipient not found"}
	ErrAccountNotFound   = &LedgerError{Kind: KindAccountNotFound, Message: "account not found"}
	ErrConditionFailed   = &LedgerError{Kind: KindConditionFailed, Message: "conditional write refused"}
	ErrStoreUnavailable  = &LedgerError{Kind: KindStoreUnavailable, Message: "store unavailable"}
	ErrInconsistentState = &LedgerError{Kind: KindInconsistentState, Message: "inconsistent ledger state"}

	ErrSelfTransfer       = &LedgerError{Kind: KindInvalidAmount, Message: "cannot transfer to the same account"}
	ErrAccountQuarantined = &LedgerError{Kind: KindInconsistentState, Message: "account is quarantined pending manual review"}
)

// NewError builds a LedgerError of the given kind
func NewError(kind ErrorKind, message string, cause error) *LedgerError {
	return &LedgerError{Kind: kind, Message: message, Err: cause}
}

// StoreUnavailable wraps an infrastructure failure
func StoreUnavailable(cause error) *LedgerError {
	return NewError(KindStoreUnavailable, "store unavailable", cause)
}

// ConditionFailed wraps a lost race or refused conditional write
func ConditionFailed(cause error) *LedgerError {
	return NewError(KindConditionFailed, "conditional write refused", cause)
}

// KindOf returns the kind of the first LedgerError in err's chain, or "" if none
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}
