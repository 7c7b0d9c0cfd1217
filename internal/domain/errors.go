package domain

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation on accounts failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindNotFound
	KindUnauthorized
	KindInvalidState
	KindInsufficientFunds
	// KindBusy covers lock timeouts and version conflicts. It is the only
	// kind a caller may retry verbatim.
	KindBusy
	KindStoreUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidState:
		return "invalid_state"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindBusy:
		return "busy"
	case KindStoreUnavailable:
		return "store_unavailable"
	}
	return "unknown"
}

// PublicMessage is the stable text shown to API clients for a kind.
func (k Kind) PublicMessage() string {
	switch k {
	case KindInvalidArgument:
		return "Invalid transfer request"
	case KindNotFound:
		return "Account not found"
	case KindUnauthorized:
		return "Access denied to account"
	case KindInvalidState:
		return "Account is not active"
	case KindInsufficientFunds:
		return "Insufficient funds"
	case KindBusy:
		return "Account is busy, retry the request"
	}
	return "Service temporarily unavailable, please try again"
}

// Error is the tagged failure returned by the account services.
type Error struct {
	Kind      Kind
	AccountID int64
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.AccountID != 0 {
		msg = fmt.Sprintf("%s: account %d", msg, e.AccountID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrBusy              = &Error{Kind: KindBusy}
	ErrStoreUnavailable  = &Error{Kind: KindStoreUnavailable}
)

// KindOf extracts the Kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
