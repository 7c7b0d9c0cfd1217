// Package events carries outcome notifications from the account services to
// observability sinks (logs, a message broker, operator e-mail).
//
// Services only ever see a Notifier, whose Notify must return immediately.
// Delivery to the actual sinks happens on Dispatcher workers, and a failing
// or slow sink never affects the operation that produced the event.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	TransferCompleted    Kind = "TRANSFER_COMPLETED"
	TransferFailed       Kind = "TRANSFER_FAILED"
	AccountCreated       Kind = "ACCOUNT_CREATED"
	AccountCredited      Kind = "ACCOUNT_CREDITED"
	AccountStatusChanged Kind = "ACCOUNT_STATUS_CHANGED"
	AccountExpired       Kind = "ACCOUNT_EXPIRED"
	BlockRequested       Kind = "BLOCK_REQUESTED"
)

// Event describes what was attempted and how it ended. It references
// accounts by id only.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	Kind          Kind            `json:"kind"`
	ActorID       int64           `json:"actor_id,omitempty"`
	AccountID     int64           `json:"account_id,omitempty"`
	FromAccountID int64           `json:"from_account_id,omitempty"`
	ToAccountID   int64           `json:"to_account_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id,omitempty"`
	FailureKind   string          `json:"failure_kind,omitempty"`
	Detail        string          `json:"detail,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Notifier accepts events without blocking the caller.
type Notifier interface {
	Notify(e Event)
}

// Sink delivers one event to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Discard drops every event.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Event) {}
