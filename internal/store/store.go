package store

import (
	"context"
	"errors"
	"time"

	"github.com/punchamoorthee/cardledger/internal/domain"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	// ErrConflict means the row changed underneath the caller (version mismatch,
	// lock timeout or deadlock detected by the database). Safe to retry.
	ErrConflict = errors.New("account update conflict")
)

// Tx is the unit of work used by balance-mutating operations. Everything done
// through a Tx is committed together or not at all.
type Tx interface {
	// GetAccount reads an account for update. Implementations that lock rows
	// hold the lock until the unit of work ends.
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	// UpdateAccount writes a previously read account. It fails with
	// ErrConflict when the stored version no longer matches a.Version, and
	// bumps a.Version on success.
	UpdateAccount(ctx context.Context, a *domain.Account) error
	CreateTransaction(ctx context.Context, t *domain.Transaction) error
}

// Store is the durable home of accounts and transactions.
type Store interface {
	// InTx runs fn in a unit of work, committing when fn returns nil and
	// rolling back otherwise.
	InTx(ctx context.Context, fn func(Tx) error) error

	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	// CreateAccount assigns a.ID and a.Version.
	CreateAccount(ctx context.Context, a *domain.Account) error
	// ListTransactions returns the transfers touching accountID, newest first.
	ListTransactions(ctx context.Context, accountID int64) ([]domain.Transaction, error)
	// ListExpiring returns ids of ACTIVE accounts whose expiry date is before day.
	ListExpiring(ctx context.Context, day time.Time) ([]int64, error)
	ListBlockRequested(ctx context.Context) ([]domain.Account, error)
	// ListAccounts returns one page of accounts matching q, ordered by id.
	ListAccounts(ctx context.Context, q AccountQuery) ([]domain.Account, error)
	// TransactionStats aggregates transfers created in [from, to). A non-zero
	// ownerID keeps only transfers touching one of that owner's accounts.
	TransactionStats(ctx context.Context, from, to time.Time, ownerID int64) (domain.TransactionStats, error)
}

// AccountQuery selects accounts for listing.
type AccountQuery struct {
	OwnerID int64 // 0 matches every owner
	// ActiveOnly keeps ACTIVE accounts whose expiry date is not before AsOf.
	ActiveOnly bool
	AsOf       time.Time
	Limit      int // 0 means no limit
	Offset     int
}

func (q AccountQuery) matches(a *domain.Account) bool {
	if q.OwnerID != 0 && a.OwnerID != q.OwnerID {
		return false
	}
	return !q.ActiveOnly || a.IsActive(q.AsOf)
}
