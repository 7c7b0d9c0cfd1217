package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus is the administrative state of a card account.
type AccountStatus string

const (
	StatusActive  AccountStatus = "ACTIVE"
	StatusBlocked AccountStatus = "BLOCKED"
	StatusExpired AccountStatus = "EXPIRED"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case StatusActive, StatusBlocked, StatusExpired:
		return true
	}
	return false
}

// TransactionStatus of a recorded transfer. Only SUCCESS is produced today.
type TransactionStatus string

const (
	TxSuccess TransactionStatus = "SUCCESS"
	TxFailed  TransactionStatus = "FAILED"
	TxPending TransactionStatus = "PENDING"
)

// MoneyScale is the number of decimal places kept for balances and amounts.
const MoneyScale = 2

// Account represents one card and its balance.
type Account struct {
	ID             int64           `json:"id"`
	OwnerID        int64           `json:"owner_id"`
	Balance        decimal.Decimal `json:"balance"`
	Status         AccountStatus   `json:"status"`
	ExpiryDate     time.Time       `json:"expiry_date"`
	BlockRequested bool            `json:"block_requested"`
	Version        int64           `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
}

// IsExpired reports whether the expiry date lies before the calendar day of now.
// An account is still usable on its expiry date.
func (a *Account) IsExpired(now time.Time) bool {
	now = now.In(a.ExpiryDate.Location())
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	ey, em, ed := a.ExpiryDate.Date()
	expiry := time.Date(ey, em, ed, 0, 0, 0, 0, now.Location())
	return expiry.Before(today)
}

// IsActive is true only for ACTIVE accounts that have not expired.
func (a *Account) IsActive(now time.Time) bool {
	return a.Status == StatusActive && !a.IsExpired(now)
}

// InactiveReason explains why IsActive returned false.
func (a *Account) InactiveReason(now time.Time) string {
	switch {
	case a.Status == StatusBlocked:
		return "blocked"
	case a.Status == StatusExpired || a.IsExpired(now):
		return "expired"
	case a.Status != StatusActive:
		return "status " + string(a.Status)
	}
	return ""
}

// TransferRequest is a validated-at-the-edge request to move funds between
// two accounts of the same owner.
type TransferRequest struct {
	ActorID       int64
	FromAccountID int64
	ToAccountID   int64
	Amount        decimal.Decimal
}

// Transaction is the immutable record of one completed transfer.
type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	FromAccountID int64             `json:"from_account_id"`
	ToAccountID   int64             `json:"to_account_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Status        TransactionStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ValidAmount reports whether amount is strictly positive and fits MoneyScale.
func ValidAmount(amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	return amount.Equal(amount.Round(MoneyScale))
}

// TransactionStats aggregates the transfers recorded over a period.
type TransactionStats struct {
	Count      int64
	Successful int64
	Total      decimal.Decimal
}

// DailyReport summarises one calendar day of transfers.
type DailyReport struct {
	Date        time.Time
	Total       int64
	Successful  int64
	Failed      int64
	TotalAmount decimal.Decimal
	// SuccessRate is a percentage rounded to two places.
	SuccessRate decimal.Decimal
}

// UserStats summarises the transfers touching one user's accounts.
type UserStats struct {
	UserID        int64
	Period        string
	Total         int64
	TotalAmount   decimal.Decimal
	AverageAmount decimal.Decimal
}
