package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/cardledger/internal/domain"
)

// TransferRequest is the payload from the client. Amount accepts either a
// JSON number or a decimal string.
type TransferRequest struct {
	FromAccountID int64            `json:"from_account_id"`
	ToAccountID   int64            `json:"to_account_id"`
	Amount        *decimal.Decimal `json:"amount"`
}

type CreateAccountRequest struct {
	OwnerID        int64            `json:"owner_id"`
	ExpiryDate     string           `json:"expiry_date"` // YYYY-MM-DD
	InitialBalance *decimal.Decimal `json:"initial_balance,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type CreditRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

// Account is the external view of an account. Money is rendered with two
// decimal places.
type Account struct {
	ID             int64     `json:"id"`
	OwnerID        int64     `json:"owner_id"`
	Balance        string    `json:"balance"`
	Status         string    `json:"status"`
	ExpiryDate     string    `json:"expiry_date"`
	BlockRequested bool      `json:"block_requested"`
	CreatedAt      time.Time `json:"created_at"`
}

type Transaction struct {
	ID            string    `json:"id"`
	FromAccountID int64     `json:"from_account_id"`
	ToAccountID   int64     `json:"to_account_id"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// TransferResponse is the canonical response structure for a created transfer.
type TransferResponse struct {
	Transaction Transaction `json:"transaction"`
}

type DailyReport struct {
	Date                   string `json:"date"`
	TotalTransactions      int64  `json:"total_transactions"`
	SuccessfulTransactions int64  `json:"successful_transactions"`
	FailedTransactions     int64  `json:"failed_transactions"`
	TotalAmount            string `json:"total_amount"`
	SuccessRate            string `json:"success_rate"`
}

type UserStats struct {
	UserID            int64  `json:"user_id"`
	Period            string `json:"period"`
	TotalTransactions int64  `json:"total_transactions"`
	TotalAmount       string `json:"total_amount"`
	AverageAmount     string `json:"average_amount"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func NewAccount(a *domain.Account) Account {
	return Account{
		ID:             a.ID,
		OwnerID:        a.OwnerID,
		Balance:        a.Balance.StringFixed(domain.MoneyScale),
		Status:         string(a.Status),
		ExpiryDate:     a.ExpiryDate.Format(time.DateOnly),
		BlockRequested: a.BlockRequested,
		CreatedAt:      a.CreatedAt,
	}
}

func NewAccounts(in []domain.Account) []Account {
	out := make([]Account, 0, len(in))
	for i := range in {
		out = append(out, NewAccount(&in[i]))
	}
	return out
}

func NewTransaction(t *domain.Transaction) Transaction {
	return Transaction{
		ID:            t.ID.String(),
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Amount:        t.Amount.StringFixed(domain.MoneyScale),
		Status:        string(t.Status),
		CreatedAt:     t.CreatedAt,
	}
}

func NewTransactions(in []domain.Transaction) []Transaction {
	out := make([]Transaction, 0, len(in))
	for i := range in {
		out = append(out, NewTransaction(&in[i]))
	}
	return out
}

func NewDailyReport(r *domain.DailyReport) DailyReport {
	return DailyReport{
		Date:                   r.Date.Format(time.DateOnly),
		TotalTransactions:      r.Total,
		SuccessfulTransactions: r.Successful,
		FailedTransactions:     r.Failed,
		TotalAmount:            r.TotalAmount.StringFixed(domain.MoneyScale),
		SuccessRate:            r.SuccessRate.StringFixed(2),
	}
}

func NewUserStats(u *domain.UserStats) UserStats {
	return UserStats{
		UserID:            u.UserID,
		Period:            u.Period,
		TotalTransactions: u.Total,
		TotalAmount:       u.TotalAmount.StringFixed(domain.MoneyScale),
		AverageAmount:     u.AverageAmount.StringFixed(domain.MoneyScale),
	}
}
