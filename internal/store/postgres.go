package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/cardledger/internal/domain"
)

const accountColumns = "id, owner_id, balance::text, status, expiry_date, block_requested, version, created_at"

// PostgresStore persists accounts and transactions in PostgreSQL.
type PostgresStore struct {
	Db          *pgxpool.Pool
	lockTimeout time.Duration
}

func NewPostgresStore(ctx context.Context, connString string, lockTimeout time.Duration) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{Db: pool, lockTimeout: lockTimeout}, nil
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

// InTx runs fn inside a READ COMMITTED transaction. Rows are locked by
// Tx.GetAccount, so callers must read accounts in ascending id order.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		// SET does not accept bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("lock timeout setup failed: %w", classify(err))
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	// Once fn has succeeded the commit runs to completion even if the caller
	// gives up, so a cancelled request never leaves the outcome unknown.
	if err := tx.Commit(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("tx commit failed: %w", classify(err))
	}
	return nil
}

// GetAccount retrieves a single account by ID without locking it.
func (s *PostgresStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	row := s.Db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id)
	return scanAccount(row)
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *domain.Account) error {
	err := s.Db.QueryRow(ctx,
		`INSERT INTO accounts (owner_id, balance, status, expiry_date, block_requested)
		 VALUES ($1, $2::numeric, $3, $4, $5) RETURNING id, version, created_at`,
		a.OwnerID, a.Balance.StringFixed(domain.MoneyScale), string(a.Status), a.ExpiryDate, a.BlockRequested,
	).Scan(&a.ID, &a.Version, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("account insert failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	rows, err := s.Db.Query(ctx,
		`SELECT id, from_account_id, to_account_id, amount::text, status, created_at
		 FROM transactions
		 WHERE from_account_id = $1 OR to_account_id = $1
		 ORDER BY created_at DESC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("transaction query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			t      domain.Transaction
			amount string
			status string
		)
		if err := rows.Scan(&t.ID, &t.FromAccountID, &t.ToAccountID, &amount, &status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("transaction scan failed: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction amount: %w", err)
		}
		t.Status = domain.TransactionStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListExpiring(ctx context.Context, day time.Time) ([]int64, error) {
	rows, err := s.Db.Query(ctx,
		"SELECT id FROM accounts WHERE status = $1 AND expiry_date < $2::date ORDER BY id",
		string(domain.StatusActive), day.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("expiry query failed: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (s *PostgresStore) ListBlockRequested(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.Db.Query(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE block_requested ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("block request query failed: %w", err)
	}
	return collectAccounts(rows)
}

func (s *PostgresStore) ListAccounts(ctx context.Context, q AccountQuery) ([]domain.Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts WHERE ($1::bigint = 0 OR owner_id = $1)"
	args := []any{q.OwnerID}
	if q.ActiveOnly {
		query += " AND status = $2 AND expiry_date >= $3::date"
		args = append(args, string(domain.StatusActive), q.AsOf.Format(time.DateOnly))
	}
	// LIMIT NULL returns every row.
	query += fmt.Sprintf(" ORDER BY id LIMIT NULLIF($%d::bigint, 0) OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, q.Limit, q.Offset)

	rows, err := s.Db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("account list query failed: %w", err)
	}
	return collectAccounts(rows)
}

func (s *PostgresStore) TransactionStats(ctx context.Context, from, to time.Time, ownerID int64) (domain.TransactionStats, error) {
	var (
		st    domain.TransactionStats
		total string
	)
	err := s.Db.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE t.status = $4), COALESCE(SUM(t.amount), 0)::text
		 FROM transactions t
		 JOIN accounts f ON f.id = t.from_account_id
		 JOIN accounts d ON d.id = t.to_account_id
		 WHERE t.created_at >= $1 AND t.created_at < $2
		   AND ($3::bigint = 0 OR f.owner_id = $3 OR d.owner_id = $3)`,
		from, to, ownerID, string(domain.TxSuccess),
	).Scan(&st.Count, &st.Successful, &total)
	if err != nil {
		return st, fmt.Errorf("transaction stats query failed: %w", err)
	}
	if st.Total, err = decimal.NewFromString(total); err != nil {
		return st, fmt.Errorf("transaction stats total: %w", err)
	}
	return st, nil
}

func collectAccounts(rows pgx.Rows) ([]domain.Account, error) {
	defer rows.Close()
	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	row := t.tx.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1 FOR UPDATE", id)
	return scanAccount(row)
}

func (t *pgTx) UpdateAccount(ctx context.Context, a *domain.Account) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts
		 SET balance = $1::numeric, status = $2, block_requested = $3, version = version + 1
		 WHERE id = $4 AND version = $5`,
		a.Balance.StringFixed(domain.MoneyScale), string(a.Status), a.BlockRequested, a.ID, a.Version)
	if err != nil {
		return fmt.Errorf("account update failed: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	a.Version++
	return nil
}

func (t *pgTx) CreateTransaction(ctx context.Context, tr *domain.Transaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO transactions (id, from_account_id, to_account_id, amount, status, created_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6)`,
		tr.ID, tr.FromAccountID, tr.ToAccountID, tr.Amount.StringFixed(domain.MoneyScale), string(tr.Status), tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("transaction insert failed: %w", classify(err))
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a       domain.Account
		balance string
		status  string
	)
	err := row.Scan(&a.ID, &a.OwnerID, &balance, &status, &a.ExpiryDate, &a.BlockRequested, &a.Version, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("account scan failed: %w", classify(err))
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("account balance: %w", err)
	}
	a.Status = domain.AccountStatus(status)
	return &a, nil
}

// classify turns lock waits, deadlocks and serialization failures into
// ErrConflict so callers see them as retryable.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40P01", "40001":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}
