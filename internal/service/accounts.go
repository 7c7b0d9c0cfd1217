package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/cardledger/internal/domain"
	"github.com/punchamoorthee/cardledger/internal/events"
	"github.com/punchamoorthee/cardledger/internal/store"
)

// errUnchanged lets a mutation report that nothing needs writing.
var errUnchanged = errors.New("unchanged")

// AccountService holds the administrative and owner-facing account
// operations. Every write takes the account lock from the shared Locker.
type AccountService struct {
	store    store.Store
	locker   *Locker
	notifier events.Notifier
	logger   *logrus.Logger
	now      func() time.Time
}

func NewAccountService(s store.Store, locker *Locker, notifier events.Notifier, logger *logrus.Logger) *AccountService {
	return &AccountService{store: s, locker: locker, notifier: notifier, logger: logger, now: time.Now}
}

// CreateAccount opens an account for ownerID. Accounts whose expiry date has
// already passed start out EXPIRED.
func (s *AccountService) CreateAccount(ctx context.Context, ownerID int64, expiry time.Time, balance decimal.Decimal) (*domain.Account, error) {
	if ownerID <= 0 {
		return nil, invalidArgument("owner is required")
	}
	if expiry.IsZero() {
		return nil, invalidArgument("expiry date is required")
	}
	if balance.IsNegative() || !balance.Equal(balance.Round(domain.MoneyScale)) {
		return nil, invalidArgument("initial balance must be non-negative with at most two decimal places")
	}

	a := &domain.Account{
		OwnerID:    ownerID,
		Balance:    balance,
		Status:     domain.StatusActive,
		ExpiryDate: expiry,
	}
	if a.IsExpired(s.now()) {
		a.Status = domain.StatusExpired
	}

	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, classify(err)
	}

	s.logger.WithFields(logrus.Fields{"account_id": a.ID, "owner_id": ownerID}).Info("account created")
	s.notifier.Notify(events.Event{Kind: events.AccountCreated, ActorID: ownerID, AccountID: a.ID, Amount: balance, Detail: string(a.Status)})
	return a, nil
}

// GetAccount returns the account if actorID owns it or admin is set.
func (s *AccountService) GetAccount(ctx context.Context, actorID, id int64, admin bool) (*domain.Account, error) {
	a, err := s.store.GetAccount(ctx, id)
	if errors.Is(err, store.ErrAccountNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, classify(err)
	}
	if !admin && a.OwnerID != actorID {
		return nil, &domain.Error{Kind: domain.KindUnauthorized, AccountID: id}
	}
	return a, nil
}

// ListTransactions returns the transfer history of an account, newest first.
func (s *AccountService) ListTransactions(ctx context.Context, actorID, id int64, admin bool) ([]domain.Transaction, error) {
	if _, err := s.GetAccount(ctx, actorID, id, admin); err != nil {
		return nil, err
	}
	txns, err := s.store.ListTransactions(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	return txns, nil
}

// RequestBlock flags the account for an administrator to block. Repeating
// a pending request changes nothing and notifies nobody.
func (s *AccountService) RequestBlock(ctx context.Context, actorID, id int64) (*domain.Account, error) {
	changed := false
	a, err := s.mutate(ctx, id, func(a *domain.Account) error {
		if a.OwnerID != actorID {
			return &domain.Error{Kind: domain.KindUnauthorized, AccountID: id}
		}
		if a.Status == domain.StatusBlocked {
			return &domain.Error{Kind: domain.KindInvalidState, AccountID: id, Reason: "blocked"}
		}
		if a.BlockRequested {
			return errUnchanged
		}
		a.BlockRequested = true
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.notifier.Notify(events.Event{Kind: events.BlockRequested, ActorID: actorID, AccountID: id})
	}
	return a, nil
}

// UpdateStatus is the administrative status change. Blocking clears a
// pending block request; expired accounts stay expired.
func (s *AccountService) UpdateStatus(ctx context.Context, id int64, status domain.AccountStatus) (*domain.Account, error) {
	if !status.Valid() {
		return nil, invalidArgument("unknown status")
	}

	var from domain.AccountStatus
	a, err := s.mutate(ctx, id, func(a *domain.Account) error {
		from = a.Status
		if a.Status == status {
			return errUnchanged
		}
		if a.Status == domain.StatusExpired {
			return &domain.Error{Kind: domain.KindInvalidState, AccountID: id, Reason: "expired"}
		}
		if status == domain.StatusActive && a.IsExpired(s.now()) {
			return &domain.Error{Kind: domain.KindInvalidState, AccountID: id, Reason: "expired"}
		}
		a.Status = status
		if status == domain.StatusBlocked {
			a.BlockRequested = false
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from != status {
		s.logger.WithFields(logrus.Fields{"account_id": id, "from": from, "to": status}).Info("account status changed")
		s.notifier.Notify(events.Event{Kind: events.AccountStatusChanged, AccountID: id, Detail: fmt.Sprintf("%s->%s", from, status)})
	}
	return a, nil
}

// Credit adds funds to an account outside of a transfer.
func (s *AccountService) Credit(ctx context.Context, id int64, amount decimal.Decimal) (*domain.Account, error) {
	if !domain.ValidAmount(amount) {
		return nil, invalidArgument("amount must be positive with at most two decimal places")
	}

	a, err := s.mutate(ctx, id, func(a *domain.Account) error {
		a.Balance = a.Balance.Add(amount)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(events.Event{Kind: events.AccountCredited, AccountID: id, Amount: amount})
	return a, nil
}

// ExpireDue marks every ACTIVE account past its expiry date as EXPIRED and
// returns how many were changed. One failing account does not stop the sweep.
func (s *AccountService) ExpireDue(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.store.ListExpiring(ctx, now)
	if err != nil {
		return 0, classify(err)
	}

	var (
		expired int
		errs    []error
	)
	for _, id := range ids {
		changed := false
		_, err := s.mutate(ctx, id, func(a *domain.Account) error {
			if a.Status != domain.StatusActive || !a.IsExpired(now) {
				return errUnchanged
			}
			a.Status = domain.StatusExpired
			changed = true
			return nil
		})
		if err != nil {
			s.logger.WithError(err).WithField("account_id", id).Warn("expiry sweep failed for account")
			errs = append(errs, err)
			continue
		}
		if changed {
			expired++
			s.notifier.Notify(events.Event{Kind: events.AccountExpired, AccountID: id})
		}
	}

	if expired > 0 {
		s.logger.WithField("count", expired).Info("expired accounts deactivated")
	}
	return expired, errors.Join(errs...)
}

func (s *AccountService) ListBlockRequests(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.store.ListBlockRequested(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return accounts, nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListOwnAccounts pages through actorID's accounts. With activeOnly set it
// keeps only the accounts that can take part in a transfer today.
func (s *AccountService) ListOwnAccounts(ctx context.Context, actorID int64, activeOnly bool, limit, offset int) ([]domain.Account, error) {
	return s.listAccounts(ctx, store.AccountQuery{OwnerID: actorID, ActiveOnly: activeOnly}, limit, offset)
}

// ListAccounts pages through every account, or one owner's when ownerID is set.
func (s *AccountService) ListAccounts(ctx context.Context, ownerID int64, limit, offset int) ([]domain.Account, error) {
	if ownerID < 0 {
		return nil, invalidArgument("owner id must be positive")
	}
	return s.listAccounts(ctx, store.AccountQuery{OwnerID: ownerID}, limit, offset)
}

func (s *AccountService) listAccounts(ctx context.Context, q store.AccountQuery, limit, offset int) ([]domain.Account, error) {
	if limit < 0 || offset < 0 {
		return nil, invalidArgument("limit and offset must not be negative")
	}
	switch {
	case limit == 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	q.Limit, q.Offset, q.AsOf = limit, offset, s.now()

	accounts, err := s.store.ListAccounts(ctx, q)
	if err != nil {
		return nil, classify(err)
	}
	return accounts, nil
}

// mutate runs fn on a locked, freshly read copy of the account and persists it.
func (s *AccountService) mutate(ctx context.Context, id int64, fn func(a *domain.Account) error) (*domain.Account, error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *domain.Account
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		a, err := tx.GetAccount(ctx, id)
		if errors.Is(err, store.ErrAccountNotFound) {
			return notFound(id)
		}
		if err != nil {
			return err
		}

		switch err := fn(a); {
		case errors.Is(err, errUnchanged):
			out = a
			return nil
		case err != nil:
			return err
		}

		if err := tx.UpdateAccount(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}
