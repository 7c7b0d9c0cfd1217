package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/cardledger/internal/domain"
	"github.com/punchamoorthee/cardledger/internal/events"
	"github.com/punchamoorthee/cardledger/internal/store"
)

// Transferer moves funds between two accounts of one owner.
type Transferer interface {
	Transfer(ctx context.Context, req domain.TransferRequest) (*domain.Transaction, error)
}

type TransferService struct {
	store    store.Store
	locker   *Locker
	notifier events.Notifier
	now      func() time.Time
}

func NewTransferService(s store.Store, locker *Locker, notifier events.Notifier) *TransferService {
	return &TransferService{store: s, locker: locker, notifier: notifier, now: time.Now}
}

// Transfer debits FromAccountID and credits ToAccountID by Amount, recording
// one SUCCESS transaction. Both legs and the record commit together or not at
// all. Failures are *domain.Error values; only KindBusy is safe to retry.
func (s *TransferService) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.Transaction, error) {
	txn, err := s.transfer(ctx, req)
	if err != nil {
		var reason string
		var de *domain.Error
		if errors.As(err, &de) {
			reason = de.Reason
		}
		s.notifier.Notify(events.Event{
			Kind:          events.TransferFailed,
			ActorID:       req.ActorID,
			FromAccountID: req.FromAccountID,
			ToAccountID:   req.ToAccountID,
			Amount:        req.Amount,
			FailureKind:   domain.KindOf(err).String(),
			Detail:        reason,
		})
		return nil, err
	}

	s.notifier.Notify(events.Event{
		Kind:          events.TransferCompleted,
		ActorID:       req.ActorID,
		FromAccountID: txn.FromAccountID,
		ToAccountID:   txn.ToAccountID,
		Amount:        txn.Amount,
		TransactionID: txn.ID.String(),
		OccurredAt:    txn.CreatedAt,
	})
	return txn, nil
}

func (s *TransferService) transfer(ctx context.Context, req domain.TransferRequest) (*domain.Transaction, error) {
	if !domain.ValidAmount(req.Amount) {
		return nil, invalidArgument("amount must be positive with at most two decimal places")
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, invalidArgument("source and destination must differ")
	}

	unlock, err := s.locker.Lock(ctx, req.FromAccountID, req.ToAccountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var txn *domain.Transaction
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		src, dst, err := readPair(ctx, tx, req.FromAccountID, req.ToAccountID)
		if err != nil {
			return err
		}

		if err := s.validate(req, src, dst); err != nil {
			return err
		}

		src.Balance = src.Balance.Sub(req.Amount)
		dst.Balance = dst.Balance.Add(req.Amount)
		if err := tx.UpdateAccount(ctx, src); err != nil {
			return err
		}
		if err := tx.UpdateAccount(ctx, dst); err != nil {
			return err
		}

		txn = &domain.Transaction{
			ID:            uuid.New(),
			FromAccountID: src.ID,
			ToAccountID:   dst.ID,
			Amount:        req.Amount,
			Status:        domain.TxSuccess,
			CreatedAt:     s.now(),
		}
		return tx.CreateTransaction(ctx, txn)
	})
	if err != nil {
		return nil, classify(err)
	}
	return txn, nil
}

// validate applies the account-level preconditions in their fixed order:
// existence, ownership, activity, then sufficiency.
func (s *TransferService) validate(req domain.TransferRequest, src, dst *domain.Account) error {
	if src == nil {
		return notFound(req.FromAccountID)
	}
	if dst == nil {
		return notFound(req.ToAccountID)
	}

	for _, a := range []*domain.Account{src, dst} {
		if a.OwnerID != req.ActorID {
			return &domain.Error{Kind: domain.KindUnauthorized, AccountID: a.ID, Reason: "account belongs to another user"}
		}
	}

	now := s.now()
	for _, a := range []*domain.Account{src, dst} {
		if !a.IsActive(now) {
			return &domain.Error{Kind: domain.KindInvalidState, AccountID: a.ID, Reason: a.InactiveReason(now)}
		}
	}

	if src.Balance.LessThan(req.Amount) {
		return &domain.Error{Kind: domain.KindInsufficientFunds, AccountID: src.ID}
	}
	return nil
}

// readPair reads both accounts in ascending id order so row locks taken by
// the store follow the same order as Locker. A missing account comes back nil.
func readPair(ctx context.Context, tx store.Tx, fromID, toID int64) (src, dst *domain.Account, err error) {
	lo, hi := fromID, toID
	if lo > hi {
		lo, hi = hi, lo
	}

	got := make(map[int64]*domain.Account, 2)
	for _, id := range []int64{lo, hi} {
		a, err := tx.GetAccount(ctx, id)
		if errors.Is(err, store.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		got[id] = a
	}
	return got[fromID], got[toID], nil
}
