package service

import (
	"context"
	"errors"

	"github.com/punchamoorthee/cardledger/internal/domain"
	"github.com/punchamoorthee/cardledger/internal/store"
)

// classify maps whatever came out of a locked store transaction onto the
// domain error kinds. The store has already rolled back when this runs.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrConflict):
		return &domain.Error{Kind: domain.KindBusy, Reason: "concurrent update", Err: err}
	case errors.Is(err, store.ErrAccountNotFound):
		return &domain.Error{Kind: domain.KindNotFound, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		// Stores stop honouring the context at commit, so this only covers
		// work abandoned before anything was written.
		return &domain.Error{Kind: domain.KindBusy, Reason: "request deadline reached", Err: err}
	}
	return &domain.Error{Kind: domain.KindStoreUnavailable, Err: err}
}

func notFound(id int64) error {
	return &domain.Error{Kind: domain.KindNotFound, AccountID: id}
}

func invalidArgument(reason string) error {
	return &domain.Error{Kind: domain.KindInvalidArgument, Reason: reason}
}
