package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/cardledger/internal/domain"
	"github.com/punchamoorthee/cardledger/internal/events"
	"github.com/punchamoorthee/cardledger/internal/store"
)

// recorder is a Notifier that keeps every event for inspection.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Notify(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recorder) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seed(t *testing.T, s store.Store, owner int64, balance string, mod ...func(*domain.Account)) *domain.Account {
	t.Helper()
	a := &domain.Account{
		OwnerID:    owner,
		Balance:    dec(balance),
		Status:     domain.StatusActive,
		ExpiryDate: time.Now().AddDate(2, 0, 0),
	}
	for _, m := range mod {
		m(a)
	}
	if err := s.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return a
}

func balanceOf(t *testing.T, s store.Store, id int64) decimal.Decimal {
	t.Helper()
	a, err := s.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("get account %d: %v", id, err)
	}
	return a.Balance
}

func historyLen(t *testing.T, s store.Store, id int64) int {
	t.Helper()
	txns, err := s.ListTransactions(context.Background(), id)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	return len(txns)
}

func wantKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("kind=%s want=%s (err=%v)", got, kind, err)
	}
}

type fixture struct {
	store  *store.MemoryStore
	events *recorder
	svc    *TransferService
}

func newFixture(lockTimeout time.Duration) *fixture {
	s := store.NewMemoryStore()
	rec := &recorder{}
	return &fixture{store: s, events: rec, svc: NewTransferService(s, NewLocker(lockTimeout), rec)}
}

func TestTransferSuccess(t *testing.T) {
	f := newFixture(time.Second)
	a := seed(t, f.store, 1, "100.00")
	b := seed(t, f.store, 1, "0.00")

	txn, err := f.svc.Transfer(context.Background(), domain.TransferRequest{ActorID: 1, FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("40.00")})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if txn.Status != domain.TxSuccess || txn.FromAccountID != a.ID || txn.ToAccountID != b.ID || !txn.Amount.Equal(dec("40")) {
		t.Fatalf("unexpected transaction %+v", txn)
	}
	if got := balanceOf(t, f.store, a.ID); !got.Equal(dec("60")) {
		t.Fatalf("A=%s want=60.00", got)
	}
	if got := balanceOf(t, f.store, b.ID); !got.Equal(dec("40")) {
		t.Fatalf("B=%s want=40.00", got)
	}

	txns, _ := f.store.ListTransactions(context.Background(), a.ID)
	if len(txns) != 1 || txns[0].ID != txn.ID {
		t.Fatalf("history=%+v", txns)
	}

	ev := f.events.last()
	if ev.Kind != events.TransferCompleted || ev.TransactionID != txn.ID.String() {
		t.Fatalf("event=%+v", ev)
	}
}

func TestTransferRejections(t *testing.T) {
	yesterday := func(a *domain.Account) { a.ExpiryDate = time.Now().AddDate(0, 0, -1) }
	blocked := func(a *domain.Account) { a.Status = domain.StatusBlocked }

	f := newFixture(time.Second)
	a := seed(t, f.store, 1, "100.00")
	b := seed(t, f.store, 1, "0.00")
	c := seed(t, f.store, 1, "50.00", blocked)
	e := seed(t, f.store, 1, "50.00", yesterday)
	other := seed(t, f.store, 2, "50.00")

	cases := []struct {
		name      string
		from, to  int64
		amount    string
		kind      domain.Kind
		accountID int64
	}{
		{"insufficient funds", a.ID, b.ID, "150.00", domain.KindInsufficientFunds, a.ID},
		{"blocked source", c.ID, b.ID, "10.00", domain.KindInvalidState, c.ID},
		{"blocked destination", a.ID, c.ID, "10.00", domain.KindInvalidState, c.ID},
		{"expired source", e.ID, b.ID, "10.00", domain.KindInvalidState, e.ID},
		{"same account", a.ID, a.ID, "10.00", domain.KindInvalidArgument, 0},
		{"zero amount", a.ID, b.ID, "0", domain.KindInvalidArgument, 0},
		{"negative amount", a.ID, b.ID, "-1", domain.KindInvalidArgument, 0},
		{"sub-cent amount", a.ID, b.ID, "0.001", domain.KindInvalidArgument, 0},
		{"missing source", 999, b.ID, "10.00", domain.KindNotFound, 999},
		{"missing destination", a.ID, 998, "10.00", domain.KindNotFound, 998},
		{"foreign destination", a.ID, other.ID, "10.00", domain.KindUnauthorized, other.ID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := map[int64]decimal.Decimal{}
			for _, id := range []int64{a.ID, b.ID, c.ID, e.ID, other.ID} {
				before[id] = balanceOf(t, f.store, id)
			}

			_, err := f.svc.Transfer(context.Background(), domain.TransferRequest{ActorID: 1, FromAccountID: tc.from, ToAccountID: tc.to, Amount: dec(tc.amount)})
			wantKind(t, err, tc.kind)

			var de *domain.Error
			if errors.As(err, &de) && de.AccountID != tc.accountID {
				t.Fatalf("error names account %d want=%d", de.AccountID, tc.accountID)
			}
			for id, bal := range before {
				if got := balanceOf(t, f.store, id); !got.Equal(bal) {
					t.Fatalf("account %d changed from %s to %s", id, bal, got)
				}
			}
			if n := historyLen(t, f.store, a.ID); n != 0 {
				t.Fatalf("unexpected transactions: %d", n)
			}

			ev := f.events.last()
			if ev.Kind != events.TransferFailed || ev.FailureKind != tc.kind.String() {
				t.Fatalf("failure event=%+v", ev)
			}
		})
	}
}

func TestTransferChecksExistenceBeforeOwnership(t *testing.T) {
	f := newFixture(time.Second)
	other := seed(t, f.store, 2, "50.00")

	// The destination is missing and the source is foreign: NotFound wins.
	_, err := f.svc.Transfer(context.Background(), domain.TransferRequest{ActorID: 1, FromAccountID: other.ID, ToAccountID: 777, Amount: dec("1")})
	wantKind(t, err, domain.KindNotFound)
}

func TestTransferUsesInjectedClockForExpiry(t *testing.T) {
	f := newFixture(time.Second)
	// Both dates fall well inside the destination's two-year validity.
	y, m, d := time.Now().AddDate(0, 0, 10).Date()
	expiry := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	a := seed(t, f.store, 1, "100", func(a *domain.Account) { a.ExpiryDate = expiry })
	b := seed(t, f.store, 1, "0")
	req := domain.TransferRequest{ActorID: 1, FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("1")}

	f.svc.now = func() time.Time { return expiry.Add(20 * time.Hour) }
	if _, err := f.svc.Transfer(context.Background(), req); err != nil {
		t.Fatalf("transfer on expiry day: %v", err)
	}

	f.svc.now = func() time.Time { return expiry.AddDate(0, 0, 1) }
	_, err := f.svc.Transfer(context.Background(), req)
	wantKind(t, err, domain.KindInvalidState)
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	f := newFixture(5 * time.Second)
	a := seed(t, f.store, 1, "100.00")
	b := seed(t, f.store, 1, "0.00")
	d := seed(t, f.store, 1, "0.00")

	// Two transfers of 60 against a balance of 100: exactly one wins.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, to := range []int64{b.ID, d.ID} {
		wg.Add(1)
		go func(i int, to int64) {
			defer wg.Done()
			_, errs[i] = f.svc.Transfer(context.Background(), domain.TransferRequest{ActorID: 1, FromAccountID: a.ID, ToAccountID: to, Amount: dec("60.00")})
		}(i, to)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case domain.KindOf(err) == domain.KindInsufficientFunds:
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("ok=%d insufficient=%d", ok, insufficient)
	}
	if got := balanceOf(t, f.store, a.ID); !got.Equal(dec("40")) {
		t.Fatalf("A=%s want=40.00", got)
	}
	total := balanceOf(t, f.store, a.ID).Add(balanceOf(t, f.store, b.ID)).Add(balanceOf(t, f.store, d.ID))
	if !total.Equal(dec("100")) {
		t.Fatalf("total=%s want=100", total)
	}
}

func TestManyConcurrentDebits(t *testing.T) {
	f := newFixture(5 * time.Second)
	a := seed(t, f.store, 1, "100.00")
	b := seed(t, f.store, 1, "0.00")

	const workers = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer(context.Background(), domain.TransferRequest{ActorID: 1, FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("7.00")})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if domain.KindOf(err) != domain.KindInsufficientFunds {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// 100 / 7 leaves 2.00 after 14 debits.
	if succeeded != 14 {
		t.Fatalf("succeeded=%d want=14", succeeded)
	}
	if got := balanceOf(t, f.store, a.ID); !got.Equal(dec("2")) {
		t.Fatalf("A=%s want=2.00", got)
	}
	if got := balanceOf(t, f.store, b.ID); !got.Equal(dec("98")) {
		t.Fatalf("B=%s want=98.00", got)
	}
	if n := historyLen(t, f.store, a.ID); n != succeeded {
		t.Fatalf("transactions=%d want=%d", n, succeeded)
	}
}

func TestOpposingTransfersDoNotDeadlock(t *testing.T) {
	f := newFixture(5 * time.Second)
	a := seed(t, f.store, 1, "100.00")
	b := seed(t, f.store, 1, "100.00")

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		from, to := a.ID, b.ID
		if i%2 == 1 {
			from, to = to, from
		}
		wg.Add(1)
		go func(from, to int64) {
			defer wg.Done()
			if _, err := f.svc.Transfer(context.Background(), domain.TransferRequest{ActorID: 1, FromAccountID: from, ToAccountID: to, Amount: dec("1.00")}); err != nil {
				t.Errorf("transfer %d->%d: %v", from, to, err)
			}
		}(from, to)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("transfers did not finish")
	}

	total := balanceOf(t, f.store, a.ID).Add(balanceOf(t, f.store, b.ID))
	if !total.Equal(dec("200")) {
		t.Fatalf("total=%s want=200", total)
	}
}

func TestTransferBusyWhenLockHeld(t *testing.T) {
	f := newFixture(20 * time.Millisecond)
	a := seed(t, f.store, 1, "100.00")
	b := seed(t, f.store, 1, "0.00")

	unlock, err := f.svc.locker.Lock(context.Background(), b.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	_, err = f.svc.Transfer(context.Background(), domain.TransferRequest{ActorID: 1, FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("10")})
	wantKind(t, err, domain.KindBusy)
	if got := balanceOf(t, f.store, a.ID); !got.Equal(dec("100")) {
		t.Fatalf("A=%s want=100", got)
	}
}

// faultyStore fails selected Tx calls after delegating reads to a MemoryStore.
type faultyStore struct {
	*store.MemoryStore
	updateErr error
	createErr error
}

func (s *faultyStore) InTx(ctx context.Context, fn func(store.Tx) error) error {
	return s.MemoryStore.InTx(ctx, func(tx store.Tx) error {
		return fn(&faultyTx{Tx: tx, s: s})
	})
}

type faultyTx struct {
	store.Tx
	s *faultyStore
}

func (t *faultyTx) UpdateAccount(ctx context.Context, a *domain.Account) error {
	if t.s.updateErr != nil {
		return t.s.updateErr
	}
	return t.Tx.UpdateAccount(ctx, a)
}

func (t *faultyTx) CreateTransaction(ctx context.Context, tr *domain.Transaction) error {
	if t.s.createErr != nil {
		return t.s.createErr
	}
	return t.Tx.CreateTransaction(ctx, tr)
}

func TestTransferRollsBackOnStoreFailure(t *testing.T) {
	fs := &faultyStore{MemoryStore: store.NewMemoryStore(), createErr: errors.New("disk full")}
	rec := &recorder{}
	svc := NewTransferService(fs, NewLocker(time.Second), rec)
	a := seed(t, fs, 1, "100.00")
	b := seed(t, fs, 1, "0.00")

	_, err := svc.Transfer(context.Background(), domain.TransferRequest{ActorID: 1, FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("40")})
	wantKind(t, err, domain.KindStoreUnavailable)

	if got := balanceOf(t, fs, a.ID); !got.Equal(dec("100")) {
		t.Fatalf("A=%s want=100", got)
	}
	if got := balanceOf(t, fs, b.ID); !got.Equal(dec("0")) {
		t.Fatalf("B=%s want=0", got)
	}
	if n := historyLen(t, fs, a.ID); n != 0 {
		t.Fatalf("transactions=%d want=0", n)
	}
	if ev := rec.last(); ev.FailureKind != domain.KindStoreUnavailable.String() {
		t.Fatalf("event=%+v", ev)
	}
}

func TestTransferConflictIsBusy(t *testing.T) {
	fs := &faultyStore{MemoryStore: store.NewMemoryStore(), updateErr: store.ErrConflict}
	svc := NewTransferService(fs, NewLocker(time.Second), events.Discard)
	a := seed(t, fs, 1, "100.00")
	b := seed(t, fs, 1, "0.00")

	_, err := svc.Transfer(context.Background(), domain.TransferRequest{ActorID: 1, FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("40")})
	wantKind(t, err, domain.KindBusy)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("conflict cause lost: %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind domain.Kind
	}{
		{store.ErrConflict, domain.KindBusy},
		{store.ErrAccountNotFound, domain.KindNotFound},
		{context.DeadlineExceeded, domain.KindBusy},
		{errors.New("connection refused"), domain.KindStoreUnavailable},
		{&domain.Error{Kind: domain.KindInsufficientFunds}, domain.KindInsufficientFunds},
	}
	for _, tc := range cases {
		if got := domain.KindOf(classify(tc.err)); got != tc.kind {
			t.Errorf("classify(%v)=%s want=%s", tc.err, got, tc.kind)
		}
	}
	if classify(nil) != nil {
		t.Error("classify(nil) should be nil")
	}
}
