package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/punchamoorthee/cardledger/internal/domain"
	"github.com/punchamoorthee/cardledger/internal/events"
	"github.com/punchamoorthee/cardledger/internal/store"
)

// fixedStats answers TransactionStats with canned numbers.
type fixedStats struct {
	*store.MemoryStore
	stats domain.TransactionStats
	err   error

	from, to time.Time
	ownerID  int64
}

func (s *fixedStats) TransactionStats(ctx context.Context, from, to time.Time, ownerID int64) (domain.TransactionStats, error) {
	s.from, s.to, s.ownerID = from, to, ownerID
	return s.stats, s.err
}

func transferN(t *testing.T, s store.Store, from, to int64, amounts ...string) {
	t.Helper()
	svc := NewTransferService(s, NewLocker(time.Second), events.Discard)
	for _, amt := range amounts {
		if _, err := svc.Transfer(context.Background(), domain.TransferRequest{ActorID: 1, FromAccountID: from, ToAccountID: to, Amount: dec(amt)}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDailyReport(t *testing.T) {
	s := store.NewMemoryStore()
	a := seed(t, s, 1, "100")
	b := seed(t, s, 1, "0")
	transferN(t, s, a.ID, b.ID, "10.00", "5.00", "0.01")

	r := NewReportService(s)
	got, err := r.DailyReport(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Total != 3 || got.Successful != 3 || got.Failed != 0 {
		t.Fatalf("report=%+v", got)
	}
	if !got.TotalAmount.Equal(dec("15.01")) || !got.SuccessRate.Equal(dec("100")) {
		t.Fatalf("amount=%s rate=%s", got.TotalAmount, got.SuccessRate)
	}

	quiet, err := r.DailyReport(context.Background(), time.Now().AddDate(0, 0, -3))
	if err != nil {
		t.Fatal(err)
	}
	if quiet.Total != 0 || !quiet.SuccessRate.IsZero() || !quiet.TotalAmount.IsZero() {
		t.Fatalf("quiet day=%+v", quiet)
	}
}

func TestDailyReportCoversWholeDay(t *testing.T) {
	fs := &fixedStats{MemoryStore: store.NewMemoryStore(), stats: domain.TransactionStats{Count: 3, Successful: 2, Total: dec("10")}}
	r := NewReportService(fs)
	loc := time.FixedZone("UTC+3", 3*3600)
	r.now = func() time.Time { return time.Date(2026, 7, 1, 22, 30, 0, 0, loc) }

	got, err := r.DailyReport(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	wantFrom := time.Date(2026, 7, 1, 0, 0, 0, 0, loc)
	if !fs.from.Equal(wantFrom) || !fs.to.Equal(wantFrom.AddDate(0, 0, 1)) || fs.ownerID != 0 {
		t.Fatalf("range [%s, %s) owner=%d", fs.from, fs.to, fs.ownerID)
	}
	if got.Failed != 1 || !got.SuccessRate.Equal(dec("66.67")) {
		t.Fatalf("failed=%d rate=%s", got.Failed, got.SuccessRate)
	}

	fs.err = errors.New("connection reset")
	_, err = r.DailyReport(context.Background(), time.Time{})
	wantKind(t, err, domain.KindStoreUnavailable)
}

func TestUserStats(t *testing.T) {
	s := store.NewMemoryStore()
	a := seed(t, s, 1, "100")
	b := seed(t, s, 1, "0")
	seed(t, s, 2, "50")
	transferN(t, s, a.ID, b.ID, "10.00", "5.00", "5.00")

	r := NewReportService(s)
	r.now = func() time.Time { return time.Now().Add(time.Minute) }

	got, err := r.UserStats(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Period != "LAST_30_DAYS" || got.Total != 3 || !got.TotalAmount.Equal(dec("20")) || !got.AverageAmount.Equal(dec("6.67")) {
		t.Fatalf("stats=%+v", got)
	}

	other, _ := r.UserStats(context.Background(), 2)
	if other.Total != 0 || !other.AverageAmount.IsZero() {
		t.Fatalf("other=%+v", other)
	}

	// Transfers older than the look-back window drop out.
	r.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	if old, _ := r.UserStats(context.Background(), 1); old.Total != 0 {
		t.Fatalf("old=%+v", old)
	}

	_, err = r.UserStats(context.Background(), 0)
	wantKind(t, err, domain.KindInvalidArgument)
}
