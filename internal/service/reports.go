package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/cardledger/internal/domain"
	"github.com/punchamoorthee/cardledger/internal/store"
)

// StatsPeriod is the look-back window of UserStats.
const StatsPeriod = 30 * 24 * time.Hour

// ReportService builds read-only summaries of the transfer history.
type ReportService struct {
	store store.Store
	now   func() time.Time
}

func NewReportService(s store.Store) *ReportService {
	return &ReportService{store: s, now: time.Now}
}

// DailyReport covers the calendar day containing day, in day's location. A
// zero day means today.
func (s *ReportService) DailyReport(ctx context.Context, day time.Time) (*domain.DailyReport, error) {
	if day.IsZero() {
		day = s.now()
	}
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())

	st, err := s.store.TransactionStats(ctx, start, start.AddDate(0, 0, 1), 0)
	if err != nil {
		return nil, classify(err)
	}

	r := &domain.DailyReport{
		Date:        start,
		Total:       st.Count,
		Successful:  st.Successful,
		Failed:      st.Count - st.Successful,
		TotalAmount: st.Total,
		SuccessRate: decimal.Zero,
	}
	if st.Count > 0 {
		r.SuccessRate = decimal.NewFromInt(st.Successful).Mul(decimal.NewFromInt(100)).
			DivRound(decimal.NewFromInt(st.Count), domain.MoneyScale)
	}
	return r, nil
}

// UserStats covers the transfers touching userID's accounts over the last
// StatsPeriod.
func (s *ReportService) UserStats(ctx context.Context, userID int64) (*domain.UserStats, error) {
	if userID <= 0 {
		return nil, invalidArgument("user is required")
	}
	now := s.now()
	st, err := s.store.TransactionStats(ctx, now.Add(-StatsPeriod), now, userID)
	if err != nil {
		return nil, classify(err)
	}

	u := &domain.UserStats{
		UserID:        userID,
		Period:        "LAST_30_DAYS",
		Total:         st.Count,
		TotalAmount:   st.Total,
		AverageAmount: decimal.Zero,
	}
	if st.Count > 0 {
		u.AverageAmount = st.Total.DivRound(decimal.NewFromInt(st.Count), domain.MoneyScale)
	}
	return u, nil
}
