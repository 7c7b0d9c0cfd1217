package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/cardledger/internal/domain"
)

var (
	transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transfers_total",
		Help: "Transfers attempted, labeled by outcome (success or failure kind)",
	}, []string{"outcome"})

	transferDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_transfer_duration_seconds",
		Help:    "Transfer latency including lock wait",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
	}, []string{"outcome"})
)

// InstrumentedTransferer logs and measures every call to the wrapped Transferer.
type InstrumentedTransferer struct {
	next   Transferer
	logger *logrus.Logger
}

func Instrument(next Transferer, logger *logrus.Logger) *InstrumentedTransferer {
	return &InstrumentedTransferer{next: next, logger: logger}
}

func (t *InstrumentedTransferer) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.Transaction, error) {
	entry := t.logger.WithFields(logrus.Fields{
		"actor_id":        req.ActorID,
		"from_account_id": req.FromAccountID,
		"to_account_id":   req.ToAccountID,
		"amount":          req.Amount.String(),
	})
	entry.Debug("transfer initiated")

	start := time.Now()
	txn, err := t.next.Transfer(ctx, req)
	elapsed := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = domain.KindOf(err).String()
	}
	transfersTotal.WithLabelValues(outcome).Inc()
	transferDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	entry = entry.WithField("duration_ms", elapsed.Milliseconds())
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindStoreUnavailable, domain.KindUnknown:
			entry.WithError(err).Error("transfer failed")
		default:
			entry.WithError(err).Warn("transfer rejected")
		}
		return nil, err
	}

	entry.WithField("transaction_id", txn.ID.String()).Info("transfer completed")
	return txn, nil
}
