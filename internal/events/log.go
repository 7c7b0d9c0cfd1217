package events

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink writes every event as a structured log line. Failures log at warn.
type LogSink struct {
	logger *logrus.Logger
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, e Event) error {
	entry := s.logger.WithFields(logrus.Fields{
		"event_id": e.ID.String(),
		"kind":     e.Kind,
	})
	if e.ActorID != 0 {
		entry = entry.WithField("actor_id", e.ActorID)
	}
	if e.AccountID != 0 {
		entry = entry.WithField("account_id", e.AccountID)
	}
	if e.FromAccountID != 0 || e.ToAccountID != 0 {
		entry = entry.WithFields(logrus.Fields{
			"from_account_id": e.FromAccountID,
			"to_account_id":   e.ToAccountID,
			"amount":          e.Amount.String(),
		})
	}
	if e.TransactionID != "" {
		entry = entry.WithField("transaction_id", e.TransactionID)
	}
	if e.Detail != "" {
		entry = entry.WithField("detail", e.Detail)
	}

	if e.FailureKind != "" {
		entry.WithField("failure_kind", e.FailureKind).Warn("audit event")
		return nil
	}
	entry.Info("audit event")
	return nil
}
