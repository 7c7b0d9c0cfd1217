// Package ratelimit is the admission gate that bounds how often one actor may
// call the API, attempt a login, or start a transfer.
//
// Each actor key owns one State holding three fixed-window counters, one per
// Class. A counter resets lazily: the first access after its window has run
// out zeroes it and starts a new window at that instant.
//
// Fixed windows are not sliding windows. A burst that straddles a window
// boundary can be admitted up to twice the threshold (threshold requests at
// the end of one window, threshold more at the start of the next). Callers
// needing a strict bound over any interval must use a token bucket or a
// request log instead.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_ratelimit_decisions_total",
		Help: "Admission decisions, labeled by class and result",
	}, []string{"class", "result"})

	storeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_ratelimit_store_failures_total",
		Help: "Rate-limit state lookups that failed and were let through",
	})
)

// Class is a category of rate-limited operation.
type Class int

const (
	GeneralRequest Class = iota
	AuthAttempt
	Transfer

	numClasses = 3
)

func (c Class) String() string {
	switch c {
	case GeneralRequest:
		return "general_request"
	case AuthAttempt:
		return "auth_attempt"
	case Transfer:
		return "transfer"
	}
	return "unknown"
}

func (c Class) valid() bool { return c >= 0 && c < numClasses }

// Rule bounds one class to Threshold attempts per Window.
type Rule struct {
	Window    time.Duration
	Threshold int
}

// Rules holds one Rule per Class, indexed by Class.
type Rules [numClasses]Rule

func DefaultRules() Rules {
	return Rules{
		GeneralRequest: {Window: time.Minute, Threshold: 100},
		AuthAttempt:    {Window: time.Hour, Threshold: 5},
		Transfer:       {Window: 24 * time.Hour, Threshold: 10},
	}
}

// State is the per-actor window state. All three counters share one mutex,
// so a decision never sees a torn view of them.
type State struct {
	mu       sync.Mutex
	counters [numClasses]counter
}

type counter struct {
	count       int
	windowStart time.Time
}

func newState(now time.Time) *State {
	s := &State{}
	for i := range s.counters {
		s.counters[i].windowStart = now
	}
	return s
}

// resetExpired must be called with s.mu held.
func (s *State) resetExpired(now time.Time, rules *Rules) {
	for i := range s.counters {
		c := &s.counters[i]
		if now.Sub(c.windowStart) >= rules[i].Window {
			c.count = 0
			c.windowStart = now
		}
	}
}

// Limiter makes admission decisions. It never returns errors: when the
// backing Store fails, requests are let through.
type Limiter struct {
	rules  Rules
	store  Store
	logger *logrus.Logger
	now    func() time.Time
}

func New(store Store, rules Rules, logger *logrus.Logger) *Limiter {
	return &Limiter{rules: rules, store: store, logger: logger, now: time.Now}
}

// IsBlocked reports whether actorKey has used up its allowance for class.
// Unknown keys are not blocked.
func (l *Limiter) IsBlocked(actorKey string, class Class) bool {
	if !class.valid() {
		return false
	}
	st, ok, err := l.store.Get(actorKey)
	if err != nil {
		l.failOpen(err, actorKey, class)
		return false
	}
	if !ok {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.resetExpired(l.now(), &l.rules)
	return st.counters[class].count >= l.rules[class].Threshold
}

// RecordAttempt counts one attempt of class for actorKey.
func (l *Limiter) RecordAttempt(actorKey string, class Class) {
	if !class.valid() {
		return
	}
	st, err := l.load(actorKey)
	if err != nil {
		l.failOpen(err, actorKey, class)
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.resetExpired(l.now(), &l.rules)
	st.counters[class].count++
}

// Allow checks and, when admitted, records an attempt under a single hold of
// the actor's lock, so concurrent requests cannot all pass the same check.
func (l *Limiter) Allow(actorKey string, class Class) bool {
	if !class.valid() {
		return true
	}
	st, err := l.load(actorKey)
	if err != nil {
		l.failOpen(err, actorKey, class)
		return true
	}

	st.mu.Lock()
	st.resetExpired(l.now(), &l.rules)
	c := &st.counters[class]
	allowed := c.count < l.rules[class].Threshold
	if allowed {
		c.count++
	}
	st.mu.Unlock()

	result := "allowed"
	if !allowed {
		result = "blocked"
	}
	decisionsTotal.WithLabelValues(class.String(), result).Inc()
	return allowed
}

func (l *Limiter) load(actorKey string) (*State, error) {
	return l.store.GetOrCreate(actorKey, func() *State { return newState(l.now()) })
}

func (l *Limiter) failOpen(err error, actorKey string, class Class) {
	storeFailures.Inc()
	decisionsTotal.WithLabelValues(class.String(), "fail_open").Inc()
	l.logger.WithError(err).WithFields(logrus.Fields{
		"actor_key": actorKey,
		"class":     class.String(),
	}).Warn("rate limit state unavailable, allowing request")
}
