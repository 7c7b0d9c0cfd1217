package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/cardledger/internal/api"
	"github.com/punchamoorthee/cardledger/internal/models"
)

type options struct {
	url       string
	workers   int
	duration  time.Duration
	workload  string
	accounts  int
	amount    string
	jwtSecret string
	hotShare  float64
}

// tally counts responses by outcome.
type tally struct {
	created      atomic.Uint64
	inactive     atomic.Uint64 // 409
	rejected     atomic.Uint64 // 422
	rateLimited  atomic.Uint64 // 429
	busy         atomic.Uint64 // 503
	other        atomic.Uint64
	transportErr atomic.Uint64
}

func (t *tally) record(code int) {
	switch code {
	case http.StatusCreated:
		t.created.Add(1)
	case http.StatusConflict:
		t.inactive.Add(1)
	case http.StatusUnprocessableEntity:
		t.rejected.Add(1)
	case http.StatusTooManyRequests:
		t.rateLimited.Add(1)
	case http.StatusServiceUnavailable:
		t.busy.Add(1)
	default:
		t.other.Add(1)
	}
}

type report struct {
	Workload      string  `json:"workload"`
	Workers       int     `json:"workers"`
	DurationSec   float64 `json:"duration_sec"`
	Requests      uint64  `json:"total_requests"`
	ThroughputTPS float64 `json:"throughput_tps"`
	Created       uint64  `json:"success_created"`
	Inactive      uint64  `json:"inactive_409"`
	Rejected      uint64  `json:"rejected_422"`
	RateLimited   uint64  `json:"rate_limited_429"`
	Busy          uint64  `json:"busy_503"`
	BusyRatePct   float64 `json:"busy_rate_pct"`
	Other         uint64  `json:"other_status"`
	TransportErrs uint64  `json:"transport_errors"`
}

func main() {
	var opts options
	flag.StringVar(&opts.url, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&opts.workers, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&opts.workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&opts.accounts, "accounts", 1000, "Number of seeded accounts (pairs share an owner)")
	flag.StringVar(&opts.amount, "amount", "1.00", "Amount moved per transfer")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", os.Getenv("JWT_SECRET"), "Secret used to mint bearer tokens")
	flag.Float64Var(&opts.hotShare, "hot-share", 0.9, "Share of hotspot traffic sent to the first account pair")
	flag.Parse()

	logger := logrus.New()
	if opts.jwtSecret == "" {
		logger.Fatal("-jwt-secret or JWT_SECRET is required")
	}
	if opts.accounts < 2 {
		logger.Fatal("-accounts must be at least 2")
	}
	amount, err := decimal.NewFromString(opts.amount)
	if err != nil {
		logger.Fatalf("invalid -amount: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"workload": opts.workload,
		"workers":  opts.workers,
		"duration": opts.duration,
	}).Info("starting benchmark")

	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	var (
		counts tally
		wg     sync.WaitGroup
	)
	start := time.Now()
	for i := 0; i < opts.workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			w := &worker{opts: opts, amount: amount, counts: &counts, rng: rand.New(rand.NewSource(seed)), tokens: map[int64]string{}}
			if err := w.run(ctx); err != nil {
				logger.WithError(err).Error("worker stopped")
			}
		}(time.Now().UnixNano() + int64(i))
	}
	wg.Wait()

	if err := writeReport(summarize(opts, &counts, time.Since(start))); err != nil {
		logger.WithError(err).Error("could not write report")
	}
}

type worker struct {
	opts   options
	amount decimal.Decimal
	counts *tally
	rng    *rand.Rand
	client http.Client
	tokens map[int64]string
}

func (w *worker) run(ctx context.Context) error {
	w.client.Timeout = 5 * time.Second
	for ctx.Err() == nil {
		owner, from, to := w.pick()
		tok, err := w.token(owner)
		if err != nil {
			return err
		}

		body, err := json.Marshal(models.TransferRequest{FromAccountID: from, ToAccountID: to, Amount: &w.amount})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.opts.url+"/api/v1/transfers", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok)

		resp, err := w.client.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				w.counts.transportErr.Add(1)
			}
			continue
		}
		w.counts.record(resp.StatusCode)
		resp.Body.Close()
	}
	return nil
}

func (w *worker) token(owner int64) (string, error) {
	if tok, ok := w.tokens[owner]; ok {
		return tok, nil
	}
	tok, err := api.SignToken([]byte(w.opts.jwtSecret), owner, "", w.opts.duration+time.Hour)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	w.tokens[owner] = tok
	return tok, nil
}

// pick chooses an owner k and a direction between their accounts 2k-1 and 2k.
// The hotspot workload sends most traffic to owner 1.
func (w *worker) pick() (owner, from, to int64) {
	pairs := w.opts.accounts / 2
	if w.opts.workload == "hotspot" && w.rng.Float64() < w.opts.hotShare {
		owner = 1
	} else {
		owner = int64(w.rng.Intn(pairs) + 1)
	}

	from, to = 2*owner-1, 2*owner
	if w.rng.Intn(2) == 1 {
		from, to = to, from
	}
	return owner, from, to
}

func summarize(opts options, c *tally, elapsed time.Duration) report {
	r := report{
		Workload:      opts.workload,
		Workers:       opts.workers,
		DurationSec:   elapsed.Seconds(),
		Created:       c.created.Load(),
		Inactive:      c.inactive.Load(),
		Rejected:      c.rejected.Load(),
		RateLimited:   c.rateLimited.Load(),
		Busy:          c.busy.Load(),
		Other:         c.other.Load(),
		TransportErrs: c.transportErr.Load(),
	}
	r.Requests = r.Created + r.Inactive + r.Rejected + r.RateLimited + r.Busy + r.Other
	r.ThroughputTPS = float64(r.Requests) / elapsed.Seconds()
	if r.Requests > 0 {
		r.BusyRatePct = float64(r.Busy) / float64(r.Requests) * 100
	}
	return r
}

func writeReport(r report) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return err
	}

	f, err := os.Create(fmt.Sprintf("results_%s.json", r.Workload))
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(r)
}
