package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestIsExpired(t *testing.T) {
	expiry := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	a := &Account{Status: StatusActive, ExpiryDate: expiry}

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"day before", time.Date(2025, 6, 29, 12, 0, 0, 0, time.UTC), false},
		{"on expiry day", time.Date(2025, 6, 30, 23, 59, 0, 0, time.UTC), false},
		{"day after", time.Date(2025, 7, 1, 0, 0, 1, 0, time.UTC), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := a.IsExpired(tc.now); got != tc.want {
				t.Fatalf("IsExpired(%s)=%v want=%v", tc.now, got, tc.want)
			}
		})
	}
}

func TestIsActiveAndReason(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	future := now.AddDate(1, 0, 0)
	past := now.AddDate(0, 0, -1)

	cases := []struct {
		name   string
		acc    Account
		active bool
		reason string
	}{
		{"active", Account{Status: StatusActive, ExpiryDate: future}, true, ""},
		{"blocked", Account{Status: StatusBlocked, ExpiryDate: future}, false, "blocked"},
		{"expired status", Account{Status: StatusExpired, ExpiryDate: future}, false, "expired"},
		{"past expiry date", Account{Status: StatusActive, ExpiryDate: past}, false, "expired"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.acc.IsActive(now); got != tc.active {
				t.Fatalf("IsActive=%v want=%v", got, tc.active)
			}
			if got := tc.acc.InactiveReason(now); got != tc.reason {
				t.Fatalf("InactiveReason=%q want=%q", got, tc.reason)
			}
		})
	}
}

func TestValidAmount(t *testing.T) {
	cases := map[string]bool{
		"0.01":    true,
		"100":     true,
		"12.50":   true,
		"0":       false,
		"-5":      false,
		"0.001":   false,
		"10.125":  false,
		"1000000": true,
	}
	for in, want := range cases {
		if got := ValidAmount(decimal.RequireFromString(in)); got != want {
			t.Errorf("ValidAmount(%s)=%v want=%v", in, got, want)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []AccountStatus{StatusActive, StatusBlocked, StatusExpired} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if AccountStatus("FROZEN").Valid() {
		t.Error("FROZEN should not be valid")
	}
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindStoreUnavailable, Err: cause})

	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatal("expected match on kind sentinel")
	}
	if errors.Is(err, ErrBusy) {
		t.Fatal("matched the wrong kind")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause should stay reachable through Unwrap")
	}
	if KindOf(err) != KindStoreUnavailable {
		t.Fatalf("KindOf=%s", KindOf(err))
	}
	if KindOf(cause) != KindUnknown {
		t.Fatalf("plain error should be unknown, got %s", KindOf(cause))
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindInvalidState, AccountID: 7, Reason: "blocked"}
	if got, want := err.Error(), "invalid_state: account 7: blocked"; got != want {
		t.Fatalf("Error()=%q want=%q", got, want)
	}
}

func TestPublicMessageHidesInternals(t *testing.T) {
	// Store failures and unknown errors share one generic message.
	if KindStoreUnavailable.PublicMessage() != KindUnknown.PublicMessage() {
		t.Fatal("store failures should not get a distinct public message")
	}
	if KindNotFound.PublicMessage() != "Account not found" {
		t.Fatalf("unexpected message %q", KindNotFound.PublicMessage())
	}
}
