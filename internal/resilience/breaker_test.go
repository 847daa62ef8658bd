package resilience

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/souqline/entitlements/internal/clock"
)

func TestBreakerTripAndLazyClose(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	b := NewBreaker(time.Minute, clk)

	if !b.Allow() {
		t.Fatal("fresh breaker must allow")
	}

	if !b.Trip(context.DeadlineExceeded) {
		t.Fatal("deadline exceeded must trip")
	}
	if b.Allow() {
		t.Fatal("tripped breaker must suppress within cooldown")
	}

	clk.Advance(30 * time.Second)
	if b.Allow() {
		t.Fatal("still inside cooldown")
	}

	clk.Advance(31 * time.Second)
	if !b.Allow() {
		t.Fatal("cooldown elapsed, breaker must allow again")
	}
}

func TestBreakerIgnoresNonTransient(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	b := NewBreaker(time.Minute, clk)

	if b.Trip(errors.New("bad payload")) {
		t.Fatal("logical errors must not trip the breaker")
	}
	if !b.Allow() {
		t.Fatal("breaker must stay closed")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, true},
		{"net timeout", net.Error(timeoutErr{}), true},
		{"wrapped deadline", errors.Join(errors.New("op"), context.DeadlineExceeded), true},
		{"logical", errors.New("quota exceeded"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("%s: IsTransient=%v want %v", tc.name, got, tc.want)
		}
	}
}
