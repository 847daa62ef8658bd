package registry

import (
	"context"
	"testing"
	"time"

	"github.com/souqline/entitlements/internal/clock"
	"go.uber.org/zap"
)

func TestActivateOnFirstTouchOnly(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	activated := 0
	r := New("subscription", Hooks{
		OnActivate: func(ctx context.Context, id string) { activated++ },
	}, time.Hour, clk, zap.NewNop())

	ctx := context.Background()
	r.Touch(ctx, "e1")
	r.Touch(ctx, "e1")
	r.Touch(ctx, "e1")

	if activated != 1 {
		t.Fatalf("activation hook ran %d times, want 1", activated)
	}
}

func TestSweepEvictsIdle(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	var deactivated []string
	r := New("subscription", Hooks{
		OnDeactivate: func(id string) { deactivated = append(deactivated, id) },
	}, 20*time.Minute, clk, zap.NewNop())

	ctx := context.Background()
	r.Touch(ctx, "idle")
	clk.Advance(15 * time.Minute)
	r.Touch(ctx, "busy")
	clk.Advance(10 * time.Minute)

	if n := r.SweepOnce(); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if len(deactivated) != 1 || deactivated[0] != "idle" {
		t.Fatalf("wrong eviction set: %v", deactivated)
	}
	if r.Active("idle") || !r.Active("busy") {
		t.Fatal("wrong entities tracked after sweep")
	}
}

func TestEvictedEntityReActivates(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	activated := 0
	r := New("addon", Hooks{
		OnActivate: func(ctx context.Context, id string) { activated++ },
	}, 10*time.Minute, clk, zap.NewNop())

	ctx := context.Background()
	r.Touch(ctx, "e1")
	clk.Advance(time.Hour)
	r.SweepOnce()
	r.Touch(ctx, "e1")

	if activated != 2 {
		t.Fatalf("re-touch after eviction must re-activate, got %d activations", activated)
	}
}

func TestRemoveSkipsDeactivationHook(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	deactivated := 0
	r := New("payment", Hooks{
		OnDeactivate: func(id string) { deactivated++ },
	}, time.Hour, clk, zap.NewNop())

	r.Touch(context.Background(), "e1")
	r.Remove("e1")

	if r.Active("e1") {
		t.Fatal("removed entity still tracked")
	}
	if deactivated != 0 {
		t.Fatal("remove must not run the deactivation hook")
	}
}
