package statecell

import (
	"context"
	"testing"
	"time"

	"github.com/souqline/entitlements/internal/clock"
	"github.com/souqline/entitlements/internal/resilience"
	"github.com/souqline/entitlements/internal/store/memstore"
	"go.uber.org/zap"
)

type testRecord struct {
	ID          string    `json:"id"`
	Payload     string    `json:"payload"`
	LastUpdated time.Time `json:"last_updated"`
}

func testConfig() Config[testRecord] {
	return Config[testRecord]{
		Kind:     "test",
		StateKey: "test-data",
		Touch:    func(r *testRecord, now time.Time) { r.LastUpdated = now },
		Version:  func(r *testRecord) time.Time { return r.LastUpdated },
		Clone:    func(r *testRecord) *testRecord { cp := *r; return &cp },
	}
}

func newTestCell(clk clock.Clock, st *memstore.Store) *Cell[testRecord] {
	breaker := resilience.NewBreaker(time.Minute, clk)
	gate := resilience.NewGate(5, 500*time.Millisecond)
	return New(testConfig(), st, gate, breaker, clk, zap.NewNop())
}

func TestSetAlwaysAcceptsAndGetReadsBack(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	st := memstore.New()
	cell := newTestCell(clk, st)
	ctx := context.Background()

	rec := &testRecord{ID: "e1", Payload: "hello"}
	if err := cell.Set(ctx, "e1", rec); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok := cell.Get(ctx, "e1")
	if !ok {
		t.Fatal("expected read-after-write hit")
	}
	if got.Payload != "hello" {
		t.Fatalf("unexpected payload %q", got.Payload)
	}
	if !got.LastUpdated.Equal(clk.Now()) {
		t.Fatalf("lastUpdated not stamped: %v", got.LastUpdated)
	}
}

func TestSetNilIsProgrammingError(t *testing.T) {
	cell := newTestCell(clock.NewFakeClock(time.Now()), memstore.New())
	if err := cell.Set(context.Background(), "e1", nil); err != ErrNilRecord {
		t.Fatalf("expected ErrNilRecord, got %v", err)
	}
}

func TestSetSurvivesStoreTimeout(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	st := memstore.New()
	cell := newTestCell(clk, st)
	ctx := context.Background()

	st.FailWith(context.DeadlineExceeded)

	rec := &testRecord{ID: "e1", Payload: "degraded"}
	if err := cell.Set(ctx, "e1", rec); err != nil {
		t.Fatalf("set must be accepted despite store timeout: %v", err)
	}

	got, ok := cell.Get(ctx, "e1")
	if !ok || got.Payload != "degraded" {
		t.Fatalf("expected cache fallback hit, got ok=%v", ok)
	}
}

func TestBreakerSuppressesStoreCalls(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	st := memstore.New()
	cell := newTestCell(clk, st)
	ctx := context.Background()

	st.FailWith(context.DeadlineExceeded)
	if err := cell.Set(ctx, "e1", &testRecord{ID: "e1"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	st.FailWith(nil)
	gets, sets, _ := st.Calls()

	// Inside the cooldown window neither gets nor sets may reach the store.
	if _, ok := cell.Get(ctx, "other"); ok {
		t.Fatal("uncached id must miss while breaker is open")
	}
	if err := cell.Set(ctx, "e2", &testRecord{ID: "e2"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	gets2, sets2, _ := st.Calls()
	if gets2 != gets || sets2 != sets {
		t.Fatalf("store called while breaker open: gets %d->%d sets %d->%d", gets, gets2, sets, sets2)
	}

	// After the cooldown the next operation goes through again.
	clk.Advance(61 * time.Second)
	if err := cell.Set(ctx, "e3", &testRecord{ID: "e3"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	_, sets3, _ := st.Calls()
	if sets3 != sets+1 {
		t.Fatalf("expected store write after cooldown, sets %d->%d", sets, sets3)
	}
}

func TestGetLoadsFromStoreAndCaches(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	st := memstore.New()

	writer := newTestCell(clk, st)
	if err := writer.Set(context.Background(), "e1", &testRecord{ID: "e1", Payload: "persisted"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Fresh cell with a cold cache reads through.
	reader := newTestCell(clk, st)
	got, ok := reader.Get(context.Background(), "e1")
	if !ok || got.Payload != "persisted" {
		t.Fatalf("expected store read-through, ok=%v", ok)
	}

	gets, _, _ := st.Calls()
	if _, ok := reader.Get(context.Background(), "e1"); !ok {
		t.Fatal("expected cache hit")
	}
	gets2, _, _ := st.Calls()
	if gets2 != gets {
		t.Fatal("second Get must be served from cache")
	}
}

func TestGetHandsOutPrivateCopies(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	cell := newTestCell(clk, memstore.New())
	ctx := context.Background()

	if err := cell.Set(ctx, "e1", &testRecord{ID: "e1", Payload: "original"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok := cell.Get(ctx, "e1")
	if !ok {
		t.Fatal("expected hit")
	}
	got.Payload = "mutated"

	again, ok := cell.Get(ctx, "e1")
	if !ok {
		t.Fatal("expected hit")
	}
	if again.Payload != "original" {
		t.Fatalf("cached record mutated through returned pointer: %q", again.Payload)
	}
}

func TestDeleteRemovesCacheAndStore(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	st := memstore.New()
	cell := newTestCell(clk, st)
	ctx := context.Background()

	if err := cell.Set(ctx, "e1", &testRecord{ID: "e1"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	cell.Delete(ctx, "e1")

	if _, ok := cell.Get(ctx, "e1"); ok {
		t.Fatal("deleted entity still readable")
	}
	if st.Len() != 0 {
		t.Fatalf("store still holds %d keys", st.Len())
	}
}
