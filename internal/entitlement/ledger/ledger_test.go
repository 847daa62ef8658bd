package ledger

import (
	"testing"
	"time"

	"github.com/souqline/entitlements/internal/entitlement/domain"
)

func activeRecord(now time.Time, quota domain.Quota) *domain.Record {
	return &domain.Record{
		ID:        "e1",
		OwnerID:   "u1",
		Status:    domain.StatusActive,
		StartDate: now.Add(-time.Hour),
		EndDate:   now.Add(10 * 24 * time.Hour),
		Quota:     quota,
	}
}

func TestValidateThenRecordThenExhausted(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := activeRecord(now, domain.Quota{domain.ActionPublish: 1})

	if !Validate(rec, domain.ActionPublish, 1, now) {
		t.Fatal("validate should pass with budget 1")
	}
	if !Apply(rec, domain.ActionPublish, 1, now) {
		t.Fatal("first record should succeed")
	}
	if got := rec.Quota.Remaining(domain.ActionPublish); got != 0 {
		t.Fatalf("budget should be 0, got %v", got)
	}
	if Apply(rec, domain.ActionPublish, 1, now) {
		t.Fatal("second record must be rejected")
	}
	if got := rec.Quota.Remaining(domain.ActionPublish); got != 0 {
		t.Fatalf("rejected apply must leave budget unchanged, got %v", got)
	}
}

func TestQuotaNeverNegative(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := activeRecord(now, domain.Quota{domain.ActionPromote: 5})

	amounts := []float64{2, 1.5, 0.2, 3, 1, 1}
	for _, amount := range amounts {
		Apply(rec, domain.ActionPromote, amount, now)
		if got := rec.Quota.Remaining(domain.ActionPromote); got < 0 {
			t.Fatalf("budget went negative: %v", got)
		}
	}
}

func TestFractionalAmountsRoundUp(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := activeRecord(now, domain.Quota{domain.ActionFeature: 1})

	// 0.5 costs ceil(0.5) = 1.
	if !Apply(rec, domain.ActionFeature, 0.5, now) {
		t.Fatal("apply 0.5 should succeed with budget 1")
	}
	if got := rec.Quota.Remaining(domain.ActionFeature); got != 0 {
		t.Fatalf("fractional usage must cost a full unit, remaining %v", got)
	}
}

func TestExpiredOrInactiveRejected(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	expired := activeRecord(now, domain.Quota{domain.ActionPublish: 10})
	expired.IsExpired = true
	if Validate(expired, domain.ActionPublish, 1, now) {
		t.Fatal("expired record must not validate")
	}

	ended := activeRecord(now, domain.Quota{domain.ActionPublish: 10})
	ended.EndDate = now.Add(-time.Second)
	if Validate(ended, domain.ActionPublish, 1, now) {
		t.Fatal("past end date must not validate")
	}

	cancelled := activeRecord(now, domain.Quota{domain.ActionPublish: 10})
	cancelled.Status = domain.StatusCancelled
	if Validate(cancelled, domain.ActionPublish, 1, now) {
		t.Fatal("cancelled record must not validate")
	}
}

func TestNonPositiveAmountRejected(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := activeRecord(now, domain.Quota{domain.ActionPublish: 10})

	if Validate(rec, domain.ActionPublish, 0, now) || Validate(rec, domain.ActionPublish, -1, now) {
		t.Fatal("non-positive amounts must be rejected")
	}
}

func TestNormalizeAction(t *testing.T) {
	cases := map[string]domain.ActionType{
		"adsbudget":        domain.ActionPublish,
		"PromoteBudget":    domain.ActionPromote,
		"featurebudget":    domain.ActionFeature,
		"refreshbudget":    domain.ActionRefresh,
		"socialmediaposts": domain.ActionSocialMediaPost,
		"publish":          domain.ActionPublish,
		"  Boost  ":        domain.ActionType("boost"),
	}
	for raw, want := range cases {
		if got := domain.NormalizeAction(raw); got != want {
			t.Fatalf("NormalizeAction(%q) = %q, want %q", raw, got, want)
		}
	}
}
