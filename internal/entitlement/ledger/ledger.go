// Package ledger enforces validate-before-use and decrement-on-use quota
// semantics. It is pure record manipulation; persistence belongs to the
// kind service.
package ledger

import (
	"time"

	"github.com/souqline/entitlements/internal/entitlement/domain"
)

// Validate reports whether the record is usable and holds enough budget
// for the requested amount. Amounts are rounded up before comparison.
func Validate(rec *domain.Record, action domain.ActionType, amount float64, now time.Time) bool {
	if rec == nil || amount <= 0 {
		return false
	}
	if !rec.Usable(now) {
		return false
	}
	return rec.Quota.Remaining(action) >= domain.CeilAmount(amount)
}

// Apply decrements the action's budget when Validate holds, clamped at
// zero, and reports whether the record was mutated. A rejected apply
// leaves the record untouched, so the budget can never go negative.
func Apply(rec *domain.Record, action domain.ActionType, amount float64, now time.Time) bool {
	if !Validate(rec, action, amount, now) {
		return false
	}
	remaining := rec.Quota.Remaining(action) - domain.CeilAmount(amount)
	if remaining < 0 {
		remaining = 0
	}
	rec.Quota[action] = remaining
	rec.Touch(now)
	return true
}
