// Package domain contains the entity record shared by every quota-bearing
// kind (subscriptions, addons, payments) and the service contract exposed
// to the HTTP layer.
package domain

import (
	"math"
	"strings"
	"time"
)

// Status represents lifecycle states for an entitlement record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// ActionType is a quota bucket: one per monetizable marketplace action.
type ActionType string

const (
	ActionPublish         ActionType = "publish"
	ActionPromote         ActionType = "promote"
	ActionFeature         ActionType = "feature"
	ActionRefresh         ActionType = "refresh"
	ActionSocialMediaPost ActionType = "social_media_post"
)

// actionAliases maps the legacy budget field names still sent by older
// clients onto canonical action types.
var actionAliases = map[string]ActionType{
	"adsbudget":        ActionPublish,
	"promotebudget":    ActionPromote,
	"featurebudget":    ActionFeature,
	"refreshbudget":    ActionRefresh,
	"socialmediaposts": ActionSocialMediaPost,
}

// NormalizeAction resolves raw action names through the alias table.
// Unrecognized names pass through lower-cased rather than failing, so new
// action types degrade gracefully.
func NormalizeAction(raw string) ActionType {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := actionAliases[key]; ok {
		return canonical
	}
	return ActionType(key)
}

// Quota maps action types to remaining budget. Fractional grants exist
// (partial refunds), but consumption always rounds up.
type Quota map[ActionType]float64

// Remaining returns the budget left for an action.
func (q Quota) Remaining(action ActionType) float64 {
	if q == nil {
		return 0
	}
	return q[action]
}

// Record is one entitlement entity: a validity window plus per-action
// budgets, persisted as a single state blob under the kind's state key.
type Record struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Status      Status    `json:"status"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Quota       Quota     `json:"quota,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
	IsExpired   bool      `json:"is_expired"`
}

// Touch stamps the record's last successful write instant.
func (r *Record) Touch(now time.Time) { r.LastUpdated = now }

// Version returns the record's freshness timestamp; backup reconciliation
// resolves divergence with it, newer copy winning.
func (r *Record) Version() time.Time { return r.LastUpdated }

// Clone returns an independent copy, including the quota map.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Quota != nil {
		cp.Quota = make(Quota, len(r.Quota))
		for action, remaining := range r.Quota {
			cp.Quota[action] = remaining
		}
	}
	return &cp
}

// Usable reports whether the record may still consume quota.
func (r *Record) Usable(now time.Time) bool {
	return r.Status == StatusActive && !r.IsExpired && r.EndDate.After(now)
}

// CeilAmount is the integral quota cost of a requested amount.
func CeilAmount(amount float64) float64 { return math.Ceil(amount) }
