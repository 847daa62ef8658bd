// Package userquota tracks per-user quota grants outside any single
// subscription: one durable collection per user, each grant tied to the
// payment transaction that bought it. Grants are not expired by timers;
// readers filter by validity window instead.
package userquota

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/souqline/entitlements/internal/clock"
	"github.com/souqline/entitlements/internal/entitlement/domain"
	"github.com/souqline/entitlements/internal/keylock"
	"github.com/souqline/entitlements/internal/statecell"
	"go.uber.org/zap"
)

const StateKey = "user-quota-data"

var (
	ErrInvalidUserID      = errors.New("invalid_user_id")
	ErrInvalidTransaction = errors.New("invalid_transaction_id")
	ErrInvalidGrantWindow = errors.New("invalid_grant_window")
)

// SourceType says where a grant came from.
type SourceType string

const (
	SourceSubscription SourceType = "subscription"
	SourceAddon        SourceType = "addon"
	SourcePayment      SourceType = "payment"
)

// Grant is one purchased quota bundle. TransactionID identifies the
// payment that created it and is the upsert key within a user's
// collection.
type Grant struct {
	TransactionID string       `json:"transaction_id"`
	SourceType    SourceType   `json:"source_type"`
	StartDate     time.Time    `json:"start_date"`
	EndDate       time.Time    `json:"end_date"`
	Quota         domain.Quota `json:"quota,omitempty"`
}

// Active reports whether the grant's validity window covers now.
func (g Grant) Active(now time.Time) bool {
	return !g.StartDate.After(now) && g.EndDate.After(now)
}

// Collection is the durable record: all of one user's grants.
type Collection struct {
	UserID      string    `json:"user_id"`
	Grants      []Grant   `json:"grants,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

func (c *Collection) touch(now time.Time) { c.LastUpdated = now }
func (c *Collection) version() time.Time  { return c.LastUpdated }

// Clone returns an independent copy, grants and quota maps included.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Grants != nil {
		cp.Grants = make([]Grant, len(c.Grants))
		copy(cp.Grants, c.Grants)
		for i := range cp.Grants {
			if q := c.Grants[i].Quota; q != nil {
				nq := make(domain.Quota, len(q))
				for action, remaining := range q {
					nq[action] = remaining
				}
				cp.Grants[i].Quota = nq
			}
		}
	}
	return &cp
}

// Service manages user grant collections on top of a state cell.
type Service struct {
	cell  *statecell.Cell[Collection]
	locks *keylock.Striped
	clock clock.Clock
	log   *zap.Logger
}

func New(cell *statecell.Cell[Collection], clk clock.Clock, log *zap.Logger) *Service {
	return &Service{
		cell:  cell,
		locks: keylock.New(),
		clock: clk,
		log:   log.Named("userquota"),
	}
}

// List returns every grant the user holds, active or not. A user with no
// collection has no grants; that is not an error.
func (s *Service) List(ctx context.Context, userID string) ([]Grant, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	col, ok := s.cell.Get(ctx, userID)
	if !ok {
		return nil, nil
	}
	return col.Grants, nil
}

// ListActive returns the grants whose validity window covers now.
func (s *Service) ListActive(ctx context.Context, userID string) ([]Grant, error) {
	grants, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	var active []Grant
	for _, g := range grants {
		if g.Active(now) {
			active = append(active, g)
		}
	}
	return active, nil
}

// Upsert inserts the grant or replaces the one sharing its transaction
// id.
func (s *Service) Upsert(ctx context.Context, userID string, grant Grant) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if strings.TrimSpace(grant.TransactionID) == "" {
		return ErrInvalidTransaction
	}
	if !grant.EndDate.After(grant.StartDate) {
		return ErrInvalidGrantWindow
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	col, ok := s.cell.Get(ctx, userID)
	if !ok {
		col = &Collection{UserID: userID}
	}

	replaced := false
	for i := range col.Grants {
		if col.Grants[i].TransactionID == grant.TransactionID {
			col.Grants[i] = grant
			replaced = true
			break
		}
	}
	if !replaced {
		col.Grants = append(col.Grants, grant)
	}
	return s.cell.Set(ctx, userID, col)
}

// DeleteByTransaction removes the grant created by a transaction, e.g.
// on refund. Unknown transactions are a no-op.
func (s *Service) DeleteByTransaction(ctx context.Context, userID, transactionID string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if strings.TrimSpace(transactionID) == "" {
		return ErrInvalidTransaction
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	col, ok := s.cell.Get(ctx, userID)
	if !ok {
		return nil
	}
	kept := col.Grants[:0]
	for _, g := range col.Grants {
		if g.TransactionID != transactionID {
			kept = append(kept, g)
		}
	}
	if len(kept) == len(col.Grants) {
		return nil
	}
	col.Grants = kept

	if len(col.Grants) == 0 {
		s.cell.Delete(ctx, userID)
		return nil
	}
	return s.cell.Set(ctx, userID, col)
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}
	return nil
}
