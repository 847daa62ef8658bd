package domain

import (
	"context"
	"errors"
)

// Service is the per-kind entry point the HTTP layer calls. All methods
// accept cancellation through ctx. Transient store faults never surface
// here: reads degrade to ErrNotFound and writes are accepted into the
// cache, per the kind's degradation policy.
type Service interface {
	Get(ctx context.Context, id string) (*Record, error)
	Set(ctx context.Context, id string, rec *Record) error
	Delete(ctx context.Context, id string) error
	// ValidateUsage reports whether the record could cover the requested
	// amount right now, without consuming anything.
	ValidateUsage(ctx context.Context, id, action string, amount float64) (bool, error)
	// RecordUsage validates and decrements in one step. A false return
	// means the entity is unusable or the budget is short; the record is
	// left unchanged.
	RecordUsage(ctx context.Context, id, action string, amount float64) (bool, error)
}

var (
	ErrInvalidID     = errors.New("invalid_entity_id")
	ErrNilRecord     = errors.New("nil_record")
	ErrInvalidWindow = errors.New("invalid_validity_window")
	ErrNotFound      = errors.New("entity_not_found")
	ErrInvalidAmount = errors.New("invalid_amount")
)
