// Package store defines the run history persistence interface and its
// sentinel errors. Implementations live in subpackages: postgres for the
// durable store, memory for the fallback used when no database is
// configured. A verification run must never fail because history storage is
// unavailable; callers log persistence errors and carry on.
package store

import (
	"context"

	"github.com/NomadCrew/release-gate/types"
)

// RunStore persists verification runs and rollback attempts for audit.
type RunStore interface {
	// SaveRun writes the audit record of a completed verification run.
	// Run IDs are unique; saving the same ID twice is a conflict.
	SaveRun(ctx context.Context, run *types.VerificationRun) error

	// GetRun returns one run by ID, or an error wrapping ErrNotFound.
	GetRun(ctx context.Context, runID string) (*types.VerificationRun, error)

	// ListRuns returns runs newest first. An empty environment matches all
	// environments; limit <= 0 means no limit.
	ListRuns(ctx context.Context, environment string, limit int) ([]types.VerificationRun, error)

	// SaveRollbackAttempt upserts an attempt snapshot. The orchestrator
	// calls this on every state transition, so the stored row always
	// reflects the latest state.
	SaveRollbackAttempt(ctx context.Context, attempt *types.RollbackAttempt) error

	// ListRollbackAttempts returns attempts newest first, filtered like
	// ListRuns.
	ListRollbackAttempts(ctx context.Context, environment string, limit int) ([]types.RollbackAttempt, error)
}
