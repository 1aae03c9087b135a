// Package memory implements the run history store in process memory. Used
// when no database is configured: runs still work end to end, history just
// does not survive the process.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/NomadCrew/release-gate/internal/store"
	"github.com/NomadCrew/release-gate/types"
)

// Ensure memRunStore implements store.RunStore.
var _ store.RunStore = (*memRunStore)(nil)

type memRunStore struct {
	mu       sync.RWMutex
	runs     map[string]types.VerificationRun
	attempts map[string]types.RollbackAttempt
}

// NewRunStore creates an empty in-memory run history store.
func NewRunStore() store.RunStore {
	return &memRunStore{
		runs:     make(map[string]types.VerificationRun),
		attempts: make(map[string]types.RollbackAttempt),
	}
}

func (s *memRunStore) SaveRun(_ context.Context, run *types.VerificationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.RunID]; exists {
		return fmt.Errorf("run %s already saved: %w", run.RunID, store.ErrConflict)
	}
	s.runs[run.RunID] = *run
	return nil
}

func (s *memRunStore) GetRun(_ context.Context, runID string) (*types.VerificationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found: %w", runID, store.ErrNotFound)
	}
	return &run, nil
}

func (s *memRunStore) ListRuns(_ context.Context, environment string, limit int) ([]types.VerificationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []types.VerificationRun
	for _, run := range s.runs {
		if environment != "" && run.Environment != environment {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *memRunStore) SaveRollbackAttempt(_ context.Context, attempt *types.RollbackAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.ID] = *attempt
	return nil
}

func (s *memRunStore) ListRollbackAttempts(_ context.Context, environment string, limit int) ([]types.RollbackAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var attempts []types.RollbackAttempt
	for _, a := range s.attempts {
		if environment != "" && a.Environment != environment {
			continue
		}
		attempts = append(attempts, a)
	}
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].StartedAt.After(attempts[j].StartedAt)
	})
	if limit > 0 && len(attempts) > limit {
		attempts = attempts[:limit]
	}
	return attempts, nil
}
