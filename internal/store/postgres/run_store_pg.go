// Package postgres implements the run history store on PostgreSQL via
// pgx/v5. The full gate report is kept as JSONB next to the queryable
// columns so a past run can be re-rendered without re-probing anything.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NomadCrew/release-gate/internal/store"
	"github.com/NomadCrew/release-gate/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies it
// in unit tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Ensure pgRunStore implements store.RunStore.
var _ store.RunStore = (*pgRunStore)(nil)

type pgRunStore struct {
	db DB
}

// NewPgRunStore creates a new PostgreSQL run history store.
func NewPgRunStore(db DB) store.RunStore {
	return &pgRunStore{db: db}
}

// SaveRun persists the audit record of a completed verification run.
func (s *pgRunStore) SaveRun(ctx context.Context, run *types.VerificationRun) error {
	query := `INSERT INTO verification_runs
	          (run_id, environment, overall_status, pass_rate, total, passed, warned, failed, skipped,
	           started_at, finished_at, artifact_path, report)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	var reportJSON []byte
	if run.Report != nil {
		var err error
		reportJSON, err = json.Marshal(run.Report)
		if err != nil {
			return errors.Wrap(err, "failed to marshal gate report")
		}
	}

	_, err := s.db.Exec(ctx, query,
		run.RunID,
		run.Environment,
		string(run.OverallStatus),
		run.PassRate.String(),
		run.Totals.Total,
		run.Totals.Passed,
		run.Totals.Warned,
		run.Totals.Failed,
		run.Totals.Skipped,
		run.StartedAt,
		run.FinishedAt,
		run.ArtifactPath,
		reportJSON,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save verification run")
	}
	return nil
}

// GetRun retrieves a run by its ID.
func (s *pgRunStore) GetRun(ctx context.Context, runID string) (*types.VerificationRun, error) {
	query := `SELECT run_id, environment, overall_status, pass_rate, total, passed, warned, failed, skipped,
	                 started_at, finished_at, artifact_path, report
	          FROM verification_runs
	          WHERE run_id = $1`

	run, err := scanRun(s.db.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("run %s not found: %w", runID, store.ErrNotFound)
		}
		return nil, errors.Wrap(err, "failed to get verification run")
	}
	return run, nil
}

// ListRuns retrieves runs newest first, optionally filtered by environment.
func (s *pgRunStore) ListRuns(ctx context.Context, environment string, limit int) ([]types.VerificationRun, error) {
	baseQuery := `SELECT run_id, environment, overall_status, pass_rate, total, passed, warned, failed, skipped,
	                     started_at, finished_at, artifact_path, report
	              FROM verification_runs`
	args := []any{}

	if environment != "" {
		baseQuery += ` WHERE environment = $1`
		args = append(args, environment)
	}
	baseQuery += ` ORDER BY started_at DESC`
	if limit > 0 {
		baseQuery += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, baseQuery, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list verification runs")
	}
	defer rows.Close()

	var runs []types.VerificationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan verification run")
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return runs, nil
}

// SaveRollbackAttempt inserts or updates an attempt. Upsert keyed on the
// attempt ID so every state transition overwrites the previous snapshot.
func (s *pgRunStore) SaveRollbackAttempt(ctx context.Context, attempt *types.RollbackAttempt) error {
	query := `INSERT INTO rollback_attempts
	          (id, run_id, environment, service, from_reference, to_reference, status,
	           started_at, mutated_at, stabilizing_at, completed_at, failure_reason, last_health_output)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	          ON CONFLICT (id) DO UPDATE SET
	            status = EXCLUDED.status,
	            mutated_at = EXCLUDED.mutated_at,
	            stabilizing_at = EXCLUDED.stabilizing_at,
	            completed_at = EXCLUDED.completed_at,
	            failure_reason = EXCLUDED.failure_reason,
	            last_health_output = EXCLUDED.last_health_output`

	_, err := s.db.Exec(ctx, query,
		attempt.ID,
		attempt.RunID,
		attempt.Environment,
		attempt.Service,
		attempt.FromReference,
		attempt.ToReference,
		string(attempt.Status),
		attempt.StartedAt,
		attempt.MutatedAt,
		attempt.StabilizingAt,
		attempt.CompletedAt,
		attempt.FailureReason,
		attempt.LastHealthOutput,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save rollback attempt")
	}
	return nil
}

// ListRollbackAttempts retrieves attempts newest first, optionally filtered
// by environment.
func (s *pgRunStore) ListRollbackAttempts(ctx context.Context, environment string, limit int) ([]types.RollbackAttempt, error) {
	baseQuery := `SELECT id, run_id, environment, service, from_reference, to_reference, status,
	                     started_at, mutated_at, stabilizing_at, completed_at, failure_reason, last_health_output
	              FROM rollback_attempts`
	args := []any{}

	if environment != "" {
		baseQuery += ` WHERE environment = $1`
		args = append(args, environment)
	}
	baseQuery += ` ORDER BY started_at DESC`
	if limit > 0 {
		baseQuery += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, baseQuery, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list rollback attempts")
	}
	defer rows.Close()

	var attempts []types.RollbackAttempt
	for rows.Next() {
		var a types.RollbackAttempt
		var status string
		err := rows.Scan(
			&a.ID, &a.RunID, &a.Environment, &a.Service, &a.FromReference, &a.ToReference, &status,
			&a.StartedAt, &a.MutatedAt, &a.StabilizingAt, &a.CompletedAt, &a.FailureReason, &a.LastHealthOutput,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan rollback attempt")
		}
		a.Status = types.RollbackState(status)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return attempts, nil
}

// scanRun reads one verification_runs row. pass_rate round-trips as text so
// the stored rate stays exact.
func scanRun(row pgx.Row) (*types.VerificationRun, error) {
	var (
		run        types.VerificationRun
		status     string
		passRate   string
		reportJSON []byte
	)
	err := row.Scan(
		&run.RunID, &run.Environment, &status, &passRate,
		&run.Totals.Total, &run.Totals.Passed, &run.Totals.Warned, &run.Totals.Failed, &run.Totals.Skipped,
		&run.StartedAt, &run.FinishedAt, &run.ArtifactPath, &reportJSON,
	)
	if err != nil {
		return nil, err
	}

	run.OverallStatus = types.GateStatus(status)
	rate, err := decimal.NewFromString(passRate)
	if err != nil {
		return nil, errors.Wrap(err, "invalid pass_rate in database")
	}
	run.PassRate = rate

	if len(reportJSON) > 0 {
		var report types.GateReport
		if err := json.Unmarshal(reportJSON, &report); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal gate report")
		}
		run.Report = &report
	}
	return &run, nil
}
