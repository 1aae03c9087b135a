package types

import (
	"time"
)

type RollbackState string

const (
	RollbackStatePending     RollbackState = "PENDING"
	RollbackStateMutated     RollbackState = "MUTATED"
	RollbackStateStabilizing RollbackState = "STABILIZING"
	RollbackStateVerified    RollbackState = "VERIFIED"
	RollbackStateFailed      RollbackState = "FAILED"
)

// Terminal reports whether no further transitions are allowed.
func (s RollbackState) Terminal() bool {
	return s == RollbackStateVerified || s == RollbackStateFailed
}

// RollbackPlan maps each target service to the reference it should be
// reverted to. ConfirmationToken must be supplied by the invoker; it is
// never generated by the tool, so an unattended NO_GO can never mutate
// infrastructure on its own.
type RollbackPlan struct {
	Environment         string            `json:"environment"`
	Targets             map[string]string `json:"targets"`
	ConfirmationToken   string            `json:"-"`
	StabilizationWindow time.Duration     `json:"stabilizationWindow"`
	VerifyPolls         int               `json:"verifyPolls"`
	VerifyInterval      time.Duration     `json:"verifyInterval"`
}

// RollbackAttempt records one service's passage through the rollback state
// machine. VERIFIED and FAILED are terminal; a FAILED attempt is never
// retried automatically.
type RollbackAttempt struct {
	ID               string        `json:"id"`
	RunID            string        `json:"runId,omitempty"`
	Environment      string        `json:"environment"`
	Service          string        `json:"service"`
	FromReference    string        `json:"fromReference"`
	ToReference      string        `json:"toReference"`
	Status           RollbackState `json:"status"`
	StartedAt        time.Time     `json:"startedAt"`
	MutatedAt        *time.Time    `json:"mutatedAt,omitempty"`
	StabilizingAt    *time.Time    `json:"stabilizingAt,omitempty"`
	CompletedAt      *time.Time    `json:"completedAt,omitempty"`
	FailureReason    string        `json:"failureReason,omitempty"`
	LastHealthOutput string        `json:"lastHealthOutput,omitempty"`
}
