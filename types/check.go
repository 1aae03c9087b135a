package types

import (
	"context"
	"time"
)

type CheckStatus string

const (
	CheckStatusPass CheckStatus = "PASS"
	CheckStatusWarn CheckStatus = "WARN"
	CheckStatusFail CheckStatus = "FAIL"
	CheckStatusSkip CheckStatus = "SKIP"
)

type CheckCategory string

const (
	CategoryInfrastructure CheckCategory = "infra"
	CategoryConnectivity   CheckCategory = "connectivity"
	CategoryAuth           CheckCategory = "auth"
	CategoryFeature        CheckCategory = "feature"
	CategoryPerformance    CheckCategory = "performance"
)

// Categories lists all check categories in report order.
func Categories() []CheckCategory {
	return []CheckCategory{
		CategoryInfrastructure,
		CategoryConnectivity,
		CategoryAuth,
		CategoryFeature,
		CategoryPerformance,
	}
}

type Criticality string

const (
	// CriticalityCritical checks force NO_GO on failure regardless of the
	// aggregate pass rate.
	CriticalityCritical      Criticality = "CRITICAL"
	CriticalityStandard      Criticality = "STANDARD"
	CriticalityInformational Criticality = "INFORMATIONAL"
)

// RetryPolicy bounds the retry loop for a single check. Delays grow
// exponentially from BaseDelay by Multiplier per attempt, capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int           `json:"maxAttempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `json:"baseDelay" mapstructure:"base_delay"`
	Multiplier  float64       `json:"multiplier" mapstructure:"multiplier"`
	MaxDelay    time.Duration `json:"maxDelay" mapstructure:"max_delay"`
}

// Delay returns the wait before retrying after the given 1-based attempt:
// min(BaseDelay * Multiplier^(attempt-1), MaxDelay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// CheckOutcome is what a probe observed. Probes return an outcome for
// application-level signals (a non-2xx status is still an outcome) and an
// error only for transport or precondition problems.
type CheckOutcome struct {
	Status  CheckStatus
	Message string
}

// ProbeFunc performs one attempt of a check. The context carries the
// per-check deadline shared across all retry attempts.
type ProbeFunc func(ctx context.Context) (CheckOutcome, error)

// Check is a single registered verification. Immutable once registered.
type Check struct {
	ID          string
	Category    CheckCategory
	Criticality Criticality
	Description string
	Remediation string
	Timeout     time.Duration
	Retry       RetryPolicy
	// VerifyOnRollback marks the minimal health subset re-run after a
	// rollback mutation.
	VerifyOnRollback bool
	Run              ProbeFunc
}

// CheckResult is the immutable record of one executed check. Category,
// criticality and remediation are denormalized from the Check so the
// aggregator and report are pure functions over the result list.
type CheckResult struct {
	CheckID     string        `json:"checkId"`
	Category    CheckCategory `json:"category"`
	Criticality Criticality   `json:"criticality"`
	Status      CheckStatus   `json:"status"`
	Message     string        `json:"message,omitempty"`
	Remediation string        `json:"remediation,omitempty"`
	DurationMs  int64         `json:"durationMs"`
	Attempts    int           `json:"attempts"`
	Timestamp   time.Time     `json:"timestamp"`
}
