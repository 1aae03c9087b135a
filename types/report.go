package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type GateStatus string

const (
	GateStatusGo            GateStatus = "GO"
	GateStatusConditionalGo GateStatus = "CONDITIONAL_GO"
	GateStatusNoGo          GateStatus = "NO_GO"
)

// ExitCode maps the gate decision to the process exit code contract:
// 0 = GO, 2 = CONDITIONAL_GO, 1 = NO_GO. Calling pipelines branch on this.
func (s GateStatus) ExitCode() int {
	switch s {
	case GateStatusGo:
		return 0
	case GateStatusConditionalGo:
		return 2
	default:
		return 1
	}
}

// Totals are the per-status counts over one verification run.
type Totals struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Warned  int `json:"warned"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Evaluated is the pass-rate denominator: skips are excluded so optional
// features never penalize the score.
func (t Totals) Evaluated() int {
	return t.Total - t.Skipped
}

// GateReport is the full outcome of one verification run. Immutable once
// written; overallStatus is a pure function of the results.
type GateReport struct {
	RunID         string          `json:"runId"`
	Environment   string          `json:"environment"`
	Timestamp     time.Time       `json:"timestamp"`
	Results       []CheckResult   `json:"results"`
	Totals        Totals          `json:"totals"`
	PassRate      decimal.Decimal `json:"passRate"`
	AnyCritical   bool            `json:"anyCriticalFail"`
	OverallStatus GateStatus      `json:"overallStatus"`
}

// FailedResults returns the FAIL results in report order.
func (r *GateReport) FailedResults() []CheckResult {
	var failed []CheckResult
	for _, res := range r.Results {
		if res.Status == CheckStatusFail {
			failed = append(failed, res)
		}
	}
	return failed
}

// VerificationRun is the persisted audit record of a run.
type VerificationRun struct {
	RunID         string          `json:"runId"`
	Environment   string          `json:"environment"`
	OverallStatus GateStatus      `json:"overallStatus"`
	PassRate      decimal.Decimal `json:"passRate"`
	Totals        Totals          `json:"totals"`
	StartedAt     time.Time       `json:"startedAt"`
	FinishedAt    time.Time       `json:"finishedAt"`
	ArtifactPath  string          `json:"artifactPath,omitempty"`
	Report        *GateReport     `json:"report,omitempty"`
}
