// Package gate turns a slice of check results into a release decision.
// Aggregation is pure over the results: the same inputs always produce the
// same totals, pass rate, and gate status, so a report can be re-derived
// from stored results at any time.
package gate

import (
	"time"

	"github.com/NomadCrew/release-gate/logger"
	"github.com/NomadCrew/release-gate/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// passRateThreshold is the GO bar: 90% of evaluated checks must pass.
// Held as a decimal so boundary comparisons are exact rather than float.
var passRateThreshold = decimal.New(9, -1)

// Aggregate tallies results into totals, computes the pass rate over
// evaluated checks (skips excluded from the denominator), and reports
// whether any CRITICAL check failed.
func Aggregate(results []types.CheckResult) (types.Totals, decimal.Decimal, bool) {
	var totals types.Totals
	anyCritical := false

	for _, r := range results {
		totals.Total++
		switch r.Status {
		case types.CheckStatusPass:
			totals.Passed++
		case types.CheckStatusWarn:
			totals.Warned++
		case types.CheckStatusFail:
			totals.Failed++
			if r.Criticality == types.CriticalityCritical {
				anyCritical = true
			}
		case types.CheckStatusSkip:
			totals.Skipped++
		}
	}

	evaluated := totals.Evaluated()
	if evaluated == 0 {
		return totals, decimal.Zero, anyCritical
	}
	passRate := decimal.NewFromInt(int64(totals.Passed)).
		Div(decimal.NewFromInt(int64(evaluated)))
	return totals, passRate, anyCritical
}

// Decide applies the gate rules in order:
//
//  1. any CRITICAL check failed        -> NO_GO
//  2. no failures and pass rate >= 90% -> GO
//  3. no failures                      -> CONDITIONAL_GO
//  4. otherwise                        -> NO_GO
//
// A run where every check was skipped has no failures and a zero pass rate,
// so it lands on CONDITIONAL_GO: nothing broke, but nothing was proven.
func Decide(totals types.Totals, passRate decimal.Decimal, anyCriticalFail bool) types.GateStatus {
	if anyCriticalFail {
		return types.GateStatusNoGo
	}
	if totals.Failed == 0 && passRate.GreaterThanOrEqual(passRateThreshold) {
		return types.GateStatusGo
	}
	if totals.Failed == 0 {
		return types.GateStatusConditionalGo
	}
	return types.GateStatusNoGo
}

// ByCategory groups results by category preserving input order within each
// group. Categories with no results are absent from the map.
func ByCategory(results []types.CheckResult) map[types.CheckCategory][]types.CheckResult {
	grouped := make(map[types.CheckCategory][]types.CheckResult)
	for _, r := range results {
		grouped[r.Category] = append(grouped[r.Category], r)
	}
	return grouped
}

// BuildReport assembles the full gate report for one verification pass and
// logs the decision summary.
func BuildReport(environment string, results []types.CheckResult) *types.GateReport {
	totals, passRate, anyCritical := Aggregate(results)
	status := Decide(totals, passRate, anyCritical)

	report := &types.GateReport{
		RunID:         uuid.New().String(),
		Environment:   environment,
		Timestamp:     time.Now().UTC(),
		Results:       results,
		Totals:        totals,
		PassRate:      passRate,
		AnyCritical:   anyCritical,
		OverallStatus: status,
	}

	logger.GetLogger().Named("gate").Infow("Gate decision",
		"runId", report.RunID,
		"environment", environment,
		"status", status,
		"passRate", passRate.StringFixed(4),
		"total", totals.Total,
		"passed", totals.Passed,
		"warned", totals.Warned,
		"failed", totals.Failed,
		"skipped", totals.Skipped,
		"criticalFailure", anyCritical)

	return report
}
