// Package report renders gate reports into timestamped Markdown artifacts
// and optionally archives them to S3-compatible object storage. Rendering is
// deterministic: the same GateReport always produces the same document, so
// artifacts are diffable across runs.
package report

import (
	"fmt"
	"strings"

	"github.com/NomadCrew/release-gate/internal/gate"
	"github.com/NomadCrew/release-gate/types"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func statusIcon(s types.CheckStatus) string {
	switch s {
	case types.CheckStatusPass:
		return "✅"
	case types.CheckStatusWarn:
		return "⚠️"
	case types.CheckStatusFail:
		return "❌"
	case types.CheckStatusSkip:
		return "⏭️"
	default:
		return "❓"
	}
}

func categoryTitle(c types.CheckCategory) string {
	switch c {
	case types.CategoryInfrastructure:
		return "Infrastructure"
	case types.CategoryConnectivity:
		return "Connectivity"
	case types.CategoryAuth:
		return "Authentication"
	case types.CategoryFeature:
		return "Feature Endpoints"
	case types.CategoryPerformance:
		return "Performance"
	default:
		return string(c)
	}
}

// tableCell makes a value safe inside a Markdown table row.
func tableCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// Render produces the Markdown document for a gate report: run metadata,
// a per-category check table, the decision summary line, and a next-steps
// section keyed off the overall status.
func Render(report *types.GateReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Release Gate Report\n\n")
	fmt.Fprintf(&b, "- **Run ID:** `%s`\n", report.RunID)
	fmt.Fprintf(&b, "- **Environment:** %s\n", report.Environment)
	fmt.Fprintf(&b, "- **Generated:** %s\n", report.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(&b, "- **Gate:** %s **%s**\n\n", gateIcon(report.OverallStatus), report.OverallStatus)

	fmt.Fprintf(&b, "## Checks\n\n")
	grouped := gate.ByCategory(report.Results)
	for _, category := range types.Categories() {
		results := grouped[category]
		if len(results) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n\n", categoryTitle(category))
		fmt.Fprintf(&b, "| Status | Check | Criticality | Attempts | Duration | Detail |\n")
		fmt.Fprintf(&b, "|--------|-------|-------------|----------|----------|--------|\n")
		for _, r := range results {
			fmt.Fprintf(&b, "| %s %s | `%s` | %s | %d | %d ms | %s |\n",
				statusIcon(r.Status), r.Status, tableCell(r.CheckID),
				r.Criticality, r.Attempts, r.DurationMs, tableCell(r.Message))
		}
		fmt.Fprintf(&b, "\n")
	}

	fmt.Fprintf(&b, "## Summary\n\n")
	ratePct := report.PassRate.Mul(hundred).StringFixed(2)
	fmt.Fprintf(&b, "**Overall: %s** — pass rate %s%% (%d passed of %d evaluated), %d warned, %d failed, %d skipped.\n\n",
		report.OverallStatus, ratePct,
		report.Totals.Passed, report.Totals.Evaluated(),
		report.Totals.Warned, report.Totals.Failed, report.Totals.Skipped)
	if report.AnyCritical {
		fmt.Fprintf(&b, "A CRITICAL check failed; the gate is forced to NO_GO regardless of pass rate.\n\n")
	}

	fmt.Fprintf(&b, "## Next Steps\n\n")
	switch report.OverallStatus {
	case types.GateStatusGo:
		fmt.Fprintf(&b, "- All checks healthy. Proceed with the release.\n")
	case types.GateStatusConditionalGo:
		fmt.Fprintf(&b, "- No failures, but the pass rate is below the GO bar or coverage was incomplete.\n")
		fmt.Fprintf(&b, "- Review the warnings and skips below, then proceed at your own judgement:\n")
		for _, r := range report.Results {
			if r.Status == types.CheckStatusWarn || r.Status == types.CheckStatusSkip {
				fmt.Fprintf(&b, "  - %s `%s`: %s\n", statusIcon(r.Status), r.CheckID, r.Message)
			}
		}
	case types.GateStatusNoGo:
		fmt.Fprintf(&b, "- Do **not** promote this release. Address every failure below, then re-run verification.\n\n")
		fmt.Fprintf(&b, "### Remediation\n\n")
		for _, r := range report.FailedResults() {
			fmt.Fprintf(&b, "- ❌ `%s` (%s): %s\n", r.CheckID, r.Criticality, r.Message)
			if r.Remediation != "" {
				fmt.Fprintf(&b, "  - Remediation: %s\n", r.Remediation)
			}
		}
	}

	return b.String()
}

func gateIcon(s types.GateStatus) string {
	switch s {
	case types.GateStatusGo:
		return "✅"
	case types.GateStatusConditionalGo:
		return "⚠️"
	default:
		return "❌"
	}
}
