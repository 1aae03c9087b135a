package report

import (
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/NomadCrew/release-gate/logger"
	"github.com/NomadCrew/release-gate/types"
)

// ArtifactFilename builds the timestamped artifact name for a report. The
// UTC timestamp plus the run ID prefix keeps names unique across repeated
// runs against the same environment.
func ArtifactFilename(report *types.GateReport) string {
	shortID := report.RunID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	return fmt.Sprintf("gate-report-%s-%s-%s.md",
		report.Environment,
		report.Timestamp.UTC().Format("20060102-150405"),
		shortID)
}

// WriteArtifact renders the report and writes it under outputDir, creating
// the directory if needed. An existing file at the target path is evidence
// from a prior run and is never overwritten; that case returns an error
// instead.
func WriteArtifact(outputDir string, report *types.GateReport) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", apperrors.Wrap(err, apperrors.ServerError, "failed to create report output directory")
	}

	path := filepath.Join(outputDir, ArtifactFilename(report))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", apperrors.Wrap(err, apperrors.ValidationError,
				"report artifact already exists and will not be overwritten")
		}
		return "", apperrors.Wrap(err, apperrors.ServerError, "failed to create report artifact")
	}

	if _, err := f.WriteString(Render(report)); err != nil {
		f.Close()
		return "", apperrors.Wrap(err, apperrors.ServerError, "failed to write report artifact")
	}
	if err := f.Close(); err != nil {
		return "", apperrors.Wrap(err, apperrors.ServerError, "failed to flush report artifact")
	}

	logger.GetLogger().Named("report").Infow("Report artifact written",
		"path", path,
		"runId", report.RunID,
		"status", report.OverallStatus)
	return path, nil
}
