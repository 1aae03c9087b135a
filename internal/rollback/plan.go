package rollback

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/NomadCrew/release-gate/config"
	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/NomadCrew/release-gate/internal/controlplane"
	"github.com/NomadCrew/release-gate/logger"
	"github.com/NomadCrew/release-gate/types"
)

// BuildPlan proposes a rollback: for each service it resolves the currently
// active reference and the one deployed before it. The plan carries no
// confirmation token; executing it is a separate, explicitly confirmed step.
func BuildPlan(ctx context.Context, cp controlplane.ControlPlane, environment string, services []string, cfg config.RollbackConfig) (*types.RollbackPlan, error) {
	if len(services) == 0 {
		return nil, apperrors.ValidationFailed("no_services", "rollback plan requires at least one service")
	}

	log := logger.GetLogger().Named("rollback")
	plan := &types.RollbackPlan{
		Environment:         environment,
		Targets:             make(map[string]string, len(services)),
		StabilizationWindow: time.Duration(cfg.StabilizationSeconds) * time.Second,
		VerifyPolls:         cfg.VerifyPolls,
		VerifyInterval:      time.Duration(cfg.VerifyIntervalSeconds) * time.Second,
	}

	sorted := append([]string(nil), services...)
	sort.Strings(sorted)

	for _, service := range sorted {
		previous, err := previousReference(ctx, cp, service)
		if err != nil {
			return nil, err
		}
		plan.Targets[service] = previous
		log.Infow("Planned rollback target",
			"service", service,
			"toReference", previous)
	}
	return plan, nil
}

// previousReference finds the reference deployed immediately before the
// active one in the control plane's newest-first listing.
func previousReference(ctx context.Context, cp controlplane.ControlPlane, service string) (string, error) {
	refs, err := cp.ListReferences(ctx, service)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ServerError,
			fmt.Sprintf("failed to list references for %s", service))
	}

	activeIdx := -1
	for i, ref := range refs {
		if ref.Active {
			activeIdx = i
			break
		}
	}
	if activeIdx == -1 {
		return "", apperrors.ValidationFailed("no_active_reference",
			fmt.Sprintf("service %s has no active reference to roll back from", service))
	}
	if activeIdx+1 >= len(refs) {
		return "", apperrors.ValidationFailed("no_previous_reference",
			fmt.Sprintf("service %s has nothing older than %s to roll back to", service, refs[activeIdx].Name))
	}
	return refs[activeIdx+1].Name, nil
}
