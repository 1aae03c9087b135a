// Package controlplane abstracts the deployment platform the rollback
// orchestrator talks to. The orchestrator depends only on this interface;
// vendor-specific command syntax stays inside adapters.
package controlplane

import (
	"context"

	"github.com/NomadCrew/release-gate/types"
)

// ControlPlane is the mutation surface for deployed services. Read
// operations are safe to call at any time; UpdateServiceReference and
// Restart change live infrastructure and must only run behind a confirmed
// rollback plan.
type ControlPlane interface {
	// GetServiceStatus returns the current state and active reference of a
	// service.
	GetServiceStatus(ctx context.Context, service string) (types.ServiceStatus, error)

	// UpdateServiceReference points the service at a different deployable
	// reference (image tag, release, revision).
	UpdateServiceReference(ctx context.Context, service, reference string) error

	// ListReferences returns the known references for a service, newest
	// first.
	ListReferences(ctx context.Context, service string) ([]types.Reference, error)

	// Restart restarts the service on its current reference.
	Restart(ctx context.Context, service string) error
}
