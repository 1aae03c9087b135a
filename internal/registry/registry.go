// Package registry declares the verification checks the gate runs against a
// deployed environment: identifier, category, criticality, timeout, and
// retry policy, plus the probe closure that does the work. The built-in set
// mirrors the NomadCrew platform surface; a YAML manifest can tune or extend
// it per environment. Checks are immutable once the registry is built.
package registry

import (
	"fmt"
	"time"

	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/NomadCrew/release-gate/internal/controlplane"
	"github.com/NomadCrew/release-gate/internal/probe"
	"github.com/NomadCrew/release-gate/logger"
	"github.com/NomadCrew/release-gate/types"
)

const (
	// defaultTimeout bounds one check across all of its retry attempts.
	defaultTimeout = 30 * time.Second

	// healthLatencyThreshold is the performance bar for the health endpoint.
	// Probes answering above it warn; latency never hard-fails a release.
	healthLatencyThreshold = 500 * time.Millisecond
)

// defaultRetry is the retry policy checks use unless they (or the manifest)
// declare their own: three attempts, 1s/2s between them.
func defaultRetry() types.RetryPolicy {
	return types.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
	}
}

// Deps carries everything the built-in probes need. ControlPlane may be nil
// when no deploy-ops API is configured; the checks that need it skip.
type Deps struct {
	Client       *probe.Client
	ControlPlane controlplane.ControlPlane
	// WSURL is the realtime endpoint; empty skips the handshake check.
	WSURL string
	// JWKSURL is the published key set; empty skips the JWKS check.
	JWKSURL string
	// BearerToken authenticates the feature probes; empty or expired skips
	// them.
	BearerToken string
	// Services are the deployable units whose control-plane state is
	// verified.
	Services []string
	// EnableWebSocketChecks and EnablePerformanceChecks mirror the feature
	// flags; disabled groups are not registered at all.
	EnableWebSocketChecks   bool
	EnablePerformanceChecks bool
}

// Registry is the ordered, immutable set of checks for one verification
// pass.
type Registry struct {
	checks []types.Check
	byID   map[string]int
}

// New builds the registry with the built-in platform checks, optionally
// overlaid by the YAML manifest at manifestPath (empty path skips the
// overlay).
func New(deps Deps, manifestPath string) (*Registry, error) {
	r := &Registry{byID: make(map[string]int)}
	for _, c := range builtinChecks(deps) {
		if err := r.add(c); err != nil {
			return nil, err
		}
	}

	if manifestPath != "" {
		if err := r.applyManifest(deps, manifestPath); err != nil {
			return nil, err
		}
	}

	logger.GetLogger().Named("registry").Infow("Check registry built",
		"checks", len(r.checks),
		"manifest", manifestPath != "")
	return r, nil
}

func (r *Registry) add(c types.Check) error {
	if c.ID == "" {
		return apperrors.ValidationFailed("invalid_check", "check has no ID")
	}
	if _, dup := r.byID[c.ID]; dup {
		return apperrors.ValidationFailed("duplicate_check",
			fmt.Sprintf("check %s registered twice", c.ID))
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Retry.MaxAttempts < 1 {
		c.Retry = defaultRetry()
	}
	r.byID[c.ID] = len(r.checks)
	r.checks = append(r.checks, c)
	return nil
}

// Checks returns all registered checks in registration order.
func (r *Registry) Checks() []types.Check {
	out := make([]types.Check, len(r.checks))
	copy(out, r.checks)
	return out
}

// Filter returns the checks belonging to the given categories, in
// registration order. An empty filter returns everything.
func (r *Registry) Filter(categories []types.CheckCategory) []types.Check {
	if len(categories) == 0 {
		return r.Checks()
	}
	wanted := make(map[types.CheckCategory]bool, len(categories))
	for _, c := range categories {
		wanted[c] = true
	}
	var out []types.Check
	for _, check := range r.checks {
		if wanted[check.Category] {
			out = append(out, check)
		}
	}
	return out
}

// HealthSubset returns the minimal set re-run after a rollback mutation to
// confirm the service recovered.
func (r *Registry) HealthSubset() []types.Check {
	var out []types.Check
	for _, check := range r.checks {
		if check.VerifyOnRollback {
			out = append(out, check)
		}
	}
	return out
}

// Lookup finds a check by ID.
func (r *Registry) Lookup(id string) (types.Check, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return types.Check{}, false
	}
	return r.checks[idx], true
}
