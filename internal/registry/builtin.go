package registry

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/NomadCrew/release-gate/internal/probe"
	"github.com/NomadCrew/release-gate/types"
)

// builtinChecks assembles the platform check set in report order. The set
// mirrors what the deploy pipeline verified by hand before this tool: the
// health surface, realtime and CORS behavior, the auth boundary, the core
// authenticated endpoints, and health-endpoint latency.
func builtinChecks(deps Deps) []types.Check {
	checks := []types.Check{
		apiHealthCheck(deps),
		healthComponentCheck(deps, "database", types.CriticalityCritical),
		healthComponentCheck(deps, "redis", types.CriticalityStandard),
		controlPlaneStateCheck(deps),
		livenessCheck(deps),
		readinessCheck(deps),
	}

	if deps.EnableWebSocketChecks {
		checks = append(checks, websocketCheck(deps))
	}
	checks = append(checks,
		corsPreflightCheck(deps),
		jwksCheck(deps),
		tokenFreshnessCheck(deps),
		unauthorizedDisciplineCheck(deps),
		featureEndpointCheck(deps, "feature.trips.list", "/v1/trips", "trip listing"),
		featureEndpointCheck(deps, "feature.notifications.list", "/v1/notifications", "notification listing"),
		featureEndpointCheck(deps, "feature.user.profile", "/v1/users/me", "current user profile"),
	)
	if deps.EnablePerformanceChecks {
		checks = append(checks, healthLatencyCheck(deps))
	}
	return checks
}

// apiHealthCheck is the anchor check: the aggregated health endpoint must
// answer 200 with overall status UP. It is re-run after every rollback.
func apiHealthCheck(deps Deps) types.Check {
	return types.Check{
		ID:               "infra.api.health",
		Category:         types.CategoryInfrastructure,
		Criticality:      types.CriticalityCritical,
		Description:      "Aggregated /health endpoint reports UP",
		Remediation:      "Check application logs and dependency health; the service itself reports it is not healthy.",
		Timeout:          30 * time.Second,
		VerifyOnRollback: true,
		Run: func(ctx context.Context) (types.CheckOutcome, error) {
			resp, hc, err := deps.Client.Health(ctx)
			if err != nil {
				return types.CheckOutcome{}, err
			}
			if resp.StatusCode != http.StatusOK {
				return failf("health endpoint answered %d", resp.StatusCode), nil
			}
			if hc == nil {
				return failf("health endpoint returned 200 but not a parseable health document"), nil
			}
			switch hc.Status {
			case types.HealthStatusUp:
				return passf("healthy, version %s, uptime %s", orUnknown(hc.Version), orUnknown(hc.Uptime)), nil
			case types.HealthStatusDegraded:
				return warnf("service reports DEGRADED"), nil
			default:
				return failf("service reports %s", hc.Status), nil
			}
		},
	}
}

// healthComponentCheck verifies one named component of the aggregated
// health payload (the platform reports database and redis this way).
func healthComponentCheck(deps Deps, component string, crit types.Criticality) types.Check {
	return types.Check{
		ID:          "infra.health." + component,
		Category:    types.CategoryInfrastructure,
		Criticality: crit,
		Description: fmt.Sprintf("Health payload reports the %s component UP", component),
		Remediation: fmt.Sprintf("Inspect the %s dependency: connectivity, credentials, and capacity.", component),
		Timeout:     30 * time.Second,
		Run: func(ctx context.Context) (types.CheckOutcome, error) {
			resp, hc, err := deps.Client.Health(ctx)
			if err != nil {
				return types.CheckOutcome{}, err
			}
			if resp.StatusCode != http.StatusOK || hc == nil {
				return failf("health endpoint unusable (status %d)", resp.StatusCode), nil
			}
			comp, ok := hc.Components[component]
			if !ok {
				return warnf("health payload has no %q component; cannot confirm it", component), nil
			}
			switch comp.Status {
			case types.HealthStatusUp:
				return passf("%s UP", component), nil
			case types.HealthStatusDegraded:
				return warnf("%s DEGRADED: %s", component, orUnknown(comp.Details)), nil
			default:
				return failf("%s %s: %s", component, comp.Status, orUnknown(comp.Details)), nil
			}
		},
	}
}

// controlPlaneStateCheck asks the deploy-ops API for the state of every
// target service. Skips when no control plane is configured.
func controlPlaneStateCheck(deps Deps) types.Check {
	return types.Check{
		ID:          "infra.controlplane.state",
		Category:    types.CategoryInfrastructure,
		Criticality: types.CriticalityStandard,
		Description: "Control plane reports all target services RUNNING",
		Remediation: "Inspect the deployment platform; a service is not in its steady state.",
		Timeout:     45 * time.Second,
		Run: func(ctx context.Context) (types.CheckOutcome, error) {
			if deps.ControlPlane == nil {
				return types.CheckOutcome{}, apperrors.NewConfigurationMissing("control plane API URL")
			}
			if len(deps.Services) == 0 {
				return types.CheckOutcome{}, apperrors.NewConfigurationMissing("target services")
			}

			services := append([]string(nil), deps.Services...)
			sort.Strings(services)

			var degraded, down []string
			for _, service := range services {
				status, err := deps.ControlPlane.GetServiceStatus(ctx, service)
				if err != nil {
					return types.CheckOutcome{}, err
				}
				switch status.State {
				case types.ServiceStateRunning:
				case types.ServiceStateDegraded:
					degraded = append(degraded, service)
				default:
					down = append(down, fmt.Sprintf("%s=%s", service, status.State))
				}
			}
			if len(down) > 0 {
				return failf("services not running: %s", strings.Join(down, ", ")), nil
			}
			if len(degraded) > 0 {
				return warnf("services degraded: %s", strings.Join(degraded, ", ")), nil
			}
			return passf("%d service(s) RUNNING", len(services)), nil
		},
	}
}

func livenessCheck(deps Deps) types.Check {
	return types.Check{
		ID:               "connectivity.api.liveness",
		Category:         types.CategoryConnectivity,
		Criticality:      types.CriticalityCritical,
		Description:      "Liveness endpoint is reachable and answers 200",
		Remediation:      "The process is not serving traffic; check deployment state and ingress routing.",
		Timeout:          20 * time.Second,
		VerifyOnRollback: true,
		Run:              expectStatus(deps.Client, "/health/liveness", http.StatusOK),
	}
}

func readinessCheck(deps Deps) types.Check {
	return types.Check{
		ID:          "connectivity.api.readiness",
		Category:    types.CategoryConnectivity,
		Criticality: types.CriticalityStandard,
		Description: "Readiness endpoint answers 200",
		Remediation: "The service is alive but reports itself not ready; its dependencies are likely unavailable.",
		Timeout:     20 * time.Second,
		Run:         expectStatus(deps.Client, "/health/readiness", http.StatusOK),
	}
}

// websocketCheck completes one realtime handshake. Registered only when
// the websocket check group is enabled.
func websocketCheck(deps Deps) types.Check {
	return types.Check{
		ID:          "connectivity.ws.handshake",
		Category:    types.CategoryConnectivity,
		Criticality: types.CriticalityStandard,
		Description: "Realtime endpoint completes a WebSocket handshake",
		Remediation: "Check the realtime gateway and any proxy in front of it; upgrade requests are not completing.",
		Timeout:     30 * time.Second,
		Run: func(ctx context.Context) (types.CheckOutcome, error) {
			if deps.WSURL == "" {
				return types.CheckOutcome{}, apperrors.NewConfigurationMissing("realtime endpoint URL")
			}
			elapsed, err := probe.DialWebSocket(ctx, deps.WSURL)
			if err != nil {
				return types.CheckOutcome{}, err
			}
			return passf("handshake completed in %d ms", elapsed.Milliseconds()), nil
		},
	}
}

// corsPreflightCheck observes whether the API answers browser preflights.
// Purely informational: a missing CORS header degrades web clients but is
// not a deployment failure.
func corsPreflightCheck(deps Deps) types.Check {
	return types.Check{
		ID:          "connectivity.cors.preflight",
		Category:    types.CategoryConnectivity,
		Criticality: types.CriticalityInformational,
		Description: "API answers CORS preflight for browser clients",
		Remediation: "Review the CORS configuration if web clients are expected to call this environment.",
		Timeout:     20 * time.Second,
		Run: func(ctx context.Context) (types.CheckOutcome, error) {
			headers := http.Header{}
			headers.Set("Origin", "https://app.nomadcrew.uk")
			headers.Set("Access-Control-Request-Method", http.MethodGet)

			resp, err := deps.Client.Do(ctx, http.MethodOptions, "/v1/trips", nil, headers)
			if err != nil {
				return types.CheckOutcome{}, err
			}
			allowOrigin := resp.Header.Get("Access-Control-Allow-Origin")
			if allowOrigin == "" {
				return warnf("preflight answered %d without Access-Control-Allow-Origin", resp.StatusCode), nil
			}
			return passf("preflight allows origin %s", allowOrigin), nil
		},
	}
}

// jwksCheck fetches and parses the published key set. An unparseable or
// empty set breaks all token verification, so it fails hard.
func jwksCheck(deps Deps) types.Check {
	return types.Check{
		ID:          "auth.jwks.keys",
		Category:    types.CategoryAuth,
		Criticality: types.CriticalityStandard,
		Description: "Published JWKS parses and contains usable keys",
		Remediation: "Check the identity provider's key publication; clients cannot verify tokens without it.",
		Timeout:     30 * time.Second,
		Run: func(ctx context.Context) (types.CheckOutcome, error) {
			if deps.JWKSURL == "" {
				return types.CheckOutcome{}, apperrors.NewConfigurationMissing("JWKS URL")
			}
			total, withKid, err := probe.FetchKeySet(ctx, deps.Client, deps.JWKSURL)
			if err != nil {
				if apperrors.IsTransient(err) {
					return types.CheckOutcome{}, err
				}
				return failf("%v", err), nil
			}
			if total == 0 {
				return failf("JWKS parsed but contains no keys"), nil
			}
			if withKid < total {
				return warnf("%d of %d keys missing a key ID; rotation may misbehave", total-withKid, total), nil
			}
			return passf("%d key(s) published", total), nil
		},
	}
}

// tokenFreshnessCheck inspects the configured probe credential. It guards
// the feature checks: an expiring token warns before it silently turns
// every authenticated check into a SKIP.
func tokenFreshnessCheck(deps Deps) types.Check {
	const expiryWarning = 15 * time.Minute
	return types.Check{
		ID:          "auth.token.freshness",
		Category:    types.CategoryAuth,
		Criticality: types.CriticalityInformational,
		Description: "Configured probe credential is fresh",
		Remediation: "Rotate the verification bearer token; authenticated checks skip without one.",
		Timeout:     5 * time.Second,
		Run: func(ctx context.Context) (types.CheckOutcome, error) {
			exp, err := probe.InspectToken(deps.BearerToken)
			if err != nil {
				return types.CheckOutcome{}, err
			}
			remaining := time.Until(exp)
			if remaining < expiryWarning {
				return warnf("token expires in %s", remaining.Round(time.Second)), nil
			}
			return passf("token valid until %s", exp.UTC().Format(time.RFC3339)), nil
		},
	}
}

// unauthorizedDisciplineCheck confirms the auth boundary holds: a protected
// endpoint must reject anonymous calls. Serving data without credentials is
// a release blocker no pass rate can excuse.
func unauthorizedDisciplineCheck(deps Deps) types.Check {
	return types.Check{
		ID:          "auth.protected.unauthorized",
		Category:    types.CategoryAuth,
		Criticality: types.CriticalityCritical,
		Description: "Protected endpoint rejects anonymous requests",
		Remediation: "Auth middleware is not enforcing on this route; stop the release and audit the auth configuration.",
		Timeout:     20 * time.Second,
		Run: func(ctx context.Context) (types.CheckOutcome, error) {
			resp, err := deps.Client.WithoutAuth().Get(ctx, "/v1/users/me")
			if err != nil {
				return types.CheckOutcome{}, err
			}
			switch {
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				return passf("anonymous request rejected with %d", resp.StatusCode), nil
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return failf("protected endpoint served an anonymous request with %d", resp.StatusCode), nil
			default:
				return warnf("expected 401 for anonymous request, got %d", resp.StatusCode), nil
			}
		},
	}
}

// featureEndpointCheck probes one authenticated API surface. Skips when no
// usable credential is configured.
func featureEndpointCheck(deps Deps, id, path, what string) types.Check {
	return types.Check{
		ID:          id,
		Category:    types.CategoryFeature,
		Criticality: types.CriticalityStandard,
		Description: fmt.Sprintf("Authenticated %s endpoint answers 200", what),
		Remediation: fmt.Sprintf("The %s feature is broken for signed-in users; check its handler and dependencies.", what),
		Timeout:     30 * time.Second,
		Run: func(ctx context.Context) (types.CheckOutcome, error) {
			if _, err := probe.InspectToken(deps.BearerToken); err != nil {
				return types.CheckOutcome{}, err
			}
			resp, err := deps.Client.Get(ctx, path)
			if err != nil {
				return types.CheckOutcome{}, err
			}
			switch {
			case resp.StatusCode == http.StatusOK:
				return passf("%s answered 200", path), nil
			case resp.StatusCode == http.StatusUnauthorized:
				return failf("%s rejected the configured credential (401)", path), nil
			default:
				return failf("%s answered %d", path, resp.StatusCode), nil
			}
		},
	}
}

// healthLatencyCheck times the health endpoint. Latency above the bar is a
// warning, never a hard failure; a saturated service shows up in the
// functional checks anyway.
func healthLatencyCheck(deps Deps) types.Check {
	return types.Check{
		ID:          "performance.health.latency",
		Category:    types.CategoryPerformance,
		Criticality: types.CriticalityInformational,
		Description: fmt.Sprintf("Health endpoint answers within %s", healthLatencyThreshold),
		Remediation: "Investigate resource saturation or a cold dependency; baseline latency has regressed.",
		Timeout:     30 * time.Second,
		Run: func(ctx context.Context) (types.CheckOutcome, error) {
			resp, err := deps.Client.Get(ctx, "/health")
			if err != nil {
				return types.CheckOutcome{}, err
			}
			if resp.StatusCode != http.StatusOK {
				return warnf("health endpoint answered %d; latency not measured", resp.StatusCode), nil
			}
			if resp.DurationMs > healthLatencyThreshold.Milliseconds() {
				return warnf("answered in %d ms (bar %d ms)", resp.DurationMs, healthLatencyThreshold.Milliseconds()), nil
			}
			return passf("answered in %d ms", resp.DurationMs), nil
		},
	}
}

// expectStatus builds a probe asserting one GET endpoint's status code.
func expectStatus(client *probe.Client, path string, want int) types.ProbeFunc {
	return func(ctx context.Context) (types.CheckOutcome, error) {
		resp, err := client.Get(ctx, path)
		if err != nil {
			return types.CheckOutcome{}, err
		}
		if resp.StatusCode != want {
			return failf("%s answered %d, expected %d", path, resp.StatusCode, want), nil
		}
		return passf("%s answered %d in %d ms", path, resp.StatusCode, resp.DurationMs), nil
	}
}

func passf(format string, args ...interface{}) types.CheckOutcome {
	return types.CheckOutcome{Status: types.CheckStatusPass, Message: fmt.Sprintf(format, args...)}
}

func warnf(format string, args ...interface{}) types.CheckOutcome {
	return types.CheckOutcome{Status: types.CheckStatusWarn, Message: fmt.Sprintf(format, args...)}
}

func failf(format string, args ...interface{}) types.CheckOutcome {
	return types.CheckOutcome{Status: types.CheckStatusFail, Message: fmt.Sprintf(format, args...)}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
