package registry

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/NomadCrew/release-gate/types"
)

// manifest is the optional per-environment check overlay. Entries either
// tune a built-in check by ID or, when an http block is present under an
// unknown ID, register a new HTTP check.
type manifest struct {
	Checks []manifestCheck `yaml:"checks"`
}

type manifestCheck struct {
	ID          string         `yaml:"id"`
	Disabled    bool           `yaml:"disabled"`
	Category    string         `yaml:"category"`
	Criticality string         `yaml:"criticality"`
	Description string         `yaml:"description"`
	Remediation string         `yaml:"remediation"`
	Timeout     string         `yaml:"timeout"`
	Retry       *manifestRetry `yaml:"retry"`
	HTTP        *manifestHTTP  `yaml:"http"`
}

type manifestRetry struct {
	MaxAttempts int     `yaml:"max_attempts"`
	BaseDelay   string  `yaml:"base_delay"`
	Multiplier  float64 `yaml:"multiplier"`
	MaxDelay    string  `yaml:"max_delay"`
}

type manifestHTTP struct {
	Method       string `yaml:"method"`
	Path         string `yaml:"path"`
	ExpectStatus int    `yaml:"expect_status"`
	Auth         bool   `yaml:"auth"`
}

// applyManifest overlays a YAML manifest onto the built-in set. A missing
// path is fine; a present but unreadable or invalid manifest is a hard
// error so a typo never silently runs the default set.
func (r *Registry) applyManifest(deps Deps, path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.NewConfigurationMissing(fmt.Sprintf("check manifest %s", path))
		}
		return fmt.Errorf("reading check manifest %s: %w", path, err)
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("parsing check manifest %s: %w", path, err)
	}

	for i, entry := range m.Checks {
		if entry.ID == "" {
			return fmt.Errorf("check manifest %s: entry %d has no id", path, i)
		}
		if idx, ok := r.byID[entry.ID]; ok {
			if err := tuneCheck(&r.checks[idx], entry); err != nil {
				return fmt.Errorf("check manifest %s: %s: %w", path, entry.ID, err)
			}
			continue
		}
		if entry.HTTP == nil {
			return fmt.Errorf("check manifest %s: %s is not a built-in check and has no http block", path, entry.ID)
		}
		if entry.Disabled {
			continue
		}
		check, err := customHTTPCheck(deps, entry)
		if err != nil {
			return fmt.Errorf("check manifest %s: %s: %w", path, entry.ID, err)
		}
		if err := r.add(check); err != nil {
			return fmt.Errorf("check manifest %s: %w", path, err)
		}
	}

	r.dropDisabled()
	return nil
}

// tuneCheck applies an overlay entry to an existing check in place. The
// probe itself is never replaced, only its envelope.
func tuneCheck(check *types.Check, entry manifestCheck) error {
	if entry.Disabled {
		check.Run = nil // marks the check for removal
		return nil
	}
	if entry.HTTP != nil {
		return fmt.Errorf("http block is only valid on new checks")
	}
	if entry.Criticality != "" {
		crit, err := parseCriticality(entry.Criticality)
		if err != nil {
			return err
		}
		check.Criticality = crit
	}
	if entry.Description != "" {
		check.Description = entry.Description
	}
	if entry.Remediation != "" {
		check.Remediation = entry.Remediation
	}
	if entry.Timeout != "" {
		timeout, err := parseDuration("timeout", entry.Timeout)
		if err != nil {
			return err
		}
		check.Timeout = timeout
	}
	if entry.Retry != nil {
		retry, err := parseRetry(*entry.Retry, check.Retry)
		if err != nil {
			return err
		}
		check.Retry = retry
	}
	return nil
}

// customHTTPCheck builds a check from a manifest http block. It covers the
// common case of "this environment also has endpoint X" without code.
func customHTTPCheck(deps Deps, entry manifestCheck) (types.Check, error) {
	category, err := parseCategory(entry.Category)
	if err != nil {
		return types.Check{}, err
	}
	criticality := types.CriticalityStandard
	if entry.Criticality != "" {
		if criticality, err = parseCriticality(entry.Criticality); err != nil {
			return types.Check{}, err
		}
	}

	method := strings.ToUpper(entry.HTTP.Method)
	if method == "" {
		method = http.MethodGet
	}
	httpPath := entry.HTTP.Path
	if httpPath == "" {
		return types.Check{}, fmt.Errorf("http block has no path")
	}
	want := entry.HTTP.ExpectStatus
	if want == 0 {
		want = http.StatusOK
	}

	check := types.Check{
		ID:          entry.ID,
		Category:    category,
		Criticality: criticality,
		Description: entry.Description,
		Remediation: entry.Remediation,
	}
	if check.Description == "" {
		check.Description = fmt.Sprintf("%s %s answers %d", method, httpPath, want)
	}
	if entry.Timeout != "" {
		if check.Timeout, err = parseDuration("timeout", entry.Timeout); err != nil {
			return types.Check{}, err
		}
	}
	if entry.Retry != nil {
		if check.Retry, err = parseRetry(*entry.Retry, defaultRetry()); err != nil {
			return types.Check{}, err
		}
	}

	client := deps.Client
	if !entry.HTTP.Auth {
		client = client.WithoutAuth()
	}
	check.Run = func(ctx context.Context) (types.CheckOutcome, error) {
		resp, err := client.Do(ctx, method, httpPath, nil, nil)
		if err != nil {
			return types.CheckOutcome{}, err
		}
		if resp.StatusCode != want {
			return failf("%s %s answered %d, expected %d", method, httpPath, resp.StatusCode, want), nil
		}
		return passf("%s %s answered %d in %d ms", method, httpPath, resp.StatusCode, resp.DurationMs), nil
	}
	return check, nil
}

func parseRetry(entry manifestRetry, base types.RetryPolicy) (types.RetryPolicy, error) {
	out := base
	var err error
	if entry.MaxAttempts > 0 {
		out.MaxAttempts = entry.MaxAttempts
	}
	if entry.BaseDelay != "" {
		if out.BaseDelay, err = parseDuration("base_delay", entry.BaseDelay); err != nil {
			return out, err
		}
	}
	if entry.Multiplier > 0 {
		out.Multiplier = entry.Multiplier
	}
	if entry.MaxDelay != "" {
		if out.MaxDelay, err = parseDuration("max_delay", entry.MaxDelay); err != nil {
			return out, err
		}
	}
	return out, nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", field, raw)
	}
	return d, nil
}

func parseCriticality(raw string) (types.Criticality, error) {
	switch types.Criticality(strings.ToUpper(raw)) {
	case types.CriticalityCritical:
		return types.CriticalityCritical, nil
	case types.CriticalityStandard:
		return types.CriticalityStandard, nil
	case types.CriticalityInformational:
		return types.CriticalityInformational, nil
	default:
		return "", fmt.Errorf("unknown criticality %q", raw)
	}
}

func parseCategory(raw string) (types.CheckCategory, error) {
	if raw == "" {
		return types.CategoryFeature, nil
	}
	want := types.CheckCategory(strings.ToLower(raw))
	for _, c := range types.Categories() {
		if c == want {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", raw)
}

// dropDisabled removes checks whose probe was nilled out by a disabled
// overlay entry and rebuilds the index.
func (r *Registry) dropDisabled() {
	kept := r.checks[:0]
	for _, c := range r.checks {
		if c.Run != nil {
			kept = append(kept, c)
		}
	}
	r.checks = kept
	r.byID = make(map[string]int, len(r.checks))
	for i, c := range r.checks {
		r.byID[c.ID] = i
	}
}
