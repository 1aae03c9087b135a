package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NomadCrew/release-gate/logger"
	"github.com/NomadCrew/release-gate/types"
)

func TestMain(m *testing.M) {
	logger.IsTest = true
	os.Exit(m.Run())
}

// fakeTarget fakes the deployed environment's API surface: health endpoints,
// CORS preflight, the protected profile endpoint, and a JWKS document.
// healthStatus controls the aggregated health payload.
func fakeTarget(t *testing.T, healthStatus string, healthCode int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/health":
			w.WriteHeader(healthCode)
			fmt.Fprintf(w, `{"status":%q,"components":{"database":{"status":"UP"},"redis":{"status":"UP"}},"version":"1.4.0","uptime":"26h"}`,
				healthStatus)
		case r.URL.Path == "/health/liveness" || r.URL.Path == "/health/readiness":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodOptions && r.URL.Path == "/v1/trips":
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/v1/users/me":
			w.WriteHeader(http.StatusUnauthorized)
		case r.URL.Path == "/.well-known/jwks.json":
			fmt.Fprint(w, `{"keys":[{"kty":"oct","kid":"k1","k":"c2VjcmV0LXNlY3JldC1zZWNyZXQ"}]}`)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeCLIConfig writes a config file pointing the tool at the fake target.
// extra is appended verbatim for per-test sections.
func writeCLIConfig(t *testing.T, targetURL, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`environment: staging
target:
  base_url: %q
  jwks_url: %q
  services:
    - backend
executor:
  parallelism: 2
  budget_seconds: 60
  shutdown_timeout_seconds: 10
%s`, targetURL, targetURL+"/.well-known/jwks.json", extra)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// disableOptionalCheckGroups pins the env-driven feature flags so test
// expectations do not depend on the ambient environment.
func disableOptionalCheckGroups(t *testing.T) {
	t.Helper()
	t.Setenv("ENABLE_WEBSOCKET_CHECKS", "false")
	t.Setenv("ENABLE_PERFORMANCE_CHECKS", "false")
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    []types.CheckCategory
		wantErr bool
	}{
		{name: "empty is nil", input: nil, want: nil},
		{
			name:  "known categories",
			input: []string{"infra", "connectivity"},
			want:  []types.CheckCategory{types.CategoryInfrastructure, types.CategoryConnectivity},
		},
		{
			name:  "case and whitespace tolerated",
			input: []string{" AUTH ", "Feature"},
			want:  []types.CheckCategory{types.CategoryAuth, types.CategoryFeature},
		},
		{name: "unknown rejected", input: []string{"network"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCategories(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown check category")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadConfigExplicitFile(t *testing.T) {
	disableOptionalCheckGroups(t)
	path := writeCLIConfig(t, "https://api.staging.nomadcrew.uk", "")

	cfg, err := loadConfig(&options{configFile: path})
	require.NoError(t, err)
	assert.Equal(t, "https://api.staging.nomadcrew.uk", cfg.Target.BaseURL)
	assert.Equal(t, []string{"backend"}, cfg.Target.Services)

	// The environment flag overrides the file's environment.
	cfg, err = loadConfig(&options{configFile: path, environment: "production"})
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(&options{configFile: filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	err := execute(t, "version")
	require.NoError(t, err)
}

func TestUnknownCommand(t *testing.T) {
	err := execute(t, "promote")
	require.Error(t, err)
}

func TestExitErrorMapping(t *testing.T) {
	gateErr := &exitError{code: 2}
	assert.Equal(t, "exit status 2", gateErr.Error())

	var exit *exitError
	require.True(t, errors.As(error(gateErr), &exit))
	assert.Equal(t, 2, exit.code)

	withMsg := &exitError{code: 1, msg: "rollback of backend failed"}
	assert.Equal(t, "rollback of backend failed", withMsg.Error())
}

func TestChecksCommand(t *testing.T) {
	disableOptionalCheckGroups(t)
	srv := fakeTarget(t, "UP", http.StatusOK)
	cfgPath := writeCLIConfig(t, srv.URL, "")

	root := NewRootCmd()
	out := &capturingWriter{}
	root.SetOut(out)
	root.SetArgs([]string{"checks", "--config", cfgPath, "--categories", "auth"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "auth.jwks.keys")
	assert.Contains(t, out.String(), "auth.protected.unauthorized")
	assert.NotContains(t, out.String(), "infra.api.health")
}

func TestRunsCommandWithoutDatabase(t *testing.T) {
	disableOptionalCheckGroups(t)
	srv := fakeTarget(t, "UP", http.StatusOK)
	cfgPath := writeCLIConfig(t, srv.URL, "")

	root := NewRootCmd()
	out := &capturingWriter{}
	root.SetOut(out)
	root.SetArgs([]string{"runs", "--config", cfgPath})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "No history database configured")
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	root := NewRootCmd()
	out := &capturingWriter{}
	root.SetOut(out)
	root.SetArgs([]string{"init", "--environment", "staging"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	written := filepath.Join(dir, "config", "config.staging.yaml")
	assert.FileExists(t, written)

	// Re-running refuses to clobber the existing file.
	root = NewRootCmd()
	root.SetArgs([]string{"init", "--environment", "staging"})
	require.Error(t, root.ExecuteContext(context.Background()))
}

// capturingWriter collects command output for assertions.
type capturingWriter struct {
	data []byte
}

func (w *capturingWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *capturingWriter) String() string { return string(w.data) }
