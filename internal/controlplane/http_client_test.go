package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NomadCrew/release-gate/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetServiceStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/services/api", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		json.NewEncoder(w).Encode(types.ServiceStatus{
			Service:         "api",
			State:           types.ServiceStateRunning,
			ActiveReference: "v1.2.3",
			UpdatedAt:       time.Now().UTC(),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	status, err := client.GetServiceStatus(context.Background(), "api")

	require.NoError(t, err)
	assert.Equal(t, "api", status.Service)
	assert.Equal(t, types.ServiceStateRunning, status.State)
	assert.Equal(t, "v1.2.3", status.ActiveReference)
}

func TestUpdateServiceReference(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/services/api/reference", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	err := client.UpdateServiceReference(context.Background(), "api", "v1.2.2")

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"reference": "v1.2.2"}, gotBody)
}

func TestUpdateServiceReferenceFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"reference not found"}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	err := client.UpdateServiceReference(context.Background(), "api", "missing-ref")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
	assert.Contains(t, err.Error(), "reference not found")
}

func TestListReferences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/services/worker/references", r.URL.Path)
		json.NewEncoder(w).Encode([]types.Reference{
			{Name: "v1.2.3", Active: true},
			{Name: "v1.2.2"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	refs, err := client.ListReferences(context.Background(), "worker")

	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.True(t, refs[0].Active)
	assert.Equal(t, "v1.2.2", refs[1].Name)
}

func TestRestart(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/services/api/restart", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	require.NoError(t, client.Restart(context.Background(), "api"))
	assert.True(t, called)
}

func TestClientUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "test-key", WithTimeout(200*time.Millisecond))

	_, err := client.GetServiceStatus(context.Background(), "api")
	require.Error(t, err)
}
