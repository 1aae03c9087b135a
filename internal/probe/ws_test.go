package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	apperrors "github.com/NomadCrew/release-gate/errors"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialWebSocketHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		// Keep reading so ping frames are answered until the probe closes.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	elapsed, err := DialWebSocket(ctx, wsURL(srv))
	require.NoError(t, err)
	assert.Greater(t, elapsed, time.Duration(0))
}

func TestDialWebSocketUpgradeRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no realtime here", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := DialWebSocket(context.Background(), wsURL(srv))
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err), "failed handshakes must be retryable")
}

func TestDialWebSocketUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := wsURL(srv)
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := DialWebSocket(ctx, url)
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}
