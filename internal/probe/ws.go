package probe

import (
	"context"
	"time"

	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/NomadCrew/release-gate/logger"
	"nhooyr.io/websocket"
)

// DialWebSocket completes one realtime handshake against the given URL,
// pings, and closes cleanly. Dial and ping failures are transient: the
// executor retries them like any other transport failure.
func DialWebSocket(ctx context.Context, wsURL string) (time.Duration, error) {
	log := logger.GetLogger()

	start := time.Now()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return 0, apperrors.NewTransientNetworkError("websocket dial", err)
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "probe complete")
	}()

	if err := conn.Ping(ctx); err != nil {
		return 0, apperrors.NewTransientNetworkError("websocket ping", err)
	}
	elapsed := time.Since(start)

	log.Debugw("WebSocket handshake completed",
		"url", wsURL,
		"duration_ms", elapsed.Milliseconds())
	return elapsed, nil
}
