package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// keepAliveInterval spaces SSE comments so proxies keep idle streams open.
var keepAliveInterval = 15 * time.Second

// SessionEvents streams the session as server-sent events. Every change is
// sent as a "session" event carrying the same JSON as GetSession; a closed
// session ends the stream with a "closed" event.
func (a *App) SessionEvents(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case snap, ok := <-updates:
			if !ok {
				_, _ = fmt.Fprint(w, "event: closed\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			data, err := json.Marshal(newSessionView(snap))
			if err != nil {
				a.Logger.Error().Err(err).Msg("handlers: encode session event")
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: session\ndata: %s\n\n", snap.Generation, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
