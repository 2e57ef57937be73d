package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mockcarpool/carpool/internal/api/models"
)

// keepAliveInterval is how often an idle event stream sends a comment line.
const keepAliveInterval = 15 * time.Second

// Events handles GET /v1/sessions/{sessionID}/events as a server-sent event
// stream. The current snapshot is sent first as a "snapshot" event; every later
// state change is sent with its reason as the event name and the snapshot
// version as the event id. Updates older than one already sent are skipped.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise end the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	updates, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	current := sess.Snapshot()
	if err := writeEvent(w, rc, "snapshot", models.SessionEvent{Snapshot: current}); err != nil {
		return
	}
	sent := current.Version

	logger := h.logger.With().Str("session_id", sess.ID()).Logger()
	logger.Debug().Msg("event stream opened")
	defer logger.Debug().Msg("event stream closed")

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.Snapshot.Version <= sent {
				continue
			}
			if err := writeEvent(w, rc, string(u.Reason), models.SessionEvent{Reason: u.Reason, Snapshot: u.Snapshot}); err != nil {
				logger.Debug().Err(err).Msg("event stream write failed")
				return
			}
			sent = u.Snapshot.Version
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, name string, ev models.SessionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Snapshot.Version, name, data); err != nil {
		return err
	}
	return rc.Flush()
}
