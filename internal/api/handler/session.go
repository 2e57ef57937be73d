package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mockcarpool/carpool/internal/api/models"
	"github.com/mockcarpool/carpool/internal/api/response"
	"github.com/mockcarpool/carpool/internal/auth"
	"github.com/mockcarpool/carpool/internal/session"
)

// fieldParam is the chi URL parameter naming a field.
const fieldParam = "field"

// SessionHandler exposes route-search sessions over HTTP.
type SessionHandler struct {
	sessions *session.Manager
	tokens   *auth.TokenService
	logger   zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *session.Manager, tokens *auth.TokenService, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
	}
}

// CreateSession handles POST /v1/sessions - opens a session and issues its token.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Create()
	if err != nil {
		if response.SessionError(w, r, err) == http.StatusInternalServerError {
			h.logger.Error().Err(err).Msg("failed to create session")
		}
		return
	}

	token, expiresAt, err := h.tokens.Issue(sess.ID())
	if err != nil {
		_ = h.sessions.Close(sess.ID())
		h.logger.Error().Err(err).Str("session_id", sess.ID()).Msg("failed to issue session token")
		response.InternalError(w, r, "failed to create session")
		return
	}

	response.Created(w, r, fmt.Sprintf("/v1/sessions/%s", sess.ID()), models.CreateSessionResponse{
		SessionID: sess.ID(),
		Token:     token,
		ExpiresAt: models.Timestamp(expiresAt),
		Snapshot:  sess.Snapshot(),
	})
}

// GetSession handles GET /v1/sessions/{sessionID} - the current snapshot.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, sess.Snapshot())
}

// DeleteSession handles DELETE /v1/sessions/{sessionID}.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(GetSessionID(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// SetText handles PUT /v1/sessions/{sessionID}/fields/{field}.
func (h *SessionHandler) SetText(w http.ResponseWriter, r *http.Request) {
	sess, field, ok := h.sessionField(w, r)
	if !ok {
		return
	}

	var input models.SetTextRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Text == nil {
		response.BadRequest(w, r, "text is required", []models.FieldError{
			{Field: "text", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	snap, err := sess.SetText(r.Context(), field, *input.Text)
	h.writeSnapshot(w, r, http.StatusOK, snap, err)
}

// Focus handles POST /v1/sessions/{sessionID}/fields/{field}/focus.
func (h *SessionHandler) Focus(w http.ResponseWriter, r *http.Request) {
	h.setFocus(w, r, true)
}

// Blur handles POST /v1/sessions/{sessionID}/fields/{field}/blur.
func (h *SessionHandler) Blur(w http.ResponseWriter, r *http.Request) {
	h.setFocus(w, r, false)
}

func (h *SessionHandler) setFocus(w http.ResponseWriter, r *http.Request, focused bool) {
	sess, field, ok := h.sessionField(w, r)
	if !ok {
		return
	}
	snap, err := sess.Focus(r.Context(), field, focused)
	h.writeSnapshot(w, r, http.StatusOK, snap, err)
}

// SelectSuggestion handles POST /v1/sessions/{sessionID}/fields/{field}/selection.
func (h *SessionHandler) SelectSuggestion(w http.ResponseWriter, r *http.Request) {
	sess, field, ok := h.sessionField(w, r)
	if !ok {
		return
	}

	var input models.SelectSuggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Index == nil {
		response.BadRequest(w, r, "index is required", []models.FieldError{
			{Field: "index", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	snap, err := sess.SelectSuggestion(r.Context(), field, *input.Index)
	h.writeSnapshot(w, r, http.StatusOK, snap, err)
}

// RequestRoute handles POST /v1/sessions/{sessionID}/route. Resolution and
// routing continue in the background; progress arrives on the event stream.
func (h *SessionHandler) RequestRoute(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.RequestRoute(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Accepted(w, r, fmt.Sprintf("/v1/sessions/%s", sess.ID()), snap)
}

// Reset handles POST /v1/sessions/{sessionID}/reset.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.Reset(r.Context())
	h.writeSnapshot(w, r, http.StatusOK, snap, err)
}

// Map handles GET /v1/sessions/{sessionID}/map.geojson.
func (h *SessionHandler) Map(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	body, err := sess.Snapshot().Map.FeatureCollection().MarshalJSON()
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sess.ID()).Msg("failed to encode map")
		response.InternalError(w, r, "failed to encode map")
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// session looks up the authorized session, writing a 404 when it is gone.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.sessions.Get(GetSessionID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (h *SessionHandler) sessionField(w http.ResponseWriter, r *http.Request) (*session.Session, session.FieldID, bool) {
	field, err := session.ParseField(chi.URLParam(r, fieldParam))
	if err != nil {
		response.BadRequest(w, r, "unknown field", []models.FieldError{
			{Field: fieldParam, Message: "must be start or end", Code: "INVALID_FIELD"},
		})
		return nil, "", false
	}
	sess, ok := h.session(w, r)
	if !ok {
		return nil, "", false
	}
	return sess, field, true
}

func (h *SessionHandler) writeSnapshot(w http.ResponseWriter, r *http.Request, status int, snap *session.Snapshot, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, status, snap)
}

// writeError answers a failed session command and logs what the client cannot fix.
func (h *SessionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch response.SessionError(w, r, err) {
	case 0:
		h.logger.Debug().Str("session_id", GetSessionID(r.Context())).Msg("request cancelled")
	case http.StatusInternalServerError:
		h.logger.Error().Err(err).Str("session_id", GetSessionID(r.Context())).Msg("session command failed")
	}
}
