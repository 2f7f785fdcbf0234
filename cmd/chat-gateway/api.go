// ABOUTME: Thin HTTP surface over the chat service
// ABOUTME: Maps chat error codes onto HTTP statuses for callers

package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/pathwise/chat-gateway/internal/chat"
	"github.com/pathwise/chat-gateway/internal/store"
	"github.com/pathwise/chat-gateway/internal/tools"
)

// api exposes the chat service over JSON. Authentication is delegated to the
// fronting layer: the caller's identity arrives in X-User-ID and the bearer
// token or cookie is forwarded unchanged into tool dispatch.
type api struct {
	service *chat.Service
	logger  *slog.Logger
}

func newAPI(service *chat.Service, logger *slog.Logger) *api {
	return &api{service: service, logger: logger.With("component", "api")}
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /chat/start", a.handleStart)
	mux.HandleFunc("POST /chat/message", a.handleMessage)
	return mux
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) handleStart(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing user identity"})
		return
	}

	session, err := a.service.StartChat(r.Context(), userID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

type messageRequest struct {
	ThreadID string `json:"thread_id"` // external thread id
	Text     string `json:"text"`
}

// messageResponse is the wire shape of one stored message.
type messageResponse struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Role         string    `json:"role"`
	Favorite     bool      `json:"favorite"`
	FavoriteNote string    `json:"favorite_note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// sessionResponse is the wire shape of an active chat session. ThreadID is
// the external id the client sends back on /chat/message.
type sessionResponse struct {
	ThreadID  string            `json:"thread_id"`
	CreatedAt time.Time         `json:"created_at"`
	Messages  []messageResponse `json:"messages"`
}

// turnResponse is the wire shape of one completed chat turn.
type turnResponse struct {
	ThreadID string `json:"thread_id"`
	Response string `json:"response"`
}

func toSessionResponse(session *chat.ChatSession) sessionResponse {
	resp := sessionResponse{
		ThreadID:  session.Thread.ExternalID,
		CreatedAt: session.Thread.CreatedAt,
		Messages:  make([]messageResponse, 0, len(session.Messages)),
	}
	for _, msg := range session.Messages {
		resp.Messages = append(resp.Messages, toMessageResponse(msg))
	}
	return resp
}

func toMessageResponse(msg *store.Message) messageResponse {
	return messageResponse{
		ID:           msg.ID,
		Content:      msg.Content,
		Role:         msg.Role,
		Favorite:     msg.Favorite,
		FavoriteNote: msg.FavoriteNote,
		CreatedAt:    msg.CreatedAt,
	}
}

func (a *api) handleMessage(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing user identity"})
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	creds := tools.Credentials{Cookie: r.Header.Get("Cookie")}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
		creds.BearerToken = auth[7:]
	}

	result, err := a.service.ProcessTurn(r.Context(), userID, req.ThreadID, req.Text, creds)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{ThreadID: req.ThreadID, Response: result.Response})
}

// writeError maps the chat error taxonomy onto HTTP statuses: busy and
// in-progress are "try again", rate limiting throttles, invalid thread is a
// client error, and everything else is a retryable server failure.
func (a *api) writeError(w http.ResponseWriter, err error) {
	code := chat.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case chat.CodeInvalidThread:
		status = http.StatusBadRequest
	case chat.CodeConversationBusy, chat.CodeProcessingInProgress:
		status = http.StatusConflict
	case chat.CodeRateLimit:
		status = http.StatusTooManyRequests
	case chat.CodeTimeout:
		status = http.StatusGatewayTimeout
	}

	a.logger.Debug("request failed", "code", code, "status", status)
	writeJSON(w, status, map[string]string{"code": string(code)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
