package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pagecraft/blocks-api/internal/platform/httpx"
	"github.com/pagecraft/blocks-api/internal/realtime"
)

const maxChatRequestBody = 8 * 1024

// ChatHandlers serves the visitor chat stream and message submission.
type ChatHandlers struct {
	hub    *realtime.Hub
	stream http.Handler
}

// NewChatHandlers constructs chat handlers around the shared hub.
func NewChatHandlers(hub *realtime.Hub, stream http.Handler) *ChatHandlers {
	return &ChatHandlers{
		hub:    hub,
		stream: stream,
	}
}

// Routes registers chat endpoints under the provided router.
func (h *ChatHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/chat/stream", h.streamEvents)
	r.Post("/chat/messages", h.postMessage)
}

type chatMessageRequest struct {
	Conversation string `json:"conversation"`
	Sender       string `json:"sender"`
	Body         string `json:"body"`
}

func (h *ChatHandlers) streamEvents(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("chat_unavailable", "chat service unavailable", http.StatusServiceUnavailable))
		return
	}
	h.stream.ServeHTTP(w, r)
}

func (h *ChatHandlers) postMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.hub == nil {
		httpx.WriteError(ctx, w, httpx.NewError("chat_unavailable", "chat service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxChatRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req chatMessageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	msg, err := h.hub.Publish(ctx, realtime.Message{
		Conversation: strings.TrimSpace(req.Conversation),
		Sender:       req.Sender,
		Body:         req.Body,
	})
	if err != nil {
		if errors.Is(err, realtime.ErrHubInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("chat_error", "failed to publish message", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusCreated, msg)
}
