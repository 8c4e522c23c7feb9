package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-agent/internal/middleware"
	"github.com/capitalize-ai/support-agent/internal/model"
	"github.com/capitalize-ai/support-agent/internal/service"
	"github.com/capitalize-ai/support-agent/pkg/logger"
	"github.com/capitalize-ai/support-agent/pkg/metrics"
)

// MessageHandler handles user messages and thread history.
type MessageHandler struct {
	chatService *service.ChatService
	logger      *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(chatSvc *service.ChatService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		chatService: chatSvc,
		logger:      log,
	}
}

// List handles GET /api/v1/threads/{threadID}/history
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	threadID := chi.URLParam(r, "threadID")

	afterSequence, err := parseAfterSequence(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.chatService.History(ctx, tenantID, threadID, afterSequence)
	if err != nil {
		h.logger.WithContext(middleware.GetCorrelationID(ctx), tenantID, threadID).Error("failed to list turns", zap.Error(err))
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /api/v1/threads/{threadID}/messages
// The response is an event stream with one data frame per run event.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	threadID := chi.URLParam(r, "threadID")
	log := h.logger.WithContext(middleware.GetCorrelationID(ctx), tenantID, threadID)

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	stream, err := h.chatService.Send(ctx, tenantID, threadID, req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// The run continues without us once we stop reading.
	defer stream.Detach()

	flusher, _ := startSSE(w)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	for {
		select {
		case <-ctx.Done():
			log.Info("client disconnected during run")
			return
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			if err := sendSSEEvent(w, flusher, "", ev); err != nil {
				log.Info("failed to write event", zap.Error(err))
				return
			}
		}
	}
}
