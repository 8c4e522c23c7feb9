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
)

// TicketHandler handles escalation tickets.
type TicketHandler struct {
	resolution *service.ResolutionService
	logger     *logger.Logger
}

// NewTicketHandler creates a new ticket handler.
func NewTicketHandler(svc *service.ResolutionService, log *logger.Logger) *TicketHandler {
	return &TicketHandler{
		resolution: svc,
		logger:     log,
	}
}

// Get handles GET /api/v1/threads/{threadID}/ticket
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tk, err := h.resolution.Ticket(ctx, middleware.GetTenantID(ctx), chi.URLParam(r, "threadID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tk)
}

// Resolve handles POST /api/v1/threads/{threadID}/resolve
func (h *TicketHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	threadID := chi.URLParam(r, "threadID")

	var req model.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.resolution.Resolve(ctx, tenantID, threadID, &req)
	if err != nil {
		h.logger.WithContext(middleware.GetCorrelationID(ctx), tenantID, threadID).
			Warn("resolution rejected", zap.String("user_id", middleware.GetUserID(ctx)), zap.Error(err))
		writeServiceError(w, err)
		return
	}

	h.logger.WithContext(middleware.GetCorrelationID(ctx), tenantID, threadID).
		Info("thread resolved", zap.String("user_id", middleware.GetUserID(ctx)), zap.Bool("notified", res.Notified))
	writeJSON(w, http.StatusOK, res)
}
