package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-agent/internal/middleware"
	"github.com/capitalize-ai/support-agent/internal/model"
	"github.com/capitalize-ai/support-agent/internal/service"
	"github.com/capitalize-ai/support-agent/pkg/logger"
	"github.com/capitalize-ai/support-agent/pkg/metrics"
)

// StreamHandler serves a thread's turns as a long-lived SSE stream so a
// waiting user receives the human answer when it lands.
type StreamHandler struct {
	chatService  *service.ChatService
	logger       *logger.Logger
	pollInterval time.Duration
	heartbeat    time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(chatSvc *service.ChatService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		chatService:  chatSvc,
		logger:       log,
		pollInterval: 2 * time.Second,
		heartbeat:    30 * time.Second,
	}
}

// ReplayCompleteEvent marks the end of the initial replay.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"last_sequence"`
	TurnCount    int    `json:"turn_count"`
}

// Stream handles GET /api/v1/threads/{threadID}/stream
// Supports ?after_sequence=N for resuming from a specific point.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	threadID := chi.URLParam(r, "threadID")
	log := h.logger.WithContext(middleware.GetCorrelationID(ctx), tenantID, threadID)

	afterSequence, err := parseAfterSequence(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Fail before committing to a stream.
	first, err := h.chatService.History(ctx, tenantID, threadID, afterSequence)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	flusher, ok := startSSE(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	for _, turn := range first.Turns {
		if err := sendSSEEvent(w, flusher, "turn", turn); err != nil {
			log.Debug("stream client gone during replay", zap.Error(err))
			return
		}
	}
	cursor := first.LastSequence

	if err := sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{
		LastSequence: cursor,
		TurnCount:    len(first.Turns),
	}); err != nil {
		return
	}
	log.Debug("turn replay complete", zap.Int("turns", len(first.Turns)), zap.Uint64("last_sequence", cursor))

	poll := time.NewTicker(h.pollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("stream client disconnected")
			return

		case <-poll.C:
			resp, err := h.chatService.History(ctx, tenantID, threadID, cursor)
			if err != nil {
				log.Warn("failed to poll turns", zap.Error(err))
				continue
			}
			for _, turn := range resp.Turns {
				if err := sendSSEEvent(w, flusher, "turn", turn); err != nil {
					log.Debug("stream client gone", zap.Error(err))
					return
				}
				cursor = turn.SequenceNo
			}

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now().UTC(),
			}); err != nil {
				log.Debug("stream client gone", zap.Error(err))
				return
			}
		}
	}
}

func parseAfterSequence(r *http.Request) (uint64, error) {
	s := r.URL.Query().Get("after_sequence")
	if s == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid after_sequence %q", s)
	}
	return seq, nil
}

func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

// sendSSEEvent writes one named frame. An empty name writes a data-only frame.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
