package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"evernote-syncd/internal/service"
	"evernote-syncd/pkg/response"
)

type SyncHandler struct {
	manager *service.SyncManager
	logger  *log.Logger
}

func NewSyncHandler(manager *service.SyncManager, logger *log.Logger) *SyncHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &SyncHandler{
		manager: manager,
		logger:  logger,
	}
}

// Trigger starts a sync cycle in the background. Progress arrives on the
// WebSocket event stream; the outcome lands in the run history.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.manager.Status().Syncing {
		response.Conflict(w, "A sync cycle is already running")
		return
	}

	go func() {
		if _, err := h.manager.RunCycle(context.Background()); err != nil {
			h.logger.Printf("[api] triggered sync failed: %v", err)
		}
	}()

	response.Accepted(w, map[string]string{
		"message": "Sync cycle started",
	})
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.manager.Status())
}

func (h *SyncHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			response.BadRequest(w, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	runs, err := h.manager.History(limit)
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	response.Success(w, map[string]any{
		"runs": runs,
	})
}
