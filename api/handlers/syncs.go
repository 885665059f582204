package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/lumiohq/syncstack/dto"
	"github.com/lumiohq/syncstack/interfaces"
	"github.com/lumiohq/syncstack/internal/enum"
	syncerrors "github.com/lumiohq/syncstack/internal/errors"
	"github.com/lumiohq/syncstack/internal/logger"
	"github.com/lumiohq/syncstack/internal/utils"
)

// SyncHandler exposes the admin surface: trigger a sync and inspect the
// durable status and live progress of one.
type SyncHandler struct {
	coordinator interfaces.SyncCoordinator
	stateRepo   interfaces.SyncStateRepository
	publisher   interfaces.EventPublisher
	log         logger.Logger
}

func NewSyncHandler(coordinator interfaces.SyncCoordinator, stateRepo interfaces.SyncStateRepository, publisher interfaces.EventPublisher, log logger.Logger) *SyncHandler {
	return &SyncHandler{
		coordinator: coordinator,
		stateRepo:   stateRepo,
		publisher:   publisher,
		log:         log,
	}
}

type triggerSyncRequest struct {
	UserID   string `json:"userId" binding:"required"`
	Provider string `json:"provider" binding:"required"`
	SyncType string `json:"syncType"`
}

// TriggerSync enqueues a sync request for the provider workers. It does not
// wait for the run; callers poll status/progress.
func (h *SyncHandler) TriggerSync() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request triggerSyncRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		provider, ok := enum.ParseProvider(request.Provider)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider: " + request.Provider})
			return
		}

		syncType := enum.SyncTypeIncremental
		if request.SyncType == enum.SyncTypeFull.String() {
			syncType = enum.SyncTypeFull
		}

		if h.publisher == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event bus not configured"})
			return
		}

		event := dto.SyncRequested{
			Provider:  provider,
			UserID:    request.UserID,
			SyncType:  syncType,
			Source:    "api",
			Timestamp: utils.Now(),
		}
		if err := h.publisher.PublishSyncRequested(c.Request.Context(), event); err != nil {
			h.log.Errorf("Failed to publish sync request for %s:%s: %v", provider, request.UserID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue sync request"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"provider": provider,
			"userId":   request.UserID,
			"syncType": syncType,
		})
	}
}

// GetStatus returns the durable sync state row for a (user, provider) pair.
func (h *SyncHandler) GetStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		provider, userID, ok := h.pairFromRequest(c)
		if !ok {
			return
		}

		state, err := h.stateRepo.GetSyncState(c.Request.Context(), userID, provider)
		if err != nil {
			h.log.Errorf("Failed to load sync state for %s:%s: %v", provider, userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sync state"})
			return
		}
		if state == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no sync state recorded"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"provider":   state.Provider,
			"userId":     state.UserID,
			"status":     state.Status,
			"lastSyncAt": state.LastSyncAt,
			"lastError":  state.LastError,
		})
	}
}

// GetProgress returns the live progress record of an in-flight sync. An
// absent record is a 404, not an error: the record is advisory and expires
// on its own.
func (h *SyncHandler) GetProgress() gin.HandlerFunc {
	return func(c *gin.Context) {
		provider, userID, ok := h.pairFromRequest(c)
		if !ok {
			return
		}

		progress, err := h.coordinator.GetSyncProgress(c.Request.Context(), userID, provider)
		if err != nil {
			if errors.Is(err, syncerrors.ErrProgressNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no sync in progress"})
				return
			}
			h.log.Errorf("Failed to load sync progress for %s:%s: %v", provider, userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sync progress"})
			return
		}

		c.JSON(http.StatusOK, progress)
	}
}

func (h *SyncHandler) pairFromRequest(c *gin.Context) (enum.Provider, string, bool) {
	provider, ok := enum.ParseProvider(c.Param("provider"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider: " + c.Param("provider")})
		return "", "", false
	}

	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId query parameter is required"})
		return "", "", false
	}

	return provider, userID, true
}
