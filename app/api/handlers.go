package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/feed-mirror/app/content"
	"github.com/lysyi3m/feed-mirror/app/database"
	"github.com/lysyi3m/feed-mirror/app/pipeline"
	"github.com/lysyi3m/feed-mirror/app/tasks"
)

func NewHandler(runner PipelineRunner, itemRepo database.ItemRepository,
	notifications database.NotificationRepository, scheduler tasks.TaskSchedulerInterface,
	newURLTask URLTaskFactory, version string) *Handler {
	return &Handler{
		pipeline:      runner,
		itemRepo:      itemRepo,
		notifications: notifications,
		scheduler:     scheduler,
		newURLTask:    newURLTask,
		version:       version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
		"storage":   "ok",
	}

	status := http.StatusOK
	if _, _, err := h.itemRepo.ListItems(c.Request.Context(), "", 1); err != nil {
		slog.Error("Storage health check failed", "error", err)
		health["storage"] = "unavailable"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, health)
}

// APIRun runs the pipeline synchronously and returns its counters.
func (h *Handler) APIRun(c *gin.Context) {
	stats, err := h.pipeline.Run(c.Request.Context())
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "A pipeline run is already in progress"})
	case err != nil:
		slog.Error("Pipeline run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "stats": stats})
	default:
		c.JSON(http.StatusOK, gin.H{"stats": stats})
	}
}

func (h *Handler) APIProcessURL(c *gin.Context) {
	var req processURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be JSON with a url field"})
		return
	}

	if req.Async {
		task := h.newURLTask(req.URL)
		if err := h.scheduler.EnqueueTask(task); err != nil {
			slog.Error("Error enqueueing URL task", "url", req.URL, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to enqueue task", "details": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task": gin.H{"id": task.GetID(), "type": task.GetType()}})
		return
	}

	result := h.pipeline.ProcessSpecificURL(c.Request.Context(), req.URL)
	response := processURLResponse{
		Success:   result.Success,
		IsNew:     result.IsNew,
		ID:        result.ID,
		MirrorURL: result.MirrorURL,
	}
	if result.Err != nil {
		response.Error = result.Err.Error()
	}

	var validationErr *content.ValidationError
	switch {
	case result.Success && result.IsNew:
		c.JSON(http.StatusCreated, response)
	case result.Success:
		c.JSON(http.StatusOK, response)
	case errors.Is(result.Err, pipeline.ErrAlreadyProcessed):
		c.JSON(http.StatusConflict, response)
	case errors.As(result.Err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, response)
	default:
		c.JSON(http.StatusBadGateway, response)
	}
}

func (h *Handler) APIListItems(c *gin.Context) {
	limit := database.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	items, next, err := h.itemRepo.ListItems(c.Request.Context(), c.Query("cursor"), limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_items", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	summaries := make([]itemSummary, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, summarize(item))
	}

	c.JSON(http.StatusOK, gin.H{
		"items":    summaries,
		"cursor":   next,
		"complete": next == "",
	})
}

func (h *Handler) APIGetItem(c *gin.Context) {
	id := c.Param("id")

	item, err := h.itemRepo.GetItem(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_item", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}

	c.JSON(http.StatusOK, item)
}

// APIDeleteItem removes the record only. The mirrored document stays in
// the content store.
func (h *Handler) APIDeleteItem(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	item, err := h.itemRepo.GetItem(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "get_item", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}

	if err := h.itemRepo.DeleteItem(ctx, id); err != nil {
		slog.Error("Database error", "operation", "delete_item", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Item deleted", "id", id, "source", item.SourceURL)
	c.Status(http.StatusNoContent)
}

// GetLastNotification serves the push marker to polling clients.
func (h *Handler) GetLastNotification(c *gin.Context) {
	notification, err := h.notifications.GetLast(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "get_last_notification", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if notification == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, notification)
}
