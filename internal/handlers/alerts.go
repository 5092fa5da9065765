package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fermentation_monitor/internal/repository"
)

const (
	statusRead    = "read"
	statusCleaned = "cleaned"

	errListAlerts = "failed to list alerts"
	errMarkRead   = "failed to mark alert read"
	errCleanup    = "emergency cleanup failed"
)

// @Summary      List unread alerts
// @Tags         alerts
// @Produce      json
// @Param        run_id  query  string  false  "Filter by run"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/alerts [get]
func (h *Handler) listUnreadAlerts(c *gin.Context) {
	alerts, err := h.services.Unread(c.Request.Context(), c.Query("run_id"))
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListAlerts, "alerts_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// @Summary      Mark an alert as read
// @Tags         alerts
// @Produce      json
// @Param        id  path  string  true  "Alert id"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/alerts/{id}/read [post]
func (h *Handler) markAlertRead(c *gin.Context) {
	err := h.services.MarkRead(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": statusRead})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, errMarkRead, "alert_mark_read_failed", err)
	}
}

// @Summary      Emergency storage cleanup
// @Description  Halves the retention budgets on every stream and sweeps orphans
// @Tags         maintenance
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/maintenance/cleanup [post]
func (h *Handler) emergencyCleanup(c *gin.Context) {
	if err := h.services.EmergencyCleanup(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errCleanup, "emergency_cleanup_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusCleaned})
}
