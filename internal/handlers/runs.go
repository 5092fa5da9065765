package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fermentation_monitor/internal/models"
	"fermentation_monitor/internal/service"
)

const (
	statusActivated = "activated"
	statusAdvanced  = "advanced"

	errCreateRun   = "failed to create run"
	errActivateRun = "failed to activate run"
	errAdvanceRun  = "failed to advance run"
	errGetRun      = "failed to load run"
	errGetView     = "failed to load dashboard"
)

// StageRequest describes one stage of a new run.
type StageRequest struct {
	Name string `json:"name,omitempty" example:"primary"`
	// Stage type. Allowed: temperature, gravity, gravity_time, ramp
	Type string `json:"type" binding:"required" example:"temperature"`
	// Hold target in Celsius (temperature and ramp stages)
	TargetTempC float64 `json:"target_temp_c,omitempty" example:"18.0"`
	// Hold duration after the target latches, in seconds
	DurationSec int `json:"duration_sec,omitempty" example:"259200"`
	// Target specific gravity (gravity and gravity_time stages)
	TargetGravity float64 `json:"target_gravity,omitempty" example:"1.012"`
	// Upper time bound for gravity_time stages, in seconds
	MaxDurationSec int `json:"max_duration_sec,omitempty" example:"1209600"`
	// Ramp start temperature in Celsius
	StartTempC float64 `json:"start_temp_c,omitempty" example:"18.0"`
	// Ramp length in seconds
	RampTimeSec int `json:"ramp_time_sec,omitempty" example:"172800"`
}

// CreateRunRequest is the payload for defining a new fermentation run.
type CreateRunRequest struct {
	Name   string         `json:"name" binding:"required" example:"west coast ipa #12"`
	Stages []StageRequest `json:"stages" binding:"required,min=1"`
}

// @Summary      Create a fermentation run
// @Tags         runs
// @Accept       json
// @Produce      json
// @Param        body  body  CreateRunRequest  true  "Run definition"
// @Success      201  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/runs [post]
func (h *Handler) createRun(c *gin.Context) {
	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	run := models.FermentationRun{Name: req.Name}
	for _, st := range req.Stages {
		run.Stages = append(run.Stages, models.Stage{
			Name:           st.Name,
			Type:           st.Type,
			TargetTempC:    st.TargetTempC,
			DurationSec:    st.DurationSec,
			TargetGravity:  st.TargetGravity,
			MaxDurationSec: st.MaxDurationSec,
			StartTempC:     st.StartTempC,
			RampTimeSec:    st.RampTimeSec,
		})
	}

	created, err := h.services.Create(c.Request.Context(), run)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errCreateRun, "run_create_failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"run": created})
}

// @Summary      Get a run with its stages
// @Tags         runs
// @Produce      json
// @Param        id  path  string  true  "Run id"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/runs/{id} [get]
func (h *Handler) getRun(c *gin.Context) {
	run, err := h.services.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errGetRun, "run_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

// @Summary      Activate a run
// @Description  Fails with 409 while another run is active
// @Tags         runs
// @Produce      json
// @Param        id  path  string  true  "Run id"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/runs/{id}/activate [post]
func (h *Handler) activateRun(c *gin.Context) {
	err := h.services.Activate(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": statusActivated})
	case errors.Is(err, service.ErrRunConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, errActivateRun, "run_activate_failed", err)
	}
}

// @Summary      Advance a run to its next stage
// @Description  Completes the current stage; after the last stage the run completes
// @Tags         runs
// @Produce      json
// @Param        id  path  string  true  "Run id"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/runs/{id}/advance [post]
func (h *Handler) advanceRun(c *gin.Context) {
	err := h.services.Advance(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": statusAdvanced})
	case errors.Is(err, service.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, errAdvanceRun, "run_advance_failed", err)
	}
}

// @Summary      Dashboard view for a run
// @Description  Latest row of every telemetry stream, a readings window and unread alerts
// @Tags         runs
// @Produce      json
// @Param        id      path   string  true   "Run id"
// @Param        window  query  string  false  "Readings window, Go duration (default 24h)"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/runs/{id}/dashboard [get]
func (h *Handler) getDashboard(c *gin.Context) {
	var window time.Duration
	if s := c.Query("window"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			window = d
		}
	}

	view, err := h.services.View(c.Request.Context(), c.Param("id"), window)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errGetView, "dashboard_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, view)
}
