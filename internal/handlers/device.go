package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fermentation_monitor/internal/service"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK       = "ok"
	statusAccepted = "accepted"

	errStoreReading    = "failed to store reading"
	errStoreState      = "failed to store controller state"
	errStoreHeartbeat  = "failed to store heartbeat"
	errStoreSnapshot   = "failed to store fermentation state"
	errStoreHydrometer = "failed to store hydrometer reading"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// ReadingRequest is the controller's periodic temperature/gravity post.
type ReadingRequest struct {
	// Optional explicit run attribution; the active run is used when empty.
	RunID string `json:"run_id,omitempty" example:"7f9c24e8-3b2a-4f0e-9c1d-8a5b6c7d8e9f"`
	// Fridge (chamber) temperature in Celsius
	FridgeTempC float64 `json:"fridge_temp_c" example:"17.8"`
	// Fermenter (wort) temperature in Celsius
	FermenterTempC float64 `json:"fermenter_temp_c" example:"18.2"`
	// Controller's current target in Celsius
	TargetTempC float64 `json:"target_temp_c" example:"18.0"`
	// Specific gravity if the controller knows it, 0 otherwise
	Gravity float64 `json:"gravity,omitempty" example:"1.042"`
}

type ControllerStateRequest struct {
	RunID     string  `json:"run_id,omitempty"`
	SetpointC float64 `json:"setpoint_c" example:"18.0"`
	Cooling   bool    `json:"cooling" example:"true"`
	Heating   bool    `json:"heating" example:"false"`
}

type HeartbeatRequest struct {
	RunID         string  `json:"run_id,omitempty"`
	UptimeSec     int64   `json:"uptime_sec" example:"86400"`
	FreeHeap      int64   `json:"free_heap" example:"147000"`
	TempFermenter float64 `json:"temp_fermenter,omitempty" example:"18.2"`
	TempFridge    float64 `json:"temp_fridge,omitempty" example:"17.8"`
	// Compact control status block as the firmware sends it
	ControlStatus map[string]interface{} `json:"control_status,omitempty"`
}

type HydrometerRequest struct {
	RunID        string  `json:"run_id,omitempty"`
	TemperatureC float64 `json:"temperature" example:"19.1"`
	Gravity      float64 `json:"gravity" binding:"required" example:"1.032"`
	BatteryV     float64 `json:"battery,omitempty" example:"3.91"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Post a temperature/gravity reading
// @Description  Accepted even with no active run; unattributed rows are swept later
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body  ReadingRequest  true  "Reading payload"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/device/readings [post]
func (h *Handler) postReading(c *gin.Context) {
	var req ReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	rd, err := h.services.PostReading(c.Request.Context(), service.ReadingInput{
		RunID:          req.RunID,
		FridgeTempC:    req.FridgeTempC,
		FermenterTempC: req.FermenterTempC,
		TargetTempC:    req.TargetTempC,
		Gravity:        req.Gravity,
	})
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errStoreReading, "reading_store_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusAccepted, "run_id": rd.RunID, "created_at": rd.CreatedAt})
}

// @Summary      Post controller relay state
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body  ControllerStateRequest  true  "Controller state payload"
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/device/controller-state [post]
func (h *Handler) postControllerState(c *gin.Context) {
	var req ControllerStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	err := h.services.PostControllerState(c.Request.Context(), service.ControllerStateInput{
		RunID:     req.RunID,
		SetpointC: req.SetpointC,
		Cooling:   req.Cooling,
		Heating:   req.Heating,
	})
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errStoreState, "controller_state_store_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusAccepted})
}

// @Summary      Post a device heartbeat
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body  HeartbeatRequest  true  "Heartbeat payload"
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/device/heartbeat [post]
func (h *Handler) postHeartbeat(c *gin.Context) {
	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	err := h.services.PostHeartbeat(c.Request.Context(), service.HeartbeatInput{
		RunID:         req.RunID,
		UptimeSec:     req.UptimeSec,
		FreeHeap:      req.FreeHeap,
		TempFermenter: req.TempFermenter,
		TempFridge:    req.TempFridge,
		ControlStatus: req.ControlStatus,
	})
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errStoreHeartbeat, "heartbeat_store_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusAccepted})
}

// @Summary      Post a fermentation state snapshot
// @Description  Accepts the firmware's compact payload in any known version and
// @Description  returns the expanded canonical state.
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        run_id  query  string                  false  "Explicit run attribution"
// @Param        body    body   map[string]interface{}  true   "Compact state payload"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/device/fermentation-state [post]
func (h *Handler) postFermentationState(c *gin.Context) {
	var raw map[string]interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	state, err := h.services.PostFermentationState(c.Request.Context(), c.Query("run_id"), raw)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errStoreSnapshot, "fermentation_state_store_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusAccepted, "state": state})
}

// @Summary      Post a hydrometer sample
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body  HydrometerRequest  true  "Hydrometer payload"
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/device/hydrometer [post]
func (h *Handler) postHydrometer(c *gin.Context) {
	var req HydrometerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	err := h.services.PostHydrometer(c.Request.Context(), service.HydrometerInput{
		RunID:        req.RunID,
		TemperatureC: req.TemperatureC,
		Gravity:      req.Gravity,
		BatteryV:     req.BatteryV,
	})
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errStoreHydrometer, "hydrometer_store_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusAccepted})
}
