package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fermentation_monitor/internal/models"
	"fermentation_monitor/internal/service"
)

func TestRunHandlers_Create(t *testing.T) {
	runs := &mockRuns{created: models.FermentationRun{ID: "run-1", Name: "lager", Status: models.RunPending}}
	r := newTestRouter(&service.Service{Runs: runs})

	body := bytes.NewBufferString(`{
		"name": "lager",
		"stages": [
			{"type":"temperature","target_temp_c":10,"duration_sec":604800},
			{"type":"ramp","start_temp_c":10,"target_temp_c":18,"ramp_time_sec":172800},
			{"type":"gravity_time","target_gravity":1.010,"max_duration_sec":1209600}
		]
	}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	if len(runs.lastCreate.Stages) != 3 {
		t.Fatalf("stages not forwarded: %+v", runs.lastCreate.Stages)
	}
	if runs.lastCreate.Stages[2].Type != models.StageGravityTime || runs.lastCreate.Stages[2].MaxDurationSec != 1209600 {
		t.Fatalf("gravity_time stage mapped wrong: %+v", runs.lastCreate.Stages[2])
	}
}

func TestRunHandlers_Create_RequiresStages(t *testing.T) {
	r := newTestRouter(&service.Service{Runs: &mockRuns{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/", bytes.NewBufferString(`{"name":"empty","stages":[]}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty stages, got %d", w.Code)
	}
}

func TestRunHandlers_Activate(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"success", nil, http.StatusOK},
		{"conflict with another active run", service.ErrRunConflict, http.StatusConflict},
		{"unknown run", service.ErrRunNotFound, http.StatusNotFound},
		{"storage failure", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			runs := &mockRuns{activateErr: tc.err}
			r := newTestRouter(&service.Service{Runs: runs})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/run-1/activate", nil)
			r.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("status=%d, want %d, body=%s", w.Code, tc.wantCode, w.Body.String())
			}
			if runs.activateCalls != 1 {
				t.Fatalf("activate calls=%d", runs.activateCalls)
			}
		})
	}
}

func TestRunHandlers_Advance(t *testing.T) {
	runs := &mockRuns{}
	r := newTestRouter(&service.Service{Runs: runs})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/run-1/advance", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	if runs.advanceCalls != 1 {
		t.Fatalf("advance calls=%d", runs.advanceCalls)
	}
	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != statusAdvanced {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestRunHandlers_GetRun_NotFound(t *testing.T) {
	runs := &mockRuns{getErr: service.ErrRunNotFound}
	r := newTestRouter(&service.Service{Runs: runs})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRunHandlers_Dashboard(t *testing.T) {
	dash := &mockDashboard{
		view: service.DashboardView{
			Run: models.FermentationRun{ID: "run-1", Name: "ipa", Status: models.RunActive},
		},
	}
	r := newTestRouter(&service.Service{Dashboard: dash})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1/dashboard?window=6h", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	if dash.lastViewRun != "run-1" {
		t.Fatalf("run id not forwarded: %q", dash.lastViewRun)
	}
	if dash.lastWindow != 6*time.Hour {
		t.Fatalf("window not parsed: %v", dash.lastWindow)
	}
	var view service.DashboardView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if view.Run.ID != "run-1" {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestRunHandlers_Dashboard_BadWindowFallsBack(t *testing.T) {
	dash := &mockDashboard{}
	r := newTestRouter(&service.Service{Dashboard: dash})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1/dashboard?window=yesterday", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if dash.lastWindow != 0 {
		t.Fatalf("unparseable window must fall through to the service default, got %v", dash.lastWindow)
	}
}
