package codec

import (
	"reflect"
	"testing"

	"fermentation_monitor/internal/models"
)

func TestExpand_DetailedTimeRemaining(t *testing.T) {
	out := Expand(map[string]any{"tr": []any{1.0, 2.0, 30.0, "run"}})

	tr, ok := out["time_remaining"].(map[string]any)
	if !ok {
		t.Fatalf("time_remaining missing or wrong type: %#v", out)
	}
	want := map[string]any{
		"days":    1,
		"hours":   2,
		"minutes": 30,
		"unit":    models.UnitDetailed,
		"status":  "running",
	}
	if !reflect.DeepEqual(tr, want) {
		t.Fatalf("time_remaining = %#v, want %#v", tr, want)
	}
	if tgt, _ := out["target_reached"].(bool); !tgt {
		t.Fatalf("expected target_reached=true, got %#v", out["target_reached"])
	}
}

func TestExpand_LegacyScalarTimeRemaining(t *testing.T) {
	out := Expand(map[string]any{"tr": []any{5.5, "h", "wait"}})

	tr, ok := out["time_remaining"].(map[string]any)
	if !ok {
		t.Fatalf("time_remaining missing: %#v", out)
	}
	if tr["value"] != 5.5 || tr["unit"] != models.UnitHours || tr["status"] != "waiting" {
		t.Fatalf("unexpected legacy decode: %#v", tr)
	}
	if tgt, _ := out["target_reached"].(bool); !tgt {
		t.Fatalf("expected target_reached=true")
	}
}

func TestExpand_BooleanTimeRemaining(t *testing.T) {
	out := Expand(map[string]any{"tr": false})
	if v, ok := out["target_reached"].(bool); !ok || v {
		t.Fatalf("expected target_reached=false, got %#v", out["target_reached"])
	}
	if _, ok := out["time_remaining"]; ok {
		t.Fatalf("boolean tr must not produce time_remaining")
	}
}

func TestExpand_AmbiguousTimeRemainingLeftRaw(t *testing.T) {
	// A 2-element sequence matches no known format; it must survive as-is
	// and leave target_reached unset.
	out := Expand(map[string]any{"tr": []any{1.0, "h"}})
	if !reflect.DeepEqual(out["tr"], []any{1.0, "h"}) {
		t.Fatalf("ambiguous tr rewritten: %#v", out["tr"])
	}
	if _, ok := out["target_reached"]; ok {
		t.Fatalf("target_reached must stay unset for ambiguous input")
	}
}

func TestExpand_TargetReachedInferenceFromStatus(t *testing.T) {
	cases := []struct {
		status string
		want   bool
	}{
		{"run", false},
		{"running", false},
		{"Executando", false},
		{"wait", false},
		{"waiting", false},
		{"Aguardando", false},
	}
	for _, tc := range cases {
		out := Expand(map[string]any{"s": tc.status})
		got, ok := out["target_reached"].(bool)
		if !ok {
			t.Fatalf("status %q: target_reached unset", tc.status)
		}
		if got != tc.want {
			t.Fatalf("status %q: target_reached=%v, want %v", tc.status, got, tc.want)
		}
	}

	// No tr, no recognizable status: unknown stays unknown.
	out := Expand(map[string]any{"s": "paused"})
	if _, ok := out["target_reached"]; ok {
		t.Fatalf("target_reached must stay unset for unknown status")
	}
}

func TestExpand_AliasesAndEnumCodes(t *testing.T) {
	out := Expand(map[string]any{
		"cn":  "lager-01",
		"csi": 2.0,
		"st":  "t",
		"s":   "run",
		"m":   "ramp",
		"rp":  0.4,
		"x9":  "future-field",
	})

	if out["config_name"] != "lager-01" {
		t.Fatalf("config_name = %#v", out["config_name"])
	}
	if out["current_stage_index"] != 2.0 {
		t.Fatalf("current_stage_index = %#v", out["current_stage_index"])
	}
	if out["stage_type"] != models.StageTemperature {
		t.Fatalf("stage_type = %#v", out["stage_type"])
	}
	if out["status"] != "running" {
		t.Fatalf("status = %#v", out["status"])
	}
	if out["message"] != "Em rampa" {
		t.Fatalf("message = %#v", out["message"])
	}
	if out["x9"] != "future-field" {
		t.Fatalf("unknown key must pass through, got %#v", out["x9"])
	}
}

func TestExpand_ControlStatusNested(t *testing.T) {
	out := Expand(map[string]any{
		"cs": map[string]any{
			"iw": true,
			"wr": "ramp",
			"ws": 42.0,
			"wd": "waiting for ramp",
		},
	})
	cs, ok := out["control_status"].(map[string]any)
	if !ok {
		t.Fatalf("control_status missing: %#v", out)
	}
	if cs["is_waiting"] != true || cs["wait_reason"] != "ramping" ||
		cs["wait_seconds"] != 42.0 || cs["wait_display"] != "waiting for ramp" {
		t.Fatalf("unexpected control_status: %#v", cs)
	}
}

func TestExpand_Idempotent(t *testing.T) {
	inputs := []map[string]any{
		{"tr": []any{1.0, 2.0, 30.0, "run"}, "s": "run", "m": "run", "cn": "x"},
		{"tr": []any{5.5, "h", "wait"}, "st": "g"},
		{"tr": true},
		{"s": "wait", "cs": map[string]any{"iw": false, "wr": "wait"}},
		{"garbage": []any{nil, map[string]any{"a": 1}}, "tr": "not-a-sequence"},
		{},
	}
	for i, in := range inputs {
		once := Expand(in)
		twice := Expand(once)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("case %d: Expand not idempotent:\nonce:  %#v\ntwice: %#v", i, once, twice)
		}
	}
}

func TestDecode_NeverPanicsOnJunk(t *testing.T) {
	junk := []map[string]any{
		nil,
		{"tr": []any{}},
		{"tr": []any{nil, nil, nil, nil}},
		{"tr": map[string]any{"weird": true}},
		{"cs": "not-a-map"},
		{"csi": "not-a-number", "rp": true, "s": 12},
		{"tr": []any{"a", "b", "c"}},
	}
	for i, in := range junk {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("case %d panicked: %v", i, r)
				}
			}()
			_ = Decode(in)
		}()
	}
}

func TestDecode_TypedView(t *testing.T) {
	got := Decode(map[string]any{
		"tr":  []any{0.0, 12.0, 5.0, "run"},
		"cn":  "saison",
		"csi": 1.0,
		"st":  "r",
		"rp":  0.25,
		"fw":  "2.1.9",
	})

	if got.ConfigName == nil || *got.ConfigName != "saison" {
		t.Fatalf("ConfigName = %v", got.ConfigName)
	}
	if got.CurrentStageIndex == nil || *got.CurrentStageIndex != 1 {
		t.Fatalf("CurrentStageIndex = %v", got.CurrentStageIndex)
	}
	if got.StageType == nil || *got.StageType != models.StageRamp {
		t.Fatalf("StageType = %v", got.StageType)
	}
	if got.TargetReached == nil || !*got.TargetReached {
		t.Fatalf("TargetReached = %v", got.TargetReached)
	}
	if got.RampProgress == nil || *got.RampProgress != 0.25 {
		t.Fatalf("RampProgress = %v", got.RampProgress)
	}
	tr := got.TimeRemaining
	if tr == nil || tr.Days == nil || *tr.Days != 0 || *tr.Hours != 12 || *tr.Minutes != 5 ||
		tr.Unit != models.UnitDetailed || tr.Status != "running" {
		t.Fatalf("TimeRemaining = %+v", tr)
	}
	if got.Extra["fw"] != "2.1.9" {
		t.Fatalf("Extra passthrough lost: %#v", got.Extra)
	}
}
