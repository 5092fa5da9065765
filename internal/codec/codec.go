package codec

import (
	"encoding/json"

	"fermentation_monitor/internal/models"
)

// The embedded controller ships telemetry with one- and two-letter keys and
// short enum codes to fit its transmit budget. Several firmware generations
// coexist in the field, so the decoder must accept every historical encoding
// and expand all of them to the same canonical shape.
//
// Expansion is pure and total: malformed input never fails, it just leaves
// the ambiguous fields unset. Each step only touches the namespace it owns,
// which makes Expand idempotent on already-expanded input.

// fieldAliases maps compact wire keys to canonical names. Unknown keys pass
// through untouched.
var fieldAliases = map[string]string{
	"cn":  "config_name",
	"csi": "current_stage_index",
	"st":  "stage_type",
	"s":   "status",
	"m":   "message",
	"rp":  "ramp_progress",
	"cs":  "control_status",
	// "tr" is handled by the time-remaining step, not plain aliasing.
}

// controlAliases maps the nested control_status block's compact keys.
var controlAliases = map[string]string{
	"iw": "is_waiting",
	"wr": "wait_reason",
	"ws": "wait_seconds",
	"wd": "wait_display",
}

// statusLookup expands short status codes.
var statusLookup = map[string]string{
	"run":  "running",
	"wait": "waiting",
	"ramp": "ramping",
	"done": "completed",
}

// messageLookup expands short message codes to the display strings the
// firmware historically sent in full.
var messageLookup = map[string]string{
	"run":  "Executando",
	"wait": "Aguardando",
	"ramp": "Em rampa",
	"done": "Concluído",
}

// stageTypeLookup expands short stage-type codes.
var stageTypeLookup = map[string]string{
	"t":  models.StageTemperature,
	"g":  models.StageGravity,
	"gt": models.StageGravityTime,
	"r":  models.StageRamp,
}

// unitLookup expands legacy time-remaining unit codes.
var unitLookup = map[string]string{
	"h":   models.UnitHours,
	"d":   models.UnitDays,
	"m":   models.UnitMinutes,
	"ind": models.UnitIndefinite,
}

// timeRemainingFormat classifies the wire "tr" field before decoding, so the
// decoder is exhaustive instead of sniffing lengths ad hoc.
type timeRemainingFormat int

const (
	formatUnset timeRemainingFormat = iota
	formatBoolean
	formatLegacyScalar // [value, unitCode, statusCode, ...]
	formatDetailed     // [days, hours, minutes, statusCode]
)

func classifyTimeRemaining(v any) timeRemainingFormat {
	switch tv := v.(type) {
	case bool:
		return formatBoolean
	case []any:
		// Length 4 with three leading numerics is the detailed format;
		// anything else of length >= 3 is the legacy scalar format.
		if len(tv) == 4 {
			if _, ok := asFloat(tv[0]); ok {
				if _, ok := asFloat(tv[1]); ok {
					if _, ok := asFloat(tv[2]); ok {
						return formatDetailed
					}
				}
			}
		}
		if len(tv) >= 3 {
			return formatLegacyScalar
		}
	}
	return formatUnset
}

// asFloat accepts the numeric shapes JSON decoding can produce.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// expandCode returns the expansion of a short code, or the input unchanged
// when the code is unknown.
func expandCode(table map[string]string, v any) any {
	if s, ok := asString(v); ok {
		if full, ok := table[s]; ok {
			return full
		}
	}
	return v
}

// decodeStatusCode turns the trailing status code of a tr sequence into a
// canonical status string, tolerating non-string junk.
func decodeStatusCode(v any) string {
	s, ok := asString(v)
	if !ok {
		return ""
	}
	if full, ok := statusLookup[s]; ok {
		return full
	}
	return s
}

// Expand rewrites a sparse compact payload into its canonical map form.
// The input map is not mutated.
func Expand(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))

	// Step 1: field aliasing. Canonical names win over their own aliases when
	// both appear (already-expanded input stays stable).
	for k, v := range raw {
		if canon, ok := fieldAliases[k]; ok {
			if _, exists := raw[canon]; !exists {
				out[canon] = v
			}
			continue
		}
		if k == "tr" {
			continue // step 2
		}
		out[k] = v
	}

	// Step 2: time-remaining normalization.
	if tr, ok := raw["tr"]; ok {
		switch classifyTimeRemaining(tr) {
		case formatBoolean:
			if _, exists := out["target_reached"]; !exists {
				out["target_reached"] = tr.(bool)
			}
		case formatDetailed:
			seq := tr.([]any)
			d, _ := asFloat(seq[0])
			h, _ := asFloat(seq[1])
			m, _ := asFloat(seq[2])
			out["time_remaining"] = map[string]any{
				"days":    int(d),
				"hours":   int(h),
				"minutes": int(m),
				"unit":    models.UnitDetailed,
				"status":  decodeStatusCode(seq[3]),
			}
			out["target_reached"] = true
		case formatLegacyScalar:
			seq := tr.([]any)
			entry := map[string]any{
				"unit":   expandCode(unitLookup, seq[1]),
				"status": decodeStatusCode(seq[2]),
			}
			if v, ok := asFloat(seq[0]); ok {
				entry["value"] = v
			}
			out["time_remaining"] = entry
			out["target_reached"] = true
		default:
			out["tr"] = tr // ambiguous; keep raw
		}
	}

	// Step 3: target_reached inference, best effort. Absent evidence leaves
	// the field unset: unknown is not false.
	if _, set := out["target_reached"]; !set {
		if _, ok := out["time_remaining"]; ok {
			out["target_reached"] = true
		} else if s, ok := asString(out["status"]); ok {
			switch s {
			case "run", "running", "Executando":
				out["target_reached"] = false
			case "wait", "waiting", "Aguardando":
				out["target_reached"] = false
			}
		}
	}

	// Step 4: short enum expansion.
	if v, ok := out["status"]; ok {
		out["status"] = expandCode(statusLookup, v)
	}
	if v, ok := out["message"]; ok {
		out["message"] = expandCode(messageLookup, v)
	}
	if v, ok := out["stage_type"]; ok {
		out["stage_type"] = expandCode(stageTypeLookup, v)
	}

	// Step 5: nested control_status expansion, one level deep.
	if nested, ok := out["control_status"].(map[string]any); ok {
		out["control_status"] = expandControlStatus(nested)
	}

	return out
}

func expandControlStatus(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if canon, ok := controlAliases[k]; ok {
			if _, exists := raw[canon]; !exists {
				out[canon] = v
			}
			continue
		}
		out[k] = v
	}
	if v, ok := out["wait_reason"]; ok {
		out["wait_reason"] = expandCode(statusLookup, v)
	}
	return out
}

// canonicalKeys are the expanded keys Decode lifts into struct fields;
// everything else lands in Extra.
var canonicalKeys = map[string]struct{}{
	"config_name":         {},
	"current_stage_index": {},
	"stage_type":          {},
	"status":              {},
	"message":             {},
	"target_reached":      {},
	"ramp_progress":       {},
	"time_remaining":      {},
	"control_status":      {},
}

// Decode expands a raw compact payload and lifts it into the typed canonical
// state. It never fails; fields it cannot make sense of stay nil.
func Decode(raw map[string]any) models.CanonicalState {
	expanded := Expand(raw)

	var cs models.CanonicalState
	if s, ok := asString(expanded["config_name"]); ok {
		cs.ConfigName = &s
	}
	if f, ok := asFloat(expanded["current_stage_index"]); ok {
		idx := int(f)
		cs.CurrentStageIndex = &idx
	}
	if s, ok := asString(expanded["stage_type"]); ok {
		cs.StageType = &s
	}
	if s, ok := asString(expanded["status"]); ok {
		cs.Status = &s
	}
	if s, ok := asString(expanded["message"]); ok {
		cs.Message = &s
	}
	if b, ok := expanded["target_reached"].(bool); ok {
		cs.TargetReached = &b
	}
	if f, ok := asFloat(expanded["ramp_progress"]); ok {
		cs.RampProgress = &f
	}
	if m, ok := expanded["time_remaining"].(map[string]any); ok {
		cs.TimeRemaining = decodeTimeRemaining(m)
	}
	if m, ok := expanded["control_status"].(map[string]any); ok {
		cs.ControlStatus = decodeControlStatus(m)
	}

	for k, v := range expanded {
		if _, known := canonicalKeys[k]; known {
			continue
		}
		if cs.Extra == nil {
			cs.Extra = make(map[string]any)
		}
		cs.Extra[k] = v
	}
	return cs
}

func decodeTimeRemaining(m map[string]any) *models.TimeRemaining {
	tr := &models.TimeRemaining{}
	if v, ok := asFloat(m["value"]); ok {
		tr.Value = &v
	}
	if v, ok := asFloat(m["days"]); ok {
		d := int(v)
		tr.Days = &d
	}
	if v, ok := asFloat(m["hours"]); ok {
		h := int(v)
		tr.Hours = &h
	}
	if v, ok := asFloat(m["minutes"]); ok {
		min := int(v)
		tr.Minutes = &min
	}
	if s, ok := asString(m["unit"]); ok {
		tr.Unit = s
	}
	if s, ok := asString(m["status"]); ok {
		tr.Status = s
	}
	return tr
}

func decodeControlStatus(m map[string]any) *models.ControlStatus {
	cs := &models.ControlStatus{}
	if b, ok := m["is_waiting"].(bool); ok {
		cs.IsWaiting = &b
	}
	if s, ok := asString(m["wait_reason"]); ok {
		cs.WaitReason = &s
	}
	if v, ok := asFloat(m["wait_seconds"]); ok {
		cs.WaitSeconds = &v
	}
	if s, ok := asString(m["wait_display"]); ok {
		cs.WaitDisplay = &s
	}
	return cs
}
