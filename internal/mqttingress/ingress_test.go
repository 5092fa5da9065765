package mqttingress

import (
	"testing"
)

func TestDeviceFromTopic(t *testing.T) {
	t.Parallel()

	cases := []struct {
		topic  string
		device string
		ok     bool
	}{
		{"hydrometer/tilt-red/telemetry", "tilt-red", true},
		{"hydrometer/ispindel01/telemetry", "ispindel01", true},
		{"hydrometer//telemetry", "", false},
		{"hydrometer/tilt-red/status", "", false},
		{"boiler/tilt-red/telemetry", "", false},
		{"hydrometer/telemetry", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.topic, func(t *testing.T) {
			t.Parallel()
			device, ok := deviceFromTopic(tc.topic)
			if ok != tc.ok {
				t.Fatalf("ok: want %v, got %v", tc.ok, ok)
			}
			if device != tc.device {
				t.Errorf("device: want %q, got %q", tc.device, device)
			}
		})
	}
}

func TestParsePayload(t *testing.T) {
	t.Parallel()

	t.Run("full sample", func(t *testing.T) {
		t.Parallel()
		in, err := parsePayload([]byte(`{"run_id":"run-1","temperature":19.4,"gravity":1.032,"battery":3.87}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if in.RunID != "run-1" {
			t.Errorf("run id: want run-1, got %q", in.RunID)
		}
		if in.TemperatureC != 19.4 || in.Gravity != 1.032 || in.BatteryV != 3.87 {
			t.Errorf("fields: got %+v", in)
		}
	})

	t.Run("run id is optional", func(t *testing.T) {
		t.Parallel()
		in, err := parsePayload([]byte(`{"temperature":19.4,"gravity":1.032,"battery":3.87}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if in.RunID != "" {
			t.Errorf("run id: want empty, got %q", in.RunID)
		}
	})

	t.Run("missing gravity is rejected", func(t *testing.T) {
		t.Parallel()
		if _, err := parsePayload([]byte(`{"temperature":19.4,"battery":3.87}`)); err == nil {
			t.Fatalf("expected error for missing gravity")
		}
	})

	t.Run("malformed json is rejected", func(t *testing.T) {
		t.Parallel()
		if _, err := parsePayload([]byte(`{gravity:`)); err == nil {
			t.Fatalf("expected error for malformed json")
		}
	})
}

func TestIngressDisabledWithoutBroker(t *testing.T) {
	t.Parallel()

	ing := New(Config{}, nil, nil)
	if ing.Enabled() {
		t.Fatalf("empty broker must disable the ingress")
	}
	if err := ing.Start(); err != nil {
		t.Fatalf("disabled ingress must start as a no-op: %v", err)
	}
	ing.Stop()
}
