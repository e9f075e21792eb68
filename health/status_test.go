package health

import (
	"encoding/json"
	"testing"
)

func TestHealthStatusPredicates(t *testing.T) {
	tests := []struct {
		state         State
		wantHealthy   bool
		wantDegraded  bool
		wantUnhealthy bool
		wantServing   bool
	}{
		{state: StateHealthy, wantHealthy: true, wantServing: true},
		{state: StateDegraded, wantDegraded: true, wantServing: true},
		{state: StateUnhealthy, wantUnhealthy: true},
		{state: "", wantUnhealthy: true},
		{state: "starting", wantUnhealthy: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			h := HealthStatus{State: tt.state}
			if got := h.IsHealthy(); got != tt.wantHealthy {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.wantHealthy)
			}
			if got := h.IsDegraded(); got != tt.wantDegraded {
				t.Errorf("IsDegraded() = %v, want %v", got, tt.wantDegraded)
			}
			if got := h.IsUnhealthy(); got != tt.wantUnhealthy {
				t.Errorf("IsUnhealthy() = %v, want %v", got, tt.wantUnhealthy)
			}
			if got := h.Serving(); got != tt.wantServing {
				t.Errorf("Serving() = %v, want %v", got, tt.wantServing)
			}
		})
	}
}

func TestConstructors(t *testing.T) {
	if h := Healthy("session valid"); h.State != StateHealthy || h.Message != "session valid" || h.Details != nil {
		t.Errorf("Healthy() = %+v", h)
	}
	if d := Degraded("heartbeat expired", map[string]any{"session": "s"}); d.State != StateDegraded || d.Details["session"] != "s" {
		t.Errorf("Degraded() = %+v", d)
	}
	if u := Unhealthy("not announced", map[string]any{"error": "lease lost"}); u.State != StateUnhealthy || u.Details["error"] != "lease lost" {
		t.Errorf("Unhealthy() = %+v", u)
	}
}

func TestHealthStatusJSON(t *testing.T) {
	data, err := json.Marshal(Degraded("slow", nil))
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if string(data) != `{"state":"degraded","message":"slow"}` {
		t.Errorf("json = %s", data)
	}
}
