package health

// State is the operational state reported by a check.
type State string

const (
	// StateHealthy means the component is fully operational.
	StateHealthy State = "healthy"

	// StateDegraded means the component works with reduced guarantees.
	StateDegraded State = "degraded"

	// StateUnhealthy means the component is not operational.
	StateUnhealthy State = "unhealthy"
)

// severity orders states from best to worst. Unknown states rank with
// StateUnhealthy.
func (s State) severity() int {
	switch s {
	case StateHealthy:
		return 0
	case StateDegraded:
		return 1
	default:
		return 2
	}
}

// HealthStatus is the result of one check, or of several combined.
type HealthStatus struct {
	State   State          `json:"state"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func (h HealthStatus) IsHealthy() bool { return h.State == StateHealthy }

func (h HealthStatus) IsDegraded() bool { return h.State == StateDegraded }

// IsUnhealthy also holds for the zero value and unknown states.
func (h HealthStatus) IsUnhealthy() bool { return h.State.severity() == 2 }

// Serving reports whether a component in this state should keep accepting
// requests. Degraded components still serve.
func (h HealthStatus) Serving() bool { return h.State.severity() < 2 }

// Healthy returns a healthy status.
func Healthy(message string) HealthStatus {
	return HealthStatus{State: StateHealthy, Message: message}
}

// Degraded returns a degraded status. details may be nil.
func Degraded(message string, details map[string]any) HealthStatus {
	return HealthStatus{State: StateDegraded, Message: message, Details: details}
}

// Unhealthy returns an unhealthy status. details may be nil.
func Unhealthy(message string, details map[string]any) HealthStatus {
	return HealthStatus{State: StateUnhealthy, Message: message, Details: details}
}
