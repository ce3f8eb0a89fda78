package update

import "time"

// Progress describes the current or most recent run. Exactly one Progress
// value exists per orchestrator; whichever run currently owns the
// orchestrator overwrites it.
//
// Fraction is monotonically non-decreasing within a single run and resets
// only when a new run begins.
type Progress struct {
	Fraction  float64   `json:"fraction"`
	Message   string    `json:"message"`
	IsRunning bool      `json:"is_running"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
}

// RunInfo acknowledges an accepted update request. The pipeline continues
// asynchronously; callers observe the outcome by polling Progress.
type RunInfo struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}
