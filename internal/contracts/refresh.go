package contracts

import "time"

// Phase of the refresh state machine
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// Progress of a running gather
type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"` // 0-100
	Found      int `json:"found"`      // final candidate count, once reported
}

// Recalculate derives Percentage from Current and Total
func (p *Progress) Recalculate() {
	if p.Total <= 0 {
		p.Percentage = 0
		return
	}
	pct := p.Current * 100 / p.Total
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	p.Percentage = pct
}

// RefreshState is a point-in-time copy of the orchestrator state
type RefreshState struct {
	Phase       Phase      `json:"phase"`
	Progress    Progress   `json:"progress"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

// Running reports whether a gather is in flight
func (s RefreshState) Running() bool {
	return s.Phase == PhaseRunning
}
