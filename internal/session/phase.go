package session

import "fmt"

// Phase is the step a session is in. Sessions only move forward, except
// through Reset and ResetAssignments.
type Phase int

const (
	PhaseIngest Phase = iota
	PhaseRoster
	PhaseAssign
	PhaseSummary
)

var phaseNames = map[Phase]string{
	PhaseIngest:  "ingest",
	PhaseRoster:  "roster",
	PhaseAssign:  "assign",
	PhaseSummary: "summary",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText renders the phase by name in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}
