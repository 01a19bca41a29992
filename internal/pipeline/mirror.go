package pipeline

import "sort"

// Mirror is the client's read-mostly copy of the remote run. It is only
// changed through the transition methods below, each of which returns a
// new value and keeps the invariants:
//   - Gate != GateNone implies Running == false
//   - 0 <= CurrentPhase <= PhaseCount
type Mirror struct {
	Running      bool         `json:"running"`
	CurrentPhase int          `json:"current_phase"`
	Completed    map[int]bool `json:"completed"`
	Gate         Gate         `json:"gate"`
	LastResult   *Result      `json:"last_result,omitempty"`
}

// Started is the state right after a run command was accepted.
func (m Mirror) Started() Mirror {
	return Mirror{
		Running:      true,
		CurrentPhase: 0,
		Completed:    map[int]bool{},
		Gate:         GateNone,
		LastResult:   m.LastResult,
	}
}

// Resumed is the state right after a resume command was accepted.
func (m Mirror) Resumed() Mirror {
	next := m.Clone()
	next.Running = true
	next.Gate = GateNone
	return next
}

// Apply replaces the mirror with the contents of a status snapshot. The
// result (and with it the gate) is only replaced when the snapshot carries one.
func (m Mirror) Apply(s Snapshot) Mirror {
	next := Mirror{
		Running:      s.Running,
		CurrentPhase: clampPhase(s.Phase),
		Completed:    make(map[int]bool, len(s.PhasesDone)),
		Gate:         m.Gate,
		LastResult:   m.LastResult,
	}
	for _, idx := range s.PhasesDone {
		if idx >= 0 && idx < PhaseCount {
			next.Completed[idx] = true
		}
	}
	if s.Result != nil {
		r := *s.Result
		next.LastResult = &r
		next.Gate = r.Gate
	}
	if next.Running {
		next.Gate = GateNone
	}
	return next
}

// CompletedList returns the completed phase indices in ascending order.
func (m Mirror) CompletedList() []int {
	out := make([]int, 0, len(m.Completed))
	for idx, done := range m.Completed {
		if done {
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out
}

// Failed reports whether the last known result is a failure.
func (m Mirror) Failed() bool {
	return m.LastResult != nil && m.LastResult.Status == StatusFailed
}

// Clone returns a deep copy.
func (m Mirror) Clone() Mirror {
	next := m
	next.Completed = make(map[int]bool, len(m.Completed))
	for k, v := range m.Completed {
		next.Completed[k] = v
	}
	if m.LastResult != nil {
		r := *m.LastResult
		next.LastResult = &r
	}
	return next
}

func clampPhase(p int) int {
	if p < 0 {
		return 0
	}
	if p > PhaseCount {
		return PhaseCount
	}
	return p
}
