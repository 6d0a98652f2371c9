package workflow

import (
	"fmt"

	"github.com/xiaot623/semitae/internal/domain"
)

// transitions lists the legal successors of each state. PERSISTED and
// FAILED are terminal.
var transitions = map[domain.WorkflowState][]domain.WorkflowState{
	domain.StatePending:          {domain.StateLoaded, domain.StateFailed},
	domain.StateLoaded:           {domain.StateProcessed, domain.StateFailed},
	domain.StateProcessed:        {domain.StateMessageGenerated, domain.StateFailed},
	domain.StateMessageGenerated: {domain.StatePersisted, domain.StateFailed},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to domain.WorkflowState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible from s.
func IsTerminal(s domain.WorkflowState) bool {
	return len(transitions[s]) == 0
}

// machine tracks the current state of a single run.
type machine struct {
	state    domain.WorkflowState
	onChange func(from, to domain.WorkflowState)
}

func newMachine(onChange func(from, to domain.WorkflowState)) *machine {
	return &machine{state: domain.StatePending, onChange: onChange}
}

func (m *machine) current() domain.WorkflowState {
	return m.state
}

func (m *machine) advance(to domain.WorkflowState) error {
	if !CanTransition(m.state, to) {
		return fmt.Errorf("illegal workflow transition %s -> %s", m.state, to)
	}
	from := m.state
	m.state = to
	if m.onChange != nil {
		m.onChange(from, to)
	}
	return nil
}

// fail moves to FAILED unless the run already reached a terminal state.
func (m *machine) fail() {
	if IsTerminal(m.state) {
		return
	}
	_ = m.advance(domain.StateFailed)
}
