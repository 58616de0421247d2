package transaction

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// State is the phase of a transaction.
type State int

const (
	StateIdle State = iota
	StatePreProcess
	StateProcessing
	StatePostProcess
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreProcess:
		return "pre_process"
	case StateProcessing:
		return "processing"
	case StatePostProcess:
		return "post_process"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:        {StatePreProcess},
	StatePreProcess:  {StateProcessing, StateFailed},
	StateProcessing:  {StatePostProcess, StateFailed},
	StatePostProcess: {StateDone},
}

// Failure is the terminal error of a failed transaction.
type Failure struct {
	// State is the phase that failed.
	State State
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("transaction failed during %s: %v", f.State, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Report is the outcome of a transaction.
type Report struct {
	State       State
	Destination Destination
	// Err is the *Failure of a failed transaction.
	Err error
	// PostErr collects post-processing failures. They do not fail the
	// transaction.
	PostErr error
}

// machine enforces the transaction state order.
type machine struct {
	state  State
	logger *zap.Logger
}

func (m *machine) advance(to State) {
	if !slices.Contains(transitions[m.state], to) {
		panic(fmt.Sprintf("transaction: invalid transition %s -> %s", m.state, to))
	}
	m.logger.Debug("transition", zap.Stringer("from", m.state), zap.Stringer("to", to))
	m.state = to
}

// fail moves to StateFailed and returns the failure report.
func (m *machine) fail(dest Destination, err error) (*Report, error) {
	failure := &Failure{State: m.state, Err: err}
	m.advance(StateFailed)
	m.logger.Error("transaction failed", zap.Stringer("during", failure.State), zap.Error(err))
	return &Report{State: StateFailed, Destination: dest, Err: failure}, failure
}

// reset prepares the machine for a new transaction.
func (m *machine) reset() error {
	if m.state != StateIdle && !m.state.Terminal() {
		return fmt.Errorf("a transaction is already running in state %s", m.state)
	}
	m.state = StateIdle
	return nil
}
