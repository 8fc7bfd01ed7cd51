package editor

import (
	"github.com/qmuntal/stateless"
)

// CellState is the lifecycle of one grid cell.
type CellState string

const (
	Idle    CellState = "idle"
	Editing CellState = "editing"
	Saving  CellState = "saving"
)

const (
	triggerBegin  = "begin"
	triggerCommit = "commit"
	triggerCancel = "cancel"
	triggerAck    = "ack"
	triggerFail   = "fail"
)

func newCellMachine() *stateless.StateMachine {
	m := stateless.NewStateMachine(Idle)

	m.Configure(Idle).
		Permit(triggerBegin, Editing)

	m.Configure(Editing).
		Permit(triggerCommit, Saving).
		Permit(triggerCancel, Idle)

	m.Configure(Saving).
		Permit(triggerAck, Idle).
		Permit(triggerFail, Idle)

	return m
}

func stateOf(m *stateless.StateMachine) CellState {
	return m.MustState().(CellState)
}
