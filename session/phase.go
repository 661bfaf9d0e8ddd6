package session

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/younglifestyle/rsap4go/rsap"
)

// Phase is the session's position in the connect, ATR, APDU progression.
type Phase string

const (
	PhaseConnect     Phase = "CONNECT"
	PhaseAtrTransfer Phase = "ATR_TRANSFER"
	PhaseApduLoop    Phase = "APDU_LOOP"
)

const (
	eventConnected = "connected"
	eventAtrSent   = "atr_sent"
	eventReset     = "reset"
)

// ExpectedMessageIDs returns the requests a phase is waiting for.
func ExpectedMessageIDs(p Phase) []rsap.MessageID {
	switch p {
	case PhaseConnect:
		return []rsap.MessageID{rsap.ConnectReq}
	case PhaseAtrTransfer:
		return []rsap.MessageID{rsap.TransferAtrReq}
	case PhaseApduLoop:
		return []rsap.MessageID{rsap.TransferApduReq}
	default:
		return nil
	}
}

// Expects reports whether id is in ExpectedMessageIDs(p).
func (p Phase) Expects(id rsap.MessageID) bool {
	for _, e := range ExpectedMessageIDs(p) {
		if e == id {
			return true
		}
	}
	return false
}

// PhaseMachine moves forward CONNECT -> ATR_TRANSFER -> APDU_LOOP and back to
// CONNECT only on reset.
type PhaseMachine struct {
	fsm *fsm.FSM
}

// NewPhaseMachine Callbacks : enter_state, enter_CONNECT, leave_APDU_LOOP, ...
func NewPhaseMachine(callbacks fsm.Callbacks) *PhaseMachine {
	if callbacks == nil {
		callbacks = fsm.Callbacks{}
	}
	return &PhaseMachine{
		fsm: fsm.NewFSM(
			string(PhaseConnect),
			fsm.Events{
				{Name: eventConnected, Src: []string{string(PhaseConnect)}, Dst: string(PhaseAtrTransfer)},
				{Name: eventAtrSent, Src: []string{string(PhaseAtrTransfer)}, Dst: string(PhaseApduLoop)},
				{Name: eventReset, Src: []string{string(PhaseAtrTransfer), string(PhaseApduLoop)}, Dst: string(PhaseConnect)},
			},
			callbacks,
		),
	}
}

func (m *PhaseMachine) Current() Phase {
	return Phase(m.fsm.Current())
}

func (m *PhaseMachine) Connected() error {
	return m.fsm.Event(context.Background(), eventConnected)
}

func (m *PhaseMachine) AtrSent() error {
	return m.fsm.Event(context.Background(), eventAtrSent)
}

func (m *PhaseMachine) Reset() error {
	return m.fsm.Event(context.Background(), eventReset)
}
