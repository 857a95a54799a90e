package orchestrator

import (
	"context"

	"github.com/qmuntal/stateless"

	"chatcrew/internal/logger"
)

// Unit lifecycle states. The FSM exists for bookkeeping and progress
// reporting; transitions are fired by runUnit as the call advances.
var (
	statePending   stateless.State = "Pending"
	statePreparing stateless.State = "Preparing"
	stateAwaiting  stateless.State = "Awaiting"
	stateSettled   stateless.State = "Settled"
)

var (
	triggerPrepare stateless.Trigger = "Prepare"
	triggerAwait   stateless.Trigger = "Await"
	triggerSettle  stateless.Trigger = "Settle"
)

// unit tracks one in-flight role call.
type unit struct {
	role string
	fsm  *stateless.StateMachine
}

func newUnit(role string, progress Progress) *unit {
	u := &unit{role: role}

	notify := func(status string) func(context.Context, ...any) error {
		return func(context.Context, ...any) error {
			if progress != nil {
				progress(role, status)
			}
			return nil
		}
	}

	fsm := stateless.NewStateMachine(statePending)
	fsm.Configure(statePending).
		Permit(triggerPrepare, statePreparing)
	fsm.Configure(statePreparing).
		OnEntry(notify("preparing context")).
		Permit(triggerAwait, stateAwaiting)
	fsm.Configure(stateAwaiting).
		OnEntry(notify("awaiting response")).
		Permit(triggerSettle, stateSettled)
	fsm.Configure(stateSettled).
		OnEntry(notify("settled"))

	u.fsm = fsm
	return u
}

func (u *unit) fire(trigger stateless.Trigger) {
	if err := u.fsm.Fire(trigger); err != nil {
		logger.L.Warn("unit transition rejected", "role", u.role, "trigger", trigger, "error", err)
	}
}
