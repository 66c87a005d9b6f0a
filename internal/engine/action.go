package engine

import (
	"fmt"
	"time"

	"github.com/pagerbell/pagerbell/internal/database"
)

// Action is an operator instruction submitted through the dashboard
type Action struct {
	Name     string // ack/a, resolve/r, escalate/e, take/t, assign/g, notify/n
	Assignee string // explicit target for assign
	Operator string // authenticated operator identity, required for take
	Source   string // where the action came from, recorded in the comment
}

// Canonical action names. Single-letter aliases map onto these.
const (
	ActionAck      = "ack"
	ActionResolve  = "resolve"
	ActionEscalate = "escalate"
	ActionTake     = "take"
	ActionAssign   = "assign"
	ActionNotify   = "notify"
)

// normalizeAction resolves single-letter aliases to canonical action names.
// Unrecognized input is returned as-is so it can be recorded verbatim.
func normalizeAction(name string) string {
	switch name {
	case ActionAck, "a":
		return ActionAck
	case ActionResolve, "r":
		return ActionResolve
	case ActionEscalate, "e":
		return ActionEscalate
	case ActionTake, "t":
		return ActionTake
	case ActionAssign, "g":
		return ActionAssign
	case ActionNotify, "n":
		return ActionNotify
	default:
		return name
	}
}

// Apply maps an operator action onto a state transition. It is a pure
// function: no I/O, the input incident is taken by value and the updated
// value is returned for the engine to persist. The second return value
// reports whether the current assignee should be re-notified.
//
// Unrecognized actions and actions missing required fields never fail; they
// leave the state unchanged and record what happened in the comment.
func Apply(incident database.Incident, action Action, now time.Time) (database.Incident, bool) {
	source := action.Source
	if source == "" {
		source = "webhook"
	}

	switch normalizeAction(action.Name) {
	case ActionAck:
		incident.State = database.IncidentStateInProgress
		if action.Operator != "" {
			incident.Comment = fmt.Sprintf("ack'd via %s by %s", source, action.Operator)
		} else {
			incident.Comment = fmt.Sprintf("ack'd via %s", source)
		}

	case ActionResolve:
		incident.State = database.IncidentStateResolved
		if action.Operator != "" {
			incident.Comment = fmt.Sprintf("resolved via %s by %s", source, action.Operator)
		} else {
			incident.Comment = fmt.Sprintf("resolved via %s", source)
		}

	case ActionEscalate:
		// Back to pending: the run loop reassigns on its next cycle,
		// rotating onward from the current assignee.
		incident.State = database.IncidentStatePending
		incident.Comment = fmt.Sprintf("escalation requested via %s", source)

	case ActionTake:
		if action.Operator == "" {
			incident.Comment = fmt.Sprintf("take via %s rejected: requires an authenticated operator", source)
			break
		}
		incident.State = database.IncidentStateAssigned
		incident.Assign(action.Operator, now)
		incident.Comment = fmt.Sprintf("taken by %s via %s", action.Operator, source)

	case ActionAssign:
		if action.Assignee == "" {
			incident.Comment = fmt.Sprintf("assign via %s rejected: no target assignee", source)
			break
		}
		incident.State = database.IncidentStateAssigned
		incident.Assign(action.Assignee, now)
		incident.Comment = fmt.Sprintf("assigned to %s via %s", action.Assignee, source)

	case ActionNotify:
		incident.Comment = fmt.Sprintf("notification re-sent via %s", source)
		return incident, true

	default:
		incident.Comment = fmt.Sprintf("unknown action %q via %s", action.Name, source)
	}

	return incident, false
}
