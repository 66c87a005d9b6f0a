// Package engine owns the incident lifecycle: auto-assignment from the
// on-call schedule, timed escalation to the next responder, and applying
// operator actions arriving from the dashboard.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pagerbell/pagerbell/internal/database"
	"github.com/pagerbell/pagerbell/internal/notify"
	"github.com/pagerbell/pagerbell/internal/schedule"
)

// IncidentStore is the persistence surface the engine needs. *database.Store
// satisfies it; tests substitute fakes.
type IncidentStore interface {
	UpdateIncident(incident *database.Incident) error
	GetScheduleRow(at time.Time) (*database.ScheduleRow, error)
	GetContactByName(name string) (*database.Contact, error)
}

// Notifier sends a notification to a contact, reporting overall success.
// *notify.Dispatcher satisfies it.
type Notifier interface {
	Notify(ctx context.Context, contact *database.Contact, subject, message string) bool
}

// Config holds the tunables of the escalation engine
type Config struct {
	// EscalationDelay is how long an assignee has to acknowledge before
	// the incident advances to the next responder
	EscalationDelay time.Duration

	// PollInterval bounds the wait for an operator action; on expiry the
	// loop re-checks whether a new assignee is due
	PollInterval time.Duration

	// FailOnNoAssignee makes a missing schedule or contact terminal
	// instead of retrying on the next cycle
	FailOnNoAssignee bool

	// TimeLayout and Location control timestamp rendering in notifications
	TimeLayout string
	Location   *time.Location
}

// Engine runs one long-lived loop per incident until it reaches a terminal
// state. All mutation of an incident goes through its loop, so there is a
// single writer per incident; the store's version check is the backstop.
type Engine struct {
	store    IncidentStore
	notifier Notifier
	broker   *Broker
	cfg      Config
	now      func() time.Time

	// OnUpdate, when set, is called after every persisted state change.
	// Used to feed the dashboard event stream.
	OnUpdate func(incident database.Incident)
}

// New creates a new escalation engine
func New(store IncidentStore, notifier Notifier, broker *Broker, cfg Config) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.TimeLayout == "" {
		cfg.TimeLayout = "2006-01-02 15:04:05 MST"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		broker:   broker,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Broker returns the action broker serving this engine's run loops
func (e *Engine) Broker() *Broker {
	return e.broker
}

// Launch starts the incident's run loop in its own goroutine
func (e *Engine) Launch(ctx context.Context, incident *database.Incident) {
	go func() {
		if err := e.RunGuarded(ctx, incident); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Engine: incident %d run loop failed: %v", incident.ID, err)
		}
	}()
}

// RunGuarded wraps Run so that an unexpected failure or panic never leaves
// the incident in an indeterminate active state: it is forced into the error
// state with the failure text as comment before the error is returned.
// Context cancellation is not a failure; the incident stays active and is
// resumed on the next startup.
func (e *Engine) RunGuarded(ctx context.Context, incident *database.Incident) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run loop panicked: %v", r)
		}
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		if !incident.State.IsActive() {
			return
		}
		incident.State = database.IncidentStateError
		incident.Comment = err.Error()
		if perr := e.store.UpdateIncident(incident); perr != nil {
			log.Printf("Engine: failed to persist error state for incident %d: %v", incident.ID, perr)
			return
		}
		e.publish(incident)
	}()

	return e.Run(ctx, incident)
}

// Run drives the incident until it reaches a terminal state. The loop
// alternates between the assignment-due check and a bounded wait for an
// operator action; the wait is the only blocking point.
func (e *Engine) Run(ctx context.Context, incident *database.Incident) error {
	actions := e.broker.Register(incident.UniqueID)
	defer e.broker.Unregister(incident.UniqueID, actions)

	log.Printf("Engine: incident %d run loop started (state: %s)", incident.ID, incident.State)

	for incident.State.IsActive() {
		if e.assignmentDue(incident) {
			assigned, err := e.assignNext(ctx, incident)
			if err != nil {
				return err
			}
			if assigned {
				// Re-check the loop condition before waiting
				continue
			}
			if !incident.State.IsActive() {
				break
			}
			// Assignment failed but is retryable: fall through to the
			// wait so the next cycle tries again
		}

		select {
		case action := <-actions:
			if err := e.applyAction(ctx, incident, action); err != nil {
				return err
			}
		case <-time.After(e.cfg.PollInterval):
			// Timeout: loop back to the assignment check
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Printf("Engine: incident %d reached terminal state %s", incident.ID, incident.State)
	return nil
}

// assignmentDue reports whether a new assignee is needed: always in pending,
// and in assigned once the escalation delay has elapsed without an ack.
func (e *Engine) assignmentDue(incident *database.Incident) bool {
	switch incident.State {
	case database.IncidentStatePending:
		return true
	case database.IncidentStateAssigned:
		return incident.AssignedAt != nil &&
			e.now().Sub(*incident.AssignedAt) > e.cfg.EscalationDelay
	default:
		return false
	}
}

// assignNext looks up the active schedule window, rotates to the next
// responder and notifies them. Returns true when a responder was assigned.
// Assignment errors are recorded on the incident; store errors propagate.
func (e *Engine) assignNext(ctx context.Context, incident *database.Incident) (bool, error) {
	now := e.now()

	row, err := e.store.GetScheduleRow(now)
	if errors.Is(err, database.ErrNotFound) {
		return false, e.failAssignment(incident, "no schedule set")
	}
	if err != nil {
		return false, err
	}

	next := schedule.NextAssignee(row, incident.Assignee)
	if next == "" {
		return false, e.failAssignment(incident, "no schedule set")
	}

	contact, err := e.store.GetContactByName(next)
	if errors.Is(err, database.ErrNotFound) {
		return false, e.failAssignment(incident, fmt.Sprintf("no contact for assignee %s", next))
	}
	if err != nil {
		return false, err
	}

	incident.State = database.IncidentStateAssigned
	incident.Assign(next, now)

	delivered := e.notifier.Notify(ctx, contact,
		notify.Subject(incident),
		notify.Message(incident, e.cfg.TimeLayout, e.cfg.Location))
	if delivered {
		incident.Comment = fmt.Sprintf("assigned to %s", next)
	} else {
		incident.Comment = fmt.Sprintf("assigned to %s (notification failed)", next)
	}

	if err := e.persist(incident); err != nil {
		return false, err
	}
	return true, nil
}

// failAssignment records the assignment error on the incident. Depending on
// configuration the incident either becomes terminal or stays pending to be
// retried on the next cycle.
func (e *Engine) failAssignment(incident *database.Incident, reason string) error {
	incident.Comment = reason
	if e.cfg.FailOnNoAssignee {
		incident.State = database.IncidentStateError
	}
	return e.persist(incident)
}

// applyAction applies one operator action and persists the result
func (e *Engine) applyAction(ctx context.Context, incident *database.Incident, action Action) error {
	updated, renotify := Apply(*incident, action, e.now())
	*incident = updated
	if err := e.persist(incident); err != nil {
		return err
	}

	if renotify && incident.Assignee != "" {
		if err := e.renotifyAssignee(ctx, incident); err != nil {
			return err
		}
	}
	return nil
}

// renotifyAssignee re-sends the notification to the current assignee,
// surfacing a total delivery failure on the comment.
func (e *Engine) renotifyAssignee(ctx context.Context, incident *database.Incident) error {
	contact, err := e.store.GetContactByName(incident.Assignee)
	if errors.Is(err, database.ErrNotFound) {
		incident.Comment = fmt.Sprintf("notification failed: no contact for assignee %s", incident.Assignee)
		return e.persist(incident)
	}
	if err != nil {
		return err
	}

	delivered := e.notifier.Notify(ctx, contact,
		notify.Subject(incident),
		notify.Message(incident, e.cfg.TimeLayout, e.cfg.Location))
	if !delivered {
		incident.Comment = fmt.Sprintf("notification failed for assignee %s", incident.Assignee)
		return e.persist(incident)
	}
	return nil
}

// persist writes the incident and publishes the change
func (e *Engine) persist(incident *database.Incident) error {
	if err := e.store.UpdateIncident(incident); err != nil {
		return err
	}
	e.publish(incident)
	return nil
}

func (e *Engine) publish(incident *database.Incident) {
	if e.OnUpdate != nil {
		e.OnUpdate(*incident)
	}
}
