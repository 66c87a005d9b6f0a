package engine

import (
	"errors"
	"sync"
)

// Broker errors
var (
	// ErrNoListener is returned when no run loop is registered for the token
	ErrNoListener = errors.New("no active run loop for incident")

	// ErrMailboxFull is returned when the incident's action queue is saturated
	ErrMailboxFull = errors.New("incident action queue is full")
)

// mailboxSize bounds how many actions can queue up between poll cycles
const mailboxSize = 16

// Broker routes dashboard actions to the run loop owning the incident.
// Each active incident registers one mailbox keyed by its capability token.
type Broker struct {
	mu    sync.Mutex
	boxes map[string]chan Action
}

// NewBroker creates a new action broker
func NewBroker() *Broker {
	return &Broker{boxes: make(map[string]chan Action)}
}

// Register creates the mailbox for an incident's run loop. Registering the
// same token twice replaces the previous mailbox; the stale loop drains out
// on its own.
func (b *Broker) Register(token string) <-chan Action {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Action, mailboxSize)
	b.boxes[token] = ch
	return ch
}

// Unregister removes the incident's mailbox, but only if it is still the one
// handed out by Register. A stale loop draining out after a replacement must
// not take the replacement's mailbox with it. Safe to call for an unknown token.
func (b *Broker) Unregister(token string, ch <-chan Action) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.boxes[token]; ok && (<-chan Action)(cur) == ch {
		delete(b.boxes, token)
	}
}

// Deliver hands an action to the incident's run loop without blocking.
// Returns ErrNoListener when the incident has no active loop (terminal or
// not yet started) and ErrMailboxFull when the queue is saturated.
func (b *Broker) Deliver(token string, action Action) error {
	b.mu.Lock()
	ch, ok := b.boxes[token]
	b.mu.Unlock()

	if !ok {
		return ErrNoListener
	}
	select {
	case ch <- action:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Active reports whether a run loop is registered for the token
func (b *Broker) Active(token string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.boxes[token]
	return ok
}
