// Package notify fans incident notifications out across delivery channels.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/pagerbell/pagerbell/internal/database"
)

// Channel is a single delivery transport (SMS, email, chat)
type Channel interface {
	// Name identifies the channel in logs
	Name() string

	// Configured reports whether the contact has an address for this channel
	Configured(contact *database.Contact) bool

	// Send delivers the message to the contact
	Send(ctx context.Context, contact *database.Contact, subject, message string) error
}

// Dispatcher sends a notification across an ordered list of channels.
// Channel failures are isolated: one channel failing never prevents the
// next from being tried.
type Dispatcher struct {
	channels []Channel
}

// NewDispatcher creates a dispatcher trying channels in the given priority order
func NewDispatcher(channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels}
}

// Notify delivers subject/message to the contact on every configured channel.
// Returns true iff at least one channel succeeded. Failures are logged, never
// raised: total failure is only visible as the false return, and the caller
// is responsible for surfacing it on the incident's comment.
func (d *Dispatcher) Notify(ctx context.Context, contact *database.Contact, subject, message string) bool {
	if contact == nil {
		return false
	}

	delivered := false
	configured := 0
	for _, ch := range d.channels {
		if !ch.Configured(contact) {
			continue
		}
		configured++
		if err := sendSafely(ctx, ch, contact, subject, message); err != nil {
			log.Printf("Notify: %s delivery to %s failed: %v", ch.Name(), contact.Name, err)
			continue
		}
		log.Printf("Notify: delivered to %s via %s", contact.Name, ch.Name())
		delivered = true
	}

	if configured == 0 {
		log.Printf("Notify: contact %s has no configured channels", contact.Name)
	}
	return delivered
}

// sendSafely invokes a channel, converting a panic into an error so a broken
// channel implementation cannot take down the run loop.
func sendSafely(ctx context.Context, ch Channel, contact *database.Contact, subject, message string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", ch.Name(), r)
		}
	}()
	return ch.Send(ctx, contact, subject, message)
}
