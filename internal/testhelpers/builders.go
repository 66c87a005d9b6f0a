package testhelpers

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pagerbell/pagerbell/internal/database"
)

// IncidentBuilder builds Incident instances for testing
type IncidentBuilder struct {
	incident database.Incident
}

// NewIncidentBuilder creates a new incident builder with defaults
func NewIncidentBuilder() *IncidentBuilder {
	return &IncidentBuilder{
		incident: database.Incident{
			UniqueID:  uuid.NewString(),
			State:     database.IncidentStatePending,
			Details:   "Test incident",
			StartedAt: time.Now(),
		},
	}
}

// WithID sets the incident ID
func (b *IncidentBuilder) WithID(id uint) *IncidentBuilder {
	b.incident.ID = id
	return b
}

// WithUniqueID sets the capability token
func (b *IncidentBuilder) WithUniqueID(token string) *IncidentBuilder {
	b.incident.UniqueID = token
	return b
}

// WithState sets the state
func (b *IncidentBuilder) WithState(state database.IncidentState) *IncidentBuilder {
	b.incident.State = state
	return b
}

// WithDetails sets the details
func (b *IncidentBuilder) WithDetails(details string) *IncidentBuilder {
	b.incident.Details = details
	return b
}

// WithAssignee sets the assignee and assignment time
func (b *IncidentBuilder) WithAssignee(name string, at time.Time) *IncidentBuilder {
	b.incident.Assign(name, at)
	return b
}

// Build returns the constructed incident
func (b *IncidentBuilder) Build() database.Incident {
	return b.incident
}

// NewContact creates a contact with email and phone derived from the name
func NewContact(name string) database.Contact {
	return database.Contact{
		Name:  name,
		Email: fmt.Sprintf("%s@example.com", name),
		Phone: "+15550000000",
	}
}

// NewScheduleRow creates a schedule row covering now-1h to now+1h
func NewScheduleRow(assignees ...string) database.ScheduleRow {
	now := time.Now()
	return database.ScheduleRow{
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
		Assignees: assignees,
	}
}
