package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// StringList is a custom type for ordered string lists stored as JSON
type StringList []string

// Scan implements the sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.New("type assertion to []byte failed")
	}
}

// Value implements the driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// IncidentState represents the lifecycle state of an incident
type IncidentState string

const (
	IncidentStatePending    IncidentState = "pending"
	IncidentStateAssigned   IncidentState = "assigned"
	IncidentStateInProgress IncidentState = "in_progress"
	IncidentStateResolved   IncidentState = "resolved"
	IncidentStateError      IncidentState = "error"
)

// IsActive returns true for states that still need automatic processing.
// Resolved and error are terminal: rows are retained for audit but never revisited.
func (s IncidentState) IsActive() bool {
	switch s {
	case IncidentStatePending, IncidentStateAssigned, IncidentStateInProgress:
		return true
	default:
		return false
	}
}

// Incident represents one tracked event requiring human response
type Incident struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	UniqueID      string        `gorm:"uniqueIndex;size:36;not null" json:"unique_id"` // capability token for dashboard actions
	State         IncidentState `gorm:"type:varchar(20);not null;default:'pending';index" json:"state"`
	Details       string        `gorm:"type:text" json:"details"` // immutable after creation
	StartedAt     time.Time     `json:"started_at"`
	Assignee      string        `gorm:"type:varchar(255)" json:"assignee"`
	AssignedAt    *time.Time    `json:"assigned_at,omitempty"` // set iff Assignee is set this round
	Comment       string        `gorm:"type:text" json:"comment"` // last action taken, overwritten on each action
	DashboardLink string        `gorm:"type:text" json:"dashboard_link"`
	Version       uint          `gorm:"not null;default:0" json:"version"` // optimistic concurrency token
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// BeforeCreate hook to set StartedAt
func (i *Incident) BeforeCreate(tx *gorm.DB) error {
	if i.StartedAt.IsZero() {
		i.StartedAt = time.Now()
	}
	return nil
}

// Assign sets the assignee and assignment timestamp together, keeping the
// assignee/assigned_at invariant in one place.
func (i *Incident) Assign(assignee string, at time.Time) {
	i.Assignee = assignee
	i.AssignedAt = &at
}

// Contact represents a person who can be assigned to an incident.
// Contacts are read-only from the engine's perspective; the roster file owns them.
type Contact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:255;not null" json:"name"` // rotation and lookup key
	Email     string    `gorm:"size:255;index" json:"email"`
	Phone     string    `gorm:"size:64" json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasEmail returns true if the contact has an email address configured
func (c *Contact) HasEmail() bool {
	return c.Email != ""
}

// HasPhone returns true if the contact has a phone number configured
func (c *Contact) HasPhone() bool {
	return c.Phone != ""
}

// ScheduleRow represents one on-call rotation window
type ScheduleRow struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	StartTime time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime   time.Time  `gorm:"not null;index" json:"end_time"`
	Assignees StringList `gorm:"type:jsonb" json:"assignees"` // rotation order is significant
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Window returns the length of the rotation window
func (r *ScheduleRow) Window() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// TableName overrides for explicit table naming
func (Incident) TableName() string {
	return "incidents"
}

func (Contact) TableName() string {
	return "contacts"
}

func (ScheduleRow) TableName() string {
	return "schedule_rows"
}
