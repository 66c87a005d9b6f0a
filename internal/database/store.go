package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Sentinel errors returned by the store. Callers should test with errors.Is.
var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned when an update loses an optimistic
	// concurrency race: the row was modified since it was read.
	ErrVersionConflict = errors.New("incident was modified concurrently")
)

// Store provides row-level persistence for incidents, contacts and the
// on-call schedule. It accepts a *gorm.DB so tests can substitute an
// in-memory SQLite database.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// NextIncidentID reserves a new unique incident identifier. IDs are
// monotonically assigned; the primary key constraint in AddIncident guards
// against a collision if two callers race on the same value.
func (s *Store) NextIncidentID() (uint, error) {
	var maxID uint
	err := s.db.Model(&Incident{}).
		Select("COALESCE(MAX(id), 0)").
		Scan(&maxID).Error
	if err != nil {
		return 0, fmt.Errorf("failed to allocate incident id: %w", err)
	}
	return maxID + 1, nil
}

// AddIncident persists a new incident row. The incident must not exist yet.
func (s *Store) AddIncident(incident *Incident) error {
	if err := s.db.Create(incident).Error; err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// GetIncidentByID returns an incident by its primary key
func (s *Store) GetIncidentByID(id uint) (*Incident, error) {
	var incident Incident
	err := s.db.First(&incident, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

// GetIncidentByUniqueID looks up an incident by its capability token.
// This is the sole authorization check for dashboard actions.
func (s *Store) GetIncidentByUniqueID(token string) (*Incident, error) {
	var incident Incident
	err := s.db.Where("unique_id = ?", token).First(&incident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

// UpdateIncident overwrites the row matching incident.ID. The update only
// applies when the stored version still matches incident.Version; on success
// the version is bumped both in the row and on the passed value. A lost race
// returns ErrVersionConflict, a missing row returns ErrNotFound.
func (s *Store) UpdateIncident(incident *Incident) error {
	res := s.db.Model(&Incident{}).
		Where("id = ? AND version = ?", incident.ID, incident.Version).
		Updates(map[string]interface{}{
			"state":       incident.State,
			"assignee":    incident.Assignee,
			"assigned_at": incident.AssignedAt,
			"comment":     incident.Comment,
			"version":     incident.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update incident %d: %w", incident.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.Model(&Incident{}).Where("id = ?", incident.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	incident.Version++
	return nil
}

// GetScheduleRow returns the schedule row whose window contains the given
// instant, bounds inclusive. When several rows overlap, the most specific one
// wins: shortest window first, lowest ID as the final tie-break. Returns
// ErrNotFound when no window matches.
func (s *Store) GetScheduleRow(at time.Time) (*ScheduleRow, error) {
	var rows []ScheduleRow
	err := s.db.Where("start_time <= ? AND end_time >= ?", at, at).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	best := rows[0]
	for _, row := range rows[1:] {
		if row.Window() < best.Window() ||
			(row.Window() == best.Window() && row.ID < best.ID) {
			best = row
		}
	}
	return &best, nil
}

// GetContactByName returns a contact by rotation key
func (s *Store) GetContactByName(name string) (*Contact, error) {
	var contact Contact
	err := s.db.Where("name = ?", name).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// GetContactByEmail returns a contact by email address
func (s *Store) GetContactByEmail(email string) (*Contact, error) {
	var contact Contact
	err := s.db.Where("email = ?", email).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// ListIncidents returns incidents ordered newest first, with offset/limit
// paging. The second return value is the total row count.
func (s *Store) ListIncidents(offset, limit int) ([]Incident, int64, error) {
	var total int64
	if err := s.db.Model(&Incident{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var incidents []Incident
	err := s.db.Order("id DESC").Offset(offset).Limit(limit).Find(&incidents).Error
	if err != nil {
		return nil, 0, err
	}
	return incidents, total, nil
}

// ListActiveIncidents returns all incidents still in an active state.
// Used at startup to resume interrupted run loops.
func (s *Store) ListActiveIncidents() ([]Incident, error) {
	var incidents []Incident
	err := s.db.Where("state IN ?", []IncidentState{
		IncidentStatePending,
		IncidentStateAssigned,
		IncidentStateInProgress,
	}).Order("id ASC").Find(&incidents).Error
	return incidents, err
}
