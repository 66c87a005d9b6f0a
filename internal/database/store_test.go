package database

import (
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(&Incident{}, &Contact{}, &ScheduleRow{})
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return NewStore(db)
}

func TestNextIncidentID_Monotonic(t *testing.T) {
	store := setupTestStore(t)

	id1, err := store.NextIncidentID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 != 1 {
		t.Errorf("expected first id 1, got %d", id1)
	}

	incident := &Incident{ID: id1, UniqueID: "tok-1", State: IncidentStatePending, Details: "first"}
	if err := store.AddIncident(incident); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id2, err := store.NextIncidentID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("expected id > %d, got %d", id1, id2)
	}
}

func TestGetIncidentByUniqueID(t *testing.T) {
	store := setupTestStore(t)

	incident := &Incident{ID: 1, UniqueID: "secret-token", State: IncidentStatePending, Details: "DB down"}
	if err := store.AddIncident(incident); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found, err := store.GetIncidentByUniqueID("secret-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.ID != 1 || found.Details != "DB down" {
		t.Errorf("unexpected incident: %+v", found)
	}

	_, err = store.GetIncidentByUniqueID("wrong-token")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// Persisting and reloading an incident must reproduce the original fields.
func TestIncident_PersistRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	assignedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	incident := &Incident{
		ID:            7,
		UniqueID:      "tok-7",
		State:         IncidentStateAssigned,
		Details:       "disk full on web-1",
		StartedAt:     assignedAt.Add(-10 * time.Minute),
		Comment:       "assigned to alice",
		DashboardLink: "http://localhost:3000/dashboard?token=tok-7",
	}
	incident.Assign("alice", assignedAt)

	if err := store.AddIncident(incident); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := store.GetIncidentByID(7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if loaded.UniqueID != incident.UniqueID ||
		loaded.State != incident.State ||
		loaded.Details != incident.Details ||
		loaded.Assignee != incident.Assignee ||
		loaded.Comment != incident.Comment ||
		loaded.DashboardLink != incident.DashboardLink {
		t.Errorf("round trip mismatch: %+v vs %+v", loaded, incident)
	}
	if loaded.AssignedAt == nil || !loaded.AssignedAt.Equal(assignedAt) {
		t.Errorf("assigned_at mismatch: %v", loaded.AssignedAt)
	}
}

func TestUpdateIncident_NotFound(t *testing.T) {
	store := setupTestStore(t)

	incident := &Incident{ID: 99, UniqueID: "tok", State: IncidentStatePending}
	err := store.UpdateIncident(incident)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateIncident_BumpsVersion(t *testing.T) {
	store := setupTestStore(t)

	incident := &Incident{ID: 1, UniqueID: "tok", State: IncidentStatePending}
	if err := store.AddIncident(incident); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	incident.State = IncidentStateAssigned
	incident.Comment = "assigned to alice"
	if err := store.UpdateIncident(incident); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if incident.Version != 1 {
		t.Errorf("expected version 1 after update, got %d", incident.Version)
	}

	loaded, err := store.GetIncidentByID(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.State != IncidentStateAssigned || loaded.Version != 1 {
		t.Errorf("unexpected row after update: %+v", loaded)
	}
}

func TestUpdateIncident_VersionConflict(t *testing.T) {
	store := setupTestStore(t)

	incident := &Incident{ID: 1, UniqueID: "tok", State: IncidentStatePending}
	if err := store.AddIncident(incident); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Two actors read the same version
	stale := *incident

	incident.Comment = "first writer"
	if err := store.UpdateIncident(incident); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stale.Comment = "second writer"
	err := store.UpdateIncident(&stale)
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
}

func TestGetScheduleRow_NoMatch(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetScheduleRow(time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetScheduleRow_PrefersMostSpecificWindow(t *testing.T) {
	store := setupTestStore(t)
	db := store.DB()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// A wide catch-all window and a narrower override covering the same instant
	wide := ScheduleRow{
		StartTime: now.Add(-24 * time.Hour),
		EndTime:   now.Add(24 * time.Hour),
		Assignees: StringList{"fallback"},
	}
	narrow := ScheduleRow{
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
		Assignees: StringList{"oncall"},
	}
	db.Create(&wide)
	db.Create(&narrow)

	row, err := store.GetScheduleRow(now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(row.Assignees) != 1 || row.Assignees[0] != "oncall" {
		t.Errorf("expected the narrow window, got assignees %v", row.Assignees)
	}
}

func TestGetScheduleRow_InclusiveBounds(t *testing.T) {
	store := setupTestStore(t)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC)
	store.DB().Create(&ScheduleRow{StartTime: start, EndTime: end, Assignees: StringList{"alice"}})

	for _, at := range []time.Time{start, end} {
		if _, err := store.GetScheduleRow(at); err != nil {
			t.Errorf("expected match at boundary %v, got %v", at, err)
		}
	}

	if _, err := store.GetScheduleRow(end.Add(time.Second)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound past the window, got %v", err)
	}
}

func TestGetContactByNameAndEmail(t *testing.T) {
	store := setupTestStore(t)

	store.DB().Create(&Contact{Name: "alice", Email: "alice@example.com", Phone: "+15550001"})

	byName, err := store.GetContactByName("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if byName.Email != "alice@example.com" {
		t.Errorf("unexpected contact: %+v", byName)
	}

	byEmail, err := store.GetContactByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if byEmail.Name != "alice" {
		t.Errorf("unexpected contact: %+v", byEmail)
	}

	if _, err := store.GetContactByName("bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListActiveIncidents(t *testing.T) {
	store := setupTestStore(t)
	db := store.DB()

	db.Create(&Incident{ID: 1, UniqueID: "t1", State: IncidentStatePending})
	db.Create(&Incident{ID: 2, UniqueID: "t2", State: IncidentStateAssigned})
	db.Create(&Incident{ID: 3, UniqueID: "t3", State: IncidentStateInProgress})
	db.Create(&Incident{ID: 4, UniqueID: "t4", State: IncidentStateResolved})
	db.Create(&Incident{ID: 5, UniqueID: "t5", State: IncidentStateError})

	active, err := store.ListActiveIncidents()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 active incidents, got %d", len(active))
	}
	for _, incident := range active {
		if !incident.State.IsActive() {
			t.Errorf("incident %d has non-active state %s", incident.ID, incident.State)
		}
	}
}

func TestIncidentState_IsActive(t *testing.T) {
	tests := []struct {
		state IncidentState
		want  bool
	}{
		{IncidentStatePending, true},
		{IncidentStateAssigned, true},
		{IncidentStateInProgress, true},
		{IncidentStateResolved, false},
		{IncidentStateError, false},
		{IncidentState("bogus"), false},
	}

	for _, tt := range tests {
		if got := tt.state.IsActive(); got != tt.want {
			t.Errorf("IsActive(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}
