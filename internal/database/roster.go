package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// rosterFile is the on-disk shape of the on-call roster
type rosterFile struct {
	Contacts []rosterContact `yaml:"contacts"`
	Schedule []rosterWindow  `yaml:"schedule"`
}

type rosterContact struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Phone string `yaml:"phone"`
}

type rosterWindow struct {
	Start     string   `yaml:"start"`
	End       string   `yaml:"end"`
	Assignees []string `yaml:"assignees"`
}

// LoadRoster reads the YAML roster file and syncs contacts and schedule rows
// into the database. Contacts are upserted by name; the schedule table is
// replaced wholesale so removed windows do not linger. Timestamps without a
// zone are interpreted in loc using the given layout.
func (s *Store) LoadRoster(path, layout string, loc *time.Location) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read roster file: %w", err)
	}

	var roster rosterFile
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return fmt.Errorf("failed to parse roster file: %w", err)
	}

	rows := make([]ScheduleRow, 0, len(roster.Schedule))
	for i, w := range roster.Schedule {
		start, err := parseRosterTime(w.Start, layout, loc)
		if err != nil {
			return fmt.Errorf("schedule entry %d: invalid start time %q: %w", i, w.Start, err)
		}
		end, err := parseRosterTime(w.End, layout, loc)
		if err != nil {
			return fmt.Errorf("schedule entry %d: invalid end time %q: %w", i, w.End, err)
		}
		if end.Before(start) {
			return fmt.Errorf("schedule entry %d: end time precedes start time", i)
		}
		rows = append(rows, ScheduleRow{
			StartTime: start,
			EndTime:   end,
			Assignees: w.Assignees,
		})
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, c := range roster.Contacts {
			if c.Name == "" {
				return fmt.Errorf("roster contact with empty name")
			}
			contact := Contact{Name: c.Name, Email: c.Email, Phone: c.Phone}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"email", "phone", "updated_at"}),
			}).Create(&contact).Error
			if err != nil {
				return fmt.Errorf("failed to upsert contact %s: %w", c.Name, err)
			}
		}

		if err := tx.Where("1 = 1").Delete(&ScheduleRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear schedule: %w", err)
		}
		for i := range rows {
			if err := tx.Create(&rows[i]).Error; err != nil {
				return fmt.Errorf("failed to create schedule row: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("Roster loaded: %d contacts, %d schedule windows", len(roster.Contacts), len(rows))
	return nil
}

// parseRosterTime parses a roster timestamp, trying the configured layout
// first and falling back to RFC 3339.
func parseRosterTime(value, layout string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(layout, value, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}
