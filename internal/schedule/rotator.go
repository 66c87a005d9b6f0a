// Package schedule implements pure rotation logic over on-call schedule rows.
package schedule

import (
	"time"

	"github.com/pagerbell/pagerbell/internal/database"
)

// Match reports whether the schedule row's window contains the given instant.
// Bounds are inclusive on both ends.
func Match(row *database.ScheduleRow, at time.Time) bool {
	return !at.Before(row.StartTime) && !at.After(row.EndTime)
}

// NextAssignee returns the responder that follows current in the row's
// round-robin rotation.
//
// An empty rotation yields "". An empty current yields the first responder.
// After the last responder the rotation wraps to the first. A current that is
// no longer in the rotation (the person rotated off since the last
// escalation) also resets to the first responder rather than failing, so a
// roster edit never strands an active incident.
func NextAssignee(row *database.ScheduleRow, current string) string {
	if len(row.Assignees) == 0 {
		return ""
	}
	if current == "" {
		return row.Assignees[0]
	}
	for i, name := range row.Assignees {
		if name == current {
			return row.Assignees[(i+1)%len(row.Assignees)]
		}
	}
	return row.Assignees[0]
}
