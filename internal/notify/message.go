package notify

import (
	"fmt"
	"time"

	"github.com/pagerbell/pagerbell/internal/database"
	"github.com/pagerbell/pagerbell/internal/utils"
)

// subjectMaxLen keeps subjects usable in SMS previews and email lists
const subjectMaxLen = 80

// Subject builds the notification subject line for an incident
func Subject(incident *database.Incident) string {
	return fmt.Sprintf("Incident #%d: %s", incident.ID, utils.TruncateText(incident.Details, subjectMaxLen))
}

// Message builds the notification body for an incident. It carries the full
// details, the start time formatted in the configured zone, and the dashboard
// link with the capability token so the recipient can act without logging in.
func Message(incident *database.Incident, layout string, loc *time.Location) string {
	started := incident.StartedAt.In(loc).Format(layout)
	return fmt.Sprintf(
		"Incident #%d reported at %s\n\n%s\n\nAcknowledge, escalate or resolve: %s",
		incident.ID, started, incident.Details, incident.DashboardLink,
	)
}
