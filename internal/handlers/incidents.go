package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pagerbell/pagerbell/internal/api"
	"github.com/pagerbell/pagerbell/internal/database"
	"github.com/pagerbell/pagerbell/internal/engine"
	"github.com/pagerbell/pagerbell/internal/middleware"
	"github.com/pagerbell/pagerbell/internal/utils"
)

// Broadcaster publishes incident changes to dashboard listeners
type Broadcaster interface {
	Broadcast(incident database.Incident)
}

// IncidentHandler handles incident intake and dashboard actions
type IncidentHandler struct {
	store      *database.Store
	eng        *engine.Engine
	events     Broadcaster // may be nil
	runCtx     context.Context
	baseURL    string
	timeLayout string
	location   *time.Location
}

// NewIncidentHandler creates a new incident handler. runCtx is the lifetime
// context handed to every launched run loop.
func NewIncidentHandler(
	store *database.Store,
	eng *engine.Engine,
	events Broadcaster,
	runCtx context.Context,
	baseURL, timeLayout string,
	location *time.Location,
) *IncidentHandler {
	return &IncidentHandler{
		store:      store,
		eng:        eng,
		events:     events,
		runCtx:     runCtx,
		baseURL:    baseURL,
		timeLayout: timeLayout,
		location:   location,
	}
}

// SetupRoutes configures incident routes
func (h *IncidentHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/incidents", h.handleCreate)
	mux.HandleFunc("/dashboard", h.handleDashboardView)
	mux.HandleFunc("/dashboard/action", h.handleDashboardAction)
	mux.HandleFunc("/api/incidents", h.handleList)
}

// CreateIncidentRequest is the new-incident request body
type CreateIncidentRequest struct {
	Details string `json:"details"`
}

// CreateIncidentResponse is returned to the reporter
type CreateIncidentResponse struct {
	ID            uint   `json:"id"`
	State         string `json:"state"`
	DashboardLink string `json:"dashboard_link"`
}

// handleCreate handles POST /incidents: persists a pending incident and
// starts its run loop.
func (h *IncidentHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	details, err := readDetails(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(details) == "" {
		api.RespondError(w, http.StatusBadRequest, "Incident details are required")
		return
	}

	id, err := h.store.NextIncidentID()
	if err != nil {
		log.Printf("IncidentHandler: failed to allocate id: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to create incident")
		return
	}

	token := uuid.NewString()
	incident := &database.Incident{
		ID:            id,
		UniqueID:      token,
		State:         database.IncidentStatePending,
		Details:       details,
		StartedAt:     time.Now(),
		DashboardLink: fmt.Sprintf("%s/dashboard?token=%s", h.baseURL, token),
	}

	if err := h.store.AddIncident(incident); err != nil {
		log.Printf("IncidentHandler: failed to create incident: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to create incident")
		return
	}

	if h.events != nil {
		h.events.Broadcast(*incident)
	}

	h.eng.Launch(h.runCtx, incident)
	log.Printf("IncidentHandler: created incident %d", incident.ID)

	api.RespondJSON(w, http.StatusCreated, CreateIncidentResponse{
		ID:            incident.ID,
		State:         string(incident.State),
		DashboardLink: incident.DashboardLink,
	})
}

// readDetails extracts the incident details from a JSON or form body
func readDetails(r *http.Request) (string, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return "", errors.New("invalid form body")
		}
		return r.PostFormValue("details"), nil
	}

	var req CreateIncidentRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		return "", err
	}
	return req.Details, nil
}

// incidentView is the dashboard representation of an incident
type incidentView struct {
	ID         uint   `json:"id"`
	State      string `json:"state"`
	Details    string `json:"details"`
	StartedAt  string `json:"started_at"`
	Age        string `json:"age"`
	Assignee   string `json:"assignee,omitempty"`
	AssignedAt string `json:"assigned_at,omitempty"`
	Comment    string `json:"comment,omitempty"`
}

func (h *IncidentHandler) viewOf(incident *database.Incident) incidentView {
	v := incidentView{
		ID:        incident.ID,
		State:     string(incident.State),
		Details:   incident.Details,
		StartedAt: incident.StartedAt.In(h.location).Format(h.timeLayout),
		Age:       utils.FormatDuration(time.Since(incident.StartedAt)),
		Assignee:  incident.Assignee,
		Comment:   incident.Comment,
	}
	if incident.AssignedAt != nil {
		v.AssignedAt = incident.AssignedAt.In(h.location).Format(h.timeLayout)
	}
	return v
}

// handleDashboardView handles GET /dashboard?token=<unique_id>
func (h *IncidentHandler) handleDashboardView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	incident, ok := h.authorizeByToken(w, r)
	if !ok {
		return
	}
	api.RespondJSON(w, http.StatusOK, h.viewOf(incident))
}

// handleDashboardAction handles POST /dashboard/action?token=<unique_id>.
// The capability token in the query authorizes the request; the action comes
// form-encoded in the body. Operator identity, when present from a bearer
// token, is attached to the action.
func (h *IncidentHandler) handleDashboardAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	incident, ok := h.authorizeByToken(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	actionName := r.PostFormValue("action")
	if actionName == "" {
		api.RespondError(w, http.StatusBadRequest, "Missing action field")
		return
	}

	if !incident.State.IsActive() {
		api.RespondErrorWithCode(w, http.StatusConflict, "incident_closed",
			fmt.Sprintf("Incident %d is already %s", incident.ID, incident.State))
		return
	}

	operator := middleware.GetOperatorFromContext(r.Context())
	if (actionName == engine.ActionTake || actionName == "t") && operator == "" {
		api.RespondError(w, http.StatusUnauthorized, "Action take requires an authenticated operator")
		return
	}

	action := engine.Action{
		Name:     actionName,
		Assignee: r.PostFormValue("assignee"),
		Operator: operator,
	}

	err := h.eng.Broker().Deliver(incident.UniqueID, action)
	switch {
	case errors.Is(err, engine.ErrNoListener):
		api.RespondErrorWithCode(w, http.StatusServiceUnavailable, "loop_not_running",
			"Incident is not being processed right now, try again shortly")
		return
	case errors.Is(err, engine.ErrMailboxFull):
		api.RespondError(w, http.StatusTooManyRequests, "Too many pending actions for this incident")
		return
	case err != nil:
		api.RespondError(w, http.StatusInternalServerError, "Failed to submit action")
		return
	}

	log.Printf("IncidentHandler: action %q submitted for incident %d", actionName, incident.ID)
	api.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// authorizeByToken resolves the capability token from the query string.
// A missing or unknown token rejects the request before any action handling.
func (h *IncidentHandler) authorizeByToken(w http.ResponseWriter, r *http.Request) (*database.Incident, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		api.RespondError(w, http.StatusUnauthorized, "Missing capability token")
		return nil, false
	}

	incident, err := h.store.GetIncidentByUniqueID(token)
	if errors.Is(err, database.ErrNotFound) {
		api.RespondError(w, http.StatusNotFound, "Unknown incident token")
		return nil, false
	}
	if err != nil {
		log.Printf("IncidentHandler: token lookup failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to look up incident")
		return nil, false
	}
	return incident, true
}

// ListIncidentsResponse is the paged incident listing
type ListIncidentsResponse struct {
	Incidents  []incidentView `json:"incidents"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	Total      int64          `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// handleList handles GET /api/incidents (operator-only, paginated)
func (h *IncidentHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	p := api.ParsePagination(r)
	incidents, total, err := h.store.ListIncidents(p.Offset(), p.PerPage)
	if err != nil {
		log.Printf("IncidentHandler: failed to list incidents: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list incidents")
		return
	}

	views := make([]incidentView, 0, len(incidents))
	for i := range incidents {
		views = append(views, h.viewOf(&incidents[i]))
	}

	api.RespondJSON(w, http.StatusOK, ListIncidentsResponse{
		Incidents:  views,
		Page:       p.Page,
		PerPage:    p.PerPage,
		Total:      total,
		TotalPages: p.TotalPages(total),
	})
}
