package audit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/httputil"
)

// Handlers serves the audit trail read API. Every handler runs behind the
// gate with view:audit required, and every query is forced to the session
// workspace.
type Handlers struct {
	store Store
}

// NewHandlers creates audit read handlers over the store
func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// ListEvents handles GET /api/internal/v1/audit/events
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	filter := parseFilter(r)
	filter.WorkspaceID = &sess.Workspace.ID

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		return err
	}

	return httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetEvent handles GET /api/internal/v1/audit/events/{id}
func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return apierr.Invalid("invalid event ID")
	}

	event, err := h.store.Get(r.Context(), sess.Workspace.ID, id)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, event)
}

// ExportEvents handles GET /api/internal/v1/audit/export
func (h *Handlers) ExportEvents(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	filter := parseFilter(r)
	filter.WorkspaceID = &sess.Workspace.ID

	format := ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = ExportFormatJSON
	}

	data, err := h.store.Export(r.Context(), filter, format)
	if err != nil {
		return err
	}

	switch format {
	case ExportFormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-logs.csv")
	case ExportFormatNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-logs.ndjson")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-logs.json")
	}

	_, err = w.Write(data)
	return err
}

// GetStats handles GET /api/internal/v1/audit/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	startTime, endTime := parseTimeRange(r)

	stats, err := h.store.GetStats(r.Context(), sess.Workspace.ID, startTime, endTime)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, stats)
}

func parseTimeRange(r *http.Request) (startTime, endTime *time.Time) {
	query := r.URL.Query()
	if s := query.Get("start_time"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			startTime = &t
		}
	}
	if s := query.Get("end_time"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			endTime = &t
		}
	}
	return
}

// parseFilter builds a search filter from query parameters. Workspace
// scoping is applied by the caller, never from user input.
func parseFilter(r *http.Request) SearchFilter {
	query := r.URL.Query()
	filter := SearchFilter{}

	filter.StartTime, filter.EndTime = parseTimeRange(r)

	if s := query.Get("user_id"); s != "" {
		if userID, err := strconv.ParseInt(s, 10, 64); err == nil {
			filter.UserID = &userID
		}
	}
	filter.Email = query.Get("email")

	if s := query.Get("event_types"); s != "" {
		for _, et := range strings.Split(s, ",") {
			if et = strings.TrimSpace(et); et != "" {
				filter.EventTypes = append(filter.EventTypes, EventType(et))
			}
		}
	}
	if s := query.Get("status"); s != "" {
		status := EventStatus(s)
		filter.Status = &status
	}

	filter.ResourceType = ResourceType(query.Get("resource_type"))
	filter.ResourceID = query.Get("resource_id")
	filter.IPAddress = query.Get("ip_address")
	filter.Method = query.Get("method")
	filter.Path = query.Get("path")

	filter.Limit = 100
	if s := query.Get("limit"); s != "" {
		if limit, err := strconv.Atoi(s); err == nil && limit > 0 && limit <= 1000 {
			filter.Limit = limit
		}
	}
	if s := query.Get("offset"); s != "" {
		if offset, err := strconv.Atoi(s); err == nil && offset > 0 {
			filter.Offset = offset
		}
	}

	filter.SortAscending = query.Get("sort_order") == "asc"
	return filter
}
