package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"rentcal/internal/availability"
	"rentcal/internal/ics"
	appLog "rentcal/internal/log"
)

// User-facing messages. The site this service backs is Italian.
const (
	msgNotFound         = "Endpoint non trovato"
	msgMethodNotAllowed = "Metodo non consentito"
	msgSyncFailed       = "Errore durante la sincronizzazione del calendario"
	msgServingCache     = "Sincronizzazione non riuscita, dati dalla cache"
	msgCalendarFailed   = "Impossibile recuperare il calendario"
)

// syncResponse is the JSON shape for POST /api/sync-calendar.
type syncResponse struct {
	Success     bool      `json:"success"`
	BookedDates []string  `json:"bookedDates"`
	Cached      bool      `json:"cached"`
	TotalEvents *int      `json:"totalEvents,omitempty"`
	TotalDays   *int      `json:"totalDays,omitempty"`
	SyncTime    time.Time `json:"syncTime,omitzero"`
	LastSync    time.Time `json:"lastSync,omitzero"`
	Error       string    `json:"error,omitempty"`
	Details     string    `json:"details,omitempty"`
}

// calendarResponse is the JSON shape for GET /api/calendar.
type calendarResponse struct {
	Success     bool     `json:"success"`
	BookedDates []string `json:"bookedDates"`
	Cached      bool     `json:"cached"`
	Error       string   `json:"error,omitempty"`
}

// statusResponse is the JSON shape for GET /api/status. LastSync is null
// until the first successful sync.
type statusResponse struct {
	Online      bool       `json:"online"`
	LastSync    *time.Time `json:"lastSync"`
	CachedDates int        `json:"cachedDates"`
	CacheValid  bool       `json:"cacheValid"`
}

type errorResponse struct {
	Error string `json:"error"`
	Path  string `json:"path"`
}

// handleSyncCalendar runs the cache operation and reports sync details.
//
// POST /api/sync-calendar[?force=true]
//   - force: skip the freshness check and always refetch
func (s *Server) handleSyncCalendar(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	res, err := s.avail.GetBookedDays(r.Context(), force)
	if err != nil {
		appLog.Warn("api sync-calendar failed", "err", err, "request_id", RequestIDFrom(r.Context()))
		writeJSON(w, http.StatusInternalServerError, syncResponse{
			Success:     false,
			BookedDates: []string{},
			Error:       msgSyncFailed,
			Details:     err.Error(),
		})
		return
	}

	resp := syncResponse{
		Success:     true,
		BookedDates: res.Days.Strings(),
		Cached:      res.Cached,
	}
	last := res.LastSync.OrEmpty()
	if res.Cached {
		resp.LastSync = last
	} else {
		resp.TotalEvents = &res.TotalEvents
		resp.TotalDays = &res.TotalDays
		resp.SyncTime = last
	}
	if res.Err != nil {
		resp.Error = msgServingCache
		resp.Details = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCalendar is the reduced view of the same operation used by the
// booking widget.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	res, err := s.avail.GetBookedDays(r.Context(), false)
	if err != nil {
		appLog.Warn("api calendar failed", "err", err, "request_id", RequestIDFrom(r.Context()))
		writeJSON(w, http.StatusInternalServerError, calendarResponse{
			Success:     false,
			BookedDates: res.Days.Strings(),
			Error:       msgCalendarFailed,
		})
		return
	}

	writeJSON(w, http.StatusOK, calendarResponse{
		Success:     true,
		BookedDates: res.Days.Strings(),
		Cached:      res.Cached,
	})
}

// handleCalendarICS republishes the booked days as an all-day feed.
func (s *Server) handleCalendarICS(w http.ResponseWriter, r *http.Request) {
	res, err := s.avail.GetBookedDays(r.Context(), false)
	if err != nil {
		appLog.Warn("api calendar.ics failed", "err", err, "request_id", RequestIDFrom(r.Context()))
		writeJSON(w, http.StatusInternalServerError, calendarResponse{
			Success:     false,
			BookedDates: res.Days.Strings(),
			Error:       msgCalendarFailed,
		})
		return
	}

	var buf bytes.Buffer
	if err := ics.WriteAvailability(&buf, s.opts.PropertyName, res.Days, s.opts.Now()); err != nil {
		appLog.Error("api calendar.ics encode failed", err)
		writeJSON(w, http.StatusInternalServerError, calendarResponse{
			Success:     false,
			BookedDates: res.Days.Strings(),
			Error:       msgCalendarFailed,
		})
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="availability.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toStatusResponse(s.avail.Status()))
}

func toStatusResponse(st availability.Status) statusResponse {
	resp := statusResponse{
		Online:      st.Online,
		CachedDates: st.CachedDays,
		CacheValid:  st.Fresh,
	}
	if last, ok := st.LastSync.Get(); ok {
		resp.LastSync = &last
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: msgNotFound, Path: r.URL.Path})
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: msgMethodNotAllowed, Path: r.URL.Path})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}
