package web

import (
	"bytes"
	"net/http"
	"time"

	appLog "rentcal/internal/log"
)

type statusPage struct {
	PropertyName string
	Online       bool
	CachedDays   int
	LastSync     string
	Fresh        bool
	State        string
	TTL          time.Duration
	Now          string
}

// handleIndex renders the human-readable status page. It never fetches.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	st := s.avail.Status()
	data := statusPage{
		PropertyName: s.opts.PropertyName,
		Online:       st.Online,
		CachedDays:   st.CachedDays,
		Fresh:        st.Fresh,
		State:        st.State.String(),
		TTL:          s.opts.TTL,
		Now:          s.opts.Now().Format(time.RFC3339),
	}
	if last, ok := st.LastSync.Get(); ok {
		data.LastSync = last.Format(time.RFC3339)
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		appLog.Error("render status page failed", err, "request_id", RequestIDFrom(r.Context()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
