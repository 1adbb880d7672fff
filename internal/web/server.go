// Package web is the HTTP surface of the availability service.
package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"rentcal/internal/availability"
	appLog "rentcal/internal/log"
)

// Availability is the part of availability.Cache the handlers use.
type Availability interface {
	GetBookedDays(ctx context.Context, force bool) (availability.Result, error)
	Status() availability.Status
}

// Options configures a Server.
type Options struct {
	// PropertyName labels the status page and the exported feed.
	PropertyName string
	// CORSOrigins lists allowed browser origins. Empty allows any.
	CORSOrigins []string
	// TTL is shown on the status page.
	TTL time.Duration
	// Now replaces time.Now, for tests.
	Now func() time.Time
}

// Server provides the JSON API, the exported feed and the status page.
type Server struct {
	avail  Availability
	opts   Options
	router *mux.Router
	page   *template.Template
}

//go:embed templates/*.html
var templateFS embed.FS

// NewServer constructs a new Server.
func NewServer(avail Availability, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		avail:  avail,
		opts:   opts,
		router: mux.NewRouter(),
		page:   template.Must(template.ParseFS(templateFS, "templates/status.html")),
	}
	s.registerRoutes()
	return s
}

// Handler returns the router wrapped in the middleware chain. Middleware
// wraps the router itself so unmatched paths are logged and get CORS
// headers too.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = accessLog(h)
	h = requestID(h)
	h = handlers.CORS(
		handlers.AllowedOrigins(s.opts.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodHead, http.MethodPost}),
		handlers.AllowedHeaders([]string{"Content-Type", requestIDHeader}),
		handlers.ExposedHeaders([]string{requestIDHeader}),
	)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(true),
	)(h)
	return h
}

func (s *Server) registerRoutes() {
	r := s.router

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)

	r.HandleFunc("/api/sync-calendar", s.handleSyncCalendar).Methods(http.MethodPost)
	r.HandleFunc("/api/calendar", s.handleCalendar).Methods(http.MethodGet)
	r.HandleFunc("/api/calendar.ics", s.handleCalendarICS).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
}

// Serve runs an http.Server on addr until ctx is canceled, then shuts it
// down gracefully within shutdownTimeout.
func Serve(ctx context.Context, addr string, h http.Handler, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	appLog.Info("shutting down HTTP server", "timeout", shutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
