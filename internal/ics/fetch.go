package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	appLog "rentcal/internal/log"
)

const (
	// calendarMarker is the first structural token of every iCalendar document.
	calendarMarker = "BEGIN:VCALENDAR"

	defaultFetchTimeout = 15 * time.Second
	maxBodyBytes        = 10 << 20
)

// RetryPolicy controls how many times a failed fetch is attempted.
// The zero value means a single attempt with no retry.
type RetryPolicy struct {
	// Attempts is the total number of tries. Values below 1 mean 1.
	Attempts int
	// Backoff is the pause between attempts; it doubles after each retry.
	Backoff time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	// Timeout bounds a single HTTP exchange. Zero means defaultFetchTimeout.
	Timeout time.Duration
	Retry   RetryPolicy
	// Client overrides the HTTP client (tests). Timeout is ignored when set.
	Client *http.Client
}

// validators holds what the previous 200 response told us about the feed,
// so the next request can be conditional.
type validators struct {
	etag         string
	lastModified string
	body         []byte
}

// Fetcher retrieves the single configured calendar feed. The URL is fixed at
// construction time and never taken from a request.
//
// Conditional request metadata (ETag / Last-Modified) is remembered in
// memory only.
type Fetcher struct {
	client *http.Client
	url    string
	retry  RetryPolicy

	mu   sync.Mutex
	last validators
}

// NewFetcher creates a Fetcher for url.
func NewFetcher(url string, opts FetcherOptions) *Fetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultFetchTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Fetcher{
		client: client,
		url:    url,
		retry:  opts.Retry,
	}
}

// URL returns the feed URL this fetcher reads.
func (f *Fetcher) URL() string {
	return f.url
}

// FetchCalendarDocument downloads the feed and checks that it looks like an
// iCalendar document. It returns *FetchError for transport and status
// failures and *FormatError when the body lacks the VCALENDAR marker.
func (f *Fetcher) FetchCalendarDocument(ctx context.Context) ([]byte, error) {
	if f.url == "" {
		return nil, &FetchError{Err: errors.New("calendar URL is empty")}
	}

	backoff := f.retry.Backoff
	var lastErr error
	for attempt := 1; attempt <= f.retry.attempts(); attempt++ {
		if attempt > 1 {
			appLog.Info("ics fetch retry", "url", RedactURL(f.url), "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, &FetchError{Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		body, err := f.fetchOnce(ctx)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var fe *FetchError
		if !errors.As(err, &fe) || !fe.Temporary() || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, &FetchError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")

	f.mu.Lock()
	prev := f.last
	f.mu.Unlock()

	// Conditional headers only make sense when we still hold the body.
	if len(prev.body) > 0 {
		if prev.etag != "" {
			req.Header.Set("If-None-Match", prev.etag)
		}
		if prev.lastModified != "" {
			req.Header.Set("If-Modified-Since", prev.lastModified)
		}
	}

	appLog.Debug("ics fetch start", "url", RedactURL(f.url))

	resp, err := f.client.Do(req)
	if err != nil {
		// *url.Error repeats the full URL, token included.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = fmt.Errorf("%s %s: %w", ue.Op, RedactURL(ue.URL), ue.Err)
		}
		appLog.Error("ics fetch network error", err, "url", RedactURL(f.url))
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if len(prev.body) == 0 {
			return nil, &FetchError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Err:        errors.New("received 304 Not Modified but no previous body is held"),
			}
		}
		appLog.Info("ics fetch not modified; reusing previous body", "url", RedactURL(f.url))
		return prev.body, nil

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		appLog.Error("ics fetch non-OK", errors.New(resp.Status), "url", RedactURL(f.url), "status", resp.StatusCode)
		return nil, &FetchError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{StatusCode: resp.StatusCode, Status: resp.Status, Err: fmt.Errorf("read body: %w", err)}
	}

	if err := CheckFormat(body); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.last = validators{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
		body:         body,
	}
	f.mu.Unlock()

	appLog.Info("ics fetch success", "url", RedactURL(f.url), "status", resp.StatusCode, "bytes", len(body))
	return body, nil
}

// CheckFormat rejects payloads that do not carry the VCALENDAR marker.
func CheckFormat(body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return &FormatError{Reason: "empty body"}
	}
	if !bytes.Contains(body, []byte(calendarMarker)) {
		return &FormatError{Reason: "missing " + calendarMarker}
	}
	return nil
}

// RedactURL hides sensitive parts of an ICS URL for logging purposes.
// Booking platforms embed access tokens in the path or query, e.g.
//
//	https://www.airbnb.com/calendar/ical/123.ics?s=abcd
//	-> https://www.airbnb.com/...(redacted)
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' && u[j] != '?' {
		j++
	}

	// Userinfo (user:pass@) is a credential too.
	host := u[i:j]
	if at := strings.LastIndexByte(host, '@'); at >= 0 {
		host = host[at+1:]
	}

	return u[:i] + host + redactedSuffix
}
