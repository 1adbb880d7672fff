package ics

import (
	"fmt"
	"net/http"
)

// FetchError reports that the calendar provider could not be reached or
// answered with a non-success status. StatusCode is 0 for transport errors.
type FetchError struct {
	StatusCode int
	Status     string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("fetch calendar: %v", e.Err)
	}
	if e.Status != "" {
		return "fetch calendar: status " + e.Status
	}
	return fmt.Sprintf("fetch calendar: status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *FetchError) Unwrap() error { return e.Err }

// Temporary reports whether another attempt may succeed.
func (e *FetchError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// FormatError reports a payload that is not an iCalendar document at all.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "invalid calendar document: " + e.Reason
}

// ParseError reports a calendar document whose structure broke while
// reading events out of it.
type ParseError struct {
	UID string
	Err error
}

func (e *ParseError) Error() string {
	if e.UID != "" {
		return fmt.Sprintf("parse calendar event %s: %v", e.UID, e.Err)
	}
	return fmt.Sprintf("parse calendar: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
