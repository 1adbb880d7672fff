package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcal/internal/model"
)

func TestWriteAvailabilityFoldsConsecutiveDays(t *testing.T) {
	days := model.DaySet{
		model.MustDate("2025-01-10"),
		model.MustDate("2025-01-11"),
		model.MustDate("2025-01-12"),
		model.MustDate("2025-02-01"),
	}

	var buf bytes.Buffer
	stamp := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, WriteAvailability(&buf, "Casa al Mare", days, stamp))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR"))
	assert.Equal(t, 2, strings.Count(out, "BEGIN:VEVENT"))
	assert.Contains(t, out, "X-WR-CALNAME:Casa al Mare")

	// Reading our own feed back must yield the same days.
	events, err := ParseBookings(buf.Bytes())
	require.NoError(t, err)
	got, count := ExpandToBookedDays(events, testExpandConfig)
	assert.Equal(t, 2, count)
	assert.Equal(t, days.Strings(), got.Strings())
}

func TestWriteAvailabilityEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAvailability(&buf, "", nil, time.Now()))
	assert.Contains(t, buf.String(), "BEGIN:VCALENDAR")
	assert.NotContains(t, buf.String(), "BEGIN:VEVENT")
}

func TestDayRuns(t *testing.T) {
	runs := dayRuns(model.DaySet{
		model.MustDate("2025-12-30"),
		model.MustDate("2025-12-31"),
		model.MustDate("2026-01-01"),
		model.MustDate("2026-01-03"),
	})
	require.Len(t, runs, 2)
	assert.Equal(t, "2025-12-30", runs[0].from.String())
	assert.Equal(t, "2026-01-02", runs[0].to.String())
	assert.Equal(t, "2026-01-03", runs[1].from.String())
	assert.Equal(t, "2026-01-04", runs[1].to.String())
}
