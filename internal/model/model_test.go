package model

import (
	"encoding/json"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOfKeepsSourceWallClock(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"utc late evening", time.Date(2025, 1, 10, 23, 30, 0, 0, time.UTC), "2025-01-10"},
		{"tokyo early morning", time.Date(2025, 1, 11, 1, 0, 0, 0, tokyo), "2025-01-11"},
		{"midnight", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), "2025-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DateOf(tt.in).String())
		})
	}
}

func TestDateAddDaysCrossesMonthAndYear(t *testing.T) {
	assert.Equal(t, "2025-03-01", MustDate("2025-02-28").AddDays(1).String())
	assert.Equal(t, "2024-02-29", MustDate("2024-02-28").AddDays(1).String())
	assert.Equal(t, "2026-01-01", MustDate("2025-12-31").AddDays(1).String())
	assert.Equal(t, "2025-12-31", MustDate("2026-01-01").AddDays(-1).String())
}

func TestDateCompare(t *testing.T) {
	a := MustDate("2025-01-10")
	b := MustDate("2025-02-01")
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.Equal(t, 0, a.Compare(MustDate("2025-01-10")))
	assert.Equal(t, 1, MustDate("2026-01-01").Compare(MustDate("2025-12-31")))
}

func TestParseDateRejectsGarbage(t *testing.T) {
	_, err := ParseDate("2025-13-01")
	assert.Error(t, err)
	_, err = ParseDate("20250101")
	assert.Error(t, err)
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(MustDate("2025-07-04"))
	require.NoError(t, err)
	assert.JSONEq(t, `"2025-07-04"`, string(b))

	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2025-07-04"`), &d))
	assert.Equal(t, MustDate("2025-07-04"), d)
}

func TestDaySetBuilderDedupsAndSorts(t *testing.T) {
	b := NewDaySetBuilder()
	b.AddRange(MustDate("2025-02-03"), MustDate("2025-02-07"))
	b.AddRange(MustDate("2025-02-01"), MustDate("2025-02-05"))
	b.Add(MustDate("2025-01-15"))
	b.Add(MustDate("2025-01-15"))

	set := b.Build()
	assert.Equal(t, []string{
		"2025-01-15",
		"2025-02-01", "2025-02-02", "2025-02-03", "2025-02-04", "2025-02-05", "2025-02-06",
	}, set.Strings())
	assert.True(t, set.Contains(MustDate("2025-02-04")))
	assert.False(t, set.Contains(MustDate("2025-02-07")))
}

func TestDaySetBuilderEmptyRange(t *testing.T) {
	b := NewDaySetBuilder()
	b.AddRange(MustDate("2025-01-10"), MustDate("2025-01-10"))
	b.AddRange(MustDate("2025-01-12"), MustDate("2025-01-10"))

	set := b.Build()
	assert.Equal(t, 0, set.Len())
	assert.NotNil(t, set.Strings())
}

func TestDaySetCloneIsIndependent(t *testing.T) {
	orig := DaySet{MustDate("2025-01-01"), MustDate("2025-01-02")}
	c := orig.Clone()
	c[0] = MustDate("2030-01-01")
	assert.Equal(t, "2025-01-01", orig[0].String())
	assert.Nil(t, DaySet(nil).Clone())
}
