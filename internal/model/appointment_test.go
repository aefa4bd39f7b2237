package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time {
	return time.Date(2025, 1, 15, h, m, 0, 0, time.UTC)
}

func TestOverlaps_Symmetric(t *testing.T) {
	intervals := []TimeSlot{
		{at(9, 0), at(10, 0)},
		{at(9, 30), at(10, 30)},
		{at(10, 0), at(10, 30)},
		{at(8, 0), at(12, 0)},
		{at(9, 15), at(9, 45)},
		{at(11, 0), at(11, 30)},
	}
	for _, a := range intervals {
		for _, b := range intervals {
			assert.Equal(t, a.Overlaps(b), b.Overlaps(a), "overlaps(%v,%v)", a, b)
		}
	}
}

func TestOverlaps_TouchingBoundaryIsNotOverlap(t *testing.T) {
	assert.False(t, Overlaps(at(9, 0), at(9, 30), at(9, 30), at(10, 0)))
	assert.False(t, Overlaps(at(9, 30), at(10, 0), at(9, 0), at(9, 30)))
}

func TestOverlaps_Cases(t *testing.T) {
	tests := []struct {
		name string
		a, b TimeSlot
		want bool
	}{
		{"partial", TimeSlot{at(9, 0), at(10, 0)}, TimeSlot{at(9, 30), at(10, 30)}, true},
		{"contained", TimeSlot{at(8, 0), at(12, 0)}, TimeSlot{at(9, 15), at(9, 45)}, true},
		{"identical", TimeSlot{at(9, 0), at(10, 0)}, TimeSlot{at(9, 0), at(10, 0)}, true},
		{"disjoint", TimeSlot{at(9, 0), at(10, 0)}, TimeSlot{at(11, 0), at(11, 30)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
		})
	}
}

func TestAppointmentStatus_Transitions(t *testing.T) {
	allowed := map[[2]AppointmentStatus]bool{
		{AppointmentStatusScheduled, AppointmentStatusInProgress}: true,
		{AppointmentStatusScheduled, AppointmentStatusCancelled}:  true,
		{AppointmentStatusInProgress, AppointmentStatusCompleted}: true,
		{AppointmentStatusInProgress, AppointmentStatusCancelled}: true,
	}
	all := []AppointmentStatus{
		AppointmentStatusScheduled, AppointmentStatusInProgress,
		AppointmentStatusCompleted, AppointmentStatusCancelled,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]AppointmentStatus{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, AppointmentStatusCompleted.Terminal())
	assert.True(t, AppointmentStatusCancelled.Terminal())
	assert.False(t, AppointmentStatusScheduled.Terminal())
	assert.False(t, AppointmentStatus("pending").Valid())
}

func TestAppointment_ConflictsIgnoresInactive(t *testing.T) {
	apt := &Appointment{StartTime: at(9, 0), EndTime: at(10, 0), Status: AppointmentStatusScheduled}
	assert.True(t, apt.Conflicts(at(9, 30), at(10, 30)))

	apt.Status = AppointmentStatusCancelled
	assert.False(t, apt.Conflicts(at(9, 30), at(10, 30)))

	apt.Status = AppointmentStatusCompleted
	assert.False(t, apt.Conflicts(at(9, 30), at(10, 30)))
}

func TestWorkingHours_Window(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	start, err := ParseClock("09:00")
	require.NoError(t, err)
	end, err := ParseClock("17:30")
	require.NoError(t, err)

	hours := WorkingHours{Start: start, End: end, SlotSize: 30 * time.Minute, Location: loc}
	require.NoError(t, hours.Validate())

	// 2025-03-09 is the spring-forward day in New York.
	w := hours.Window(time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC))
	assert.Equal(t, 9, w.Start.Hour())
	assert.Equal(t, 17, w.End.Hour())
	assert.Equal(t, 30, w.End.Minute())
	assert.Equal(t, 8*time.Hour+30*time.Minute, w.Duration())
}

func TestWorkingHours_ValidateRejectsInvertedWindow(t *testing.T) {
	hours := WorkingHours{Start: Clock{17, 0}, End: Clock{9, 0}, SlotSize: time.Minute}
	assert.Error(t, hours.Validate())

	hours = WorkingHours{Start: Clock{9, 0}, End: Clock{17, 0}}
	assert.Error(t, hours.Validate())
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("08:05")
	require.NoError(t, err)
	assert.Equal(t, Clock{Hour: 8, Minute: 5}, c)
	assert.Equal(t, "08:05", c.String())

	_, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestMinutesToDuration(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
		limit   time.Duration
		want    time.Duration
		wantErr bool
	}{
		{name: "within limit", minutes: 90, limit: 8 * time.Hour, want: 90 * time.Minute},
		{name: "at limit", minutes: 480, limit: 8 * time.Hour, want: 8 * time.Hour},
		{name: "over limit", minutes: 481, limit: 8 * time.Hour, wantErr: true},
		{name: "zero", minutes: 0, wantErr: true},
		{name: "negative", minutes: -1, wantErr: true},
		{name: "no limit uses ceiling", minutes: 24 * 60, want: MaxAppointmentDuration},
		{name: "limit above ceiling", minutes: 24*60 + 1, limit: 48 * time.Hour, wantErr: true},
		{name: "wraps negative", minutes: math.MaxInt64/int(time.Minute) + 1, wantErr: true},
		{name: "wraps small positive", minutes: math.MaxInt64, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MinutesToDuration(tt.minutes, tt.limit)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
