package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"PT10S", 10 * time.Second},
		{"PT5M", 5 * time.Minute},
		{"PT2H", 2 * time.Hour},
		{"P1D", 24 * time.Hour},
		{"P1DT2H30M", 26*time.Hour + 30*time.Minute},
		{"P2DT1H1M1S", 49*time.Hour + time.Minute + time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseISODuration(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseISODurationInvalid(t *testing.T) {
	for _, input := range []string{"", "P", "PT", "10S", "P1Y", "P1M", "PT1.5S", "one day"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseISODuration(input)
			assert.ErrorIs(t, err, ErrInvalidDuration)
		})
	}
}

func TestScheduleDueDelay(t *testing.T) {
	updatedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	schedule := Schedule{Type: ScheduleTypeDelay, Duration: "PT10S", TimeZone: "UTC"}

	due, err := schedule.Due(updatedAt, updatedAt.Add(5*time.Second))
	require.NoError(t, err)
	assert.False(t, due)

	due, err = schedule.Due(updatedAt, updatedAt.Add(10*time.Second))
	require.NoError(t, err)
	assert.True(t, due)

	due, err = schedule.Due(updatedAt, updatedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, due)
}

func TestScheduleDueCron(t *testing.T) {
	// Daily at 03:00; the first activation after updatedAt is 03:00 next day.
	updatedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	schedule := Schedule{Type: ScheduleTypeCron, Expression: "0 3 * * *"}

	due, err := schedule.Due(updatedAt, updatedAt.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, due)

	due, err = schedule.Due(updatedAt, time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, due)
}

func TestScheduleDueErrors(t *testing.T) {
	updatedAt := time.Now()

	_, err := (&Schedule{Type: ScheduleTypeDelay, Duration: "nope"}).Due(updatedAt, updatedAt)
	assert.Error(t, err)

	_, err = (&Schedule{Type: ScheduleTypeDelay, Duration: "PT1S", TimeZone: "Mars/Olympus"}).Due(updatedAt, updatedAt)
	assert.Error(t, err)

	_, err = (&Schedule{Type: "interval"}).Due(updatedAt, updatedAt)
	assert.Error(t, err)
}
