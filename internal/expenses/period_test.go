package expenses

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodRange(t *testing.T) {
	moscow, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	// A Wednesday.
	now := time.Date(2024, 12, 4, 15, 30, 0, 0, moscow)

	t.Run("explicit range wins over preset", func(t *testing.T) {
		start, end, err := PeriodRange(moscow, "2024-11-01", "2024-11-03", PeriodYear, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 11, 1, 0, 0, 0, 0, moscow).UnixMilli(), start)
		assert.Equal(t, time.Date(2024, 11, 3, 23, 59, 59, int(time.Second-time.Millisecond), moscow).UnixMilli(), end)
	})

	t.Run("day", func(t *testing.T) {
		start, end, err := PeriodRange(moscow, "", "", PeriodDay, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 12, 4, 0, 0, 0, 0, moscow).UnixMilli(), start)
		assert.Greater(t, end, start)
	})

	t.Run("week starts on monday", func(t *testing.T) {
		start, _, err := PeriodRange(moscow, "", "", PeriodWeek, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 12, 2, 0, 0, 0, 0, moscow).UnixMilli(), start)
	})

	t.Run("month covers the calendar month", func(t *testing.T) {
		start, end, err := PeriodRange(moscow, "", "", PeriodMonth, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, moscow).UnixMilli(), start)
		assert.Equal(t, time.Date(2024, 12, 31, 23, 59, 59, int(time.Second-time.Millisecond), moscow).UnixMilli(), end)
	})

	t.Run("3month reaches two months back", func(t *testing.T) {
		start, _, err := PeriodRange(moscow, "", "", Period3Month, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 10, 1, 0, 0, 0, 0, moscow).UnixMilli(), start)
	})

	t.Run("empty period defaults to month", func(t *testing.T) {
		start, _, err := PeriodRange(moscow, "", "", "", now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, moscow).UnixMilli(), start)
	})

	t.Run("unsupported period errors", func(t *testing.T) {
		_, _, err := PeriodRange(moscow, "", "", "decade", now)
		require.Error(t, err)
	})

	t.Run("bad explicit date errors", func(t *testing.T) {
		_, _, err := PeriodRange(moscow, "01.12.2024", "2024-12-02", "", now)
		require.Error(t, err)
	})
}
