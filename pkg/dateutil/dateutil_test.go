package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestYesterday(t *testing.T) {
	require.Equal(t, "2025-02-28", Yesterday("2025-03-01"))
	require.Equal(t, "2024-12-31", Yesterday("2025-01-01"))
	require.Equal(t, "2024-02-29", Yesterday("2024-03-01"))
	require.Equal(t, "", Yesterday("garbage"))
}

func TestDayRange(t *testing.T) {
	start, end, err := DayRange("2025-03-01")
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), end)

	_, _, err = DayRange("01-03-2025")
	require.Error(t, err)
}

func TestTodayLayout(t *testing.T) {
	_, err := time.Parse(Layout, Today())
	require.NoError(t, err)
}
