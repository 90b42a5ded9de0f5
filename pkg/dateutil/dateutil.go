package dateutil

import "time"

// All daily bucketing uses a single canonical boundary: UTC midnight.
const Layout = "2006-01-02"

func Today() string {
	return time.Now().UTC().Format(Layout)
}

func Yesterday(date string) string {
	d, err := time.Parse(Layout, date)
	if err != nil {
		return ""
	}
	return d.AddDate(0, 0, -1).Format(Layout)
}

// DayRange returns the [start, end) window of the given UTC date.
func DayRange(date string) (time.Time, time.Time, error) {
	start, err := time.Parse(Layout, date)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}
