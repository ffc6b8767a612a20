package utils

import "time"

// CheckinWindow is how far on either side of the event start check-in is
// allowed. The window is anchored to the start date, not the end date.
const CheckinWindow = 24 * time.Hour

// WithinCheckinWindow reports whether now falls inside the permitted
// check-in range around the event start. Both boundaries are inclusive.
func WithinCheckinWindow(now, eventStart time.Time) bool {
	opens := eventStart.Add(-CheckinWindow)
	closes := eventStart.Add(CheckinWindow)
	return !now.Before(opens) && !now.After(closes)
}

// DateComponent reduces a timestamp to its UTC calendar date. The QR
// signature binds to this component of the stored issue time.
func DateComponent(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
