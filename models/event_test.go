package models

import (
	"testing"
	"time"
)

func TestCheckInStateAt(t *testing.T) {
	opens := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	event := Event{
		CheckInOpens:  opens,
		CheckInCloses: opens.Add(60 * time.Minute),
	}

	cases := []struct {
		name string
		now  time.Time
		want CheckInState
	}{
		{"one minute before open", opens.Add(-1 * time.Minute), CheckInNotOpen},
		{"exactly at open", opens, CheckInActive},
		{"midway through window", opens.Add(30 * time.Minute), CheckInActive},
		{"one second before close", opens.Add(60*time.Minute - time.Second), CheckInActive},
		{"exactly at close", opens.Add(60 * time.Minute), CheckInClosed},
		{"well after close", opens.Add(3 * time.Hour), CheckInClosed},
	}

	for _, tc := range cases {
		if got := event.CheckInStateAt(tc.now); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}
