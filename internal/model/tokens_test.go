package model

import (
	"testing"
	"time"
)

func TestDurationToMilliseconds(t *testing.T) {
	cases := map[string]int64{
		"1m":      60000,
		"5m":      300000,
		"10m":     600000,
		"1h":      3600000,
		"1d":      86400000,
		"2w":      60000,
		"":        60000,
		"forever": 60000,
	}
	for token, want := range cases {
		if got := DurationToMilliseconds(token); got != want {
			t.Errorf("DurationToMilliseconds(%q) = %d, want %d", token, got, want)
		}
	}
}

func TestValidTokens(t *testing.T) {
	for _, tok := range DurationTokens {
		if !ValidDuration(tok) {
			t.Errorf("duration %q should be valid", tok)
		}
	}
	for _, tok := range RecurrenceTokens {
		if !ValidRecurrence(tok) {
			t.Errorf("recurrence %q should be valid", tok)
		}
	}
	if ValidDuration("3m") || ValidRecurrence("10m") || ValidRecurrence("") {
		t.Fatalf("unexpected token accepted")
	}
}

func TestNextRun(t *testing.T) {
	end := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if NextRun(end, RecurrenceNone) != nil {
		t.Fatalf("expected nil next run for none")
	}
	next := NextRun(end, "1h")
	if next == nil || !next.Equal(end.Add(time.Hour)) {
		t.Fatalf("unexpected next run %v", next)
	}
}

func TestPollRecurring(t *testing.T) {
	p := &Poll{Recurrence: "1m", RandomizerOptions: []string{"a"}}
	if !p.Recurring() {
		t.Fatalf("expected recurring")
	}
	p.RandomizerOptions = nil
	if p.Recurring() {
		t.Fatalf("empty pool must not recur")
	}
	p.RandomizerOptions = []string{"a"}
	p.Recurrence = RecurrenceNone
	if p.Recurring() {
		t.Fatalf("none must not recur")
	}
}
