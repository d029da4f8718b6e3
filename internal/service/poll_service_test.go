package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/c0du/discord-bot-pollie/internal/model"
)

type stubPolls struct {
	polls []*model.Poll
	since time.Time
}

func (s *stubPolls) FindByID(ctx context.Context, id string) (*model.Poll, error) {
	for _, p := range s.polls {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (s *stubPolls) FindAllWithEndDateAfter(ctx context.Context, t time.Time) ([]*model.Poll, error) {
	s.since = t
	return s.polls, nil
}

type stubResults struct {
	saved     []*model.PollResult
	lastLimit int
	err       error
}

func (s *stubResults) SaveResult(ctx context.Context, r *model.PollResult) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, r)
	return nil
}

func (s *stubResults) ListResults(ctx context.Context, pollID string, limit int) ([]*model.PollResult, error) {
	s.lastLimit = limit
	return s.saved, nil
}

func TestProcessPollEventArchivesClosedOnly(t *testing.T) {
	results := &stubResults{}
	svc := NewPollService(&stubPolls{}, results, zaptest.NewLogger(t))
	ctx := context.Background()
	closedAt := time.Date(2026, 10, 15, 12, 1, 0, 0, time.UTC)

	for _, e := range []*model.PollEvent{
		{Type: model.EventPosted, PollID: "p1", MessageID: "m1"},
		{Type: model.EventClosed, PollID: "", MessageID: "m1"},
		{Type: model.EventClosed, PollID: "p1", MessageID: "m1", Question: "Lunch?", OccurredAt: closedAt,
			Tallies: []model.OptionTally{{Option: "Tea", Votes: 3}, {Option: "Coffee", Votes: 0}}},
	} {
		if err := svc.ProcessPollEvent(ctx, e); err != nil {
			t.Fatalf("ProcessPollEvent(%s): %v", e.Type, err)
		}
	}

	if len(results.saved) != 1 {
		t.Fatalf("expected one archived result, got %d", len(results.saved))
	}
	got := results.saved[0]
	if got.PollID != "p1" || !got.ClosedAt.Equal(closedAt) || got.Tallies[0].Votes != 3 {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestProcessPollEventPropagatesStoreError(t *testing.T) {
	results := &stubResults{err: errors.New("db down")}
	svc := NewPollService(&stubPolls{}, results, zaptest.NewLogger(t))

	err := svc.ProcessPollEvent(context.Background(), &model.PollEvent{Type: model.EventClosed, PollID: "p1", MessageID: "m1"})
	if err == nil {
		t.Fatalf("expected error so the consumer retries")
	}
}

func TestResultsClampsLimit(t *testing.T) {
	results := &stubResults{}
	svc := NewPollService(&stubPolls{}, results, zaptest.NewLogger(t))
	ctx := context.Background()

	cases := map[int]int{0: defaultResultLimit, -5: defaultResultLimit, 5: 5, 1000: maxResultLimit}
	for in, want := range cases {
		if _, err := svc.Results(ctx, "p1", in); err != nil {
			t.Fatalf("Results: %v", err)
		}
		if results.lastLimit != want {
			t.Fatalf("limit %d: got %d, want %d", in, results.lastLimit, want)
		}
	}
	if _, err := svc.Results(ctx, "", 5); err == nil {
		t.Fatalf("expected error for empty poll id")
	}
}

func TestActivePollsUsesCurrentTime(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	polls := &stubPolls{polls: []*model.Poll{{ID: "p1"}}}
	svc := NewPollService(polls, &stubResults{}, zaptest.NewLogger(t))
	svc.now = func() time.Time { return now }

	active, err := svc.ActivePolls(context.Background())
	if err != nil || len(active) != 1 {
		t.Fatalf("ActivePolls: %v %v", active, err)
	}
	if !polls.since.Equal(now) {
		t.Fatalf("expected query from now, got %v", polls.since)
	}

	if p, err := svc.GetPoll(context.Background(), "missing"); err != nil || p != nil {
		t.Fatalf("expected nil for missing poll")
	}
}
