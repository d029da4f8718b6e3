package intake

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap/zaptest"

	"github.com/c0du/discord-bot-pollie/internal/lifecycle"
	"github.com/c0du/discord-bot-pollie/internal/model"
	"github.com/c0du/discord-bot-pollie/internal/repository"
)

type stubPoster struct {
	err    error
	req    model.PollRequest
	target model.Target
	calls  int
}

func (p *stubPoster) Post(ctx context.Context, req model.PollRequest, target model.Target) (*lifecycle.PostedPoll, error) {
	p.calls++
	p.req, p.target = req, target
	if p.err != nil {
		return nil, p.err
	}
	return &lifecycle.PostedPoll{Poll: &model.Poll{ID: "poll-1", ChannelID: target.ChannelID, MessageID: "msg-1"}}, nil
}

func newTestFlow(t *testing.T) (*Flow, *stubPoster, *repository.RedisRepository) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	drafts, err := repository.NewRedisRepositoryWithClient(client, time.Hour, 15*time.Minute, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewRedisRepositoryWithClient: %v", err)
	}
	t.Cleanup(func() { drafts.Close() })

	poster := &stubPoster{}
	return NewFlow(drafts, poster, zaptest.NewLogger(t)), poster, drafts
}

var testTarget = model.Target{GuildID: "g1", ChannelID: "c1", Author: model.Author{ID: "u1", Username: "alice"}}

func TestNewDraftSplitsAndDefaults(t *testing.T) {
	in := ModalInput{
		Question:             "  Lunch?  ",
		FirstChoice:          "Tea",
		SecondChoice:         " Coffee ",
		AdditionalChoices:    "Juice\n\n  \nWater\n",
		RecurrenceRandomizer: "Pizza\nSushi\n",
	}
	draft, err := NewDraft(in, testTarget, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("NewDraft: %v", err)
	}

	if draft.Question != "Lunch?" {
		t.Fatalf("question not trimmed: %q", draft.Question)
	}
	if got := strings.Join(draft.Choices, ","); got != "Tea,Coffee,Juice,Water" {
		t.Fatalf("unexpected choices %q", got)
	}
	if got := strings.Join(draft.RandomizerOptions, ","); got != "Pizza,Sushi" {
		t.Fatalf("unexpected randomizer options %q", got)
	}
	if draft.VoteMode != model.VoteModeMultiple || draft.Duration != "1m" || draft.Recurrence != model.RecurrenceNone {
		t.Fatalf("unexpected defaults: %+v", draft)
	}
	if draft.UserID != "u1" || draft.ChannelID != "c1" {
		t.Fatalf("target not captured: %+v", draft)
	}
}

func TestNewDraftRejectsInvalidInput(t *testing.T) {
	cases := map[string]ModalInput{
		"blank question": {Question: " ", FirstChoice: "a", SecondChoice: "b"},
		"one choice":     {Question: "q", FirstChoice: "a", SecondChoice: " "},
		"too many":       {Question: "q", FirstChoice: "a", SecondChoice: "b", AdditionalChoices: "c\nd\ne\nf\ng\nh\ni\nj\nk"},
	}
	for name, in := range cases {
		if _, err := NewDraft(in, testTarget, time.Now()); !errors.Is(err, lifecycle.ErrInvalidRequest) {
			t.Errorf("%s: expected ErrInvalidRequest, got %v", name, err)
		}
	}
}

func TestParseSelection(t *testing.T) {
	sel, err := ParseSelection(CustomID(KindVoteMode), []string{"single"})
	if err != nil {
		t.Fatalf("ParseSelection: %v", err)
	}
	if s, ok := sel.(VoteModeSelection); !ok || s.Mode != model.VoteModeSingle {
		t.Fatalf("unexpected selection %#v", sel)
	}

	if _, err := ParseSelection(CustomID(KindDuration), []string{"2h"}); err == nil {
		t.Fatalf("expected unknown duration to fail")
	}
	if _, err := ParseSelection(CustomID(KindSubmit), []string{"x"}); err == nil {
		t.Fatalf("buttons are not selections")
	}
	if _, err := ParseSelection("pollDuration-123", []string{"1m"}); err == nil {
		t.Fatalf("expected foreign custom id to fail")
	}
	if _, err := ParseSelection(CustomID(KindRecurrence), nil); err == nil {
		t.Fatalf("expected empty values to fail")
	}
}

func TestCustomIDsAreUnique(t *testing.T) {
	a, b := CustomID(KindSubmit), CustomID(KindSubmit)
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
	if kind, err := ParseKind(a); err != nil || kind != KindSubmit {
		t.Fatalf("ParseKind(%q) = %v, %v", a, kind, err)
	}
}

func TestFlowSelectAndSubmit(t *testing.T) {
	flow, poster, drafts := newTestFlow(t)
	ctx := context.Background()

	in := ModalInput{Question: "Lunch?", FirstChoice: "Tea", SecondChoice: "Coffee", RecurrenceRandomizer: "Pizza\nSushi"}
	if _, err := flow.Begin(ctx, in, testTarget); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	steps := []struct {
		kind  Kind
		value string
	}{
		{KindVoteMode, "single"},
		{KindDuration, "1h"},
		{KindRecurrence, "1d"},
	}
	for _, step := range steps {
		if _, err := flow.Select(ctx, "u1", CustomID(step.kind), []string{step.value}); err != nil {
			t.Fatalf("Select %s: %v", step.kind, err)
		}
	}

	posted, err := flow.Submit(ctx, "u1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if posted.Poll.MessageID != "msg-1" {
		t.Fatalf("unexpected posted poll %+v", posted.Poll)
	}
	if poster.req.VoteMode != model.VoteModeSingle || poster.req.Duration != "1h" || poster.req.Recurrence != "1d" {
		t.Fatalf("selections not forwarded: %+v", poster.req)
	}
	if poster.target != testTarget {
		t.Fatalf("unexpected target %+v", poster.target)
	}

	if d, err := drafts.LoadDraft(ctx, "u1"); err != nil || d != nil {
		t.Fatalf("draft should be deleted after submit, got %+v, %v", d, err)
	}
	if _, err := flow.Submit(ctx, "u1"); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("expected ErrNoDraft on resubmit, got %v", err)
	}
}

func TestFlowSubmitFailureKeepsDraft(t *testing.T) {
	flow, poster, drafts := newTestFlow(t)
	ctx := context.Background()

	in := ModalInput{Question: "Lunch?", FirstChoice: "Tea", SecondChoice: "Coffee"}
	if _, err := flow.Begin(ctx, in, testTarget); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	poster.err = lifecycle.ErrInvalidTarget
	if _, err := flow.Submit(ctx, "u1"); !errors.Is(err, lifecycle.ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	if d, err := drafts.LoadDraft(ctx, "u1"); err != nil || d == nil {
		t.Fatalf("draft should survive a failed submit, got %+v, %v", d, err)
	}
}

func TestFlowDraftsArePerUser(t *testing.T) {
	flow, _, _ := newTestFlow(t)
	ctx := context.Background()

	in := ModalInput{Question: "Lunch?", FirstChoice: "Tea", SecondChoice: "Coffee"}
	if _, err := flow.Begin(ctx, in, testTarget); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if _, err := flow.Select(ctx, "u2", CustomID(KindVoteMode), []string{"single"}); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("expected ErrNoDraft for another user, got %v", err)
	}

	if err := flow.Cancel(ctx, "u1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := flow.Select(ctx, "u1", CustomID(KindVoteMode), []string{"single"}); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("expected ErrNoDraft after cancel, got %v", err)
	}
}
