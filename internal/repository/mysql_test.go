package repository

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap/zaptest"

	"github.com/c0du/discord-bot-pollie/internal/model"
)

var pollRowColumns = []string{
	"id", "guild_id", "channel_id", "message_id", "question", "options", "randomizer_options",
	"vote_mode", "author", "start_date", "end_date", "duration", "recurrence", "next_run",
}

func newMockRepo(t *testing.T) (*MySQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewMySQLRepositoryWithDB(db, nil, zaptest.NewLogger(t)), mock
}

func TestCreateAssignsID(t *testing.T) {
	repo, mock := newMockRepo(t)
	start := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO polls (" + pollColumns + ")")).
		WithArgs(sqlmock.AnyArg(), "g1", "c1", "m1", "Lunch?", []byte(`["Tea","Coffee"]`), []byte(`[]`),
			"single", sqlmock.AnyArg(), start, start.Add(time.Minute), "1m", "none", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	poll := &model.Poll{
		GuildID:    "g1",
		ChannelID:  "c1",
		MessageID:  "m1",
		Question:   "Lunch?",
		Options:    []string{"Tea", "Coffee"},
		VoteMode:   model.VoteModeSingle,
		Author:     model.Author{ID: "u1", Username: "alice"},
		StartDate:  start,
		EndDate:    start.Add(time.Minute),
		Duration:   "1m",
		Recurrence: model.RecurrenceNone,
	}
	if err := repo.Create(context.Background(), poll); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if poll.ID == "" {
		t.Fatalf("expected generated id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	start := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	next := start.Add(2 * time.Minute)

	rows := sqlmock.NewRows(pollRowColumns).AddRow(
		"p1", "g1", "c1", "m1", "Lunch?", []byte(`["Tea","Coffee"]`), []byte(`["Tea","Coffee","Juice"]`),
		"single", []byte(`{"id":"u1","username":"alice"}`), start, start.Add(time.Minute), "1m", "1m", next,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM polls WHERE id = ?")).WithArgs("p1").WillReturnRows(rows)

	poll, err := repo.FindByID(context.Background(), "p1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if poll.ID != "p1" || len(poll.Options) != 2 || len(poll.RandomizerOptions) != 3 {
		t.Fatalf("unexpected poll %+v", poll)
	}
	if poll.VoteMode != model.VoteModeSingle || poll.Author.Username != "alice" {
		t.Fatalf("unexpected mode/author %+v", poll)
	}
	if poll.NextRun == nil || !poll.NextRun.Equal(next) {
		t.Fatalf("unexpected next run %v", poll.NextRun)
	}
}

func TestFindByIDMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM polls WHERE id = ?")).WithArgs("gone").
		WillReturnRows(sqlmock.NewRows(pollRowColumns))

	poll, err := repo.FindByID(context.Background(), "gone")
	if err != nil || poll != nil {
		t.Fatalf("expected nil, nil; got %v, %v", poll, err)
	}
}

func TestFindAllWithEndDateAfter(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := time.Date(2026, 10, 15, 11, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(pollRowColumns).
		AddRow("p1", "g1", "c1", "m1", "A?", []byte(`["x","y"]`), []byte(`[]`), "multiple", []byte(`{"id":"u1"}`),
			cutoff, cutoff.Add(time.Hour), "1h", "none", nil).
		AddRow("p2", "g1", "c2", "m2", "B?", []byte(`["x","y"]`), []byte(`[]`), "single", []byte(`{"id":"u2"}`),
			cutoff, cutoff.Add(2*time.Hour), "1h", "none", nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE end_date > ?")).WithArgs(cutoff).WillReturnRows(rows)

	polls, err := repo.FindAllWithEndDateAfter(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("FindAllWithEndDateAfter: %v", err)
	}
	if len(polls) != 2 || polls[0].ID != "p1" || polls[1].NextRun != nil {
		t.Fatalf("unexpected polls %+v", polls)
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE polls SET")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &model.Poll{ID: "gone", Options: []string{"a", "b"}})
	if !errors.Is(err, ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound, got %v", err)
	}
}

func TestFoundRowsDSN(t *testing.T) {
	for _, dsn := range []string{
		"pollie:pollie@tcp(127.0.0.1:3306)/pollie?parseTime=true&loc=UTC",
		"pollie:pollie@tcp(127.0.0.1:3306)/pollie?parseTime=true&clientFoundRows=false",
	} {
		got, err := foundRowsDSN(dsn)
		if err != nil {
			t.Fatalf("foundRowsDSN(%q) error: %v", dsn, err)
		}
		if !strings.Contains(got, "clientFoundRows=true") {
			t.Fatalf("expected clientFoundRows in %q", got)
		}
		if !strings.Contains(got, "parseTime=true") {
			t.Fatalf("expected parseTime to survive in %q", got)
		}
	}

	if _, err := foundRowsDSN("pollie@tcp(127.0.0.1:3306"); err == nil {
		t.Fatalf("expected malformed DSN to fail")
	}
}

func TestDeleteByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM polls WHERE id = ?")).WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.DeleteByID(context.Background(), "p1"); err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
}

func TestSaveAndListResults(t *testing.T) {
	repo, mock := newMockRepo(t)
	closedAt := time.Date(2026, 10, 15, 12, 1, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO poll_results")).
		WithArgs("p1", "m1", "Lunch?", []byte(`[{"option":"Tea","votes":3}]`), closedAt).
		WillReturnResult(sqlmock.NewResult(7, 1))

	result := &model.PollResult{
		PollID:    "p1",
		MessageID: "m1",
		Question:  "Lunch?",
		Tallies:   []model.OptionTally{{Option: "Tea", Votes: 3}},
		ClosedAt:  closedAt,
	}
	if err := repo.SaveResult(context.Background(), result); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if result.ID != 7 {
		t.Fatalf("expected id 7, got %d", result.ID)
	}

	rows := sqlmock.NewRows([]string{"id", "poll_id", "message_id", "question", "tallies", "closed_at"}).
		AddRow(int64(7), "p1", "m1", "Lunch?", []byte(`[{"option":"Tea","votes":3}]`), closedAt)
	mock.ExpectQuery(regexp.QuoteMeta("FROM poll_results")).WithArgs("p1", 10).WillReturnRows(rows)

	results, err := repo.ListResults(context.Background(), "p1", 10)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 1 || results[0].Tallies[0].Votes != 3 {
		t.Fatalf("unexpected results %+v", results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateSchema(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS polls")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS poll_results")).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.CreateSchema(context.Background()); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
