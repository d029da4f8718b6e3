package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap/zaptest"

	"github.com/c0du/discord-bot-pollie/internal/model"
)

func newTestRedis(t *testing.T) (*RedisRepository, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo, err := NewRedisRepositoryWithClient(client, time.Hour, 15*time.Minute, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewRedisRepositoryWithClient: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo, mr, client
}

func TestPollCacheRoundTrip(t *testing.T) {
	repo, mr, _ := newTestRedis(t)
	ctx := context.Background()

	if _, hit, err := repo.GetPoll(ctx, "p1"); err != nil || hit {
		t.Fatalf("expected miss, hit=%v err=%v", hit, err)
	}

	poll := &model.Poll{ID: "p1", Question: "Lunch?", Options: []string{"Tea", "Coffee"}}
	version, err := repo.PollVersion(ctx, "p1")
	if err != nil || version != 0 {
		t.Fatalf("expected version 0, got %d, %v", version, err)
	}
	if stored, err := repo.SetPollIfVersion(ctx, poll, version); err != nil || !stored {
		t.Fatalf("SetPollIfVersion: stored=%v err=%v", stored, err)
	}
	if ttl := mr.TTL(PollKey + "p1"); ttl != time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	got, hit, err := repo.GetPoll(ctx, "p1")
	if err != nil || !hit || got.Question != "Lunch?" || len(got.Options) != 2 {
		t.Fatalf("unexpected cached poll %+v hit=%v err=%v", got, hit, err)
	}

	if err := repo.InvalidatePoll(ctx, "p1"); err != nil {
		t.Fatalf("InvalidatePoll: %v", err)
	}
	if mr.Exists(PollKey + "p1") {
		t.Fatalf("cache entry must be gone")
	}

	// 失效前读到的版本号不能再回填
	if stored, err := repo.SetPollIfVersion(ctx, poll, version); err != nil || stored {
		t.Fatalf("stale version must not be stored: stored=%v err=%v", stored, err)
	}
	if version, _ = repo.PollVersion(ctx, "p1"); version != 1 {
		t.Fatalf("expected version 1 after invalidation, got %d", version)
	}
	if stored, err := repo.SetPollIfVersion(ctx, poll, version); err != nil || !stored {
		t.Fatalf("current version must be stored: stored=%v err=%v", stored, err)
	}
}

func TestDraftLoadRefreshesTTL(t *testing.T) {
	repo, mr, _ := newTestRedis(t)
	ctx := context.Background()

	draft := &model.PollDraft{UserID: "u1", Question: "Lunch?", Choices: []string{"Tea", "Coffee"}}
	if err := repo.SaveDraft(ctx, draft); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	mr.FastForward(10 * time.Minute)
	if ttl := mr.TTL(DraftKey + "u1"); ttl != 5*time.Minute {
		t.Fatalf("unexpected ttl before load %v", ttl)
	}

	got, err := repo.LoadDraft(ctx, "u1")
	if err != nil || got == nil || got.Question != "Lunch?" {
		t.Fatalf("LoadDraft: %+v, %v", got, err)
	}
	if ttl := mr.TTL(DraftKey + "u1"); ttl != 15*time.Minute {
		t.Fatalf("load must refresh ttl, got %v", ttl)
	}

	mr.FastForward(16 * time.Minute)
	if got, err := repo.LoadDraft(ctx, "u1"); err != nil || got != nil {
		t.Fatalf("expired draft must load as nil, got %+v, %v", got, err)
	}
}

func TestLoadDraftReloadsFlushedScript(t *testing.T) {
	repo, _, client := newTestRedis(t)
	ctx := context.Background()

	if err := repo.SaveDraft(ctx, &model.PollDraft{UserID: "u2", Question: "Q"}); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	if err := client.ScriptFlush(ctx).Err(); err != nil {
		t.Fatalf("ScriptFlush: %v", err)
	}

	got, err := repo.LoadDraft(ctx, "u2")
	if err != nil || got == nil || got.Question != "Q" {
		t.Fatalf("LoadDraft after flush: %+v, %v", got, err)
	}

	if err := repo.DeleteDraft(ctx, "u2"); err != nil {
		t.Fatalf("DeleteDraft: %v", err)
	}
	if got, _ := repo.LoadDraft(ctx, "u2"); got != nil {
		t.Fatalf("draft must be deleted")
	}
}

type stubPollStore struct {
	polls   map[string]*model.Poll
	finds   int
	updates int
	fail    error

	// afterFind 读出记录后、返回前执行一次，用来模拟并发写入
	afterFind func()
}

func (s *stubPollStore) Create(ctx context.Context, poll *model.Poll) error {
	s.polls[poll.ID] = poll
	return nil
}

func (s *stubPollStore) FindByID(ctx context.Context, id string) (*model.Poll, error) {
	s.finds++
	p, ok := s.polls[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	if hook := s.afterFind; hook != nil {
		s.afterFind = nil
		hook()
	}
	return &cp, nil
}

func (s *stubPollStore) FindAllWithEndDateAfter(ctx context.Context, t time.Time) ([]*model.Poll, error) {
	return nil, nil
}

func (s *stubPollStore) FindAllWithEndDateBefore(ctx context.Context, t time.Time) ([]*model.Poll, error) {
	return nil, nil
}

func (s *stubPollStore) Update(ctx context.Context, poll *model.Poll) error {
	if s.fail != nil {
		return s.fail
	}
	s.updates++
	s.polls[poll.ID] = poll
	return nil
}

func (s *stubPollStore) DeleteByID(ctx context.Context, id string) error {
	delete(s.polls, id)
	return nil
}

func TestCachedPollStore(t *testing.T) {
	cache, mr, _ := newTestRedis(t)
	backing := &stubPollStore{polls: map[string]*model.Poll{}}
	store := NewCachedPollStore(backing, cache, zaptest.NewLogger(t))
	ctx := context.Background()

	if err := store.Create(ctx, &model.Poll{ID: "p1", MessageID: "m1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		p, err := store.FindByID(ctx, "p1")
		if err != nil || p == nil || p.MessageID != "m1" {
			t.Fatalf("FindByID: %+v, %v", p, err)
		}
	}
	if backing.finds != 1 {
		t.Fatalf("expected a single backing read, got %d", backing.finds)
	}

	if err := store.Update(ctx, &model.Poll{ID: "p1", MessageID: "m2"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if mr.Exists(PollKey + "p1") {
		t.Fatalf("update must invalidate cache")
	}
	if p, _ := store.FindByID(ctx, "p1"); p.MessageID != "m2" {
		t.Fatalf("expected fresh record after update, got %+v", p)
	}

	if err := store.DeleteByID(ctx, "p1"); err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
	if p, err := store.FindByID(ctx, "p1"); err != nil || p != nil {
		t.Fatalf("expected nil after delete, got %+v, %v", p, err)
	}
	if mr.Exists(PollKey + "p1") {
		t.Fatalf("missing records must not be cached")
	}
}

func TestCachedPollStoreUpdateError(t *testing.T) {
	cache, _, _ := newTestRedis(t)
	boom := errors.New("db down")
	backing := &stubPollStore{polls: map[string]*model.Poll{}, fail: boom}
	store := NewCachedPollStore(backing, cache, zaptest.NewLogger(t))

	if err := store.Update(context.Background(), &model.Poll{ID: "p1"}); !errors.Is(err, boom) {
		t.Fatalf("expected backing error, got %v", err)
	}
}

func TestCachedPollStoreSkipsStaleFill(t *testing.T) {
	cache, _, _ := newTestRedis(t)
	backing := &stubPollStore{polls: map[string]*model.Poll{
		"p1": {ID: "p1", MessageID: "old-msg"},
	}}
	store := NewCachedPollStore(backing, cache, zaptest.NewLogger(t))
	ctx := context.Background()

	// 读取拿到旧行之后、回填之前，下一轮把记录更新为新消息
	backing.afterFind = func() {
		if err := store.Update(ctx, &model.Poll{ID: "p1", MessageID: "new-msg"}); err != nil {
			t.Errorf("Update: %v", err)
		}
	}
	if p, err := store.FindByID(ctx, "p1"); err != nil || p.MessageID != "old-msg" {
		t.Fatalf("first read should see the row it loaded, got %+v, %v", p, err)
	}

	if cached, hit, _ := cache.GetPoll(ctx, "p1"); hit {
		t.Fatalf("stale row written back to cache: %+v", cached)
	}
	p, err := store.FindByID(ctx, "p1")
	if err != nil || p.MessageID != "new-msg" {
		t.Fatalf("expected new-msg after concurrent update, got %+v, %v", p, err)
	}
}
