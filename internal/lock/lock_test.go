package lock

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap/zaptest"
)

func TestLocalLockExclusive(t *testing.T) {
	l := NewLocalLock()
	ok, err := l.AcquireLock("poll:close:1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed: %v", err)
	}
	if ok, _ := l.AcquireLock("poll:close:1", time.Minute); ok {
		t.Fatalf("second acquire must fail while held")
	}
	if err := l.ReleaseLock("poll:close:1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := l.AcquireLock("poll:close:1", time.Minute); !ok {
		t.Fatalf("acquire after release must succeed")
	}
	if err := l.ReleaseLock("missing"); err == nil {
		t.Fatalf("expected error releasing unknown lock")
	}
}

func TestLocalLockExpires(t *testing.T) {
	l := NewLocalLock()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if ok, _ := l.AcquireLock("a", time.Second); !ok {
		t.Fatalf("acquire failed")
	}
	now = now.Add(2 * time.Second)
	if ok, _ := l.RefreshLock("a", time.Second); ok {
		t.Fatalf("refresh of expired lock must fail")
	}
	if ok, _ := l.AcquireLock("a", time.Second); !ok {
		t.Fatalf("expired lock must be acquirable")
	}
}

func newTestRedLock(t *testing.T, nodes int) (*RedLock, []*miniredis.Miniredis) {
	t.Helper()
	var servers []*miniredis.Miniredis
	var clients []*redis.Client
	var addrs []string
	for i := 0; i < nodes; i++ {
		s := miniredis.RunT(t)
		servers = append(servers, s)
		addrs = append(addrs, s.Addr())
		clients = append(clients, redis.NewClient(&redis.Options{Addr: s.Addr()}))
	}
	rl := NewRedLockWithClients(clients, addrs, 1, zaptest.NewLogger(t))
	t.Cleanup(func() { rl.Close() })
	return rl, servers
}

func TestRedLockAcquireRelease(t *testing.T) {
	rl, servers := newTestRedLock(t, 3)

	ok, err := rl.AcquireLock("pollie:close:p1", 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	for _, s := range servers {
		if !s.Exists("pollie:close:p1") {
			t.Fatalf("lock key missing on node %s", s.Addr())
		}
	}
	if ok, _ := rl.AcquireLock("pollie:close:p1", 10*time.Second); ok {
		t.Fatalf("re-acquire while held must fail")
	}
	if ok, err := rl.RefreshLock("pollie:close:p1", 20*time.Second); err != nil || !ok {
		t.Fatalf("refresh: ok=%v err=%v", ok, err)
	}
	if err := rl.ReleaseLock("pollie:close:p1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	for _, s := range servers {
		if s.Exists("pollie:close:p1") {
			t.Fatalf("lock key still present on node %s", s.Addr())
		}
	}
}

func TestRedLockRespectsOtherHolder(t *testing.T) {
	rl, servers := newTestRedLock(t, 3)
	// 另一个实例已在多数节点持有锁
	servers[0].Set("pollie:close:p2", "someone-else")
	servers[1].Set("pollie:close:p2", "someone-else")

	if ok, _ := rl.AcquireLock("pollie:close:p2", 10*time.Second); ok {
		t.Fatalf("must not acquire without quorum")
	}
	if got, _ := servers[0].Get("pollie:close:p2"); got != "someone-else" {
		t.Fatalf("foreign lock was overwritten: %q", got)
	}
	if servers[2].Exists("pollie:close:p2") {
		t.Fatalf("partial lock must be cleaned up")
	}
}
