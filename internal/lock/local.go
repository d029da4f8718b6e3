package lock

import (
	"fmt"
	"sync"
	"time"
)

// LocalLock 进程内锁，单实例部署和测试使用
type LocalLock struct {
	mu    sync.Mutex
	now   func() time.Time
	locks map[string]time.Time // 锁名 -> 过期时间
}

func NewLocalLock() *LocalLock {
	return &LocalLock{now: time.Now, locks: make(map[string]time.Time)}
}

func (l *LocalLock) AcquireLock(lockName string, timeout time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiresAt, held := l.locks[lockName]; held && l.now().Before(expiresAt) {
		return false, nil
	}
	l.locks[lockName] = l.now().Add(timeout)
	return true, nil
}

func (l *LocalLock) RefreshLock(lockName string, timeout time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	expiresAt, held := l.locks[lockName]
	if !held || !l.now().Before(expiresAt) {
		delete(l.locks, lockName)
		return false, nil
	}
	l.locks[lockName] = l.now().Add(timeout)
	return true, nil
}

func (l *LocalLock) ReleaseLock(lockName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.locks[lockName]; !held {
		return fmt.Errorf("锁 %s 不存在或未持有", lockName)
	}
	delete(l.locks, lockName)
	return nil
}

func (l *LocalLock) ReleaseAllLocks() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locks = make(map[string]time.Time)
}

func (l *LocalLock) Close() error {
	l.ReleaseAllLocks()
	return nil
}
