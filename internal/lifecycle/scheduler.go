package lifecycle

import (
	"sync"
	"time"
)

// Timer 已设置的一次性定时器
type Timer interface {
	Stop() bool
}

// AfterFunc 在d之后的另一个goroutine中执行f
type AfterFunc func(d time.Duration, f func()) Timer

type armedTimer struct {
	timer Timer
	at    time.Time
	seq   uint64
}

// Scheduler 按投票ID管理关闭定时器，同一投票只保留最后一次设置的定时器
type Scheduler struct {
	mu        sync.Mutex
	timers    map[string]armedTimer
	seq       uint64
	now       func() time.Time
	afterFunc AfterFunc
}

func NewScheduler() *Scheduler {
	return NewSchedulerWithClock(time.Now, func(d time.Duration, f func()) Timer {
		return time.AfterFunc(d, f)
	})
}

// NewSchedulerWithClock 使用自定义时钟，afterFunc不能同步执行回调
func NewSchedulerWithClock(now func() time.Time, afterFunc AfterFunc) *Scheduler {
	return &Scheduler{
		timers:    make(map[string]armedTimer),
		now:       now,
		afterFunc: afterFunc,
	}
}

// Arm 在at时刻执行fire，已过期则立即执行；会替换该投票之前的定时器
func (s *Scheduler) Arm(pollID string, at time.Time, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[pollID]; ok {
		prev.timer.Stop()
	}

	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.seq++
	seq := s.seq
	timer := s.afterFunc(delay, func() {
		if s.take(pollID, seq) {
			fire()
		}
	})
	s.timers[pollID] = armedTimer{timer: timer, at: at, seq: seq}
}

// take 触发时移除自己的登记，已被替换或取消的定时器返回false
func (s *Scheduler) take(pollID string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.timers[pollID]
	if !ok || current.seq != seq {
		return false
	}
	delete(s.timers, pollID)
	return true
}

// Disarm 取消投票的定时器
func (s *Scheduler) Disarm(pollID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.timers[pollID]
	if !ok {
		return false
	}
	current.timer.Stop()
	delete(s.timers, pollID)
	return true
}

// ArmedAt 返回定时器的触发时间
func (s *Scheduler) ArmedAt(pollID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.timers[pollID]
	return current.at, ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// StopAll 停止所有定时器，用于退出
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, current := range s.timers {
		current.timer.Stop()
		delete(s.timers, id)
	}
}
