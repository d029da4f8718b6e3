package poll

import (
	"math/rand"
	"sync"
	"time"
)

// MaxRecurrenceOptions 每轮从候选池抽取的最大选项数
const MaxRecurrenceOptions = 6

// Selector 为下一轮重复投票抽取选项
type Selector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSelector 创建选项选择器
func NewSelector() *Selector {
	return NewSelectorWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewSelectorWithSource 使用指定随机源，便于测试
func NewSelectorWithSource(src rand.Source) *Selector {
	return &Selector{rnd: rand.New(src)}
}

// Select 对候选池做均匀洗牌并截取前6个，不修改原切片
func (s *Selector) Select(pool []string) []string {
	shuffled := make([]string, len(pool))
	copy(shuffled, pool)

	s.mu.Lock()
	s.rnd.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	s.mu.Unlock()

	if len(shuffled) > MaxRecurrenceOptions {
		shuffled = shuffled[:MaxRecurrenceOptions]
	}
	return shuffled
}
