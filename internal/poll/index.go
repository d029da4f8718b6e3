package poll

import (
	"sync"

	"github.com/c0du/discord-bot-pollie/internal/model"
)

// Entry 活跃投票的投票配置
type Entry struct {
	VoteMode model.VoteMode
}

// Index 活跃投票索引：消息ID -> 投票配置，仅存在于进程内存
type Index struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewIndex 创建空索引
func NewIndex() *Index {
	return &Index{entries: make(map[string]Entry)}
}

// Register 登记消息
func (idx *Index) Register(messageID string, mode model.VoteMode) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[messageID] = Entry{VoteMode: mode}
}

// Lookup 查询消息对应的配置
func (idx *Index) Lookup(messageID string) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[messageID]
	return e, ok
}

// Remove 移除消息
func (idx *Index) Remove(messageID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, messageID)
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Reset 清空索引（重新加载前使用）
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = make(map[string]Entry)
}
