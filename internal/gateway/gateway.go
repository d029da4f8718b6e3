// Package gateway 聊天平台抽象，投票生命周期只通过这里访问消息
package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 频道、消息或反应已不存在
var ErrNotFound = errors.New("gateway: resource not found")

// Channel 已解析的消息目标频道
type Channel struct {
	ID      string
	GuildID string
	Name    string
}

// Reaction 消息上某个表情的总数
type Reaction struct {
	Symbol string
	Count  int
}

// Message 已发送的消息，附带获取时的反应计数
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	Reactions []Reaction
}

// ReactionCount 返回表情的计数，没有该表情时返回0
func (m *Message) ReactionCount(symbol string) int {
	for _, r := range m.Reactions {
		if r.Symbol == symbol {
			return r.Count
		}
	}
	return 0
}

// HasReaction 消息上是否存在该表情
func (m *Message) HasReaction(symbol string) bool {
	for _, r := range m.Reactions {
		if r.Symbol == symbol {
			return true
		}
	}
	return false
}

// Content 与平台无关的嵌入式消息内容
type Content struct {
	Title       string
	Description string
	Color       int
	Footer      string
	AuthorName  string
	AuthorIcon  string
	Timestamp   time.Time
}

// Gateway 投票生命周期使用的聊天操作
type Gateway interface {
	FetchChannel(ctx context.Context, channelID string) (*Channel, error)
	SendMessage(ctx context.Context, channelID string, content Content) (*Message, error)
	AddReaction(ctx context.Context, channelID, messageID, symbol string) error
	RemoveAllReactions(ctx context.Context, channelID, messageID string) error
	FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// UserReactions 列出用户在该消息上当前的所有表情
	UserReactions(ctx context.Context, channelID, messageID, userID string) ([]string, error)
	RemoveUserReaction(ctx context.Context, channelID, messageID, symbol, userID string) error
}
