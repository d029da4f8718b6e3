// Package gatewaytest 提供内存版Gateway，供各包测试使用
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/c0du/discord-bot-pollie/internal/gateway"
)

// SentMessage 记录发送过的消息
type SentMessage struct {
	ChannelID string
	MessageID string
	Content   gateway.Content
}

type message struct {
	channelID string
	order     []string
	users     map[string][]string
}

// Fake 内存中的聊天平台，机器人自身的表情以SelfID记录
type Fake struct {
	mu       sync.Mutex
	nextID   int
	channels map[string]*gateway.Channel
	messages map[string]*message

	SelfID  string
	Sent    []SentMessage
	Deleted []string

	SendErr          error
	ReactionErr      map[string]error
	RemoveAllErr     error
	UserReactionsErr error
	RemoveUserErr    map[string]error
	RemoveAllCalls   int
}

// New 创建Fake，并预置给定频道
func New(channelIDs ...string) *Fake {
	f := &Fake{
		channels:      make(map[string]*gateway.Channel),
		messages:      make(map[string]*message),
		SelfID:        "bot",
		ReactionErr:   make(map[string]error),
		RemoveUserErr: make(map[string]error),
	}
	for _, id := range channelIDs {
		f.AddChannel(id, "guild-1")
	}
	return f
}

func (f *Fake) AddChannel(id, guildID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[id] = &gateway.Channel{ID: id, GuildID: guildID, Name: id}
}

func (f *Fake) RemoveChannel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, id)
}

// React 模拟用户添加表情
func (f *Fake) React(messageID, symbol, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.messages[messageID]; ok {
		m.add(symbol, userID)
	}
}

// ReactionCount 当前表情计数
func (f *Fake) ReactionCount(messageID, symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return 0
	}
	return len(m.users[symbol])
}

// Symbols 消息上当前存在的表情（按添加顺序）
func (f *Fake) Symbols(messageID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return nil
	}
	var out []string
	for _, s := range m.order {
		if len(m.users[s]) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// SentCount 已发送消息数
func (f *Fake) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

// LastSent 最后一条发送的消息
func (f *Fake) LastSent() SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return SentMessage{}
	}
	return f.Sent[len(f.Sent)-1]
}

func (m *message) add(symbol, userID string) {
	users, seen := m.users[symbol]
	if !seen {
		m.order = append(m.order, symbol)
	}
	for _, u := range users {
		if u == userID {
			return
		}
	}
	m.users[symbol] = append(users, userID)
}

func (f *Fake) FetchChannel(ctx context.Context, channelID string) (*gateway.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("获取频道: %w", gateway.ErrNotFound)
	}
	copied := *ch
	return &copied, nil
}

func (f *Fake) SendMessage(ctx context.Context, channelID string, content gateway.Content) (*gateway.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("发送消息: %w", gateway.ErrNotFound)
	}
	f.nextID++
	id := fmt.Sprintf("msg-%d", f.nextID)
	f.messages[id] = &message{channelID: channelID, users: make(map[string][]string)}
	f.Sent = append(f.Sent, SentMessage{ChannelID: channelID, MessageID: id, Content: content})
	return &gateway.Message{ID: id, ChannelID: channelID, GuildID: ch.GuildID}, nil
}

func (f *Fake) AddReaction(ctx context.Context, channelID, messageID, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ReactionErr[symbol]; err != nil {
		return err
	}
	m, ok := f.messages[messageID]
	if !ok {
		return fmt.Errorf("添加表情: %w", gateway.ErrNotFound)
	}
	m.add(symbol, f.SelfID)
	return nil
}

func (f *Fake) RemoveAllReactions(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RemoveAllCalls++
	if f.RemoveAllErr != nil {
		return f.RemoveAllErr
	}
	m, ok := f.messages[messageID]
	if !ok {
		return fmt.Errorf("移除所有表情: %w", gateway.ErrNotFound)
	}
	m.order = nil
	m.users = make(map[string][]string)
	return nil
}

func (f *Fake) FetchMessage(ctx context.Context, channelID, messageID string) (*gateway.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[channelID]; !ok {
		return nil, fmt.Errorf("获取消息: %w", gateway.ErrNotFound)
	}
	m, ok := f.messages[messageID]
	if !ok || m.channelID != channelID {
		return nil, fmt.Errorf("获取消息: %w", gateway.ErrNotFound)
	}
	out := &gateway.Message{ID: messageID, ChannelID: channelID}
	for _, s := range m.order {
		if n := len(m.users[s]); n > 0 {
			out.Reactions = append(out.Reactions, gateway.Reaction{Symbol: s, Count: n})
		}
	}
	return out, nil
}

func (f *Fake) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.messages[messageID]; !ok {
		return fmt.Errorf("删除消息: %w", gateway.ErrNotFound)
	}
	delete(f.messages, messageID)
	f.Deleted = append(f.Deleted, messageID)
	return nil
}

func (f *Fake) UserReactions(ctx context.Context, channelID, messageID, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UserReactionsErr != nil {
		return nil, f.UserReactionsErr
	}
	m, ok := f.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("获取消息: %w", gateway.ErrNotFound)
	}
	var out []string
	for _, s := range m.order {
		for _, u := range m.users[s] {
			if u == userID {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (f *Fake) RemoveUserReaction(ctx context.Context, channelID, messageID, symbol, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.RemoveUserErr[symbol]; err != nil {
		return err
	}
	m, ok := f.messages[messageID]
	if !ok {
		return fmt.Errorf("移除用户表情: %w", gateway.ErrNotFound)
	}
	users := m.users[symbol]
	for i, u := range users {
		if u == userID {
			m.users[symbol] = append(users[:i], users[i+1:]...)
			break
		}
	}
	return nil
}

var _ gateway.Gateway = (*Fake)(nil)
