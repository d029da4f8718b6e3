package poll

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/c0du/discord-bot-pollie/internal/gateway"
	"github.com/c0du/discord-bot-pollie/internal/model"
)

// ReactionEvent 用户添加表情的事件
type ReactionEvent struct {
	ChannelID string
	MessageID string
	UserID    string
	Symbol    string
	IsBot     bool
}

// Enforcer 实时执行单选限制
//
// discordgo在各自的goroutine中分发事件，同一用户在同一消息上的处理按顺序执行，
// 否则两次并发处理会互相删掉对方的表情。
type Enforcer struct {
	index   *Index
	gateway gateway.Gateway
	selfID  func() string
	logger  *zap.Logger

	mu    sync.Mutex
	voter map[string]*voterLock
}

type voterLock struct {
	mu   sync.Mutex
	refs int
}

// NewEnforcer 创建投票限制执行器，selfID返回机器人自身的用户ID
func NewEnforcer(index *Index, gw gateway.Gateway, selfID func() string, logger *zap.Logger) *Enforcer {
	return &Enforcer{
		index:   index,
		gateway: gw,
		selfID:  selfID,
		logger:  logger.Named("enforcer"),
		voter:   make(map[string]*voterLock),
	}
}

// HandleReactionAdd 单选投票中，同一用户只保留触发本次事件的表情
func (e *Enforcer) HandleReactionAdd(ctx context.Context, ev ReactionEvent) {
	if ev.IsBot || (e.selfID != nil && ev.UserID == e.selfID()) {
		return
	}

	entry, ok := e.index.Lookup(ev.MessageID)
	if !ok || entry.VoteMode != model.VoteModeSingle {
		return
	}

	unlock := e.lockVoter(ev.MessageID + "/" + ev.UserID)
	defer unlock()

	symbols, err := e.gateway.UserReactions(ctx, ev.ChannelID, ev.MessageID, ev.UserID)
	if err != nil {
		e.logger.Warn("获取用户表情失败", zap.String("message_id", ev.MessageID), zap.String("user_id", ev.UserID), zap.Error(err))
		return
	}
	if len(symbols) <= 1 {
		return
	}

	for _, symbol := range symbols {
		if symbol == ev.Symbol {
			continue
		}
		if err := e.gateway.RemoveUserReaction(ctx, ev.ChannelID, ev.MessageID, symbol, ev.UserID); err != nil {
			e.logger.Warn("移除多余表情失败",
				zap.String("message_id", ev.MessageID),
				zap.String("user_id", ev.UserID),
				zap.String("symbol", symbol),
				zap.Error(err))
		}
	}
}

// lockVoter 锁住某个用户在某条消息上的处理，没有等待者时删除锁
func (e *Enforcer) lockVoter(key string) func() {
	e.mu.Lock()
	l, ok := e.voter[key]
	if !ok {
		l = &voterLock{}
		e.voter[key] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.voter, key)
		}
		e.mu.Unlock()
	}
}
