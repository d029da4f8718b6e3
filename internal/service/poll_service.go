package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/c0du/discord-bot-pollie/internal/model"
)

const (
	defaultResultLimit = 20
	maxResultLimit     = 100
)

// PollReader 查询投票记录
type PollReader interface {
	FindByID(ctx context.Context, id string) (*model.Poll, error)
	FindAllWithEndDateAfter(ctx context.Context, t time.Time) ([]*model.Poll, error)
}

// ResultStore 历史结果存储
type ResultStore interface {
	SaveResult(ctx context.Context, result *model.PollResult) error
	ListResults(ctx context.Context, pollID string, limit int) ([]*model.PollResult, error)
}

// PollService 投票查询与结果归档
type PollService struct {
	polls   PollReader
	results ResultStore
	now     func() time.Time
	logger  *zap.Logger
}

func NewPollService(polls PollReader, results ResultStore, logger *zap.Logger) *PollService {
	return &PollService{
		polls:   polls,
		results: results,
		now:     time.Now,
		logger:  logger.Named("poll-service"),
	}
}

// ActivePolls 尚未结束的投票
func (s *PollService) ActivePolls(ctx context.Context) ([]*model.Poll, error) {
	polls, err := s.polls.FindAllWithEndDateAfter(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("查询进行中的投票失败: %w", err)
	}
	return polls, nil
}

// GetPoll 按ID查询，不存在时返回nil
func (s *PollService) GetPoll(ctx context.Context, id string) (*model.Poll, error) {
	poll, err := s.polls.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("查询投票 %s 失败: %w", id, err)
	}
	return poll, nil
}

// Results 某个投票最近的结果，limit<=0时取默认值
func (s *PollService) Results(ctx context.Context, pollID string, limit int) ([]*model.PollResult, error) {
	if pollID == "" {
		return nil, fmt.Errorf("投票ID不能为空")
	}
	if limit <= 0 {
		limit = defaultResultLimit
	}
	if limit > maxResultLimit {
		limit = maxResultLimit
	}

	results, err := s.results.ListResults(ctx, pollID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询投票 %s 的结果失败: %w", pollID, err)
	}
	return results, nil
}

// ProcessPollEvent 处理生命周期事件（消费者使用），只归档poll.closed
func (s *PollService) ProcessPollEvent(ctx context.Context, event *model.PollEvent) error {
	if event.Type != model.EventClosed {
		s.logger.Debug("忽略生命周期事件", zap.String("type", string(event.Type)), zap.String("poll_id", event.PollID))
		return nil
	}
	if event.PollID == "" || event.MessageID == "" {
		s.logger.Warn("结果事件缺少投票或消息ID，丢弃", zap.String("poll_id", event.PollID))
		return nil
	}

	closedAt := event.OccurredAt
	if closedAt.IsZero() {
		closedAt = s.now()
	}

	result := &model.PollResult{
		PollID:    event.PollID,
		MessageID: event.MessageID,
		Question:  event.Question,
		Tallies:   event.Tallies,
		ClosedAt:  closedAt,
	}
	if err := s.results.SaveResult(ctx, result); err != nil {
		return fmt.Errorf("归档投票结果失败: %w", err)
	}

	s.logger.Info("已归档投票结果", zap.String("poll_id", event.PollID), zap.String("message_id", event.MessageID))
	return nil
}
