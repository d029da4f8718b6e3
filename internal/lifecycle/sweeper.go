package lifecycle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/c0du/discord-bot-pollie/internal/model"
)

// Sweeper 定期巡检悬挂记录：结束时间已过去超过宽限期、却没有定时器也不在关闭中
//
// 只负责发现和上报（错误日志与poll.dangling事件），不做自动修复。
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	grace    time.Duration
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	reported map[string]time.Time // 已上报的记录及其当时的结束时间
}

func NewSweeper(engine *Engine, interval, grace time.Duration) *Sweeper {
	return &Sweeper{
		engine:   engine,
		interval: interval,
		grace:    grace,
		stopChan: make(chan struct{}),
		reported: make(map[string]time.Time),
	}
}

// Start 启动巡检协程
func (s *Sweeper) Start() {
	s.ticker = time.NewTicker(s.interval)

	go func() {
		for {
			select {
			case <-s.ticker.C:
				ctx, cancel := context.WithTimeout(s.engine.baseCtx, s.interval)
				if _, err := s.SweepOnce(ctx); err != nil {
					s.engine.logger.Warn("巡检悬挂投票失败", zap.Error(err))
				}
				cancel()
			case <-s.stopChan:
				s.ticker.Stop()
				s.engine.logger.Info("悬挂投票巡检已停止")
				return
			}
		}
	}()

	s.engine.logger.Info("悬挂投票巡检已启动", zap.Duration("interval", s.interval), zap.Duration("grace", s.grace))
}

// SweepOnce 执行一次巡检，返回本次新发现的悬挂记录
func (s *Sweeper) SweepOnce(ctx context.Context) ([]*model.Poll, error) {
	cutoff := s.engine.now().Add(-s.grace)
	polls, err := s.engine.store.FindAllWithEndDateBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(polls))
	var dangling []*model.Poll
	for _, record := range polls {
		seen[record.ID] = struct{}{}

		if _, armed := s.engine.scheduler.ArmedAt(record.ID); armed || s.engine.Closing(record.ID) {
			continue
		}
		// 同一个悬挂状态只上报一次
		if endDate, ok := s.reported[record.ID]; ok && endDate.Equal(record.EndDate) {
			continue
		}
		s.reported[record.ID] = record.EndDate
		dangling = append(dangling, record)

		s.engine.logger.Error("发现悬挂投票记录，需要人工处理",
			zap.String("poll_id", record.ID),
			zap.String("message_id", record.MessageID),
			zap.String("channel_id", record.ChannelID),
			zap.Time("end_date", record.EndDate))
		s.engine.publish(ctx, record, model.EventDangling, nil, "")
	}

	// 已恢复或已删除的记录不再跟踪
	for id := range s.reported {
		if _, ok := seen[id]; !ok {
			delete(s.reported, id)
		}
	}
	return dangling, nil
}

// Stop 停止巡检
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}
