package lifecycle

import (
	"context"
	"time"

	"github.com/c0du/discord-bot-pollie/internal/model"
)

// Store 投票记录存储，FindByID在记录不存在时返回nil, nil
type Store interface {
	Create(ctx context.Context, poll *model.Poll) error
	FindByID(ctx context.Context, id string) (*model.Poll, error)
	FindAllWithEndDateAfter(ctx context.Context, t time.Time) ([]*model.Poll, error)
	FindAllWithEndDateBefore(ctx context.Context, t time.Time) ([]*model.Poll, error)
	Update(ctx context.Context, poll *model.Poll) error
	DeleteByID(ctx context.Context, id string) error
}

// EventPublisher 发布生命周期事件
type EventPublisher interface {
	Publish(ctx context.Context, event model.PollEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.PollEvent) error { return nil }
