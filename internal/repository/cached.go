package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/c0du/discord-bot-pollie/internal/model"
)

// PollStore 投票记录的持久化操作
type PollStore interface {
	Create(ctx context.Context, poll *model.Poll) error
	FindByID(ctx context.Context, id string) (*model.Poll, error)
	FindAllWithEndDateAfter(ctx context.Context, t time.Time) ([]*model.Poll, error)
	FindAllWithEndDateBefore(ctx context.Context, t time.Time) ([]*model.Poll, error)
	Update(ctx context.Context, poll *model.Poll) error
	DeleteByID(ctx context.Context, id string) error
}

// PollCache 按ID缓存投票记录，带版本号的回填
type PollCache interface {
	GetPoll(ctx context.Context, id string) (*model.Poll, bool, error)
	PollVersion(ctx context.Context, id string) (int64, error)
	SetPollIfVersion(ctx context.Context, poll *model.Poll, version int64) (bool, error)
	InvalidatePoll(ctx context.Context, id string) error
}

// CachedPollStore 在数据库前加一层按ID的缓存
//
// 读库前先取版本号，回填时版本号变化则放弃；写库成功后递增版本号并删除缓存，
// 因此读到旧行的并发读取不会把旧数据写回缓存。缓存故障只记录日志，以数据库为准。
type CachedPollStore struct {
	store  PollStore
	cache  PollCache
	logger *zap.Logger
}

func NewCachedPollStore(store PollStore, cache PollCache, logger *zap.Logger) *CachedPollStore {
	return &CachedPollStore{store: store, cache: cache, logger: logger.Named("poll-cache")}
}

func (s *CachedPollStore) Create(ctx context.Context, poll *model.Poll) error {
	return s.store.Create(ctx, poll)
}

func (s *CachedPollStore) FindByID(ctx context.Context, id string) (*model.Poll, error) {
	poll, hit, err := s.cache.GetPoll(ctx, id)
	if err != nil {
		s.logger.Warn("读取投票缓存失败", zap.String("poll_id", id), zap.Error(err))
	} else if hit {
		return poll, nil
	}

	version, verErr := s.cache.PollVersion(ctx, id)
	if verErr != nil {
		s.logger.Warn("读取投票缓存版本失败", zap.String("poll_id", id), zap.Error(verErr))
	}

	poll, err = s.store.FindByID(ctx, id)
	if err != nil || poll == nil || verErr != nil {
		return poll, err
	}

	stored, err := s.cache.SetPollIfVersion(ctx, poll, version)
	if err != nil {
		s.logger.Warn("写入投票缓存失败", zap.String("poll_id", id), zap.Error(err))
	} else if !stored {
		s.logger.Debug("投票已被并发修改，跳过回填", zap.String("poll_id", id))
	}
	return poll, nil
}

func (s *CachedPollStore) FindAllWithEndDateAfter(ctx context.Context, t time.Time) ([]*model.Poll, error) {
	return s.store.FindAllWithEndDateAfter(ctx, t)
}

func (s *CachedPollStore) FindAllWithEndDateBefore(ctx context.Context, t time.Time) ([]*model.Poll, error) {
	return s.store.FindAllWithEndDateBefore(ctx, t)
}

func (s *CachedPollStore) Update(ctx context.Context, poll *model.Poll) error {
	if err := s.store.Update(ctx, poll); err != nil {
		return err
	}
	s.invalidate(ctx, poll.ID)
	return nil
}

func (s *CachedPollStore) DeleteByID(ctx context.Context, id string) error {
	if err := s.store.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *CachedPollStore) invalidate(ctx context.Context, id string) {
	if err := s.cache.InvalidatePoll(ctx, id); err != nil {
		s.logger.Warn("删除投票缓存失败", zap.String("poll_id", id), zap.Error(err))
	}
}
