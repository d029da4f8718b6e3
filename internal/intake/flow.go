// Package intake 投票创建流程：表单、预览选择、提交
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/c0du/discord-bot-pollie/internal/lifecycle"
	"github.com/c0du/discord-bot-pollie/internal/model"
	"github.com/c0du/discord-bot-pollie/internal/poll"
)

// ErrNoDraft 草稿不存在或已过期
var ErrNoDraft = errors.New("没有找到投票草稿")

// DraftStore 按用户保存草稿，LoadDraft不存在时返回nil, nil
type DraftStore interface {
	SaveDraft(ctx context.Context, draft *model.PollDraft) error
	LoadDraft(ctx context.Context, userID string) (*model.PollDraft, error)
	DeleteDraft(ctx context.Context, userID string) error
}

// Poster 发布投票
type Poster interface {
	Post(ctx context.Context, req model.PollRequest, target model.Target) (*lifecycle.PostedPoll, error)
}

// ModalInput 创建表单的原始输入，多行字段每行一个选项
type ModalInput struct {
	Question             string
	FirstChoice          string
	SecondChoice         string
	AdditionalChoices    string
	RecurrenceRandomizer string
}

// NewDraft 校验表单并生成带默认选择的草稿
func NewDraft(in ModalInput, target model.Target, now time.Time) (*model.PollDraft, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, fmt.Errorf("问题不能为空: %w", lifecycle.ErrInvalidRequest)
	}

	choices := splitLines(in.FirstChoice + "\n" + in.SecondChoice + "\n" + in.AdditionalChoices)
	if len(choices) < 2 || len(choices) > poll.MaxOptions {
		return nil, fmt.Errorf("选项数量必须在2到%d之间: %w", poll.MaxOptions, lifecycle.ErrInvalidRequest)
	}

	return &model.PollDraft{
		UserID:            target.Author.ID,
		GuildID:           target.GuildID,
		ChannelID:         target.ChannelID,
		Author:            target.Author,
		Question:          question,
		Choices:           choices,
		RandomizerOptions: splitLines(in.RecurrenceRandomizer),
		VoteMode:          model.VoteModeMultiple,
		Duration:          model.DurationTokens[0],
		Recurrence:        model.RecurrenceNone,
		CreatedAt:         now,
	}, nil
}

// Finalize 草稿转换为发布请求和目标
func Finalize(d *model.PollDraft) (model.PollRequest, model.Target) {
	req := model.PollRequest{
		Question:          d.Question,
		Choices:           append([]string(nil), d.Choices...),
		VoteMode:          d.VoteMode,
		Duration:          d.Duration,
		Recurrence:        d.Recurrence,
		RandomizerOptions: append([]string(nil), d.RandomizerOptions...),
	}
	return req, model.Target{GuildID: d.GuildID, ChannelID: d.ChannelID, Author: d.Author}
}

// Flow 串联表单、预览和提交
type Flow struct {
	drafts DraftStore
	poster Poster
	now    func() time.Time
	logger *zap.Logger
}

func NewFlow(drafts DraftStore, poster Poster, logger *zap.Logger) *Flow {
	return &Flow{drafts: drafts, poster: poster, now: time.Now, logger: logger.Named("intake")}
}

// Begin 表单提交后保存草稿，覆盖该用户之前的草稿
func (f *Flow) Begin(ctx context.Context, in ModalInput, target model.Target) (*model.PollDraft, error) {
	draft, err := NewDraft(in, target, f.now())
	if err != nil {
		return nil, err
	}
	if err := f.drafts.SaveDraft(ctx, draft); err != nil {
		return nil, err
	}

	f.logger.Debug("已创建投票草稿", zap.String("user_id", draft.UserID), zap.Int("choices", len(draft.Choices)))
	return draft, nil
}

// Select 应用预览界面的一次选择
func (f *Flow) Select(ctx context.Context, userID, customID string, values []string) (*model.PollDraft, error) {
	sel, err := ParseSelection(customID, values)
	if err != nil {
		return nil, err
	}

	draft, err := f.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := Apply(draft, sel); err != nil {
		return nil, err
	}
	if err := f.drafts.SaveDraft(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// Submit 发布草稿，成功后删除草稿，失败时保留以便重试
func (f *Flow) Submit(ctx context.Context, userID string) (*lifecycle.PostedPoll, error) {
	draft, err := f.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	req, target := Finalize(draft)
	posted, err := f.poster.Post(ctx, req, target)
	if err != nil {
		return nil, err
	}

	if err := f.drafts.DeleteDraft(ctx, userID); err != nil {
		f.logger.Warn("删除投票草稿失败", zap.String("user_id", userID), zap.Error(err))
	}
	return posted, nil
}

// Cancel 放弃草稿
func (f *Flow) Cancel(ctx context.Context, userID string) error {
	return f.drafts.DeleteDraft(ctx, userID)
}

func (f *Flow) load(ctx context.Context, userID string) (*model.PollDraft, error) {
	draft, err := f.drafts.LoadDraft(ctx, userID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, ErrNoDraft
	}
	return draft, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
