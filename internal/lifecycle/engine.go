// Package lifecycle 投票生命周期：发布、定时关闭、计票、重复发布以及启动恢复
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/c0du/discord-bot-pollie/config"
	"github.com/c0du/discord-bot-pollie/internal/gateway"
	"github.com/c0du/discord-bot-pollie/internal/lock"
	"github.com/c0du/discord-bot-pollie/internal/model"
	"github.com/c0du/discord-bot-pollie/internal/poll"
)

const closeLockPrefix = "pollie:close:"

// Deps 引擎依赖，为nil的可选项使用进程内默认实现
type Deps struct {
	Gateway   gateway.Gateway
	Store     Store
	Index     *poll.Index
	Selector  *poll.Selector
	Scheduler *Scheduler
	Lock      lock.Lock
	Events    EventPublisher
	Now       func() time.Time
}

// PostedPoll 发布成功后的记录与消息
type PostedPoll struct {
	Poll    *model.Poll
	Message *gateway.Message
}

// Engine 投票生命周期状态机
//
// 每个记录: SCHEDULED -> CLOSING -> RECURRING(回到SCHEDULED) 或 TERMINATED(删除)。
// CLOSING只存在于一次Close调用中，由closing集合和关闭锁保证同一投票不会并发关闭。
type Engine struct {
	gw        gateway.Gateway
	store     Store
	index     *poll.Index
	selector  *poll.Selector
	scheduler *Scheduler
	locker    lock.Lock
	events    EventPublisher
	now       func() time.Time
	cfg       config.LifecycleConfig

	mu      sync.Mutex
	closing map[string]struct{}

	// 定时器回调使用的上下文，Shutdown时取消
	baseCtx context.Context
	cancel  context.CancelFunc

	logger *zap.Logger
}

func NewEngine(deps Deps, cfg config.LifecycleConfig, logger *zap.Logger) *Engine {
	if deps.Index == nil {
		deps.Index = poll.NewIndex()
	}
	if deps.Selector == nil {
		deps.Selector = poll.NewSelector()
	}
	if deps.Scheduler == nil {
		deps.Scheduler = NewScheduler()
	}
	if deps.Lock == nil {
		deps.Lock = lock.NewLocalLock()
	}
	if deps.Events == nil {
		deps.Events = nopPublisher{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.CloseLockTimeout <= 0 {
		cfg.CloseLockTimeout = 30 * time.Second
	}
	if cfg.CloseLockRetry <= 0 {
		cfg.CloseLockRetry = 5 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		gw:        deps.Gateway,
		store:     deps.Store,
		index:     deps.Index,
		selector:  deps.Selector,
		scheduler: deps.Scheduler,
		locker:    deps.Lock,
		events:    deps.Events,
		now:       deps.Now,
		cfg:       cfg,
		closing:   make(map[string]struct{}),
		baseCtx:   ctx,
		cancel:    cancel,
		logger:    logger.Named("lifecycle"),
	}
}

// Post 发布新投票：发送消息、添加表情、登记索引、持久化并设置关闭定时器
//
// 返回nil错误时，关闭会且只会触发一次。
func (e *Engine) Post(ctx context.Context, req model.PollRequest, target model.Target) (*PostedPoll, error) {
	return e.post(ctx, req, target, nil)
}

// post existing不为nil时为重复发布，更新同一条记录
func (e *Engine) post(ctx context.Context, req model.PollRequest, target model.Target, existing *model.Poll) (*PostedPoll, error) {
	req, err := normalize(req, target)
	if err != nil {
		return nil, err
	}

	ch, err := e.gw.FetchChannel(ctx, target.ChannelID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, fmt.Errorf("频道 %s: %w", target.ChannelID, ErrInvalidTarget)
		}
		return nil, fmt.Errorf("获取频道失败: %w", err)
	}

	startDate := e.now()
	msg, err := e.gw.SendMessage(ctx, ch.ID, pollContent(req, target.Author, startDate))
	if err != nil {
		return nil, fmt.Errorf("发送投票消息失败: %w", err)
	}

	logger := e.logger.With(zap.String("channel_id", ch.ID), zap.String("message_id", msg.ID))

	// 单个表情失败不影响发布
	for i := range req.Choices {
		symbol := poll.Symbol(i)
		if err := e.gw.AddReaction(ctx, ch.ID, msg.ID, symbol); err != nil {
			logger.Warn("添加投票表情失败", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	endDate := startDate.Add(time.Duration(model.DurationToMilliseconds(req.Duration)) * time.Millisecond)

	record := &model.Poll{}
	if existing != nil {
		copied := *existing
		record = &copied
	}
	record.GuildID = ch.GuildID
	if record.GuildID == "" {
		record.GuildID = target.GuildID
	}
	record.ChannelID = ch.ID
	record.MessageID = msg.ID
	record.Question = req.Question
	record.Options = append([]string(nil), req.Choices...)
	record.RandomizerOptions = append([]string(nil), req.RandomizerOptions...)
	record.VoteMode = req.VoteMode
	record.Author = target.Author
	record.StartDate = startDate
	record.EndDate = endDate
	record.Duration = req.Duration
	record.Recurrence = req.Recurrence
	record.NextRun = model.NextRun(endDate, req.Recurrence)

	if record.VoteMode == model.VoteModeSingle {
		e.index.Register(msg.ID, record.VoteMode)
	}

	if existing == nil {
		err = e.store.Create(ctx, record)
	} else {
		err = e.store.Update(ctx, record)
	}
	if err != nil {
		e.index.Remove(msg.ID)
		if delErr := e.gw.DeleteMessage(ctx, ch.ID, msg.ID); delErr != nil {
			logger.Warn("回滚投票消息失败", zap.Error(delErr))
		}
		return nil, fmt.Errorf("保存投票记录失败: %w", err)
	}

	e.arm(record)

	eventType := model.EventPosted
	if existing != nil {
		eventType = model.EventRecurred
	}
	e.publish(ctx, record, eventType, nil, "")

	logger.Info("投票已发布",
		zap.String("poll_id", record.ID),
		zap.String("vote_mode", string(record.VoteMode)),
		zap.Time("end_date", record.EndDate))

	return &PostedPoll{Poll: record, Message: msg}, nil
}

// Close 关闭投票：计票、发布结果，然后删除记录或进入下一轮
//
// 记录不存在、消息或频道已删除、已有其他关闭在进行时都直接返回nil。
func (e *Engine) Close(ctx context.Context, pollID string) error {
	if !e.beginClose(pollID) {
		e.logger.Debug("投票正在关闭，忽略重复触发", zap.String("poll_id", pollID))
		return nil
	}
	defer e.endClose(pollID)

	// 定时器在触发时已被取走，拿不到锁必须重新设置，否则这一轮再也不会关闭
	lockName := closeLockPrefix + pollID
	acquired, err := e.locker.AcquireLock(lockName, e.cfg.CloseLockTimeout)
	if err != nil {
		e.retryClose(pollID)
		return fmt.Errorf("获取关闭锁失败: %w", err)
	}
	if !acquired {
		e.logger.Debug("关闭锁被其他实例持有，稍后重试",
			zap.String("poll_id", pollID), zap.Duration("retry", e.cfg.CloseLockRetry))
		e.retryClose(pollID)
		return nil
	}
	defer func() {
		if err := e.locker.ReleaseLock(lockName); err != nil {
			e.logger.Warn("释放关闭锁失败", zap.String("poll_id", pollID), zap.Error(err))
		}
	}()

	record, err := e.store.FindByID(ctx, pollID)
	if err != nil {
		return fmt.Errorf("查询投票记录失败: %w", err)
	}
	if record == nil {
		e.scheduler.Disarm(pollID)
		return nil
	}

	logger := e.logger.With(zap.String("poll_id", pollID), zap.String("message_id", record.MessageID))

	// 上一轮遗留的定时器提前触发，按记录的结束时间重新设置
	if early := record.EndDate.Sub(e.now()); early > e.cfg.StaleFireSlack {
		logger.Debug("定时器早于结束时间触发，重新设置", zap.Duration("early", early))
		e.arm(record)
		return nil
	}

	msg, err := e.fetchPollMessage(ctx, record)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			logger.Info("投票消息或频道已不存在，跳过关闭")
			e.index.Remove(record.MessageID)
			e.scheduler.Disarm(pollID)
			return nil
		}
		return err
	}

	if err := e.gw.RemoveAllReactions(ctx, record.ChannelID, record.MessageID); err != nil {
		logger.Warn("移除投票表情失败", zap.Error(err))
	}

	tallies := poll.Tally(record.Options, msg)
	if _, err := e.gw.SendMessage(ctx, record.ChannelID, resultsContent(record, tallies, e.now())); err != nil {
		logger.Warn("发送投票结果失败", zap.Error(err))
	}
	e.publish(ctx, record, model.EventClosed, tallies, "")

	if !record.Recurring() {
		e.index.Remove(record.MessageID)
		if err := e.store.DeleteByID(ctx, pollID); err != nil {
			return fmt.Errorf("删除投票记录失败: %w", err)
		}
		e.scheduler.Disarm(pollID)
		logger.Info("投票已结束")
		return nil
	}

	return e.recur(ctx, record)
}

// recur 从候选池中重新抽取选项，在原频道发布下一轮
func (e *Engine) recur(ctx context.Context, record *model.Poll) error {
	choices := e.selector.Select(record.RandomizerOptions)
	e.index.Remove(record.MessageID)

	req := model.PollRequest{
		Question:          record.Question,
		Choices:           choices,
		VoteMode:          record.VoteMode,
		Duration:          record.Duration,
		Recurrence:        record.Recurrence,
		RandomizerOptions: record.RandomizerOptions,
	}

	posted, err := e.post(ctx, req, record.Target(), record)
	if err != nil {
		// 记录保留原状且没有定时器，由巡检发现后人工处理
		e.logger.Error("重复投票链中断，记录已保留",
			zap.String("poll_id", record.ID),
			zap.String("message_id", record.MessageID),
			zap.Error(err))
		e.publish(ctx, record, model.EventChainBroken, nil, err.Error())
		return fmt.Errorf("投票 %s 重复发布失败: %w", record.ID, err)
	}

	e.logger.Info("投票进入下一轮",
		zap.String("poll_id", record.ID),
		zap.String("message_id", posted.Message.ID),
		zap.Strings("options", posted.Poll.Options))
	return nil
}

// Restore 启动时恢复定时器：加载结束时间在回看窗口之后的记录，已过期的立即关闭
func (e *Engine) Restore(ctx context.Context) (int, error) {
	since := e.now().Add(-e.cfg.RestoreLookback)
	polls, err := e.store.FindAllWithEndDateAfter(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("加载投票记录失败: %w", err)
	}

	for _, record := range polls {
		if record.VoteMode == model.VoteModeSingle {
			e.index.Register(record.MessageID, record.VoteMode)
		}
		e.arm(record)
	}

	e.logger.Info("已恢复投票定时器", zap.Int("count", len(polls)), zap.Time("since", since))
	return len(polls), nil
}

// Closing 投票是否正在关闭
func (e *Engine) Closing(pollID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.closing[pollID]
	return ok
}

// Shutdown 停止所有定时器并取消进行中的回调
func (e *Engine) Shutdown() {
	e.cancel()
	e.scheduler.StopAll()
}

func (e *Engine) arm(record *model.Poll) {
	pollID := record.ID
	e.scheduler.Arm(pollID, record.EndDate, func() { e.fire(pollID) })
}

// retryClose 在CloseLockRetry之后再次触发关闭，记录若已被其他实例删除则那次触发直接返回
func (e *Engine) retryClose(pollID string) {
	e.scheduler.Arm(pollID, e.now().Add(e.cfg.CloseLockRetry), func() { e.fire(pollID) })
}

// fire 定时器回调，没有调用者等待结果，错误只记录
func (e *Engine) fire(pollID string) {
	if e.baseCtx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(e.baseCtx, e.cfg.CloseLockTimeout)
	defer cancel()

	if err := e.Close(ctx, pollID); err != nil {
		e.logger.Error("关闭投票失败", zap.String("poll_id", pollID), zap.Error(err))
	}
}

func (e *Engine) fetchPollMessage(ctx context.Context, record *model.Poll) (*gateway.Message, error) {
	if _, err := e.gw.FetchChannel(ctx, record.ChannelID); err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("获取频道失败: %w", err)
	}

	msg, err := e.gw.FetchMessage(ctx, record.ChannelID, record.MessageID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("获取投票消息失败: %w", err)
	}
	return msg, nil
}

func (e *Engine) beginClose(pollID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.closing[pollID]; ok {
		return false
	}
	e.closing[pollID] = struct{}{}
	return true
}

func (e *Engine) endClose(pollID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.closing, pollID)
}

// publish 事件发送失败只记录日志
//
// 使用独立的短超时上下文，Kafka变慢时不会耗尽关闭流程后续写库所用的时间。
func (e *Engine) publish(ctx context.Context, record *model.Poll, eventType model.PollEventType, tallies []model.OptionTally, errMsg string) {
	event := model.PollEvent{
		Type:       eventType,
		PollID:     record.ID,
		MessageID:  record.MessageID,
		ChannelID:  record.ChannelID,
		Question:   record.Question,
		Tallies:    tallies,
		Error:      errMsg,
		OccurredAt: e.now(),
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.PublishTimeout)
	defer cancel()

	if err := e.events.Publish(pctx, event); err != nil {
		e.logger.Warn("发送生命周期事件失败",
			zap.String("type", string(eventType)),
			zap.String("poll_id", record.ID),
			zap.Error(err))
	}
}

// normalize 校验并补全请求，任何副作用之前执行
func normalize(req model.PollRequest, target model.Target) (model.PollRequest, error) {
	if target.ChannelID == "" || target.Author.ID == "" {
		return req, fmt.Errorf("缺少频道或作者: %w", ErrInvalidTarget)
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return req, fmt.Errorf("问题不能为空: %w", ErrInvalidRequest)
	}

	choices := make([]string, 0, len(req.Choices))
	for _, c := range req.Choices {
		if c = strings.TrimSpace(c); c != "" {
			choices = append(choices, c)
		}
	}
	if len(choices) < 2 || len(choices) > poll.MaxOptions {
		return req, fmt.Errorf("选项数量必须在2到%d之间，当前%d: %w", poll.MaxOptions, len(choices), ErrInvalidRequest)
	}
	req.Choices = choices

	if req.VoteMode == "" {
		req.VoteMode = model.VoteModeMultiple
	}
	if !req.VoteMode.Valid() {
		return req, fmt.Errorf("未知的投票模式 %q: %w", req.VoteMode, ErrInvalidRequest)
	}

	if req.Recurrence == "" {
		req.Recurrence = model.RecurrenceNone
	}
	if !model.ValidRecurrence(req.Recurrence) {
		return req, fmt.Errorf("未知的重复周期 %q: %w", req.Recurrence, ErrInvalidRequest)
	}

	pool := make([]string, 0, len(req.RandomizerOptions))
	for _, o := range req.RandomizerOptions {
		if o = strings.TrimSpace(o); o != "" {
			pool = append(pool, o)
		}
	}
	if req.Recurrence != model.RecurrenceNone && len(pool) == 1 {
		return req, fmt.Errorf("候选池至少需要2个选项: %w", ErrInvalidRequest)
	}
	req.RandomizerOptions = pool

	return req, nil
}
