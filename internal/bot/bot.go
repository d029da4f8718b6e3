// Package bot Discord事件接入：斜杠命令、创建流程交互、单选限制
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/c0du/discord-bot-pollie/internal/intake"
	"github.com/c0du/discord-bot-pollie/internal/lifecycle"
	"github.com/c0du/discord-bot-pollie/internal/model"
	"github.com/c0du/discord-bot-pollie/internal/poll"
)

// 单个事件处理的超时时间
const handlerTimeout = 15 * time.Second

const (
	msgNoDraft        = "No poll data found. Please recreate the poll."
	msgCanceled       = "Poll creation has been canceled."
	msgCreateFailed   = "Failed to create the poll."
	msgInvalidTarget  = "I can't post a poll in this channel."
	msgModalFailed    = "There was an error showing the poll creation modal."
	msgUnknownCommand = "Unknown command."
)

// Bot 把discordgo事件分发给创建流程和单选限制
type Bot struct {
	session  *discordgo.Session
	enforcer *poll.Enforcer
	flow     *intake.Flow
	guildID  string
	logger   *zap.Logger
}

// New 创建Bot，guildID为空时注册全局命令
func New(session *discordgo.Session, enforcer *poll.Enforcer, flow *intake.Flow, guildID string, logger *zap.Logger) *Bot {
	return &Bot{
		session:  session,
		enforcer: enforcer,
		flow:     flow,
		guildID:  guildID,
		logger:   logger.Named("bot"),
	}
}

// SelfID 返回当前登录的机器人用户ID，未就绪时为空
func SelfID(s *discordgo.Session) func() string {
	return func() string {
		if s.State == nil || s.State.User == nil {
			return ""
		}
		return s.State.User.ID
	}
}

// Open 注册事件处理并连接网关
func (b *Bot) Open() error {
	b.session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onReactionAdd)
	b.session.AddHandler(b.onInteraction)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("连接Discord网关失败: %w", err)
	}
	return nil
}

// Close 断开网关连接
func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("已登录Discord", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))

	if _, err := s.ApplicationCommandBulkOverwrite(r.User.ID, b.guildID, commands); err != nil {
		b.logger.Error("注册斜杠命令失败", zap.String("guild_id", b.guildID), zap.Error(err))
		return
	}
	b.logger.Info("斜杠命令注册成功", zap.Int("count", len(commands)), zap.String("guild_id", b.guildID))
}

func (b *Bot) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	b.enforcer.HandleReactionAdd(ctx, poll.ReactionEvent{
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Symbol:    r.Emoji.APIName(),
		IsBot:     r.Member != nil && r.Member.User != nil && r.Member.User.Bot,
	})
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(s, i)
	case discordgo.InteractionModalSubmit:
		b.handleModal(ctx, s, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(ctx, s, i)
	}
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	switch data.Name {
	case "pollie":
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: pollModal(),
		})
		if err != nil {
			b.logger.Error("显示创建表单失败", zap.Error(err))
			b.respondEphemeral(s, i, msgModalFailed)
		}
	case "ping":
		b.respond(s, i, &discordgo.InteractionResponseData{Content: "Pong!"})
	default:
		b.respondEphemeral(s, i, msgUnknownCommand)
	}
}

func (b *Bot) handleModal(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	if data.CustomID != intake.ModalID {
		return
	}

	draft, err := b.flow.Begin(ctx, modalInput(data), targetOf(i))
	if err != nil {
		b.logger.Warn("创建投票草稿失败", zap.String("user_id", interactionAuthor(i).ID), zap.Error(err))
		b.respondEphemeral(s, i, userMessage(err))
		return
	}

	b.respond(s, i, &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{previewEmbed(draft)},
		Components: previewComponents(draft),
		Flags:      discordgo.MessageFlagsEphemeral,
	})
}

func (b *Bot) handleComponent(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	kind, err := intake.ParseKind(data.CustomID)
	if err != nil {
		b.logger.Debug("忽略未知组件", zap.String("custom_id", data.CustomID))
		return
	}
	userID := interactionAuthor(i).ID

	switch kind {
	case intake.KindVoteMode, intake.KindDuration, intake.KindRecurrence:
		draft, err := b.flow.Select(ctx, userID, data.CustomID, data.Values)
		if err != nil {
			b.logger.Warn("更新投票草稿失败", zap.String("user_id", userID), zap.Error(err))
			b.respondEphemeral(s, i, userMessage(err))
			return
		}
		b.update(s, i, &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{previewEmbed(draft)},
			Components: previewComponents(draft),
		})
	case intake.KindSubmit:
		b.submit(ctx, s, i, userID)
	case intake.KindCancel:
		if err := b.flow.Cancel(ctx, userID); err != nil {
			b.logger.Warn("删除投票草稿失败", zap.String("user_id", userID), zap.Error(err))
		}
		b.update(s, i, &discordgo.InteractionResponseData{
			Content:    msgCanceled,
			Embeds:     []*discordgo.MessageEmbed{},
			Components: []discordgo.MessageComponent{},
		})
	}
}

// submit 先确认交互，发布完成后再编辑预览消息
func (b *Bot) submit(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, userID string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		b.logger.Error("确认交互失败", zap.Error(err))
		return
	}

	posted, err := b.flow.Submit(ctx, userID)
	if err != nil {
		b.logger.Error("发布投票失败", zap.String("user_id", userID), zap.Error(err))
		content := userMessage(err)
		b.edit(s, i, &discordgo.WebhookEdit{Content: &content})
		return
	}

	record := posted.Poll
	b.logger.Info("投票已发布",
		zap.String("poll_id", record.ID),
		zap.String("channel_id", record.ChannelID),
		zap.String("user_id", userID))

	content := fmt.Sprintf("<@%s>, the poll has been created!", userID)
	embeds := []*discordgo.MessageEmbed{}
	components := jumpComponents(jumpURL(record.GuildID, record.ChannelID, record.MessageID))
	b.edit(s, i, &discordgo.WebhookEdit{Content: &content, Embeds: &embeds, Components: &components})
}

func (b *Bot) respond(s *discordgo.Session, i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.logger.Error("回复交互失败", zap.Error(err))
	}
}

func (b *Bot) respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	b.respond(s, i, &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral})
}

func (b *Bot) update(s *discordgo.Session, i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: data,
	})
	if err != nil {
		b.logger.Error("更新交互消息失败", zap.Error(err))
	}
}

func (b *Bot) edit(s *discordgo.Session, i *discordgo.InteractionCreate, edit *discordgo.WebhookEdit) {
	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		b.logger.Error("编辑交互回复失败", zap.Error(err))
	}
}

func targetOf(i *discordgo.InteractionCreate) model.Target {
	return model.Target{GuildID: i.GuildID, ChannelID: i.ChannelID, Author: interactionAuthor(i)}
}

// userMessage 把内部错误转换为展示给用户的文字
func userMessage(err error) string {
	switch {
	case errors.Is(err, intake.ErrNoDraft):
		return msgNoDraft
	case errors.Is(err, lifecycle.ErrInvalidTarget):
		return msgInvalidTarget
	case errors.Is(err, lifecycle.ErrInvalidRequest):
		return fmt.Sprintf("Invalid poll: a question and 2 to %d choices are required.", poll.MaxOptions)
	default:
		return msgCreateFailed
	}
}
