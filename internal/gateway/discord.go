package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

// 单次获取反应用户的上限（Discord接口最大100）
const reactionUsersPageSize = 100

// Discord 基于discordgo会话的Gateway实现
type Discord struct {
	session *discordgo.Session
}

// NewDiscord 创建Discord网关
func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{session: session}
}

// FetchChannel 获取频道
func (d *Discord) FetchChannel(ctx context.Context, channelID string) (*Channel, error) {
	ch, err := d.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapRESTError("获取频道", err)
	}
	return &Channel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}, nil
}

// SendMessage 发送嵌入式消息
func (d *Discord) SendMessage(ctx context.Context, channelID string, content Content) (*Message, error) {
	msg, err := d.session.ChannelMessageSendEmbed(channelID, toEmbed(content), discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapRESTError("发送消息", err)
	}
	return toMessage(msg), nil
}

// AddReaction 添加表情
func (d *Discord) AddReaction(ctx context.Context, channelID, messageID, symbol string) error {
	if err := d.session.MessageReactionAdd(channelID, messageID, symbol, discordgo.WithContext(ctx)); err != nil {
		return wrapRESTError("添加表情", err)
	}
	return nil
}

// RemoveAllReactions 移除消息上的所有表情
func (d *Discord) RemoveAllReactions(ctx context.Context, channelID, messageID string) error {
	if err := d.session.MessageReactionsRemoveAll(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return wrapRESTError("移除所有表情", err)
	}
	return nil
}

// FetchMessage 获取消息及其反应计数
func (d *Discord) FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error) {
	msg, err := d.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapRESTError("获取消息", err)
	}
	return toMessage(msg), nil
}

// DeleteMessage 删除消息
func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := d.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return wrapRESTError("删除消息", err)
	}
	return nil
}

// UserReactions 逐个表情查询反应用户，找出该用户的所有表情
func (d *Discord) UserReactions(ctx context.Context, channelID, messageID, userID string) ([]string, error) {
	msg, err := d.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapRESTError("获取消息", err)
	}

	var symbols []string
	for _, r := range msg.Reactions {
		if r == nil || r.Emoji == nil {
			continue
		}
		emoji := r.Emoji.APIName()
		found, err := d.hasUserReacted(ctx, channelID, messageID, emoji, userID)
		if err != nil {
			return nil, err
		}
		if found {
			symbols = append(symbols, emoji)
		}
	}
	return symbols, nil
}

func (d *Discord) hasUserReacted(ctx context.Context, channelID, messageID, emoji, userID string) (bool, error) {
	after := ""
	for {
		users, err := d.session.MessageReactions(channelID, messageID, emoji, reactionUsersPageSize, "", after, discordgo.WithContext(ctx))
		if err != nil {
			return false, wrapRESTError("获取反应用户", err)
		}
		for _, u := range users {
			if u.ID == userID {
				return true, nil
			}
		}
		if len(users) < reactionUsersPageSize {
			return false, nil
		}
		after = users[len(users)-1].ID
	}
}

// RemoveUserReaction 移除某个用户的某个表情
func (d *Discord) RemoveUserReaction(ctx context.Context, channelID, messageID, symbol, userID string) error {
	if err := d.session.MessageReactionRemove(channelID, messageID, symbol, userID, discordgo.WithContext(ctx)); err != nil {
		return wrapRESTError("移除用户表情", err)
	}
	return nil
}

func toEmbed(c Content) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       c.Title,
		Description: c.Description,
		Color:       c.Color,
	}
	if c.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: c.Footer}
	}
	if c.AuthorName != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: c.AuthorName, IconURL: c.AuthorIcon}
	}
	if !c.Timestamp.IsZero() {
		embed.Timestamp = c.Timestamp.Format(time.RFC3339)
	}
	return embed
}

func toMessage(msg *discordgo.Message) *Message {
	out := &Message{ID: msg.ID, ChannelID: msg.ChannelID, GuildID: msg.GuildID}
	for _, r := range msg.Reactions {
		if r == nil || r.Emoji == nil {
			continue
		}
		out.Reactions = append(out.Reactions, Reaction{Symbol: r.Emoji.Name, Count: r.Count})
	}
	return out
}

// wrapRESTError 把404映射为ErrNotFound，其余错误带上操作名返回
func wrapRESTError(op string, err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s失败: %w", op, err)
}
