package model

import (
	"time"
)

// VoteMode 投票模式
type VoteMode string

const (
	VoteModeSingle   VoteMode = "single"
	VoteModeMultiple VoteMode = "multiple"
)

// Valid 是否为已知的投票模式
func (m VoteMode) Valid() bool {
	return m == VoteModeSingle || m == VoteModeMultiple
}

// Author 创建者快照，创建时记录，之后不再重新获取
type Author struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarURL,omitempty"`
}

// Poll 投票记录（持久化）
type Poll struct {
	ID                string     `json:"id"`
	GuildID           string     `json:"guildId"`
	ChannelID         string     `json:"channelId"`
	MessageID         string     `json:"messageId"`
	Question          string     `json:"question"`
	Options           []string   `json:"options"`
	RandomizerOptions []string   `json:"randomizerOptions"`
	VoteMode          VoteMode   `json:"voteMode"`
	Author            Author     `json:"author"`
	StartDate         time.Time  `json:"startDate"`
	EndDate           time.Time  `json:"endDate"`
	Duration          string     `json:"duration"`
	Recurrence        string     `json:"recurrence"`
	NextRun           *time.Time `json:"nextRun,omitempty"`
}

// Recurring 是否会在关闭后生成下一轮
func (p *Poll) Recurring() bool {
	return p.Recurrence != RecurrenceNone && len(p.RandomizerOptions) > 0
}

// Target 投票发布的位置以及作者
type Target struct {
	GuildID   string
	ChannelID string
	Author    Author
}

// Target 返回记录中保存的发布位置
func (p *Poll) Target() Target {
	return Target{GuildID: p.GuildID, ChannelID: p.ChannelID, Author: p.Author}
}

// PollRequest 创建流程完成后的投票请求
type PollRequest struct {
	Question          string   `json:"question"`
	Choices           []string `json:"choices"`
	VoteMode          VoteMode `json:"voteMode"`
	Duration          string   `json:"duration"`
	Recurrence        string   `json:"recurrence"`
	RandomizerOptions []string `json:"randomizerOptions"`
}

// OptionTally 单个选项的计票结果
type OptionTally struct {
	Option string `json:"option"`
	Votes  int    `json:"votes"`
}

// PollResult 一轮投票的结果（历史记录）
type PollResult struct {
	ID        int64         `json:"id"`
	PollID    string        `json:"pollId"`
	MessageID string        `json:"messageId"`
	Question  string        `json:"question"`
	Tallies   []OptionTally `json:"tallies"`
	ClosedAt  time.Time     `json:"closedAt"`
}

// PollEventType 生命周期事件类型
type PollEventType string

const (
	EventPosted      PollEventType = "poll.posted"
	EventClosed      PollEventType = "poll.closed"
	EventRecurred    PollEventType = "poll.recurred"
	EventChainBroken PollEventType = "poll.chain_broken"
	EventDangling    PollEventType = "poll.dangling"
)

// PollEvent Kafka生命周期事件
type PollEvent struct {
	Type       PollEventType `json:"type"`
	PollID     string        `json:"pollId"`
	MessageID  string        `json:"messageId"`
	ChannelID  string        `json:"channelId"`
	Question   string        `json:"question"`
	Tallies    []OptionTally `json:"tallies,omitempty"`
	Error      string        `json:"error,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// PollDraft 创建流程中尚未提交的投票（按用户保存）
type PollDraft struct {
	UserID            string    `json:"userId"`
	GuildID           string    `json:"guildId"`
	ChannelID         string    `json:"channelId"`
	Author            Author    `json:"author"`
	Question          string    `json:"question"`
	Choices           []string  `json:"choices"`
	RandomizerOptions []string  `json:"randomizerOptions"`
	VoteMode          VoteMode  `json:"voteMode"`
	Duration          string    `json:"duration"`
	Recurrence        string    `json:"recurrence"`
	CreatedAt         time.Time `json:"createdAt"`
}
