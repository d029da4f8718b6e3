package poll

import (
	"github.com/c0du/discord-bot-pollie/internal/gateway"
	"github.com/c0du/discord-bot-pollie/internal/model"
)

// Alphabet 投票表情，第i个选项对应第i个表情
var Alphabet = []string{"🇦", "🇧", "🇨", "🇩", "🇪", "🇫", "🇬", "🇭", "🇮", "🇯"}

// MaxOptions 单个投票最多的选项数
var MaxOptions = len(Alphabet)

// Symbol 返回第i个选项的表情，越界时返回空串
func Symbol(i int) string {
	if i < 0 || i >= len(Alphabet) {
		return ""
	}
	return Alphabet[i]
}

// Letter 选项在消息中展示的字母（A、B、C...）
func Letter(i int) string {
	return string(rune('A' + i))
}

// Tally 按位置计票：表情计数减去机器人自己的一个，最小为0
func Tally(options []string, msg *gateway.Message) []model.OptionTally {
	tallies := make([]model.OptionTally, 0, len(options))
	for i, option := range options {
		votes := 0
		if symbol := Symbol(i); symbol != "" && msg != nil {
			votes = msg.ReactionCount(symbol) - 1
			if votes < 0 {
				votes = 0
			}
		}
		tallies = append(tallies, model.OptionTally{Option: option, Votes: votes})
	}
	return tallies
}
