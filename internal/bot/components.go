package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/c0du/discord-bot-pollie/internal/intake"
	"github.com/c0du/discord-bot-pollie/internal/model"
)

// 表单字段ID
const (
	fieldQuestion          = "pollQuestion"
	fieldFirstChoice       = "firstChoice"
	fieldSecondChoice      = "secondChoice"
	fieldAdditionalChoices = "additionalChoices"
	fieldRandomizer        = "recurrenceRandomizer"
)

const previewColor = 0x00AE86

var commands = []*discordgo.ApplicationCommand{
	{Name: "pollie", Description: "Create a poll"},
	{Name: "ping", Description: "Replies with Pong!"},
}

func pollModal() *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		CustomID: intake.ModalID,
		Title:    "Create a New Poll",
		Components: []discordgo.MessageComponent{
			textRow(fieldQuestion, "Poll Question", "What would you like to ask?", discordgo.TextInputShort, true),
			textRow(fieldFirstChoice, "First Choice", "Enter the first choice", discordgo.TextInputShort, true),
			textRow(fieldSecondChoice, "Second Choice", "Enter the second choice", discordgo.TextInputShort, true),
			textRow(fieldAdditionalChoices, "Additional Choices (Optional)",
				"Enter additional choices separated by new lines", discordgo.TextInputParagraph, false),
			textRow(fieldRandomizer, "Recurrence Randomizer (Optional)",
				"Enter additional choices for recurrence separated by new lines", discordgo.TextInputParagraph, false),
		},
	}
}

func textRow(id, label, placeholder string, style discordgo.TextInputStyle, required bool) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.TextInput{CustomID: id, Label: label, Placeholder: placeholder, Style: style, Required: required},
	}}
}

// modalInput 从表单提交数据中取出各字段的值
func modalInput(data discordgo.ModalSubmitInteractionData) intake.ModalInput {
	values := make(map[string]string)
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if in, ok := inner.(*discordgo.TextInput); ok {
				values[in.CustomID] = in.Value
			}
		}
	}

	return intake.ModalInput{
		Question:             values[fieldQuestion],
		FirstChoice:          values[fieldFirstChoice],
		SecondChoice:         values[fieldSecondChoice],
		AdditionalChoices:    values[fieldAdditionalChoices],
		RecurrenceRandomizer: values[fieldRandomizer],
	}
}

func previewEmbed(d *model.PollDraft) *discordgo.MessageEmbed {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**", d.Question)
	for i, choice := range d.Choices {
		fmt.Fprintf(&b, "\n%d. %s", i+1, choice)
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Poll Preview",
		Description: b.String(),
		Color:       previewColor,
		Author:      &discordgo.MessageEmbedAuthor{Name: d.Author.Username, IconURL: d.Author.AvatarURL},
		Footer:      &discordgo.MessageEmbedFooter{Text: "Poll Preview"},
	}
	if !d.CreatedAt.IsZero() {
		embed.Timestamp = d.CreatedAt.Format(time.RFC3339)
	}
	return embed
}

// previewComponents 预览界面的三个下拉框和按钮，当前选择标记为默认值
func previewComponents(d *model.PollDraft) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		selectRow(intake.KindVoteMode, "Select voting mode", intake.VoteModeChoices, string(d.VoteMode)),
		selectRow(intake.KindDuration, "Select poll duration", intake.DurationChoices, d.Duration),
		selectRow(intake.KindRecurrence, "Select poll recurrence", intake.RecurrenceChoices, d.Recurrence),
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: intake.CustomID(intake.KindSubmit), Label: "Submit Poll", Style: discordgo.PrimaryButton},
			discordgo.Button{CustomID: intake.CustomID(intake.KindCancel), Label: "Cancel", Style: discordgo.SecondaryButton},
		}},
	}
}

func selectRow(kind intake.Kind, placeholder string, choices []intake.Choice, current string) discordgo.ActionsRow {
	options := make([]discordgo.SelectMenuOption, 0, len(choices))
	for _, c := range choices {
		options = append(options, discordgo.SelectMenuOption{Label: c.Label, Value: c.Value, Default: c.Value == current})
	}
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.SelectMenu{
			MenuType:    discordgo.StringSelectMenu,
			CustomID:    intake.CustomID(kind),
			Placeholder: placeholder,
			Options:     options,
		},
	}}
}

func jumpURL(guildID, channelID, messageID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

func jumpComponents(url string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Jump to message", Style: discordgo.LinkButton, URL: url},
		}},
	}
}

// interactionAuthor 服务器内取Member.User，私信中取User
func interactionAuthor(i *discordgo.InteractionCreate) model.Author {
	u := i.User
	if i.Member != nil && i.Member.User != nil {
		u = i.Member.User
	}
	if u == nil {
		return model.Author{}
	}
	return model.Author{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL("")}
}
