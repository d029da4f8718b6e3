package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/c0du/discord-bot-pollie/internal/gateway"
	"github.com/c0du/discord-bot-pollie/internal/model"
	"github.com/c0du/discord-bot-pollie/internal/poll"
)

const embedColor = 0x00AE86

func pollContent(req model.PollRequest, author model.Author, at time.Time) gateway.Content {
	lines := make([]string, 0, len(req.Choices))
	for i, choice := range req.Choices {
		lines = append(lines, fmt.Sprintf("**%s**: %s", poll.Letter(i), choice))
	}

	return gateway.Content{
		Title:       req.Question,
		Description: strings.Join(lines, "\n"),
		Color:       embedColor,
		Footer:      "React to vote!",
		AuthorName:  author.Username,
		AuthorIcon:  author.AvatarURL,
		Timestamp:   at,
	}
}

func resultsContent(record *model.Poll, tallies []model.OptionTally, at time.Time) gateway.Content {
	lines := make([]string, 0, len(tallies))
	for _, t := range tallies {
		lines = append(lines, fmt.Sprintf("**%s**: %d vote(s)", t.Option, t.Votes))
	}

	return gateway.Content{
		Title:       "Poll Ended: " + record.Question,
		Description: strings.Join(lines, "\n"),
		Color:       embedColor,
		Footer:      "Poll Results",
		AuthorName:  record.Author.Username,
		AuthorIcon:  record.Author.AvatarURL,
		Timestamp:   at,
	}
}
