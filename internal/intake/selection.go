package intake

import (
	"fmt"

	"github.com/c0du/discord-bot-pollie/internal/model"
)

// Selection 预览界面下拉框的一次选择
type Selection interface {
	isSelection()
}

type VoteModeSelection struct {
	Mode model.VoteMode
}

type DurationSelection struct {
	Token string
}

type RecurrenceSelection struct {
	Token string
}

func (VoteModeSelection) isSelection()   {}
func (DurationSelection) isSelection()   {}
func (RecurrenceSelection) isSelection() {}

// ParseSelection 根据组件ID和选中的值构造Selection，并校验取值
func ParseSelection(customID string, values []string) (Selection, error) {
	kind, err := ParseKind(customID)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("下拉框应选中一个值，实际%d个", len(values))
	}
	value := values[0]

	switch kind {
	case KindVoteMode:
		mode := model.VoteMode(value)
		if !mode.Valid() {
			return nil, fmt.Errorf("未知的投票模式 %q", value)
		}
		return VoteModeSelection{Mode: mode}, nil
	case KindDuration:
		if !model.ValidDuration(value) {
			return nil, fmt.Errorf("未知的投票时长 %q", value)
		}
		return DurationSelection{Token: value}, nil
	case KindRecurrence:
		if !model.ValidRecurrence(value) {
			return nil, fmt.Errorf("未知的重复周期 %q", value)
		}
		return RecurrenceSelection{Token: value}, nil
	default:
		return nil, fmt.Errorf("组件 %s 不是下拉框", kind)
	}
}

// Apply 把选择写入草稿
func Apply(draft *model.PollDraft, sel Selection) error {
	switch s := sel.(type) {
	case VoteModeSelection:
		draft.VoteMode = s.Mode
	case DurationSelection:
		draft.Duration = s.Token
	case RecurrenceSelection:
		draft.Recurrence = s.Token
	default:
		return fmt.Errorf("未知的选择类型 %T", sel)
	}
	return nil
}

// Choice 下拉框中的一个选项
type Choice struct {
	Label string
	Value string
}

var (
	VoteModeChoices = []Choice{
		{Label: "Single choice", Value: string(model.VoteModeSingle)},
		{Label: "Multiple choices", Value: string(model.VoteModeMultiple)},
	}
	DurationChoices = []Choice{
		{Label: "1 minute", Value: "1m"},
		{Label: "5 minutes", Value: "5m"},
		{Label: "10 minutes", Value: "10m"},
		{Label: "1 hour", Value: "1h"},
		{Label: "1 day", Value: "1d"},
	}
	RecurrenceChoices = []Choice{
		{Label: "Does not repeat", Value: model.RecurrenceNone},
		{Label: "Every 1 minute", Value: "1m"},
		{Label: "Every 5 minutes", Value: "5m"},
		{Label: "Every 1 hour", Value: "1h"},
		{Label: "Every day", Value: "1d"},
	}
)
