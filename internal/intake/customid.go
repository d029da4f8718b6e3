package intake

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind 预览界面中组件的类型
type Kind string

const (
	KindVoteMode   Kind = "voteMode"
	KindDuration   Kind = "pollDuration"
	KindRecurrence Kind = "pollRecurrence"
	KindSubmit     Kind = "submitPoll"
	KindCancel     Kind = "cancelPoll"

	// ModalID 创建投票的表单ID
	ModalID = "pollie/pollCreateModal"

	customIDPrefix = "pollie"
)

// CustomID 组件ID: pollie/<kind>/<nonce>，nonce保证每次重绘的组件ID不同
func CustomID(kind Kind) string {
	return customIDPrefix + "/" + string(kind) + "/" + uuid.NewString()[:8]
}

// ParseKind 解析组件ID中的类型，只接受已知类型
func ParseKind(customID string) (Kind, error) {
	parts := strings.Split(customID, "/")
	if len(parts) != 3 || parts[0] != customIDPrefix {
		return "", fmt.Errorf("无法识别的组件ID %q", customID)
	}

	switch kind := Kind(parts[1]); kind {
	case KindVoteMode, KindDuration, KindRecurrence, KindSubmit, KindCancel:
		return kind, nil
	default:
		return "", fmt.Errorf("未知的组件类型 %q", parts[1])
	}
}
