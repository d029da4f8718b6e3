package lifecycle

import "errors"

var (
	// ErrInvalidRequest 创建请求不合法（问题为空、选项数量不对、未知模式等）
	ErrInvalidRequest = errors.New("无效的投票请求")
	// ErrInvalidTarget 频道或作者无法解析
	ErrInvalidTarget = errors.New("无法解析投票目标")
)
