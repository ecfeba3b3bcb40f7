package models

import "errors"

// 以下是整个系统共享的错误分类。各层通过 fmt.Errorf("...: %w", err) 包装，
// 调用方使用 errors.Is 判断类别。
var (
	// ErrUnauthorized 表示没有有效会话，或者访问了自己不是成员的私有工作区。
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden 表示已认证但角色权限不足。
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidName 表示名称为空或只包含空白字符。
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidMove 表示移动会让文件夹成为自己的后代，或者跨工作区引用。
	ErrInvalidMove = errors.New("invalid move")
	// ErrNotFound 表示引用了不存在（或已删除）的实体。
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable 表示外部协作方（代码执行、生成式文本、邮件、认证）超时或出错。
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrConflict 表示违反唯一性约束，例如重复的成员记录。
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput 表示请求参数不合法。
	ErrInvalidInput = errors.New("invalid input")
	// ErrDraining 表示会话正在关闭，不再接受新的修改。
	ErrDraining = errors.New("session draining")
)

// ErrorCode 返回错误类别的机器可读编码，REST 响应和 WebSocket 错误帧共用。
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, ErrInvalidMove):
		return "invalid_move"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrDraining):
		return "draining"
	default:
		return "internal"
	}
}
