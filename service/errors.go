package service

import "errors"

var (
	// ErrInvalidInput 请求体或坐标格式错误
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidSession 会话不存在或已关闭
	ErrInvalidSession = errors.New("invalid session")
	// ErrNotFound 文件不存在
	ErrNotFound = errors.New("not found")
	// ErrImageLoad 文件存在但无法解码为图像
	ErrImageLoad = errors.New("image load failed")
	// ErrModelUnavailable 模型不可用，调用方应回退到模拟结果而不是报错
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrTooManySessions 活跃会话数达到上限
	ErrTooManySessions = errors.New("too many sessions")
	ErrInternal        = errors.New("internal error")
)
