package utils

import (
	"github.com/google/uuid"
)

// NewID 生成随机 UUID v4 字符串，用于会话和上传文件名
func NewID() string {
	return uuid.NewString()
}

// IsID 判断字符串是否为合法的 UUID
func IsID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
