package utils

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// BytesMD5 计算字节数组MD5
func BytesMD5(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// CacheKey 用 ":" 拼接缓存键的各个部分
func CacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}
