package domain

import (
	"errors"
	"strings"
)

// 验证相关的错误定义
var (
	ErrTitleEmpty   = errors.New("title must not be empty")
	ErrBodyEmpty    = errors.New("body must not be empty")
	ErrTitleTooLong = errors.New("title too long (max 500 chars)")
)

// 验证常量
const (
	// MaxTitleLength 标题最大长度
	MaxTitleLength = 500
)

// ValidateContent 验证消息标题与正文。
//
// 任何发送路径都必须在写入任何行之前调用它。
func ValidateContent(title, body string) error {
	if strings.TrimSpace(title) == "" {
		return ErrTitleEmpty
	}
	if len(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if strings.TrimSpace(body) == "" {
		return ErrBodyEmpty
	}
	return nil
}
