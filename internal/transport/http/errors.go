package httptransport

import (
	"privmail/backend/internal/auth"
	"privmail/backend/internal/auth/messagekey"
	"privmail/backend/internal/domain"
	"privmail/backend/internal/service"
	"privmail/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 内容校验错误
	domain.ErrTitleEmpty:   "标题不能为空",
	domain.ErrBodyEmpty:    "正文不能为空",
	domain.ErrTitleTooLong: "标题超出长度限制",

	// 投递错误
	service.ErrSenderBanned: "账号处于封禁期，无法发送消息",

	// 读路径错误
	service.ErrNotVisible:    "无权查看该消息",
	service.ErrNotOwner:      "只能操作自己的消息",
	service.ErrInvalidFolder: "未知的文件夹",

	// 访问密钥错误
	messagekey.ErrInvalidKey: "访问密钥无效",

	// 存储错误
	storage.ErrMessageNotFound: "消息不存在",
	storage.ErrAccountNotFound: "账号不存在",
	storage.ErrAccountExists:   "账号已存在",

	// 认证错误
	auth.ErrInvalidName:        "账号名格式无效",
	auth.ErrInvalidPassword:    "密码长度不足",
	auth.ErrNameExists:         "账号名已被占用",
	auth.ErrInvalidCredentials: "用户名或密码错误",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	MsgInvalidRequest = "请求参数格式错误"

	MsgAuthRequired  = "需要登录认证"
	MsgTokenExpired  = "登录已过期，请重新登录"
	MsgTokenInvalid  = "无效的访问令牌"
	MsgLoginFailed   = "登录失败"
	MsgAccountFailed = "获取账号信息失败"

	MsgMessageNotFound     = "消息不存在"
	MsgMessageSendFailed   = "发送消息失败"
	MsgMessageListFailed   = "获取消息列表失败"
	MsgMessageGetFailed    = "获取消息详情失败"
	MsgMessageUpdateFailed = "更新消息状态失败"
	MsgLinkIssueFailed     = "生成消息链接失败"

	MsgInternalError = "服务器内部错误，请稍后重试"
)
