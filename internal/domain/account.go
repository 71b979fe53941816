package domain

import (
	"net/mail"
	"strings"
	"time"
)

// SystemAccountName 系统账号的固定名称，自动消息与自动封禁都以它为操作者。
const SystemAccountName = "system"

// Account 表示消息系统中的账号实体。
//
// UnreadCount 是派生的缓存聚合：始终等于该账号邮箱中
// 活跃（IsDeleted=false）且未读（IsRead=false）副本的实时数量，
// 由 CounterService 在互斥保护下重算并回写。
type Account struct {
	ID           string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name         string `json:"name" gorm:"uniqueIndex;type:varchar(100);not null"`
	DisplayName  string `json:"displayName" gorm:"type:varchar(100)"`
	Email        string `json:"email" gorm:"type:varchar(255)"`
	PasswordHash string `json:"-" gorm:"type:varchar(255)"`
	// IsGold 金牌/已验证账号，无条件豁免自动封禁
	IsGold      bool `json:"isGold" gorm:"default:false"`
	IsModerator bool `json:"isModerator" gorm:"default:false"`
	// ReceiveEmailNotifications 收到新消息时是否发送邮件提醒
	ReceiveEmailNotifications bool      `json:"receiveEmailNotifications" gorm:"default:false"`
	UnreadCount               int       `json:"unreadCount" gorm:"default:0"`
	CreatedAt                 time.Time `json:"createdAt"`
	UpdatedAt                 time.Time `json:"updatedAt"`
}

// IsSystem 判断账号是否为系统账号。
func (a *Account) IsSystem() bool {
	return a.Name == SystemAccountName
}

// WantsEmailNotification 判断账号是否满足邮件提醒的全部前提：
// 开启了通知开关且邮箱地址语法上可信。
func (a *Account) WantsEmailNotification() bool {
	if !a.ReceiveEmailNotifications {
		return false
	}
	return PlausibleEmail(a.Email)
}

// PlausibleEmail 判断地址是否语法上可信（非空且可被解析）。
func PlausibleEmail(address string) bool {
	address = strings.TrimSpace(address)
	if address == "" {
		return false
	}
	_, err := mail.ParseAddress(address)
	return err == nil
}

// Ban 表示一条封禁记录。
//
// 由 AutobanService 以系统账号身份创建，或由管理操作创建。
type Ban struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AccountID string    `json:"accountId" gorm:"type:varchar(36);index;not null"`
	BannerID  string    `json:"bannerId" gorm:"type:varchar(36);not null"`
	Reason    string    `json:"reason" gorm:"type:varchar(500)"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"index"`
}

// Active 判断封禁在给定时间点是否仍然生效。
func (b *Ban) Active(at time.Time) bool {
	return at.Before(b.ExpiresAt)
}
