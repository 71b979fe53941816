package storage

import (
	"errors"
	"time"

	"privmail/backend/internal/domain"
)

var (
	// ErrMessageNotFound 消息不存在错误
	ErrMessageNotFound = errors.New("message not found")
	// ErrAccountNotFound 账号不存在错误
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists 账号已存在错误
	ErrAccountExists = errors.New("account already exists")
)

// MessageRepository 定义消息副本的数据存取操作。
type MessageRepository interface {
	SaveMessage(message *domain.Message) error
	GetMessage(id string) (*domain.Message, error)
	ListMessages(ownerID string, folder domain.Folder) ([]domain.Message, error)
	SearchMessages(ownerID string, folder domain.Folder, query string) ([]domain.Message, error)
	SetMessageRead(id string, read bool) error
	SetMessageDeleted(id string, deleted bool) error
	MarkAllRead(ownerID string) (int, error)
	CountActiveUnread(ownerID string) (int, error)
	CountDistinctSpamRecipients(fromID string, since time.Time) (int, error)
}

// AccountRepository 定义账号数据存取操作。
type AccountRepository interface {
	CreateAccount(account *domain.Account) error
	GetAccount(id string) (*domain.Account, error)
	GetAccountByName(name string) (*domain.Account, error)
	UpdateAccount(account *domain.Account) error
	SetUnreadCount(accountID string, count int) error
}

// BanRepository 定义封禁记录的数据存取操作。
type BanRepository interface {
	CreateBan(ban *domain.Ban) error
	HasActiveBan(accountID string, at time.Time) (bool, error)
	ListBans(accountID string) ([]domain.Ban, error)
}

// TxRunner 定义事务与账号级锁。
type TxRunner interface {
	WithTransaction(fn func(tx domain.Store) error) error
	WithAccountLock(accountID string, fn func(tx domain.Store) error) error
}

// Store 定义完整的存储接口。
type Store interface {
	MessageRepository
	AccountRepository
	BanRepository
	TxRunner

	// 工具方法
	Close() error
	Health() error
}

// RateLimitRepository 定义限流操作（Redis 实现）。
type RateLimitRepository interface {
	IncrementRateLimit(key string, window time.Duration) (int64, error)
	GetRateLimit(key string) (int64, error)
}

// JWTRepository 定义 JWT 黑名单操作（Redis 实现）。
type JWTRepository interface {
	AddToBlacklist(jti string, ttl time.Duration) error
	IsBlacklisted(jti string) (bool, error)
}
