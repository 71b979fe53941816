package domain

import "time"

// Store 聚合消息核心所需的全部存储操作。
//
// 三个实现：memory（开发与测试）、sql（GORM，MySQL/PostgreSQL）、
// postgres（pgx 连接池）。服务层只依赖这个接口。
type Store interface {
	// ========== Message Repository ==========
	SaveMessage(message *Message) error
	GetMessage(id string) (*Message, error)
	// ListMessages 返回某账号邮箱中属于指定文件夹视图的副本
	ListMessages(ownerID string, folder Folder) ([]Message, error)
	// SearchMessages 在文件夹视图内做标题/正文的自由文本匹配
	SearchMessages(ownerID string, folder Folder, query string) ([]Message, error)
	SetMessageRead(id string, read bool) error
	SetMessageDeleted(id string, deleted bool) error
	// MarkAllRead 单条语句批量置已读，返回受影响的行数
	MarkAllRead(ownerID string) (int, error)
	// CountActiveUnread 统计活跃且未读的副本数量（未读计数的实时值）
	CountActiveUnread(ownerID string) (int, error)
	// CountDistinctSpamRecipients 统计 since 之后某账号发出的、被收件方
	// 判为垃圾的副本覆盖了多少个不同收件人（自动封禁的证据口径）
	CountDistinctSpamRecipients(fromID string, since time.Time) (int, error)

	// ========== Account Repository ==========
	CreateAccount(account *Account) error
	GetAccount(id string) (*Account, error)
	GetAccountByName(name string) (*Account, error)
	UpdateAccount(account *Account) error
	// SetUnreadCount 回写缓存的未读计数
	SetUnreadCount(accountID string, count int) error

	// ========== Ban Repository ==========
	CreateBan(ban *Ban) error
	HasActiveBan(accountID string, at time.Time) (bool, error)
	ListBans(accountID string) ([]Ban, error)

	// ========== 事务与锁 ==========
	// WithTransaction 在一个原子事务中执行 fn，fn 返回错误时回滚全部写入
	WithTransaction(fn func(tx Store) error) error
	// WithAccountLock 持有以账号为粒度的排他锁执行 fn，
	// 同一邮箱的并发重算互相串行，不同邮箱互不阻塞
	WithAccountLock(accountID string, fn func(tx Store) error) error

	// ========== 工具方法 ==========
	Close() error
	Health() error
}
