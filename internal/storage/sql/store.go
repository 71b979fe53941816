package sql

import (
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"privmail/backend/internal/domain"
	"privmail/backend/internal/storage"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）。
type Store struct {
	db *gorm.DB
}

// NewStore 创建 PostgreSQL 存储实例。
func NewStore(dsn string) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(dsn))
}

// NewMySQLStore 创建 MySQL 存储实例。
func NewMySQLStore(dsn string) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn))
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例。
func NewStoreWithDialector(dialector gorm.Dialector) (*Store, error) {
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	store := &Store{db: db}

	// 自动迁移数据库表
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 自动迁移数据库表结构。
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.Account{},
		&domain.Message{},
		&domain.Ban{},
	)
}

// ========== Message Repository ==========

// SaveMessage 保存一份消息副本。
func (s *Store) SaveMessage(message *domain.Message) error {
	if err := s.db.Create(message).Error; err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetMessage 根据 ID 获取消息副本。
func (s *Store) GetMessage(id string) (*domain.Message, error) {
	var message domain.Message
	if err := s.db.First(&message, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &message, nil
}

// ListMessages 返回某账号邮箱中属于指定文件夹的副本，按创建时间倒序。
func (s *Store) ListMessages(ownerID string, folder domain.Folder) ([]domain.Message, error) {
	var messages []domain.Message
	query := folderScope(s.db.Model(&domain.Message{}), folder).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id")
	if err := query.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// SearchMessages 在文件夹视图内做标题/正文的自由文本匹配。
func (s *Store) SearchMessages(ownerID string, folder domain.Folder, query string) ([]domain.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListMessages(ownerID, folder)
	}

	pattern := "%" + strings.ToLower(query) + "%"
	var messages []domain.Message
	q := folderScope(s.db.Model(&domain.Message{}), folder).
		Where("owner_id = ?", ownerID).
		Where("LOWER(title) LIKE ? OR LOWER(body) LIKE ?", pattern, pattern).
		Order("created_at DESC, id")
	if err := q.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return messages, nil
}

// SetMessageRead 切换消息的已读标记。
func (s *Store) SetMessageRead(id string, read bool) error {
	result := s.db.Model(&domain.Message{}).Where("id = ?", id).Update("is_read", read)
	if result.Error != nil {
		return fmt.Errorf("failed to update read flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrMessageNotFound
	}
	return nil
}

// SetMessageDeleted 切换消息的软删除标记。
func (s *Store) SetMessageDeleted(id string, deleted bool) error {
	result := s.db.Model(&domain.Message{}).Where("id = ?", id).Update("is_deleted", deleted)
	if result.Error != nil {
		return fmt.Errorf("failed to update deleted flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrMessageNotFound
	}
	return nil
}

// MarkAllRead 单条语句批量置已读，返回受影响的行数。
func (s *Store) MarkAllRead(ownerID string) (int, error) {
	result := s.db.Model(&domain.Message{}).
		Where("owner_id = ? AND is_deleted = ? AND is_read = ?", ownerID, false, false).
		Update("is_read", true)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark all read: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// CountActiveUnread 统计活跃且未读的副本数量。
func (s *Store) CountActiveUnread(ownerID string) (int, error) {
	var count int64
	err := s.db.Model(&domain.Message{}).
		Where("owner_id = ? AND is_deleted = ? AND is_read = ?", ownerID, false, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return int(count), nil
}

// CountDistinctSpamRecipients 统计 since 之后被收件方判为垃圾的
// 副本覆盖的不同收件人数量。只统计收件人持有的副本。
func (s *Store) CountDistinctSpamRecipients(fromID string, since time.Time) (int, error) {
	var count int64
	err := s.db.Model(&domain.Message{}).
		Where("from_id = ? AND owner_id <> ? AND is_spam = ? AND created_at >= ?",
			fromID, fromID, true, since).
		Distinct("to_id").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count spam recipients: %w", err)
	}
	return int(count), nil
}

// ========== Account Repository ==========

// CreateAccount 创建账号。
func (s *Store) CreateAccount(account *domain.Account) error {
	var existing domain.Account
	err := s.db.First(&existing, "name = ?", account.Name).Error
	if err == nil {
		return storage.ErrAccountExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if err := s.db.Create(account).Error; err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccount 根据 ID 获取账号。
func (s *Store) GetAccount(id string) (*domain.Account, error) {
	var account domain.Account
	if err := s.db.First(&account, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetAccountByName 根据名称获取账号。
func (s *Store) GetAccountByName(name string) (*domain.Account, error) {
	var account domain.Account
	if err := s.db.First(&account, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by name: %w", err)
	}
	return &account, nil
}

// UpdateAccount 更新账号。
func (s *Store) UpdateAccount(account *domain.Account) error {
	result := s.db.Model(&domain.Account{}).Where("id = ?", account.ID).Updates(account)
	if result.Error != nil {
		return fmt.Errorf("failed to update account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

// SetUnreadCount 回写缓存的未读计数。
func (s *Store) SetUnreadCount(accountID string, count int) error {
	result := s.db.Model(&domain.Account{}).Where("id = ?", accountID).Update("unread_count", count)
	if result.Error != nil {
		return fmt.Errorf("failed to set unread count: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

// ========== Ban Repository ==========

// CreateBan 创建封禁记录。
func (s *Store) CreateBan(ban *domain.Ban) error {
	if err := s.db.Create(ban).Error; err != nil {
		return fmt.Errorf("failed to create ban: %w", err)
	}
	return nil
}

// HasActiveBan 判断账号在给定时间点是否存在生效的封禁。
func (s *Store) HasActiveBan(accountID string, at time.Time) (bool, error) {
	var count int64
	err := s.db.Model(&domain.Ban{}).
		Where("account_id = ? AND expires_at > ?", accountID, at).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check active ban: %w", err)
	}
	return count > 0, nil
}

// ListBans 返回账号的全部封禁记录。
func (s *Store) ListBans(accountID string) ([]domain.Ban, error) {
	var bans []domain.Ban
	err := s.db.Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&bans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bans: %w", err)
	}
	return bans, nil
}

// ========== 事务与锁 ==========

// WithTransaction 在数据库事务中执行 fn，fn 返回错误时回滚。
func (s *Store) WithTransaction(fn func(tx domain.Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// WithAccountLock 锁住账号行（SELECT ... FOR UPDATE）后执行 fn，
// 同一账号的并发重算在数据库层面互相串行。
func (s *Store) WithAccountLock(accountID string, fn func(tx domain.Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var account domain.Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&account, "id = ?", accountID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return storage.ErrAccountNotFound
			}
			return fmt.Errorf("failed to lock account: %w", err)
		}
		return fn(&Store{db: tx})
	})
}

// ========== 工具方法 ==========

// Close 关闭数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接。
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// folderScope 将文件夹视图翻译为查询条件。
func folderScope(query *gorm.DB, folder domain.Folder) *gorm.DB {
	switch folder {
	case domain.FolderReceived:
		return query.Where("is_deleted = ? AND owner_id = to_id", false)
	case domain.FolderUnread:
		return query.Where("is_deleted = ? AND owner_id = to_id AND is_read = ?", false, false)
	case domain.FolderSent:
		return query.Where("is_deleted = ? AND owner_id = from_id", false)
	case domain.FolderSpam:
		return query.Where("is_deleted = ? AND is_spam = ?", false, true)
	case domain.FolderDeleted:
		return query.Where("is_deleted = ?", true)
	default:
		return query
	}
}
