package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"privmail/backend/internal/domain"
	"privmail/backend/internal/storage"
)

// querier 抽象连接池与事务的公共查询方法。
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store PostgreSQL 存储实现（pgx 裸 SQL）。
type Store struct {
	client *Client
	q      querier
	inTx   bool
}

// NewStore 创建 PostgreSQL 存储实例并初始化表结构。
func NewStore(client *Client) (*Store, error) {
	store := &Store{
		client: client,
		q:      client.Pool(),
	}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate 初始化表结构。
func (s *Store) migrate() error {
	ctx := context.Background()
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			display_name VARCHAR(100) NOT NULL DEFAULT '',
			email VARCHAR(255) NOT NULL DEFAULT '',
			password_hash VARCHAR(255) NOT NULL DEFAULT '',
			is_gold BOOLEAN NOT NULL DEFAULT FALSE,
			is_moderator BOOLEAN NOT NULL DEFAULT FALSE,
			receive_email_notifications BOOLEAN NOT NULL DEFAULT FALSE,
			unread_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR(36) PRIMARY KEY,
			title VARCHAR(500) NOT NULL,
			body TEXT NOT NULL,
			owner_id VARCHAR(36) NOT NULL,
			from_id VARCHAR(36) NOT NULL,
			to_id VARCHAR(36) NOT NULL DEFAULT '',
			is_spam BOOLEAN NOT NULL DEFAULT FALSE,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			creator_address VARCHAR(64) NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_owner ON messages (owner_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_autoban ON messages (from_id, is_spam, created_at)`,
		`CREATE TABLE IF NOT EXISTS bans (
			id VARCHAR(36) PRIMARY KEY,
			account_id VARCHAR(36) NOT NULL,
			banner_id VARCHAR(36) NOT NULL,
			reason VARCHAR(500) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bans_account ON bans (account_id, expires_at)`,
	}
	for _, statement := range statements {
		if _, err := s.q.Exec(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}

const messageColumns = `id, title, body, owner_id, from_id, to_id,
	is_spam, is_read, is_deleted, created_at, creator_address`

// ========== Message Repository ==========

// SaveMessage 保存一份消息副本。
func (s *Store) SaveMessage(message *domain.Message) error {
	_, err := s.q.Exec(context.Background(), `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, message.ID, message.Title, message.Body, message.OwnerID, message.FromID,
		message.ToID, message.IsSpam, message.IsRead, message.IsDeleted,
		message.CreatedAt, message.CreatorAddress)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetMessage 根据 ID 获取消息副本。
func (s *Store) GetMessage(id string) (*domain.Message, error) {
	row := s.q.QueryRow(context.Background(), `
		SELECT `+messageColumns+` FROM messages WHERE id = $1
	`, id)
	message, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return message, nil
}

// ListMessages 返回某账号邮箱中属于指定文件夹的副本，按创建时间倒序。
func (s *Store) ListMessages(ownerID string, folder domain.Folder) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE owner_id = $1` +
		folderCondition(folder) + ` ORDER BY created_at DESC, id`
	rows, err := s.q.Query(context.Background(), query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// SearchMessages 在文件夹视图内做标题/正文的自由文本匹配。
func (s *Store) SearchMessages(ownerID string, folder domain.Folder, query string) ([]domain.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListMessages(ownerID, folder)
	}

	sqlQuery := `SELECT ` + messageColumns + ` FROM messages WHERE owner_id = $1` +
		folderCondition(folder) +
		` AND (title ILIKE $2 OR body ILIKE $2) ORDER BY created_at DESC, id`
	rows, err := s.q.Query(context.Background(), sqlQuery, ownerID, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// SetMessageRead 切换消息的已读标记。
func (s *Store) SetMessageRead(id string, read bool) error {
	tag, err := s.q.Exec(context.Background(),
		`UPDATE messages SET is_read = $2 WHERE id = $1`, id, read)
	if err != nil {
		return fmt.Errorf("failed to update read flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrMessageNotFound
	}
	return nil
}

// SetMessageDeleted 切换消息的软删除标记。
func (s *Store) SetMessageDeleted(id string, deleted bool) error {
	tag, err := s.q.Exec(context.Background(),
		`UPDATE messages SET is_deleted = $2 WHERE id = $1`, id, deleted)
	if err != nil {
		return fmt.Errorf("failed to update deleted flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrMessageNotFound
	}
	return nil
}

// MarkAllRead 单条语句批量置已读，返回受影响的行数。
func (s *Store) MarkAllRead(ownerID string) (int, error) {
	tag, err := s.q.Exec(context.Background(), `
		UPDATE messages SET is_read = TRUE
		WHERE owner_id = $1 AND is_deleted = FALSE AND is_read = FALSE
	`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountActiveUnread 统计活跃且未读的副本数量。
func (s *Store) CountActiveUnread(ownerID string) (int, error) {
	var count int
	err := s.q.QueryRow(context.Background(), `
		SELECT COUNT(*) FROM messages
		WHERE owner_id = $1 AND is_deleted = FALSE AND is_read = FALSE
	`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return count, nil
}

// CountDistinctSpamRecipients 统计 since 之后被收件方判为垃圾的
// 副本覆盖的不同收件人数量。
func (s *Store) CountDistinctSpamRecipients(fromID string, since time.Time) (int, error) {
	var count int
	err := s.q.QueryRow(context.Background(), `
		SELECT COUNT(DISTINCT to_id) FROM messages
		WHERE from_id = $1 AND owner_id <> $1 AND is_spam = TRUE AND created_at >= $2
	`, fromID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count spam recipients: %w", err)
	}
	return count, nil
}

// ========== Account Repository ==========

const accountColumns = `id, name, display_name, email, password_hash, is_gold,
	is_moderator, receive_email_notifications, unread_count, created_at, updated_at`

// CreateAccount 创建账号。
func (s *Store) CreateAccount(account *domain.Account) error {
	_, err := s.q.Exec(context.Background(), `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, account.ID, account.Name, account.DisplayName, account.Email,
		account.PasswordHash, account.IsGold, account.IsModerator,
		account.ReceiveEmailNotifications, account.UnreadCount,
		account.CreatedAt, account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return storage.ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccount 根据 ID 获取账号。
func (s *Store) GetAccount(id string) (*domain.Account, error) {
	return s.getAccountWhere(`id = $1`, id)
}

// GetAccountByName 根据名称获取账号。
func (s *Store) GetAccountByName(name string) (*domain.Account, error) {
	return s.getAccountWhere(`name = $1`, name)
}

func (s *Store) getAccountWhere(condition string, arg any) (*domain.Account, error) {
	row := s.q.QueryRow(context.Background(),
		`SELECT `+accountColumns+` FROM accounts WHERE `+condition, arg)
	var account domain.Account
	err := row.Scan(&account.ID, &account.Name, &account.DisplayName, &account.Email,
		&account.PasswordHash, &account.IsGold, &account.IsModerator,
		&account.ReceiveEmailNotifications, &account.UnreadCount,
		&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// UpdateAccount 更新账号。
func (s *Store) UpdateAccount(account *domain.Account) error {
	tag, err := s.q.Exec(context.Background(), `
		UPDATE accounts SET name = $2, display_name = $3, email = $4,
			password_hash = $5, is_gold = $6, is_moderator = $7,
			receive_email_notifications = $8, unread_count = $9, updated_at = NOW()
		WHERE id = $1
	`, account.ID, account.Name, account.DisplayName, account.Email,
		account.PasswordHash, account.IsGold, account.IsModerator,
		account.ReceiveEmailNotifications, account.UnreadCount)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

// SetUnreadCount 回写缓存的未读计数。
func (s *Store) SetUnreadCount(accountID string, count int) error {
	tag, err := s.q.Exec(context.Background(), `
		UPDATE accounts SET unread_count = $2, updated_at = NOW() WHERE id = $1
	`, accountID, count)
	if err != nil {
		return fmt.Errorf("failed to set unread count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

// ========== Ban Repository ==========

// CreateBan 创建封禁记录。
func (s *Store) CreateBan(ban *domain.Ban) error {
	_, err := s.q.Exec(context.Background(), `
		INSERT INTO bans (id, account_id, banner_id, reason, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ban.ID, ban.AccountID, ban.BannerID, ban.Reason, ban.CreatedAt, ban.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create ban: %w", err)
	}
	return nil
}

// HasActiveBan 判断账号在给定时间点是否存在生效的封禁。
func (s *Store) HasActiveBan(accountID string, at time.Time) (bool, error) {
	var count int
	err := s.q.QueryRow(context.Background(), `
		SELECT COUNT(*) FROM bans WHERE account_id = $1 AND expires_at > $2
	`, accountID, at).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check active ban: %w", err)
	}
	return count > 0, nil
}

// ListBans 返回账号的全部封禁记录。
func (s *Store) ListBans(accountID string) ([]domain.Ban, error) {
	rows, err := s.q.Query(context.Background(), `
		SELECT id, account_id, banner_id, reason, created_at, expires_at
		FROM bans WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bans: %w", err)
	}
	defer rows.Close()

	bans := make([]domain.Ban, 0)
	for rows.Next() {
		var ban domain.Ban
		if err := rows.Scan(&ban.ID, &ban.AccountID, &ban.BannerID,
			&ban.Reason, &ban.CreatedAt, &ban.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan ban: %w", err)
		}
		bans = append(bans, ban)
	}
	return bans, rows.Err()
}

// ========== 事务与锁 ==========

// WithTransaction 在数据库事务中执行 fn，fn 返回错误时回滚。
func (s *Store) WithTransaction(fn func(tx domain.Store) error) error {
	if s.inTx {
		// 已在事务中，直接复用
		return fn(s)
	}

	ctx := context.Background()
	tx, err := s.client.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	txStore := &Store{client: s.client, q: tx, inTx: true}
	if err := fn(txStore); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// WithAccountLock 锁住账号行（SELECT ... FOR UPDATE）后执行 fn。
func (s *Store) WithAccountLock(accountID string, fn func(tx domain.Store) error) error {
	return s.WithTransaction(func(tx domain.Store) error {
		txStore := tx.(*Store)
		var locked string
		err := txStore.q.QueryRow(context.Background(),
			`SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return storage.ErrAccountNotFound
			}
			return fmt.Errorf("failed to lock account: %w", err)
		}
		return fn(tx)
	})
}

// ========== 工具方法 ==========

// Close 关闭数据库连接池。
func (s *Store) Close() error {
	if !s.inTx {
		s.client.Close()
	}
	return nil
}

// Health 检查数据库连接。
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.client.Ping(ctx)
}

// folderCondition 将文件夹视图翻译为 SQL 条件片段。
func folderCondition(folder domain.Folder) string {
	switch folder {
	case domain.FolderReceived:
		return ` AND is_deleted = FALSE AND owner_id = to_id`
	case domain.FolderUnread:
		return ` AND is_deleted = FALSE AND owner_id = to_id AND is_read = FALSE`
	case domain.FolderSent:
		return ` AND is_deleted = FALSE AND owner_id = from_id`
	case domain.FolderSpam:
		return ` AND is_deleted = FALSE AND is_spam = TRUE`
	case domain.FolderDeleted:
		return ` AND is_deleted = TRUE`
	default:
		return ``
	}
}

// scanMessage 从单行扫描消息。
func scanMessage(row pgx.Row) (*domain.Message, error) {
	var message domain.Message
	err := row.Scan(&message.ID, &message.Title, &message.Body, &message.OwnerID,
		&message.FromID, &message.ToID, &message.IsSpam, &message.IsRead,
		&message.IsDeleted, &message.CreatedAt, &message.CreatorAddress)
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// collectMessages 收集查询结果中的全部消息。
func collectMessages(rows pgx.Rows) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *message)
	}
	return messages, rows.Err()
}
