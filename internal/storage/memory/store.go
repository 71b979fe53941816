package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"privmail/backend/internal/domain"
	"privmail/backend/internal/storage"
)

// Store 使用内存保存消息与账号数据，主要用于开发验证与测试。
//
// 事务通过快照实现：WithTransaction 串行执行，fn 失败时整体恢复，
// 与 SQL 实现的回滚语义保持一致。
type Store struct {
	mu       sync.RWMutex
	messages map[string]*domain.Message // messageID -> message
	accounts map[string]*domain.Account // accountID -> account
	byName   map[string]string          // name -> accountID
	bans     map[string][]*domain.Ban   // accountID -> bans

	// txMu 串行化事务；快照恢复要求事务之间互斥
	txMu sync.Mutex

	// 账号粒度的排他锁
	lockMu       sync.Mutex
	accountLocks map[string]*sync.Mutex
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		messages:     make(map[string]*domain.Message),
		accounts:     make(map[string]*domain.Account),
		byName:       make(map[string]string),
		bans:         make(map[string][]*domain.Ban),
		accountLocks: make(map[string]*sync.Mutex),
	}
}

// ========== Message Repository ==========

// SaveMessage 保存一份消息副本。
func (s *Store) SaveMessage(message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *message
	s.messages[message.ID] = &copied
	return nil
}

// GetMessage 根据 ID 获取消息副本。
func (s *Store) GetMessage(id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	message, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	copied := *message
	return &copied, nil
}

// ListMessages 返回某账号邮箱中属于指定文件夹的副本，按创建时间倒序。
func (s *Store) ListMessages(ownerID string, folder domain.Folder) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, 0)
	for _, message := range s.messages {
		if message.OwnerID != ownerID {
			continue
		}
		if !folder.Matches(message) {
			continue
		}
		out = append(out, *message)
	}
	sortMessages(out)
	return out, nil
}

// SearchMessages 在文件夹视图内做标题/正文的自由文本匹配。
func (s *Store) SearchMessages(ownerID string, folder domain.Folder, query string) ([]domain.Message, error) {
	messages, err := s.ListMessages(ownerID, folder)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return messages, nil
	}

	out := make([]domain.Message, 0, len(messages))
	for _, message := range messages {
		if strings.Contains(strings.ToLower(message.Title), query) ||
			strings.Contains(strings.ToLower(message.Body), query) {
			out = append(out, message)
		}
	}
	return out, nil
}

// SetMessageRead 切换消息的已读标记。
func (s *Store) SetMessageRead(id string, read bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.messages[id]
	if !ok {
		return storage.ErrMessageNotFound
	}
	message.IsRead = read
	return nil
}

// SetMessageDeleted 切换消息的软删除标记。
func (s *Store) SetMessageDeleted(id string, deleted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.messages[id]
	if !ok {
		return storage.ErrMessageNotFound
	}
	message.IsDeleted = deleted
	return nil
}

// MarkAllRead 批量置已读，返回受影响的副本数量。
func (s *Store) MarkAllRead(ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, message := range s.messages {
		if message.OwnerID == ownerID && !message.IsDeleted && !message.IsRead {
			message.IsRead = true
			count++
		}
	}
	return count, nil
}

// CountActiveUnread 统计活跃且未读的副本数量。
func (s *Store) CountActiveUnread(ownerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, message := range s.messages {
		if message.OwnerID == ownerID && !message.IsDeleted && !message.IsRead {
			count++
		}
	}
	return count, nil
}

// CountDistinctSpamRecipients 统计 since 之后被收件方判为垃圾的
// 副本覆盖的不同收件人数量。
func (s *Store) CountDistinctSpamRecipients(fromID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sentBy := domain.SentBy(fromID)
	recipients := make(map[string]struct{})
	for _, message := range s.messages {
		if !sentBy(message) || !message.IsSpam {
			continue
		}
		if message.CreatedAt.Before(since) {
			continue
		}
		recipients[message.ToID] = struct{}{}
	}
	return len(recipients), nil
}

// ========== Account Repository ==========

// CreateAccount 创建账号。
func (s *Store) CreateAccount(account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[account.Name]; ok {
		return storage.ErrAccountExists
	}
	copied := *account
	s.accounts[account.ID] = &copied
	s.byName[account.Name] = account.ID
	return nil
}

// GetAccount 根据 ID 获取账号。
func (s *Store) GetAccount(id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

// GetAccountByName 根据名称获取账号。
func (s *Store) GetAccountByName(name string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[name]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	copied := *s.accounts[id]
	return &copied, nil
}

// UpdateAccount 更新账号。
func (s *Store) UpdateAccount(account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.accounts[account.ID]
	if !ok {
		return storage.ErrAccountNotFound
	}
	delete(s.byName, existing.Name)
	copied := *account
	copied.UpdatedAt = time.Now().UTC()
	s.accounts[account.ID] = &copied
	s.byName[account.Name] = account.ID
	return nil
}

// SetUnreadCount 回写缓存的未读计数。
func (s *Store) SetUnreadCount(accountID string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return storage.ErrAccountNotFound
	}
	account.UnreadCount = count
	return nil
}

// ========== Ban Repository ==========

// CreateBan 创建封禁记录。
func (s *Store) CreateBan(ban *domain.Ban) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *ban
	s.bans[ban.AccountID] = append(s.bans[ban.AccountID], &copied)
	return nil
}

// HasActiveBan 判断账号在给定时间点是否存在生效的封禁。
func (s *Store) HasActiveBan(accountID string, at time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ban := range s.bans[accountID] {
		if ban.Active(at) {
			return true, nil
		}
	}
	return false, nil
}

// ListBans 返回账号的全部封禁记录。
func (s *Store) ListBans(accountID string) ([]domain.Ban, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Ban, 0, len(s.bans[accountID]))
	for _, ban := range s.bans[accountID] {
		out = append(out, *ban)
	}
	return out, nil
}

// ========== 事务与锁 ==========

// WithTransaction 串行执行 fn，失败时恢复到执行前的快照。
func (s *Store) WithTransaction(fn func(tx domain.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// WithAccountLock 持有账号粒度的排他锁执行 fn。
func (s *Store) WithAccountLock(accountID string, fn func(tx domain.Store) error) error {
	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()
	return fn(s)
}

// accountLock 返回（必要时创建）账号对应的互斥锁。
func (s *Store) accountLock(accountID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	lock, ok := s.accountLocks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		s.accountLocks[accountID] = lock
	}
	return lock
}

// snapshot 深拷贝当前全部数据。
type snapshot struct {
	messages map[string]*domain.Message
	accounts map[string]*domain.Account
	byName   map[string]string
	bans     map[string][]*domain.Ban
}

func (s *Store) snapshot() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &snapshot{
		messages: make(map[string]*domain.Message, len(s.messages)),
		accounts: make(map[string]*domain.Account, len(s.accounts)),
		byName:   make(map[string]string, len(s.byName)),
		bans:     make(map[string][]*domain.Ban, len(s.bans)),
	}
	for id, message := range s.messages {
		copied := *message
		snap.messages[id] = &copied
	}
	for id, account := range s.accounts {
		copied := *account
		snap.accounts[id] = &copied
	}
	for name, id := range s.byName {
		snap.byName[name] = id
	}
	for id, bans := range s.bans {
		copiedBans := make([]*domain.Ban, 0, len(bans))
		for _, ban := range bans {
			copied := *ban
			copiedBans = append(copiedBans, &copied)
		}
		snap.bans[id] = copiedBans
	}
	return snap
}

func (s *Store) restore(snap *snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = snap.messages
	s.accounts = snap.accounts
	s.byName = snap.byName
	s.bans = snap.bans
}

// ========== 工具方法 ==========

// Close 关闭存储（内存实现为空操作）。
func (s *Store) Close() error { return nil }

// Health 健康检查（内存实现始终健康）。
func (s *Store) Health() error { return nil }

// sortMessages 按创建时间倒序排序，时间相同按 ID 保证确定性。
func sortMessages(messages []domain.Message) {
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.After(messages[j].CreatedAt)
	})
}
