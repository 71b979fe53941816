package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"privmail/backend/internal/auth/messagekey"
	"privmail/backend/internal/domain"
)

var (
	// ErrNotVisible 当前访问者无权查看该副本
	ErrNotVisible = errors.New("message not visible to viewer")
	// ErrNotOwner 只有副本拥有者可以修改副本状态
	ErrNotOwner = errors.New("viewer does not own message")
	// ErrInvalidFolder 未知的文件夹名称
	ErrInvalidFolder = errors.New("invalid folder")
)

// UnreadPusher 向在线客户端推送未读计数变化。可为 nil。
type UnreadPusher interface {
	PushUnreadUpdate(accountID string, unread int)
}

// MessageService 实现邮箱的读路径与副本状态变更。
//
// 所有状态变更（已读、删除）都连带维护拥有者的未读计数，
// 变更与计数回写在同一账号锁事务内提交，提交后把最新计数
// 推送给拥有者的在线客户端。
type MessageService struct {
	store   domain.Store
	keys    *messagekey.Issuer
	counter *CounterService
	pusher  UnreadPusher
	log     *zap.Logger
}

// NewMessageService 创建消息读写服务。pusher 可为 nil。
func NewMessageService(store domain.Store, keys *messagekey.Issuer, counter *CounterService, pusher UnreadPusher, log *zap.Logger) *MessageService {
	return &MessageService{
		store:   store,
		keys:    keys,
		counter: counter,
		pusher:  pusher,
		log:     log,
	}
}

// Get 按可见性规则读取一份副本。
//
// 拥有者直接可见；非拥有者须携带绑定到该副本的有效访问密钥。
func (s *MessageService) Get(viewer *domain.Account, id, key string) (*domain.Message, error) {
	message, err := s.store.GetMessage(id)
	if err != nil {
		return nil, err
	}
	if !s.keys.VisibleTo(viewer, message, key) {
		return nil, ErrNotVisible
	}
	return message, nil
}

// IssueLink 为一份副本签发访问密钥，供链接分享使用。
//
// 只有拥有者可以签发。
func (s *MessageService) IssueLink(viewer *domain.Account, id string) (string, error) {
	message, err := s.store.GetMessage(id)
	if err != nil {
		return "", err
	}
	if message.OwnerID != viewer.ID {
		return "", ErrNotOwner
	}
	return s.keys.Issue(message.ID)
}

// List 返回账号邮箱中指定文件夹视图下的副本，按创建时间倒序。
func (s *MessageService) List(ownerID string, folder domain.Folder) ([]domain.Message, error) {
	if !folder.Valid() {
		return nil, ErrInvalidFolder
	}
	return s.store.ListMessages(ownerID, folder)
}

// Search 在文件夹视图内做标题/正文的自由文本检索。
func (s *MessageService) Search(ownerID string, folder domain.Folder, query string) ([]domain.Message, error) {
	if !folder.Valid() {
		return nil, ErrInvalidFolder
	}
	if query == "" {
		return s.store.ListMessages(ownerID, folder)
	}
	return s.store.SearchMessages(ownerID, folder, query)
}

// SetRead 修改一份副本的已读状态并同步未读计数。
func (s *MessageService) SetRead(viewer *domain.Account, id string, read bool) (*domain.Message, error) {
	return s.mutate(viewer, id, func(tx domain.Store, message *domain.Message) error {
		return tx.SetMessageRead(message.ID, read)
	})
}

// SetDeleted 修改一份副本的软删除标记并同步未读计数。
//
// 删除的是自己的副本，对方的副本不受影响；恢复（deleted=false）同理。
func (s *MessageService) SetDeleted(viewer *domain.Account, id string, deleted bool) (*domain.Message, error) {
	return s.mutate(viewer, id, func(tx domain.Store, message *domain.Message) error {
		return tx.SetMessageDeleted(message.ID, deleted)
	})
}

// MarkAllRead 将账号邮箱内全部活跃未读副本一次性置为已读。
//
// 批量更新用单条语句完成，无论命中多少行只做一次计数重算。
// 返回被置读的副本数。
func (s *MessageService) MarkAllRead(ownerID string) (int, error) {
	var affected, unread int
	err := s.store.WithAccountLock(ownerID, func(tx domain.Store) error {
		n, err := tx.MarkAllRead(ownerID)
		if err != nil {
			return err
		}
		affected = n
		unread, err = s.counter.RecountIn(tx, ownerID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if s.pusher != nil {
		s.pusher.PushUnreadUpdate(ownerID, unread)
	}
	s.log.Debug("邮箱已全部置读",
		zap.String("ownerId", ownerID),
		zap.Int("affected", affected),
	)
	return affected, nil
}

// mutate 在拥有者账号锁内执行副本状态变更并重算未读计数。
func (s *MessageService) mutate(viewer *domain.Account, id string, change func(tx domain.Store, message *domain.Message) error) (*domain.Message, error) {
	message, err := s.store.GetMessage(id)
	if err != nil {
		return nil, err
	}
	if message.OwnerID != viewer.ID {
		return nil, ErrNotOwner
	}

	var unread int
	err = s.store.WithAccountLock(message.OwnerID, func(tx domain.Store) error {
		if err := change(tx, message); err != nil {
			return err
		}
		unread, err = s.counter.RecountIn(tx, message.OwnerID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	if s.pusher != nil {
		s.pusher.PushUnreadUpdate(message.OwnerID, unread)
	}
	return s.store.GetMessage(id)
}
