package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"privmail/backend/internal/auth/messagekey"
	"privmail/backend/internal/domain"
	"privmail/backend/internal/storage"
	"privmail/backend/internal/storage/memory"
)

func newMessageFixture(t *testing.T) (*MessageService, domain.Store) {
	t.Helper()

	store := memory.NewStore()
	log := zap.NewNop()
	keys := messagekey.NewIssuer("message-key-test-secret-0123456789ab")
	counter := NewCounterService(store, nil, log)
	return NewMessageService(store, keys, counter, nil, log), store
}

func saveInboxMessage(t *testing.T, store domain.Store, owner *domain.Account, read bool) *domain.Message {
	t.Helper()
	msg := &domain.Message{
		ID:        uuid.New().String(),
		Title:     "title",
		Body:      "body",
		OwnerID:   owner.ID,
		FromID:    uuid.New().String(),
		ToID:      owner.ID,
		IsRead:    read,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.SaveMessage(msg))
	return msg
}

func TestGetVisibility(t *testing.T) {
	svc, store := newMessageFixture(t)
	owner := newTestAccount(t, store, "owner")
	stranger := newTestAccount(t, store, "stranger")
	msg := saveInboxMessage(t, store, owner, false)

	t.Run("拥有者直接可见", func(t *testing.T) {
		got, err := svc.Get(owner, msg.ID, "")
		require.NoError(t, err)
		assert.Equal(t, msg.ID, got.ID)
	})

	t.Run("非拥有者无密钥不可见", func(t *testing.T) {
		_, err := svc.Get(stranger, msg.ID, "")
		assert.ErrorIs(t, err, ErrNotVisible)
	})

	t.Run("非拥有者持有效密钥可见", func(t *testing.T) {
		key, err := svc.IssueLink(owner, msg.ID)
		require.NoError(t, err)

		got, err := svc.Get(stranger, msg.ID, key)
		require.NoError(t, err)
		assert.Equal(t, msg.ID, got.ID)
	})

	t.Run("密钥绑定副本不可挪用", func(t *testing.T) {
		other := saveInboxMessage(t, store, owner, false)
		key, err := svc.IssueLink(owner, other.ID)
		require.NoError(t, err)

		_, err = svc.Get(stranger, msg.ID, key)
		assert.ErrorIs(t, err, ErrNotVisible)
	})

	t.Run("不存在的副本返回哨兵错误", func(t *testing.T) {
		_, err := svc.Get(owner, "absent", "")
		assert.ErrorIs(t, err, storage.ErrMessageNotFound)
	})
}

func TestIssueLinkOwnerOnly(t *testing.T) {
	svc, store := newMessageFixture(t)
	owner := newTestAccount(t, store, "owner")
	stranger := newTestAccount(t, store, "stranger")
	msg := saveInboxMessage(t, store, owner, false)

	_, err := svc.IssueLink(stranger, msg.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestListAndSearch(t *testing.T) {
	svc, store := newMessageFixture(t)
	owner := newTestAccount(t, store, "owner")
	saveInboxMessage(t, store, owner, false)

	t.Run("未知文件夹被拒绝", func(t *testing.T) {
		_, err := svc.List(owner.ID, domain.Folder("archive"))
		assert.ErrorIs(t, err, ErrInvalidFolder)
		_, err = svc.Search(owner.ID, domain.Folder("archive"), "q")
		assert.ErrorIs(t, err, ErrInvalidFolder)
	})

	t.Run("空查询退化为列表", func(t *testing.T) {
		listed, err := svc.List(owner.ID, domain.FolderAll)
		require.NoError(t, err)
		searched, err := svc.Search(owner.ID, domain.FolderAll, "")
		require.NoError(t, err)
		assert.Equal(t, listed, searched)
	})

	t.Run("按内容检索", func(t *testing.T) {
		got, err := svc.Search(owner.ID, domain.FolderAll, "TITLE")
		require.NoError(t, err)
		assert.Len(t, got, 1)

		got, err = svc.Search(owner.ID, domain.FolderAll, "nothing matches")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestSetReadMaintainsCounter(t *testing.T) {
	svc, store := newMessageFixture(t)
	owner := newTestAccount(t, store, "owner")
	stranger := newTestAccount(t, store, "stranger")
	msg := saveInboxMessage(t, store, owner, false)

	t.Run("非拥有者不能修改", func(t *testing.T) {
		_, err := svc.SetRead(stranger, msg.ID, true)
		assert.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("置读后未读计数归零", func(t *testing.T) {
		got, err := svc.SetRead(owner, msg.ID, true)
		require.NoError(t, err)
		assert.True(t, got.IsRead)

		acc, err := store.GetAccount(owner.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, acc.UnreadCount)
	})

	t.Run("重新置未读计数回升", func(t *testing.T) {
		got, err := svc.SetRead(owner, msg.ID, false)
		require.NoError(t, err)
		assert.False(t, got.IsRead)

		acc, err := store.GetAccount(owner.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, acc.UnreadCount)
	})
}

func TestSetDeletedMaintainsCounter(t *testing.T) {
	svc, store := newMessageFixture(t)
	owner := newTestAccount(t, store, "owner")
	msg := saveInboxMessage(t, store, owner, false)

	t.Run("软删除把未读副本移出计数", func(t *testing.T) {
		got, err := svc.SetDeleted(owner, msg.ID, true)
		require.NoError(t, err)
		assert.True(t, got.IsDeleted)

		acc, err := store.GetAccount(owner.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, acc.UnreadCount)
	})

	t.Run("恢复后重新计入未读", func(t *testing.T) {
		got, err := svc.SetDeleted(owner, msg.ID, false)
		require.NoError(t, err)
		assert.False(t, got.IsDeleted)

		acc, err := store.GetAccount(owner.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, acc.UnreadCount)
	})
}

func TestMarkAllRead(t *testing.T) {
	svc, store := newMessageFixture(t)
	owner := newTestAccount(t, store, "owner")
	saveInboxMessage(t, store, owner, false)
	saveInboxMessage(t, store, owner, false)
	saveInboxMessage(t, store, owner, true)

	affected, err := svc.MarkAllRead(owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, affected)

	acc, err := store.GetAccount(owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, acc.UnreadCount)

	t.Run("重复执行幂等", func(t *testing.T) {
		affected, err := svc.MarkAllRead(owner.ID)
		require.NoError(t, err)
		assert.Zero(t, affected)
	})
}
