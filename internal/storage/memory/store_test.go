package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privmail/backend/internal/domain"
	"privmail/backend/internal/storage"
)

func newMessage(id, owner, from, to string, at time.Time) *domain.Message {
	return &domain.Message{
		ID:        id,
		Title:     "title " + id,
		Body:      "body " + id,
		OwnerID:   owner,
		FromID:    from,
		ToID:      to,
		CreatedAt: at,
	}
}

func TestMessageRoundtrip(t *testing.T) {
	store := NewStore()
	now := time.Now()

	require.NoError(t, store.SaveMessage(newMessage("m1", "u1", "u2", "u1", now)))

	t.Run("读取返回副本而非内部指针", func(t *testing.T) {
		got, err := store.GetMessage("m1")
		require.NoError(t, err)
		got.Title = "mutated"

		again, err := store.GetMessage("m1")
		require.NoError(t, err)
		assert.Equal(t, "title m1", again.Title)
	})

	t.Run("不存在的消息返回哨兵错误", func(t *testing.T) {
		_, err := store.GetMessage("absent")
		assert.ErrorIs(t, err, storage.ErrMessageNotFound)
	})
}

func TestListMessagesFolderViews(t *testing.T) {
	store := NewStore()
	now := time.Now()

	// u1 的邮箱：一封收件、一封已读收件、一封发件、一封垃圾、一封已删除
	require.NoError(t, store.SaveMessage(newMessage("m1", "u1", "u2", "u1", now.Add(1*time.Second))))
	read := newMessage("m2", "u1", "u2", "u1", now.Add(2*time.Second))
	read.IsRead = true
	require.NoError(t, store.SaveMessage(read))
	sent := newMessage("m3", "u1", "u1", "u2", now.Add(3*time.Second))
	sent.IsRead = true
	require.NoError(t, store.SaveMessage(sent))
	spam := newMessage("m4", "u1", "u3", "u1", now.Add(4*time.Second))
	spam.IsSpam = true
	require.NoError(t, store.SaveMessage(spam))
	deleted := newMessage("m5", "u1", "u2", "u1", now.Add(5*time.Second))
	deleted.IsDeleted = true
	require.NoError(t, store.SaveMessage(deleted))

	// 其他账号的副本不可见
	require.NoError(t, store.SaveMessage(newMessage("m6", "u2", "u1", "u2", now)))

	ids := func(messages []domain.Message) []string {
		out := make([]string, 0, len(messages))
		for _, m := range messages {
			out = append(out, m.ID)
		}
		return out
	}

	t.Run("全部视图按时间倒序", func(t *testing.T) {
		messages, err := store.ListMessages("u1", domain.FolderAll)
		require.NoError(t, err)
		assert.Equal(t, []string{"m5", "m4", "m3", "m2", "m1"}, ids(messages))
	})

	t.Run("收件视图", func(t *testing.T) {
		messages, err := store.ListMessages("u1", domain.FolderReceived)
		require.NoError(t, err)
		assert.Equal(t, []string{"m4", "m2", "m1"}, ids(messages))
	})

	t.Run("未读视图", func(t *testing.T) {
		messages, err := store.ListMessages("u1", domain.FolderUnread)
		require.NoError(t, err)
		assert.Equal(t, []string{"m4", "m1"}, ids(messages))
	})

	t.Run("发件视图", func(t *testing.T) {
		messages, err := store.ListMessages("u1", domain.FolderSent)
		require.NoError(t, err)
		assert.Equal(t, []string{"m3"}, ids(messages))
	})

	t.Run("垃圾视图", func(t *testing.T) {
		messages, err := store.ListMessages("u1", domain.FolderSpam)
		require.NoError(t, err)
		assert.Equal(t, []string{"m4"}, ids(messages))
	})

	t.Run("已删除视图", func(t *testing.T) {
		messages, err := store.ListMessages("u1", domain.FolderDeleted)
		require.NoError(t, err)
		assert.Equal(t, []string{"m5"}, ids(messages))
	})
}

func TestSearchMessages(t *testing.T) {
	store := NewStore()
	now := time.Now()

	m1 := newMessage("m1", "u1", "u2", "u1", now)
	m1.Title = "Server maintenance notice"
	require.NoError(t, store.SaveMessage(m1))
	m2 := newMessage("m2", "u1", "u2", "u1", now.Add(time.Second))
	m2.Body = "The MAINTENANCE window moved"
	require.NoError(t, store.SaveMessage(m2))
	m3 := newMessage("m3", "u1", "u2", "u1", now.Add(2*time.Second))
	require.NoError(t, store.SaveMessage(m3))

	t.Run("标题与正文大小写不敏感匹配", func(t *testing.T) {
		messages, err := store.SearchMessages("u1", domain.FolderAll, "maintenance")
		require.NoError(t, err)
		assert.Len(t, messages, 2)
	})

	t.Run("空查询等价于列表", func(t *testing.T) {
		messages, err := store.SearchMessages("u1", domain.FolderAll, "  ")
		require.NoError(t, err)
		assert.Len(t, messages, 3)
	})
}

func TestMarkAllReadAndCounts(t *testing.T) {
	store := NewStore()
	now := time.Now()

	require.NoError(t, store.SaveMessage(newMessage("m1", "u1", "u2", "u1", now)))
	require.NoError(t, store.SaveMessage(newMessage("m2", "u1", "u2", "u1", now)))
	read := newMessage("m3", "u1", "u2", "u1", now)
	read.IsRead = true
	require.NoError(t, store.SaveMessage(read))
	deleted := newMessage("m4", "u1", "u2", "u1", now)
	deleted.IsDeleted = true
	require.NoError(t, store.SaveMessage(deleted))

	count, err := store.CountActiveUnread("u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	affected, err := store.MarkAllRead("u1")
	require.NoError(t, err)
	assert.Equal(t, 2, affected)

	count, err = store.CountActiveUnread("u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// 已删除的副本不被置读
	m4, err := store.GetMessage("m4")
	require.NoError(t, err)
	assert.False(t, m4.IsRead)

	// 重复执行无副作用
	affected, err = store.MarkAllRead("u1")
	require.NoError(t, err)
	assert.Equal(t, 0, affected)
}

func TestCountDistinctSpamRecipients(t *testing.T) {
	store := NewStore()
	now := time.Now()

	addSpam := func(id, to string, at time.Time) {
		m := newMessage(id, to, "sender", to, at)
		m.IsSpam = true
		require.NoError(t, store.SaveMessage(m))
	}

	addSpam("s1", "r1", now)
	addSpam("s2", "r1", now) // 同一收件人只计一次
	addSpam("s3", "r2", now)
	addSpam("s4", "r3", now.Add(-48*time.Hour)) // 窗口之外

	// 发件人自己的副本带垃圾标记也不计入
	own := newMessage("s5", "sender", "sender", "r4", now)
	own.IsSpam = true
	require.NoError(t, store.SaveMessage(own))

	// 未判垃圾的不计入
	clean := newMessage("s6", "r5", "sender", "r5", now)
	require.NoError(t, store.SaveMessage(clean))

	count, err := store.CountDistinctSpamRecipients("sender", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAccountRepository(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()

	account := &domain.Account{ID: "u1", Name: "alice", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateAccount(account))

	t.Run("重名拒绝", func(t *testing.T) {
		err := store.CreateAccount(&domain.Account{ID: "u2", Name: "alice"})
		assert.ErrorIs(t, err, storage.ErrAccountExists)
	})

	t.Run("按名称查找", func(t *testing.T) {
		got, err := store.GetAccountByName("alice")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)
	})

	t.Run("回写未读计数", func(t *testing.T) {
		require.NoError(t, store.SetUnreadCount("u1", 7))
		got, err := store.GetAccount("u1")
		require.NoError(t, err)
		assert.Equal(t, 7, got.UnreadCount)
	})

	t.Run("不存在的账号", func(t *testing.T) {
		_, err := store.GetAccount("absent")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
		assert.ErrorIs(t, store.SetUnreadCount("absent", 1), storage.ErrAccountNotFound)
	})
}

func TestBanRepository(t *testing.T) {
	store := NewStore()
	now := time.Now()

	ban := &domain.Ban{
		ID:        "b1",
		AccountID: "u1",
		BannerID:  "system",
		Reason:    "Spammer.",
		CreatedAt: now,
		ExpiresAt: now.Add(72 * time.Hour),
	}
	require.NoError(t, store.CreateBan(ban))

	active, err := store.HasActiveBan("u1", now)
	require.NoError(t, err)
	assert.True(t, active)

	// 过期后不再生效
	active, err = store.HasActiveBan("u1", now.Add(73*time.Hour))
	require.NoError(t, err)
	assert.False(t, active)

	bans, err := store.ListBans("u1")
	require.NoError(t, err)
	assert.Len(t, bans, 1)
}

func TestWithTransactionRollback(t *testing.T) {
	store := NewStore()
	now := time.Now()

	require.NoError(t, store.CreateAccount(&domain.Account{ID: "u1", Name: "alice"}))
	require.NoError(t, store.SaveMessage(newMessage("m1", "u1", "u2", "u1", now)))

	boom := errors.New("boom")
	err := store.WithTransaction(func(tx domain.Store) error {
		require.NoError(t, tx.SaveMessage(newMessage("m2", "u1", "u2", "u1", now)))
		require.NoError(t, tx.SetUnreadCount("u1", 42))
		require.NoError(t, tx.CreateBan(&domain.Ban{ID: "b1", AccountID: "u1", ExpiresAt: now.Add(time.Hour)}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// 全部写入被回滚
	_, err = store.GetMessage("m2")
	assert.ErrorIs(t, err, storage.ErrMessageNotFound)

	account, err := store.GetAccount("u1")
	require.NoError(t, err)
	assert.Equal(t, 0, account.UnreadCount)

	active, err := store.HasActiveBan("u1", now)
	require.NoError(t, err)
	assert.False(t, active)

	// 事务外的既有数据不受影响
	_, err = store.GetMessage("m1")
	assert.NoError(t, err)
}

func TestWithTransactionCommit(t *testing.T) {
	store := NewStore()
	now := time.Now()

	err := store.WithTransaction(func(tx domain.Store) error {
		return tx.SaveMessage(newMessage("m1", "u1", "u2", "u1", now))
	})
	require.NoError(t, err)

	_, err = store.GetMessage("m1")
	assert.NoError(t, err)
}

func TestWithAccountLockNestedInTransaction(t *testing.T) {
	store := NewStore()
	now := time.Now()

	err := store.WithTransaction(func(tx domain.Store) error {
		return tx.WithAccountLock("u1", func(ltx domain.Store) error {
			return ltx.SaveMessage(newMessage("m1", "u1", "u2", "u1", now))
		})
	})
	require.NoError(t, err)

	_, err = store.GetMessage("m1")
	assert.NoError(t, err)
}
