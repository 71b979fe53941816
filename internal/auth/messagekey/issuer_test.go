package messagekey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privmail/backend/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer(testSecret)

	t.Run("签发后可验证并取回消息ID", func(t *testing.T) {
		token, err := issuer.Issue("msg-1")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		messageID, err := issuer.Verify(token)
		assert.NoError(t, err)
		assert.Equal(t, "msg-1", messageID)
	})

	t.Run("篡改后的令牌无效", func(t *testing.T) {
		token, err := issuer.Issue("msg-1")
		require.NoError(t, err)

		tampered := token[:len(token)-2] + "xx"
		_, err = issuer.Verify(tampered)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("空令牌无效", func(t *testing.T) {
		_, err := issuer.Verify("")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("不同密钥签发的令牌无效", func(t *testing.T) {
		other := NewIssuer("another-secret-another-secret-00")
		token, err := other.Issue("msg-1")
		require.NoError(t, err)

		_, err = issuer.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestValid(t *testing.T) {
	issuer := NewIssuer(testSecret)
	message := &domain.Message{ID: "msg-1", OwnerID: "u1"}

	t.Run("绑定到本消息的令牌有效", func(t *testing.T) {
		token, err := issuer.Issue(message.ID)
		require.NoError(t, err)
		assert.True(t, issuer.Valid(message, token))
	})

	t.Run("绑定到其他消息的令牌无效", func(t *testing.T) {
		token, err := issuer.Issue("msg-2")
		require.NoError(t, err)
		assert.False(t, issuer.Valid(message, token))
	})
}

func TestVisibleTo(t *testing.T) {
	issuer := NewIssuer(testSecret)
	message := &domain.Message{ID: "msg-1", OwnerID: "u1"}

	owner := &domain.Account{ID: "u1"}
	stranger := &domain.Account{ID: "u2"}

	t.Run("拥有者无需令牌", func(t *testing.T) {
		assert.True(t, issuer.VisibleTo(owner, message, ""))
	})

	t.Run("非拥有者无令牌不可见", func(t *testing.T) {
		assert.False(t, issuer.VisibleTo(stranger, message, ""))
	})

	t.Run("非拥有者持有效令牌可见", func(t *testing.T) {
		token, err := issuer.Issue(message.ID)
		require.NoError(t, err)
		assert.True(t, issuer.VisibleTo(stranger, message, token))
	})

	t.Run("匿名访问者持有效令牌可见", func(t *testing.T) {
		token, err := issuer.Issue(message.ID)
		require.NoError(t, err)
		assert.True(t, issuer.VisibleTo(nil, message, token))
	})

	t.Run("错误消息的令牌不可见", func(t *testing.T) {
		token, err := issuer.Issue("msg-2")
		require.NoError(t, err)
		assert.False(t, issuer.VisibleTo(stranger, message, token))
	})
}
