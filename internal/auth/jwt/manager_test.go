package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "jwt-test-secret-0123456789abcdef"

func newTestManager() *Manager {
	return NewManager(testSecret, "privmail-test", 15*time.Minute, 7*24*time.Hour)
}

func TestGenerateAndValidate(t *testing.T) {
	m := newTestManager()

	pair, err := m.GenerateTokenPair("u1", "alice", true)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), pair.ExpiresIn)

	t.Run("访问令牌携带完整声明", func(t *testing.T) {
		claims, err := m.ValidateToken(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.UserID)
		assert.Equal(t, "alice", claims.Name)
		assert.True(t, claims.IsModerator)
		assert.Equal(t, "u1", claims.Subject)
		assert.Equal(t, "privmail-test", claims.Issuer)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("每枚令牌的jti互不相同", func(t *testing.T) {
		access, err := m.ValidateToken(pair.AccessToken)
		require.NoError(t, err)
		refresh, err := m.ValidateToken(pair.RefreshToken)
		require.NoError(t, err)
		assert.NotEqual(t, access.ID, refresh.ID)
	})

	t.Run("篡改的令牌被拒绝", func(t *testing.T) {
		_, err := m.ValidateToken(pair.AccessToken[:len(pair.AccessToken)-2] + "xx")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("不同密钥签发的令牌被拒绝", func(t *testing.T) {
		other := NewManager("another-secret-0123456789abcdefgh", "privmail-test", time.Minute, time.Hour)
		foreign, err := other.GenerateTokenPair("u1", "alice", false)
		require.NoError(t, err)

		_, err = m.ValidateToken(foreign.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestExpiredToken(t *testing.T) {
	m := NewManager(testSecret, "privmail-test", -time.Minute, time.Hour)

	pair, err := m.GenerateTokenPair("u1", "alice", false)
	require.NoError(t, err)

	_, err = m.ValidateToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRefreshAccessToken(t *testing.T) {
	m := newTestManager()

	pair, err := m.GenerateTokenPair("u1", "alice", false)
	require.NoError(t, err)

	t.Run("刷新令牌换取新的访问令牌", func(t *testing.T) {
		token, err := m.RefreshAccessToken(pair.RefreshToken)
		require.NoError(t, err)

		claims, err := m.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.UserID)
	})

	t.Run("无效的刷新令牌被拒绝", func(t *testing.T) {
		_, err := m.RefreshAccessToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
