package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privmail/backend/internal/storage/memory"
)

func TestRegister(t *testing.T) {
	svc := NewService(memory.NewStore())

	t.Run("注册成功且规范化输入", func(t *testing.T) {
		account, err := svc.Register(RegisterInput{
			Name:     "  Alice  ",
			Email:    "Alice@Example.com",
			Password: "password123",
		})
		require.NoError(t, err)
		assert.Equal(t, "alice", account.Name)
		assert.Equal(t, "Alice", account.DisplayName)
		assert.Equal(t, "alice@example.com", account.Email)
		assert.NotEmpty(t, account.ID)
		assert.NotEqual(t, "password123", account.PasswordHash)
	})

	t.Run("账号名重复", func(t *testing.T) {
		_, err := svc.Register(RegisterInput{Name: "ALICE", Password: "password123"})
		assert.ErrorIs(t, err, ErrNameExists)
	})

	t.Run("非法账号名", func(t *testing.T) {
		for _, name := range []string{"", "ab", "9starts-with-digit", "has space", "waytoolongname-aaaaaaaaaaaaaaaaaaaaaaaa"} {
			_, err := svc.Register(RegisterInput{Name: name, Password: "password123"})
			assert.ErrorIs(t, err, ErrInvalidName, "name=%q", name)
		}
	})

	t.Run("密码过短", func(t *testing.T) {
		_, err := svc.Register(RegisterInput{Name: "bob", Password: "short"})
		assert.ErrorIs(t, err, ErrInvalidPassword)
	})
}

func TestLogin(t *testing.T) {
	svc := NewService(memory.NewStore())

	_, err := svc.Register(RegisterInput{Name: "alice", Password: "password123"})
	require.NoError(t, err)

	t.Run("正确凭证", func(t *testing.T) {
		account, err := svc.Login("alice", "password123")
		require.NoError(t, err)
		assert.Equal(t, "alice", account.Name)
	})

	t.Run("账号名大小写与空白不敏感", func(t *testing.T) {
		account, err := svc.Login("  ALICE  ", "password123")
		require.NoError(t, err)
		assert.Equal(t, "alice", account.Name)
	})

	t.Run("错误密码", func(t *testing.T) {
		_, err := svc.Login("alice", "wrong-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("不存在的账号", func(t *testing.T) {
		_, err := svc.Login("nobody", "password123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}
