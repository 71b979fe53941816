package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	jwtpkg "privmail/backend/internal/auth/jwt"
)

// memBlacklist 基于内存的黑名单实现，测试用。
type memBlacklist struct {
	mu    sync.Mutex
	items map[string]struct{}
}

func newMemBlacklist() *memBlacklist {
	return &memBlacklist{items: make(map[string]struct{})}
}

func (b *memBlacklist) AddToBlacklist(jti string, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[jti] = struct{}{}
	return nil
}

func (b *memBlacklist) IsBlacklisted(jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.items[jti]
	return ok, nil
}

func newAuthTestRouter(t *testing.T, blacklist *memBlacklist) (*gin.Engine, *jwtpkg.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := jwtpkg.NewManager("middleware-test-secret-0123456789ab", "privmail-test", 15*time.Minute, time.Hour)
	jwtAuth := NewJWTAuth(manager, blacklist, zap.NewNop())

	router := gin.New()
	router.GET("/private", jwtAuth.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userID": c.GetString("userID"), "tokenID": c.GetString("tokenID")})
	})
	router.GET("/open", jwtAuth.OptionalAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userID": c.GetString("userID")})
	})
	return router, manager
}

func doRequest(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	blacklist := newMemBlacklist()
	router, manager := newAuthTestRouter(t, blacklist)

	pair, err := manager.GenerateTokenPair("u1", "alice", false)
	require.NoError(t, err)

	t.Run("缺少令牌拒绝访问", func(t *testing.T) {
		rec := doRequest(router, "/private", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("无效令牌拒绝访问", func(t *testing.T) {
		rec := doRequest(router, "/private", "not-a-token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("有效令牌放行并写入身份", func(t *testing.T) {
		rec := doRequest(router, "/private", pair.AccessToken)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"userID":"u1"`)
	})

	t.Run("已吊销的令牌拒绝访问", func(t *testing.T) {
		claims, err := manager.ValidateToken(pair.AccessToken)
		require.NoError(t, err)
		require.NoError(t, blacklist.AddToBlacklist(claims.ID, time.Hour))

		rec := doRequest(router, "/private", pair.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("吊销只影响对应的jti", func(t *testing.T) {
		fresh, err := manager.GenerateTokenPair("u1", "alice", false)
		require.NoError(t, err)

		rec := doRequest(router, "/private", fresh.AccessToken)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestOptionalAuth(t *testing.T) {
	blacklist := newMemBlacklist()
	router, manager := newAuthTestRouter(t, blacklist)

	t.Run("匿名请求放行且无身份", func(t *testing.T) {
		rec := doRequest(router, "/open", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"userID":""`)
	})

	t.Run("携带有效令牌写入身份", func(t *testing.T) {
		pair, err := manager.GenerateTokenPair("u2", "bob", false)
		require.NoError(t, err)

		rec := doRequest(router, "/open", pair.AccessToken)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"userID":"u2"`)
	})

	t.Run("已吊销的令牌按匿名处理", func(t *testing.T) {
		pair, err := manager.GenerateTokenPair("u3", "carol", false)
		require.NoError(t, err)
		claims, err := manager.ValidateToken(pair.AccessToken)
		require.NoError(t, err)
		require.NoError(t, blacklist.AddToBlacklist(claims.ID, time.Hour))

		rec := doRequest(router, "/open", pair.AccessToken)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"userID":""`)
	})
}
