package httptransport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"privmail/backend/internal/auth"
	jwtpkg "privmail/backend/internal/auth/jwt"
	"privmail/backend/internal/auth/messagekey"
	"privmail/backend/internal/config"
	"privmail/backend/internal/domain"
	"privmail/backend/internal/mailer"
	"privmail/backend/internal/service"
	"privmail/backend/internal/spam"
	"privmail/backend/internal/storage/memory"
)

type routerFixture struct {
	router   *gin.Engine
	store    domain.Store
	messages *service.MessageService
	tokens   *jwtpkg.Manager
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	log := zap.NewNop()

	cfg := &config.Config{
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		RateLimit: config.RateLimitConfig{SendsPerMinute: 100, Burst: 10},
		Autoban:   config.AutobanConfig{Threshold: 10, Window: 24 * time.Hour, BanDays: 3},
	}

	keys := messagekey.NewIssuer("router-test-message-key-0123456789ab")
	tokens := jwtpkg.NewManager("router-test-jwt-secret-0123456789ab", "privmail-test", 15*time.Minute, time.Hour)
	counter := service.NewCounterService(store, nil, log)
	autoban := service.NewAutobanService(cfg.Autoban, nil, log)
	delivery := service.NewDeliveryService(
		store, spam.NewKeywordClassifier(), counter, autoban,
		mailer.NewLogMailer(log), nil, nil, nil, log,
	)
	messages := service.NewMessageService(store, keys, counter, nil, log)

	router := NewRouter(RouterDependencies{
		Config:          cfg,
		DeliveryService: delivery,
		MessageService:  messages,
		AuthService:     auth.NewService(store),
		JWTManager:      tokens,
		Store:           store,
		Logger:          log,
	})

	return &routerFixture{router: router, store: store, messages: messages, tokens: tokens}
}

func (f *routerFixture) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestGetMessageByLinkKey(t *testing.T) {
	f := newRouterFixture(t)

	owner := &domain.Account{ID: uuid.NewString(), Name: "owner"}
	require.NoError(t, f.store.CreateAccount(owner))
	msg := &domain.Message{
		ID:        uuid.NewString(),
		Title:     "shared",
		Body:      "visible through the link",
		OwnerID:   owner.ID,
		FromID:    uuid.NewString(),
		ToID:      owner.ID,
		CreatedAt: time.Now(),
	}
	require.NoError(t, f.store.SaveMessage(msg))

	key, err := f.messages.IssueLink(owner, msg.ID)
	require.NoError(t, err)

	t.Run("匿名持有效密钥可见", func(t *testing.T) {
		rec := f.get("/v1/messages/"+msg.ID+"?key="+key, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), msg.ID)
	})

	t.Run("匿名无密钥不可见", func(t *testing.T) {
		rec := f.get("/v1/messages/"+msg.ID, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("密钥不可挪用到其他消息", func(t *testing.T) {
		other := &domain.Message{
			ID:        uuid.NewString(),
			Title:     "private",
			Body:      "no link issued",
			OwnerID:   owner.ID,
			FromID:    uuid.NewString(),
			ToID:      owner.ID,
			CreatedAt: time.Now(),
		}
		require.NoError(t, f.store.SaveMessage(other))

		rec := f.get("/v1/messages/"+other.ID+"?key="+key, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("拥有者凭会话令牌无需密钥", func(t *testing.T) {
		pair, err := f.tokens.GenerateTokenPair(owner.ID, owner.Name, false)
		require.NoError(t, err)

		rec := f.get("/v1/messages/"+msg.ID, pair.AccessToken)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), msg.ID)
	})

	t.Run("邮箱列表仍然要求认证", func(t *testing.T) {
		rec := f.get("/v1/messages", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
