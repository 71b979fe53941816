package httptransport

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"privmail/backend/internal/auth"
	"privmail/backend/internal/auth/jwt"
	"privmail/backend/internal/domain"
	"privmail/backend/internal/storage"
)

// AuthHandler 认证相关端点。
type AuthHandler struct {
	auth      *auth.Service
	tokens    *jwt.Manager
	store     domain.Store
	blacklist storage.JWTRepository // 可为 nil，此时登出为无状态
}

// NewAuthHandler 创建认证处理器。
func NewAuthHandler(authService *auth.Service, tokens *jwt.Manager, store domain.Store, blacklist storage.JWTRepository) *AuthHandler {
	return &AuthHandler{
		auth:      authService,
		tokens:    tokens,
		store:     store,
		blacklist: blacklist,
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type accountResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	IsGold      bool      `json:"isGold"`
	IsModerator bool      `json:"isModerator"`
	UnreadCount int       `json:"unreadCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

type loginResponse struct {
	Account accountResponse `json:"account"`
	Tokens  *jwt.TokenPair  `json:"tokens"`
}

// Register godoc
// @Summary 注册账号
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body registerRequest true "注册信息"
// @Success 201 {object} loginResponse
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	account, err := h.auth.Register(auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidName), errors.Is(err, auth.ErrInvalidPassword):
			BadRequest(c, GetErrorMessage(err))
		case errors.Is(err, auth.ErrNameExists):
			Conflict(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgInternalError)
		}
		return
	}

	tokens, err := h.tokens.GenerateTokenPair(account.ID, account.Name, account.IsModerator)
	if err != nil {
		InternalError(c, MsgInternalError)
		return
	}
	Created(c, loginResponse{Account: toAccountResponse(account), Tokens: tokens})
}

// Login godoc
// @Summary 登录
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录凭证"
// @Success 200 {object} loginResponse
// @Failure 401 {object} Response
// @Router /v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	account, err := h.auth.Login(req.Name, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			Unauthorized(c, GetErrorMessage(err))
			return
		}
		InternalError(c, MsgLoginFailed)
		return
	}

	tokens, err := h.tokens.GenerateTokenPair(account.ID, account.Name, account.IsModerator)
	if err != nil {
		InternalError(c, MsgLoginFailed)
		return
	}
	Success(c, loginResponse{Account: toAccountResponse(account), Tokens: tokens})
}

// Refresh godoc
// @Summary 刷新访问令牌
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body refreshRequest true "刷新令牌"
// @Success 200 {object} object{accessToken=string}
// @Failure 401 {object} Response
// @Router /v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	accessToken, err := h.tokens.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		Unauthorized(c, MsgTokenInvalid)
		return
	}
	Success(c, gin.H{"accessToken": accessToken})
}

// Logout godoc
// @Summary 登出
// @Description 吊销当前会话令牌；未配置 Redis 时登出为无状态，令牌到期自然失效
// @Tags Auth
// @Produce json
// @Success 204
// @Failure 401 {object} Response
// @Router /v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if h.blacklist == nil {
		NoContent(c)
		return
	}

	jti := c.GetString("tokenID")
	if jti == "" {
		NoContent(c)
		return
	}

	ttl := time.Hour
	if expiresAt, ok := c.Get("tokenExpiresAt"); ok {
		if exp, ok := expiresAt.(time.Time); ok {
			if remaining := time.Until(exp); remaining > 0 {
				ttl = remaining
			}
		}
	}

	if err := h.blacklist.AddToBlacklist(jti, ttl); err != nil {
		InternalError(c, MsgInternalError)
		return
	}
	NoContent(c)
}

// Me godoc
// @Summary 获取当前账号
// @Tags Auth
// @Produce json
// @Success 200 {object} accountResponse
// @Failure 401 {object} Response
// @Router /v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	account, err := h.store.GetAccount(userID)
	if err != nil {
		Unauthorized(c, MsgAccountFailed)
		return
	}
	Success(c, toAccountResponse(account))
}

// toAccountResponse 转换账号实体为响应体。
func toAccountResponse(account *domain.Account) accountResponse {
	return accountResponse{
		ID:          account.ID,
		Name:        account.Name,
		DisplayName: account.DisplayName,
		Email:       account.Email,
		IsGold:      account.IsGold,
		IsModerator: account.IsModerator,
		UnreadCount: account.UnreadCount,
		CreatedAt:   account.CreatedAt,
	}
}
