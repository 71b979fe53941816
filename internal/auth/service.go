package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"privmail/backend/internal/domain"
	"privmail/backend/internal/storage"
)

var (
	// ErrInvalidName 无效的账号名
	ErrInvalidName = errors.New("invalid account name")
	// ErrInvalidPassword 无效的密码
	ErrInvalidPassword = errors.New("password too short (min 8 chars)")
	// ErrNameExists 账号名已存在
	ErrNameExists = errors.New("account name already exists")
	// ErrInvalidCredentials 凭证无效
	ErrInvalidCredentials = errors.New("invalid credentials")
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]{2,31}$`)

// Service 认证服务。
//
// 只是 HTTP 层的外围配套：核心消息服务接收显式的操作者账号，
// 不依赖这里的任何东西。
type Service struct {
	accounts storage.AccountRepository
}

// NewService 创建认证服务。
func NewService(accounts storage.AccountRepository) *Service {
	return &Service{accounts: accounts}
}

// RegisterInput 注册输入。
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register 注册账号。
func (s *Service) Register(input RegisterInput) (*domain.Account, error) {
	name := strings.ToLower(strings.TrimSpace(input.Name))
	if !nameRegex.MatchString(name) {
		return nil, ErrInvalidName
	}
	if len(input.Password) < 8 {
		return nil, ErrInvalidPassword
	}

	if existing, err := s.accounts.GetAccountByName(name); err == nil && existing != nil {
		return nil, ErrNameExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:           uuid.NewString(),
		Name:         name,
		DisplayName:  strings.TrimSpace(input.Name),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.CreateAccount(account); err != nil {
		if errors.Is(err, storage.ErrAccountExists) {
			return nil, ErrNameExists
		}
		return nil, err
	}
	return account, nil
}

// Login 校验凭证并返回账号。
func (s *Service) Login(name, password string) (*domain.Account, error) {
	account, err := s.accounts.GetAccountByName(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}
