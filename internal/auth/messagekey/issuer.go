package messagekey

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"privmail/backend/internal/domain"
)

// Purpose 消息链接访问令牌的用途标识。
//
// 签名密钥由进程级密钥与该用途派生，与会话 JWT 等其他用途的
// 密钥互相隔离：换一个用途的令牌在这里永远无法通过验证。
const Purpose = "message_link_access"

var (
	// ErrInvalidKey 无效的访问密钥（签名错误、载荷损坏或用途不符）
	ErrInvalidKey = errors.New("invalid message key")
)

// Claims 消息访问令牌的声明。
type Claims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Issuer 签发并验证绑定到单条消息的能力令牌。
//
// 持有令牌即可查看对应消息，无需完整的账号认证。
type Issuer struct {
	key []byte
}

// NewIssuer 创建令牌签发器。
//
// secret 是进程级密钥；实际签名密钥是 HMAC(secret, purpose) 派生值。
func NewIssuer(secret string) *Issuer {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Purpose))
	return &Issuer{key: mac.Sum(nil)}
}

// Issue 为消息签发不透明防篡改的访问令牌。
func (i *Issuer) Issue(messageID string) (string, error) {
	now := time.Now()
	claims := Claims{
		Purpose: Purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  messageID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message key: %w", err)
	}
	return signed, nil
}

// Verify 验证令牌并返回其绑定的消息 ID。
//
// 任何不匹配（错误密钥、损坏的载荷、不符的用途）都返回
// ErrInvalidKey，而不是抛出歧义错误。
func (i *Issuer) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.key, nil
	})
	if err != nil {
		return "", ErrInvalidKey
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidKey
	}
	if claims.Purpose != Purpose || claims.Subject == "" {
		return "", ErrInvalidKey
	}
	return claims.Subject, nil
}

// Valid 判断令牌是否恰好绑定到给定消息。
func (i *Issuer) Valid(message *domain.Message, tokenString string) bool {
	messageID, err := i.Verify(tokenString)
	if err != nil {
		return false
	}
	return messageID == message.ID
}

// VisibleTo 授权谓词：账号拥有这份副本，或持有绑定到这条消息的
// 有效令牌。后者让第三方通过链接查看单条消息。
func (i *Issuer) VisibleTo(user *domain.Account, message *domain.Message, tokenString string) bool {
	if user != nil && user.ID == message.OwnerID {
		return true
	}
	if tokenString == "" {
		return false
	}
	return i.Valid(message, tokenString)
}
