package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// HashPasscode generates a bcrypt hash of the viewing passcode.
func HashPasscode(passcode string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash passcode: %w", err)
	}
	return string(bytes), nil
}

// CheckPasscodeHash compares a passcode with a bcrypt hash.
func CheckPasscodeHash(passcode, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(passcode))
	return err == nil
}

// SessionClaims 会话令牌载荷，绑定观看会话与演示文稿
type SessionClaims struct {
	SessionID string `json:"session_id"`
	ShareSlug string `json:"share_slug"`
	jwt.RegisteredClaims
}

var jwtSecret []byte

// SetJWTSecret 设置签名密钥，服务启动时调用一次
func SetJWTSecret(secret string) {
	jwtSecret = []byte(secret)
}

// GenerateSessionToken 为观看会话签发令牌
func GenerateSessionToken(sessionID, shareSlug string, expiry time.Duration) (string, error) {
	claims := SessionClaims{
		SessionID: sessionID,
		ShareSlug: shareSlug,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(jwtSecret)
	if err != nil {
		return "", fmt.Errorf("签发会话令牌失败: %w", err)
	}
	return signed, nil
}

// ParseSessionToken 校验并解析会话令牌
func ParseSessionToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("解析会话令牌失败: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("无效的会话令牌")
	}
	return claims, nil
}
