package util

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	jwtSecret []byte
	jwtTTL    = 24 * time.Hour
)

// ErrJWTNotInitialized 未调用 InitJWT 时不签发也不接受任何令牌
var ErrJWTNotInitialized = errors.New("jwt secret not initialized")

// InitJWT 设置会话令牌的密钥和有效期
func InitJWT(secret string, ttl time.Duration) {
	jwtSecret = []byte(secret)
	if ttl > 0 {
		jwtTTL = ttl
	}
}

// GenerateToken 为用户生成会话令牌
func GenerateToken(userID uint) (string, error) {
	if len(jwtSecret) == 0 {
		return "", ErrJWTNotInitialized
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(jwtTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ValidateToken 校验会话令牌并返回用户ID
func ValidateToken(tokenString string) (uint, error) {
	if len(jwtSecret) == 0 {
		return 0, ErrJWTNotInitialized
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return 0, errors.New("invalid token")
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token subject: %w", err)
	}
	return uint(id), nil
}
