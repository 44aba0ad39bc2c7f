package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"text-sync/internal/domain"
)

// RoomClaims 房间访问令牌的 claims
type RoomClaims struct {
	RoomID string `json:"room_id"`
	jwt.RegisteredClaims
}

// TokenService 负责签发和校验房间访问令牌。
// 令牌只授权单个房间，过期时间与房间本身的到期时间一致。
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService 创建 TokenService 实例
func NewTokenService(secret string, roomTTL time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if roomTTL <= 0 {
		roomTTL = domain.DefaultRoomTTL
	}
	return &TokenService{secret: []byte(secret), ttl: roomTTL, now: time.Now}, nil
}

// IssueRoomToken 为房间签发令牌
func (s *TokenService) IssueRoomToken(room *domain.Room) (string, error) {
	now := s.now()
	claims := RoomClaims{
		RoomID: room.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   room.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(room.ExpiresAt(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseRoomToken 校验令牌并返回其中的房间码
func (s *TokenService) ParseRoomToken(tokenStr string) (string, error) {
	claims := &RoomClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		var validationError *jwt.ValidationError
		if errors.As(err, &validationError) && validationError.Errors&jwt.ValidationErrorExpired != 0 {
			return "", fmt.Errorf("%w: token expired", ErrInvalidToken)
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || !domain.ValidRoomCode(claims.RoomID) {
		return "", ErrInvalidToken
	}
	return claims.RoomID, nil
}
