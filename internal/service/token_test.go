package service_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text-sync/internal/domain"
	"text-sync/internal/service"
)

func TestTokenService_RoundTrip(t *testing.T) {
	tokens, err := service.NewTokenService("secret", 24*time.Hour)
	require.NoError(t, err)

	token, err := tokens.IssueRoomToken(&domain.Room{ID: "ABC123", CreatedAt: time.Now()})
	require.NoError(t, err)

	roomID, err := tokens.ParseRoomToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", roomID)
}

func TestTokenService_ExpiresWithRoom(t *testing.T) {
	tokens, err := service.NewTokenService("secret", 24*time.Hour)
	require.NoError(t, err)

	token, err := tokens.IssueRoomToken(&domain.Room{ID: "OLD123", CreatedAt: time.Now().Add(-25 * time.Hour)})
	require.NoError(t, err)

	_, err = tokens.ParseRoomToken(token)
	assert.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestTokenService_RejectsForeignSignature(t *testing.T) {
	tokens, _ := service.NewTokenService("secret", time.Hour)
	other, _ := service.NewTokenService("other-secret", time.Hour)

	token, err := other.IssueRoomToken(&domain.Room{ID: "ABC123", CreatedAt: time.Now()})
	require.NoError(t, err)
	_, err = tokens.ParseRoomToken(token)
	assert.ErrorIs(t, err, service.ErrInvalidToken)

	_, err = tokens.ParseRoomToken("garbage")
	assert.ErrorIs(t, err, service.ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"room_id": "ABC123"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.ParseRoomToken(unsigned)
	assert.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestNewTokenService_RequiresSecret(t *testing.T) {
	_, err := service.NewTokenService("", time.Hour)
	assert.Error(t, err)
}
