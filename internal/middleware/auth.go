package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"text-sync/internal/dto"
)

// ContextRoomID 认证通过后房间 ID 在 gin.Context 中的键
const ContextRoomID = "room_id"

// AdminTokenHeader 运维接口使用的请求头
const AdminTokenHeader = "X-Admin-Token"

// RoomTokenParser 由 service.TokenService 实现
type RoomTokenParser interface {
	ParseRoomToken(tokenStr string) (string, error)
}

// ErrMissingToken 请求既没有 Authorization 头也没有 token 参数
var ErrMissingToken = errors.New("missing room token")

// ErrMalformedAuthHeader Authorization 头不是 "Bearer <token>" 格式
var ErrMalformedAuthHeader = errors.New("malformed Authorization header")

// RoomAuth 返回一个 Gin 中间件，校验房间访问令牌。
// 令牌中的房间 ID 必须与路径参数 :roomId 一致。
func RoomAuth(tokens RoomTokenParser) gin.HandlerFunc {
	if tokens == nil {
		panic("token parser cannot be nil for RoomAuth middleware")
	}

	return func(c *gin.Context) {
		pathRoomID := c.Param("roomId")
		logCtx := logrus.WithField("room_id", pathRoomID)

		tokenStr, err := extractToken(c)
		if err != nil {
			logCtx.WithError(err).Warn("RoomAuth: no usable token")
			abortUnauthorized(c, err.Error())
			return
		}

		roomID, err := tokens.ParseRoomToken(tokenStr)
		if err != nil {
			logCtx.WithError(err).Warn("RoomAuth: Invalid token")
			abortUnauthorized(c, "Invalid or expired token")
			return
		}
		if roomID != pathRoomID {
			logCtx.WithField("token_room_id", roomID).Warn("RoomAuth: token issued for another room")
			c.AbortWithStatusJSON(http.StatusForbidden, dto.ErrorResponse{Error: "Token does not grant access to this room"})
			return
		}

		c.Set(ContextRoomID, roomID)
		logCtx.Debug("RoomAuth: room token accepted")
		c.Next()
	}
}

// AdminAuth 校验 X-Admin-Token，未配置 adminToken 时运维接口全部拒绝
func AdminAuth(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminToken == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.ErrorResponse{Error: "Admin API is disabled"})
			return
		}
		got := c.GetHeader(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(adminToken)) != 1 {
			logrus.WithField("client_ip", c.ClientIP()).Warn("AdminAuth: rejected admin request")
			abortUnauthorized(c, "Invalid admin token")
			return
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: message})
}

// extractToken 优先使用 Bearer 头，其次使用 ?token= 查询参数（浏览器 WebSocket 无法设置请求头）
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", ErrMalformedAuthHeader
		}
		return parts[1], nil
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return "", ErrMissingToken
}
