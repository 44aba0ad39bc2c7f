package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"text-sync/internal/domain"
	"text-sync/internal/service"
)

// HandleServiceError 把服务层错误映射为 HTTP 状态码和错误码
func HandleServiceError(c *gin.Context, err error) {
	code := domain.ErrorCode(err)
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		ErrorResponse(c, http.StatusUnauthorized, "", err.Error())
	case code == domain.CodeValidation:
		ErrorResponse(c, http.StatusBadRequest, code, err.Error())
	case code == domain.CodeNotFound:
		ErrorResponse(c, http.StatusNotFound, code, err.Error())
	case code == domain.CodeConflict:
		ErrorResponse(c, http.StatusConflict, code, err.Error())
	case code == domain.CodeExhaustedRetries:
		ErrorResponse(c, http.StatusServiceUnavailable, code, "Could not allocate a room code, please try again")
	case code == domain.CodeStoreUnavailable:
		logrus.WithError(err).Error("Store unavailable")
		ErrorResponse(c, http.StatusServiceUnavailable, code, "Storage is temporarily unavailable")
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, code, "An unexpected error occurred")
	}
}
