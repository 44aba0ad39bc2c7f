package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"text-sync/internal/domain"
	"text-sync/internal/dto"
)

func ErrorResponse(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: message, Code: code})
}

func SuccessResponse(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// bindError 请求体校验失败
func bindError(c *gin.Context, err error) {
	ErrorResponse(c, http.StatusBadRequest, domain.CodeValidation, "Invalid request body: "+err.Error())
}
