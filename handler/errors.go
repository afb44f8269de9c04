package handler

import (
	"errors"
	"net/http"

	"github.com/evangelionleo/labelU/model"
	"github.com/evangelionleo/labelU/service"
	"github.com/evangelionleo/labelU/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor 将 service 层错误映射为 HTTP 状态码和提示信息
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidSession):
		return http.StatusBadRequest, "无效的会话ID"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "无效的请求参数"
	case errors.Is(err, service.ErrImageLoad):
		return http.StatusBadRequest, "无法读取图像"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "图像文件不存在"
	case errors.Is(err, service.ErrTooManySessions):
		return http.StatusTooManyRequests, "活跃会话过多，请先关闭不用的会话"
	default:
		return http.StatusInternalServerError, "服务器内部错误"
	}
}

// respondError 输出 {"error": message}，5xx 会记录日志
func respondError(c *gin.Context, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		utils.Logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, model.ErrorResponse{Error: message + ": " + err.Error()})
}

// abortWithMessage 用于 handler 自身的参数校验错误
func abortWithMessage(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, model.ErrorResponse{Error: message})
}
