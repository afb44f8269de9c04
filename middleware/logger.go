package middleware

import (
	"strings"
	"time"

	"github.com/evangelionleo/labelU/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger Zap日志中间件，健康检查只记 debug
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("cost", time.Since(start)),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if c.FullPath() != "" && isHealthPath(c.FullPath()) {
			utils.Logger.Debug("request", fields...)
			return
		}
		utils.Logger.Info("request", fields...)
	}
}

func isHealthPath(route string) bool {
	return strings.HasSuffix(route, "/health")
}
