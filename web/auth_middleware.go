package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader API Key 请求头
const APIKeyHeader = "X-API-Key"

// APIKeyMiddleware 校验 X-API-Key（WebSocket 可用 api_key 查询参数）
func APIKeyMiddleware(hash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			key = c.Query("api_key")
		}
		if key == "" {
			respondError(c, http.StatusUnauthorized, "missing %s header", APIKeyHeader)
			c.Abort()
			return
		}
		if !VerifyAPIKey(hash, key) {
			respondError(c, http.StatusUnauthorized, "invalid api key")
			c.Abort()
			return
		}
		c.Next()
	}
}
