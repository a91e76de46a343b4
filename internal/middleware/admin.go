package middleware

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/apisync/internal/pkg/errcode"
	"github.com/xxxsen/apisync/internal/pkg/password"
	"github.com/xxxsen/apisync/internal/pkg/response"
)

const AdminKeyHeader = "X-Admin-Key"

// AdminKey guards the admin API with a shared key checked against a bcrypt
// hash. An empty hash disables the admin API.
func AdminKey(keyHash string) gin.HandlerFunc {
	// bcrypt is slow on purpose; remember keys that already matched
	var accepted sync.Map
	return func(c *gin.Context) {
		if keyHash == "" {
			response.Error(c, errcode.ErrForbidden, "admin api disabled")
			c.Abort()
			return
		}
		key := adminKeyFrom(c)
		if key == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing admin key")
			c.Abort()
			return
		}
		if _, ok := accepted.Load(key); !ok {
			if !password.Verify(keyHash, key) {
				logutil.GetLogger(c.Request.Context()).Warn("admin key rejected",
					zap.String("ip", c.ClientIP()),
					zap.String("path", c.Request.URL.Path),
				)
				response.Error(c, errcode.ErrUnauthorized, "invalid admin key")
				c.Abort()
				return
			}
			accepted.Store(key, struct{}{})
		}
		c.Next()
	}
}

func adminKeyFrom(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader(AdminKeyHeader)); key != "" {
		return key
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
