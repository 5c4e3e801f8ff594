package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"vaultbank.com/pkg/common"
	"vaultbank.com/pkg/xerr"
)

const CtxKeyIdentity = "identity"

// Identity 请求方身份：静态 token 表解析出来的用户和角色
type Identity struct {
	UserID string
	Admin  bool
}

// Auth 静态 token 鉴权
// tokens: token -> userID；adminToken 单独配置
// 正式环境应替换为 user-service 签发的 JWT，这里保持账本核心可独立运行
func Auth(tokens map[string]string, adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		token = strings.TrimPrefix(token, "Bearer ")
		if token == "" {
			common.Fail(c, http.StatusUnauthorized, xerr.Unauthorized, xerr.MapErrMsg(xerr.Unauthorized))
			c.Abort()
			return
		}
		if adminToken != "" && token == adminToken {
			c.Set(CtxKeyIdentity, Identity{UserID: "admin", Admin: true})
			c.Next()
			return
		}
		uid, ok := tokens[token]
		if !ok {
			common.Fail(c, http.StatusUnauthorized, xerr.Unauthorized, xerr.MapErrMsg(xerr.Unauthorized))
			c.Abort()
			return
		}
		c.Set(CtxKeyIdentity, Identity{UserID: uid})
		c.Next()
	}
}

// IdentityFromGin 取出鉴权结果；未经过 Auth 中间件时返回 false
func IdentityFromGin(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(CtxKeyIdentity)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
