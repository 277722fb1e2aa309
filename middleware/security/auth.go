package security

import (
	"net/http"
	"strings"

	"EchoChat/logger"
	"EchoChat/tools/errs"
	sec "EchoChat/tools/security"

	"github.com/gin-gonic/gin"
)

// 后续模块统一用这个 key 读取当前用户
const (
	CtxUserIDKey = "userId"
)

type Options struct {
	JWT                       sec.Options
	HeaderToken               string // 默认 "authorization"
	QueryToken                string // websocket 握手时浏览器无法带 header，默认 "token"
	EnableAuthorizationBearer bool   // 默认 true
}

func DefaultOptions(jwt sec.Options) *Options {
	return &Options{
		JWT:                       jwt,
		HeaderToken:               "Authorization",
		QueryToken:                "token",
		EnableAuthorizationBearer: true,
	}
}

// TokenFrom extracts the raw token from the request.
func TokenFrom(r *http.Request, opts *Options) string {
	raw := strings.TrimSpace(r.Header.Get(opts.HeaderToken))
	// 兼容 Authorization: Bearer xxx
	if opts.EnableAuthorizationBearer && len(raw) > len("bearer ") &&
		strings.EqualFold(raw[:len("bearer ")], "bearer ") {
		raw = strings.TrimSpace(raw[len("bearer "):])
	}
	if raw == "" && opts.QueryToken != "" {
		raw = strings.TrimSpace(r.URL.Query().Get(opts.QueryToken))
	}
	return raw
}

func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFrom(c.Request, opts)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenMissing)
			return
		}
		claims, err := sec.Verify(opts.JWT, token)
		if err != nil {
			logger.Debugf("[auth] verify failed path=%s err=%v", c.FullPath(), err)
			if ce, ok := errs.AsCode(err); ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, errs.NewCodeError(ce.Code, ce.Msg))
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
			return
		}
		c.Set(CtxUserIDKey, claims.UserID)
		c.Next()
	}
}

// UserID returns the authenticated user id stored by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}
