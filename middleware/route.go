package middleware

import (
	midsec "EchoChat/middleware/security"

	"github.com/gin-gonic/gin"
)

// RouteOpt 路由选项
type RouteOpt struct {
	IsAuth bool
}

// Router wraps a gin route group with the auth options used by IsAuth routes.
type Router struct {
	r    gin.IRoutes
	auth *midsec.Options
}

func NewRouter(r gin.IRoutes, auth *midsec.Options) *Router {
	return &Router{r: r, auth: auth}
}

func (rt *Router) handle(method, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		rt.r.Handle(method, path, midsec.Middleware(rt.auth), handler)
		return
	}
	rt.r.Handle(method, path, handler)
}

// POST 封装
func (rt *Router) POST(path string, handler gin.HandlerFunc, opt RouteOpt) {
	rt.handle("POST", path, handler, opt)
}

// GET 封装
func (rt *Router) GET(path string, handler gin.HandlerFunc, opt RouteOpt) {
	rt.handle("GET", path, handler, opt)
}
