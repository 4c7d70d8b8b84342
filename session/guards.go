package session

import (
	"gatekeeper/authority"
	"gatekeeper/bizerror"

	"github.com/gin-gonic/gin"
)

// RequirePermissions rejects the request unless the session role grants every name.
func RequirePermissions(names ...string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		s := FindSecurityContext(ctx)
		if s == nil {
			panic(bizerror.ErrUnauthenticated)
		}
		if !authority.HasAll(s, names...) {
			panic(bizerror.ErrForbidden)
		}
		ctx.Next()
	}
}

// RequireRoles rejects the request unless the session role is one of names.
func RequireRoles(names ...string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		s := FindSecurityContext(ctx)
		if s == nil {
			panic(bizerror.ErrUnauthenticated)
		}
		if !authority.HasRole(s, names...) {
			panic(bizerror.ErrForbidden)
		}
		ctx.Next()
	}
}
