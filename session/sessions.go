package session

import (
	"context"
	"gatekeeper/authority"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
)

const KeySecCtx = "SecCtx"

type Session struct {
	Context context.Context `json:"-"`

	Token    string                `json:"-"`
	Identity Identity              `json:"identity"`
	Role     *authority.RoleDetail `json:"role"`
}

type Identity struct {
	ID       types.ID `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
}

func (s *Session) AssignedRole() *authority.RoleDetail {
	if s == nil {
		return nil
	}
	return s.Role
}

func FindSecurityContext(ctx *gin.Context) *Session {
	value, found := ctx.Get(KeySecCtx)
	if !found {
		return nil
	}
	s, ok := value.(*Session)
	if !ok || s.Token == "" {
		return nil
	}
	return s
}

// ExtractSessionFromGinContext returns a copy of the request session bound to
// the request context. An anonymous session is returned when none was injected.
func ExtractSessionFromGinContext(ctx *gin.Context) *Session {
	s0 := FindSecurityContext(ctx)
	if s0 == nil {
		return &Session{Context: ctx.Request.Context()}
	}
	s := *s0
	s.Context = ctx.Request.Context()
	return &s
}

func InjectSessionIntoGinContext(ctx *gin.Context, s *Session) {
	if s != nil && s.Token != "" {
		ctx.Set(KeySecCtx, s)
	}
}
