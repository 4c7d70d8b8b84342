package auth

import (
	"errors"
	"strings"
	"time"

	"gatekeeper/account"
	"gatekeeper/bizerror"
	"gatekeeper/security"
	"gatekeeper/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
)

const KeyPrincipal = "Principal"

// NowFunc is the clock access tokens are checked against.
var NowFunc = time.Now

// BearerAuthFilter authenticates the access token of the Authorization header
// and exposes the principal and its session to the following handlers.
func BearerAuthFilter(codec *security.TokenCodec) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			panic(bizerror.ErrUnauthenticated)
		}
		subject, err := codec.Verify(token, security.PurposeAccess, NowFunc())
		if err != nil {
			panic(bizerror.ErrUnauthenticated)
		}
		id, err := types.ParseID(subject)
		if err != nil {
			panic(bizerror.ErrUnauthenticated)
		}
		principal, err := account.FindPrincipalByIDFunc(c.Request.Context(), id)
		if errors.Is(err, bizerror.ErrUserNotFound) {
			panic(bizerror.ErrUnauthenticated)
		}
		if err != nil {
			panic(err)
		}

		c.Set(KeyPrincipal, principal)
		session.InjectSessionIntoGinContext(c, &session.Session{
			Token:    token,
			Identity: session.Identity{ID: principal.ID, Username: principal.Username, Email: principal.Email},
			Role:     principal.Role,
		})
		c.Next()
	}
}

// FindPrincipal returns nil outside of BearerAuthFilter.
func FindPrincipal(c *gin.Context) *account.Principal {
	value, found := c.Get(KeyPrincipal)
	if !found {
		return nil
	}
	principal, _ := value.(*account.Principal)
	return principal
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
