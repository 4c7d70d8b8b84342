package account

import (
	"net/http"

	"gatekeeper/authority"
	"gatekeeper/bizerror"
	"gatekeeper/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var (
	PathUsers = "/api/v1/users"
)

// RegisterUsersRestAPI expects middleWares to authenticate the caller, route
// level permissions are enforced here.
func RegisterUsersRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathUsers, middleWares...)
	g.GET("/me", handleQueryMe)
	g.GET("", session.RequirePermissions(authority.PermReadUser), handleQueryUsers)
	g.GET("/:id", session.RequirePermissions(authority.PermReadUser), handleDetailUser)
	g.PUT("/:id", session.RequirePermissions(authority.PermUpdateUser), handleUpdateUser)
	g.DELETE("/:id", session.RequirePermissions(authority.PermDeleteUser), handleDeleteUser)
}

func handleQueryMe(c *gin.Context) {
	s := session.FindSecurityContext(c)
	if s == nil {
		panic(bizerror.ErrUnauthenticated)
	}
	principal, err := FindPrincipalByIDFunc(c.Request.Context(), s.Identity.ID)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, principal)
}

func handleQueryUsers(c *gin.Context) {
	query := UserQuery{}
	if err := c.ShouldBindQuery(&query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	page, err := QueryUsersFunc(c.Request.Context(), query)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, page)
}

func handleDetailUser(c *gin.Context) {
	id := parseUserID(c)
	principal, err := FindPrincipalByIDFunc(c.Request.Context(), id)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, principal)
}

func handleUpdateUser(c *gin.Context) {
	id := parseUserID(c)
	payload := UserUpdating{}
	if err := c.ShouldBindBodyWith(&payload, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	principal, err := UpdateUserFunc(c.Request.Context(), id, payload)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, principal)
}

func handleDeleteUser(c *gin.Context) {
	id := parseUserID(c)
	if err := DeleteUserFunc(c.Request.Context(), id); err != nil {
		panic(err)
	}
	c.Status(http.StatusNoContent)
}

func parseUserID(c *gin.Context) types.ID {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	return id
}
