package authority

import (
	"net/http"

	"gatekeeper/bizerror"
	"gatekeeper/common"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var (
	PathRbac = "/api/v1/rbac"
)

// RegisterRbacRestAPI expects middleWares to authenticate the caller and
// demand the manage_roles permission.
func RegisterRbacRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathRbac, middleWares...)
	g.GET("/roles", handleQueryRoles)
	g.GET("/permissions", handleQueryPermissions)
	g.PUT("/roles/:id/permissions", handleReplaceRolePermissions)
}

func handleQueryRoles(c *gin.Context) {
	query := common.PageQuery{}
	if err := c.ShouldBindQuery(&query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	page, err := QueryRolesFunc(c.Request.Context(), query)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, page)
}

func handleQueryPermissions(c *gin.Context) {
	query := common.PageQuery{}
	if err := c.ShouldBindQuery(&query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	page, err := QueryPermissionsFunc(c.Request.Context(), query)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, page)
}

func handleReplaceRolePermissions(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	payload := RolePermissionsUpdating{}
	if err := c.ShouldBindBodyWith(&payload, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	detail, err := ReplaceRolePermissionsFunc(c.Request.Context(), id, payload)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, detail)
}
