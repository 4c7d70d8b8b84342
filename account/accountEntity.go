package account

import (
	"time"

	"gatekeeper/authority"
	"gatekeeper/common"

	"github.com/fundwit/go-commons/types"
)

type User struct {
	ID             types.ID  `json:"id" gorm:"primary_key;auto_increment:false"`
	Email          string    `json:"email" gorm:"size:255;unique_index:uni_user_email"`
	Username       string    `json:"username" gorm:"size:50;unique_index:uni_user_username"`
	HashedPassword string    `json:"-" gorm:"size:255"`
	RoleID         types.ID  `json:"role_id" gorm:"index:idx_user_role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Principal is a user with its role and permission set resolved.
type Principal struct {
	User
	Role *authority.RoleDetail `json:"role"`
}

func (p *Principal) AssignedRole() *authority.RoleDetail {
	if p == nil {
		return nil
	}
	return p.Role
}

type UserUpdating struct {
	Email    *string   `json:"email" binding:"omitempty,email,lte=255"`
	Username *string   `json:"username" binding:"omitempty,gte=3,lte=50"`
	Password *string   `json:"password" binding:"omitempty,gte=1"`
	RoleID   *types.ID `json:"role_id"`
}

// SortField names a sortable user attribute, see sortColumns.
type SortField string

const (
	SortByID        SortField = "id"
	SortByEmail     SortField = "email"
	SortByUsername  SortField = "username"
	SortByRoleID    SortField = "role_id"
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
)

var sortColumns = map[SortField]string{
	SortByID:        "id",
	SortByEmail:     "email",
	SortByUsername:  "username",
	SortByRoleID:    "role_id",
	SortByCreatedAt: "created_at",
	SortByUpdatedAt: "updated_at",
}

type UserQuery struct {
	common.PageQuery
	Email    string    `form:"email" binding:"omitempty,lte=255"`
	Username string    `form:"username" binding:"omitempty,lte=50"`
	RoleID   types.ID  `form:"role_id"`
	SortBy   SortField `form:"sort_by" binding:"omitempty,oneof=id email username role_id created_at updated_at"`
	Order    string    `form:"order" binding:"omitempty,oneof=asc desc"`
}
