package authority

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

const (
	PermCreateUser  = "create_user"
	PermReadUser    = "read_user"
	PermUpdateUser  = "update_user"
	PermDeleteUser  = "delete_user"
	PermManageRoles = "manage_roles"
	PermSendEmail   = "send_email"

	RoleAdmin     = "admin"
	RoleUser      = "user"
	RoleModerator = "moderator"
)

type Role struct {
	ID          types.ID  `json:"id" gorm:"primary_key"`
	Name        string    `json:"name" gorm:"size:50;unique_index:uni_role_name"`
	Description string    `json:"description" gorm:"size:255"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Permission struct {
	ID          types.ID  `json:"id" gorm:"primary_key"`
	Name        string    `json:"name" gorm:"size:100;unique_index:uni_permission_name"`
	Description string    `json:"description" gorm:"size:255"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type RolePermissionBinding struct {
	RoleID       types.ID `gorm:"primary_key;auto_increment:false"`
	PermissionID types.ID `gorm:"primary_key;auto_increment:false"`
}

func (RolePermissionBinding) TableName() string {
	return "role_permissions"
}

// PermissionSet holds permission names.
type PermissionSet map[string]struct{}

func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func (s PermissionSet) Has(name string) bool {
	_, found := s[name]
	return found
}

// RoleDetail is a role together with its permissions. Instances are shared
// through the role cache and must not be modified once built.
type RoleDetail struct {
	Role
	Permissions []Permission `json:"permissions"`

	names PermissionSet
}

func NewRoleDetail(role Role, permissions []Permission) *RoleDetail {
	names := make(PermissionSet, len(permissions))
	for _, p := range permissions {
		names[p.Name] = struct{}{}
	}
	if permissions == nil {
		permissions = []Permission{}
	}
	return &RoleDetail{Role: role, Permissions: permissions, names: names}
}

func (r *RoleDetail) PermissionNames() PermissionSet {
	return r.names
}

// Holder is anything a role may be assigned to. AssignedRole returns nil
// when there is no role.
type Holder interface {
	AssignedRole() *RoleDetail
}

// HasAll reports whether holder has a role granting every required permission.
func HasAll(holder Holder, required ...string) bool {
	role := assignedRole(holder)
	if role == nil {
		return false
	}
	for _, name := range required {
		if !role.names.Has(name) {
			return false
		}
	}
	return true
}

// HasRole reports whether holder's role is one of allowed.
func HasRole(holder Holder, allowed ...string) bool {
	role := assignedRole(holder)
	if role == nil {
		return false
	}
	for _, name := range allowed {
		if role.Name == name {
			return true
		}
	}
	return false
}

func assignedRole(holder Holder) *RoleDetail {
	if holder == nil {
		return nil
	}
	return holder.AssignedRole()
}
