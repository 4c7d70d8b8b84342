package authority

import (
	"context"
	"fmt"
	"strings"

	"gatekeeper/bizerror"
	"gatekeeper/common"
	"gatekeeper/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

const (
	AdminRoleID     types.ID = 1
	UserRoleID      types.ID = 2
	ModeratorRoleID types.ID = 3

	// DefaultRoleID is assigned on registration.
	DefaultRoleID = UserRoleID
)

var (
	seedRoles = []Role{
		{ID: AdminRoleID, Name: RoleAdmin, Description: "Administrator with all permissions"},
		{ID: UserRoleID, Name: RoleUser, Description: "Regular user"},
		{ID: ModeratorRoleID, Name: RoleModerator, Description: "Moderator with limited admin permissions"},
	}
	seedPermissions = []Permission{
		{ID: 1, Name: PermCreateUser, Description: "Create new users"},
		{ID: 2, Name: PermReadUser, Description: "Read user information"},
		{ID: 3, Name: PermUpdateUser, Description: "Update user information"},
		{ID: 4, Name: PermDeleteUser, Description: "Delete users"},
		{ID: 5, Name: PermManageRoles, Description: "Manage roles and permissions"},
		{ID: 6, Name: PermSendEmail, Description: "Send emails"},
	}
	seedGrants = map[types.ID][]string{
		AdminRoleID:     {PermCreateUser, PermReadUser, PermUpdateUser, PermDeleteUser, PermManageRoles, PermSendEmail},
		UserRoleID:      {PermReadUser},
		ModeratorRoleID: {PermReadUser, PermUpdateUser},
	}

	QueryRolesFunc             = QueryRoles
	QueryPermissionsFunc       = QueryPermissions
	ReplaceRolePermissionsFunc = ReplaceRolePermissions
)

func MigrateSchema(db *gorm.DB) error {
	return db.AutoMigrate(&Role{}, &Permission{}, &RolePermissionBinding{}).Error
}

// DefaultSecurityConfiguration seeds the built-in roles, permissions and
// grants. Records that already exist are left untouched.
func DefaultSecurityConfiguration(ctx context.Context) error {
	err := persistence.ActiveDataSourceManager.GormDB(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range seedRoles {
			record := r
			if err := tx.Where(&Role{ID: r.ID}).Attrs(record).FirstOrCreate(&record).Error; err != nil {
				return err
			}
		}
		for _, p := range seedPermissions {
			record := p
			if err := tx.Where(&Permission{ID: p.ID}).Attrs(record).FirstOrCreate(&record).Error; err != nil {
				return err
			}
		}
		permissionIds := map[string]types.ID{}
		for _, p := range seedPermissions {
			permissionIds[p.Name] = p.ID
		}
		for roleID, names := range seedGrants {
			for _, name := range names {
				binding := RolePermissionBinding{RoleID: roleID, PermissionID: permissionIds[name]}
				if err := tx.Where(&binding).FirstOrCreate(&binding).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	InvalidateAllRoles()
	logrus.WithContext(ctx).Info("default roles and permissions are in place")
	return nil
}

func FindRoleByID(ctx context.Context, id types.ID) (*Role, error) {
	role := Role{}
	if err := persistence.ActiveDataSourceManager.GormDB(ctx).Where(&Role{ID: id}).First(&role).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, bizerror.ErrRoleNotFound
		}
		return nil, err
	}
	return &role, nil
}

func QueryRoles(ctx context.Context, q common.PageQuery) (*common.Page, error) {
	q = q.Normalize()
	db := persistence.ActiveDataSourceManager.GormDB(ctx).Model(&Role{})
	db = applySearch(db, q.Search)

	total := 0
	if err := db.Count(&total).Error; err != nil {
		return nil, err
	}
	var roles []Role
	if err := db.Order("id ASC").Offset(q.Skip).Limit(q.Limit).Find(&roles).Error; err != nil {
		return nil, err
	}
	details, err := loadRoleDetails(persistence.ActiveDataSourceManager.GormDB(ctx), roles)
	if err != nil {
		return nil, err
	}
	return &common.Page{Items: details, Total: total, Skip: q.Skip, Limit: q.Limit}, nil
}

func QueryPermissions(ctx context.Context, q common.PageQuery) (*common.Page, error) {
	q = q.Normalize()
	db := persistence.ActiveDataSourceManager.GormDB(ctx).Model(&Permission{})
	db = applySearch(db, q.Search)

	total := 0
	if err := db.Count(&total).Error; err != nil {
		return nil, err
	}
	permissions := []Permission{}
	if err := db.Order("id ASC").Offset(q.Skip).Limit(q.Limit).Find(&permissions).Error; err != nil {
		return nil, err
	}
	return &common.Page{Items: permissions, Total: total, Skip: q.Skip, Limit: q.Limit}, nil
}

func applySearch(db *gorm.DB, search string) *gorm.DB {
	search = strings.TrimSpace(search)
	if search == "" {
		return db
	}
	pattern := "%" + strings.ToLower(search) + "%"
	return db.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
}

type RolePermissionsUpdating struct {
	Permissions []string `json:"permissions" binding:"required,dive,required"`
}

// ReplaceRolePermissions makes names the complete permission set of the role.
func ReplaceRolePermissions(ctx context.Context, roleID types.ID, u RolePermissionsUpdating) (*RoleDetail, error) {
	var detail *RoleDetail
	err := persistence.ActiveDataSourceManager.GormDB(ctx).Transaction(func(tx *gorm.DB) error {
		role := Role{}
		if err := tx.Where(&Role{ID: roleID}).First(&role).Error; err != nil {
			return err
		}

		names := NewPermissionSet(u.Permissions...)
		var permissions []Permission
		if len(names) > 0 {
			keys := make([]string, 0, len(names))
			for name := range names {
				keys = append(keys, name)
			}
			if err := tx.Where("name IN (?)", keys).Find(&permissions).Error; err != nil {
				return err
			}
		}
		if len(permissions) != len(names) {
			found := NewPermissionSet()
			for _, p := range permissions {
				found[p.Name] = struct{}{}
			}
			for name := range names {
				if !found.Has(name) {
					return &bizerror.ErrBadParam{Cause: fmt.Errorf("unknown permission '%s'", name)}
				}
			}
		}

		if err := tx.Where("role_id = ?", roleID).Delete(&RolePermissionBinding{}).Error; err != nil {
			return err
		}
		for _, p := range permissions {
			if err := tx.Create(&RolePermissionBinding{RoleID: roleID, PermissionID: p.ID}).Error; err != nil {
				return err
			}
		}
		details, err := loadRoleDetails(tx, []Role{role})
		if err != nil {
			return err
		}
		detail = details[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	InvalidateRole(roleID)
	logrus.WithContext(ctx).WithField("roleId", roleID).Info("role permissions replaced")
	return detail, nil
}
