package authority

import (
	"context"
	"sort"
	"sync"
	"time"

	"gatekeeper/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/patrickmn/go-cache"
)

const DefaultRoleCacheTTL = time.Minute

var (
	roleCacheLock sync.RWMutex
	roleCache     = cache.New(DefaultRoleCacheTTL, 5*time.Minute)

	LoadRoleDetailFunc = LoadRoleDetail
)

// ConfigureRoleCache replaces the role cache. ttl bounds how long a role
// mutation made by another instance can go unnoticed.
func ConfigureRoleCache(ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultRoleCacheTTL
	}
	roleCacheLock.Lock()
	defer roleCacheLock.Unlock()
	roleCache = cache.New(ttl, 5*time.Minute)
}

func currentRoleCache() *cache.Cache {
	roleCacheLock.RLock()
	defer roleCacheLock.RUnlock()
	return roleCache
}

func InvalidateRole(roleID types.ID) {
	currentRoleCache().Delete(roleID.String())
}

func InvalidateAllRoles() {
	currentRoleCache().Flush()
}

// LoadRoleDetail returns the role and its permission set, or nil when the
// role does not exist.
func LoadRoleDetail(ctx context.Context, roleID types.ID) (*RoleDetail, error) {
	if roleID == 0 {
		return nil, nil
	}
	c := currentRoleCache()
	if cached, found := c.Get(roleID.String()); found {
		return cached.(*RoleDetail), nil
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	role := Role{}
	if err := db.Where(&Role{ID: roleID}).First(&role).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	details, err := loadRoleDetails(db, []Role{role})
	if err != nil {
		return nil, err
	}
	c.SetDefault(roleID.String(), details[0])
	return details[0], nil
}

func loadRoleDetails(db *gorm.DB, roles []Role) ([]*RoleDetail, error) {
	details := make([]*RoleDetail, 0, len(roles))
	if len(roles) == 0 {
		return details, nil
	}
	roleIds := make([]types.ID, 0, len(roles))
	for _, r := range roles {
		roleIds = append(roleIds, r.ID)
	}

	var bindings []RolePermissionBinding
	if err := db.Where("role_id IN (?)", roleIds).Find(&bindings).Error; err != nil {
		return nil, err
	}
	permissionIds := make([]types.ID, 0, len(bindings))
	for _, b := range bindings {
		permissionIds = append(permissionIds, b.PermissionID)
	}
	permissions := map[types.ID]Permission{}
	if len(permissionIds) > 0 {
		var records []Permission
		if err := db.Where("id IN (?)", permissionIds).Order("id ASC").Find(&records).Error; err != nil {
			return nil, err
		}
		for _, p := range records {
			permissions[p.ID] = p
		}
	}

	grouped := map[types.ID][]Permission{}
	for _, b := range bindings {
		if p, found := permissions[b.PermissionID]; found {
			grouped[b.RoleID] = append(grouped[b.RoleID], p)
		}
	}
	for _, r := range roles {
		perms := grouped[r.ID]
		sortPermissions(perms)
		details = append(details, NewRoleDetail(r, perms))
	}
	return details, nil
}

func sortPermissions(perms []Permission) {
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
}
