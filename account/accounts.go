package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gatekeeper/authority"
	"gatekeeper/bizerror"
	"gatekeeper/common"
	"gatekeeper/persistence"
	"gatekeeper/security"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
	"github.com/sony/sonyflake"
)

var (
	userIdWorker *sonyflake.Sonyflake

	FindPrincipalByIDFunc       = FindPrincipalByID
	FindPrincipalByEmailFunc    = FindPrincipalByEmail
	FindPrincipalByUsernameFunc = FindPrincipalByUsername
	IsEmailTakenFunc            = IsEmailTaken
	IsUsernameTakenFunc         = IsUsernameTaken
	InsertUserFunc              = InsertUser
	UpdateCredentialFunc        = UpdateCredential
	QueryUsersFunc              = QueryUsers
	UpdateUserFunc              = UpdateUser
	DeleteUserFunc              = DeleteUser

	// constraint names and columns as reported by mysql/postgres and sqlite
	emailConstraintMarkers    = []string{"uni_user_email", "users.email"}
	usernameConstraintMarkers = []string{"uni_user_username", "users.username"}
)

func init() {
	userIdWorker = common.NewIdWorker()
}

func MigrateSchema(db *gorm.DB) error {
	return db.AutoMigrate(&User{}).Error
}

func FindPrincipalByID(ctx context.Context, id types.ID) (*Principal, error) {
	return findPrincipal(ctx, &User{ID: id})
}

func FindPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	return findPrincipal(ctx, &User{Email: email})
}

func FindPrincipalByUsername(ctx context.Context, username string) (*Principal, error) {
	return findPrincipal(ctx, &User{Username: username})
}

// findPrincipal reports bizerror.ErrUserNotFound when nothing matches cond.
func findPrincipal(ctx context.Context, cond *User) (*Principal, error) {
	if *cond == (User{}) {
		return nil, bizerror.ErrUserNotFound
	}
	user := User{}
	if err := persistence.ActiveDataSourceManager.GormDB(ctx).Where(cond).First(&user).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, bizerror.ErrUserNotFound
		}
		return nil, err
	}
	return toPrincipal(ctx, user)
}

func toPrincipal(ctx context.Context, user User) (*Principal, error) {
	role, err := authority.LoadRoleDetailFunc(ctx, user.RoleID)
	if err != nil {
		return nil, err
	}
	return &Principal{User: user, Role: role}, nil
}

func IsEmailTaken(ctx context.Context, email string) (bool, error) {
	return exists(ctx, &User{Email: email})
}

func IsUsernameTaken(ctx context.Context, username string) (bool, error) {
	return exists(ctx, &User{Username: username})
}

func exists(ctx context.Context, cond *User) (bool, error) {
	if *cond == (User{}) {
		return false, nil
	}
	count := 0
	if err := persistence.ActiveDataSourceManager.GormDB(ctx).Model(&User{}).Where(cond).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertUser assigns an id and the default role when missing. Unique
// violations surface as bizerror.ErrEmailTaken or bizerror.ErrUsernameTaken.
func InsertUser(ctx context.Context, user *User) error {
	if user.ID == 0 {
		user.ID = common.NextId(userIdWorker)
	}
	if user.RoleID == 0 {
		user.RoleID = authority.DefaultRoleID
	}
	if err := persistence.ActiveDataSourceManager.GormDB(ctx).Create(user).Error; err != nil {
		return translateUserError(err)
	}
	return nil
}

func translateUserError(err error) error {
	err = persistence.TranslateError(err)
	var violation *persistence.ErrUniqueViolation
	if errors.As(err, &violation) {
		for _, marker := range emailConstraintMarkers {
			if violation.Involves(marker) {
				return bizerror.ErrEmailTaken
			}
		}
		for _, marker := range usernameConstraintMarkers {
			if violation.Involves(marker) {
				return bizerror.ErrUsernameTaken
			}
		}
	}
	return err
}

func UpdateCredential(ctx context.Context, id types.ID, digest string) error {
	if id == 0 {
		return bizerror.ErrUserNotFound
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctx).Model(&User{}).Where(&User{ID: id}).
		Update("hashed_password", digest)
	if db.Error != nil {
		return db.Error
	}
	if db.RowsAffected == 0 {
		return bizerror.ErrUserNotFound
	}
	return nil
}

func QueryUsers(ctx context.Context, q UserQuery) (*common.Page, error) {
	q.PageQuery = q.PageQuery.Normalize()
	column, found := sortColumns[q.SortBy]
	if !found {
		column = sortColumns[SortByID]
	}
	direction := "ASC"
	if strings.EqualFold(q.Order, "desc") {
		direction = "DESC"
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctx).Model(&User{})
	if q.Email != "" {
		db = db.Where("email = ?", q.Email)
	}
	if q.Username != "" {
		db = db.Where("username = ?", q.Username)
	}
	if q.RoleID != 0 {
		db = db.Where("role_id = ?", q.RoleID)
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		db = db.Where("LOWER(email) LIKE ? OR LOWER(username) LIKE ?", pattern, pattern)
	}

	total := 0
	if err := db.Count(&total).Error; err != nil {
		return nil, err
	}
	var users []User
	if err := db.Order(column + " " + direction).Offset(q.Skip).Limit(q.Limit).Find(&users).Error; err != nil {
		return nil, err
	}

	principals := make([]*Principal, 0, len(users))
	for _, u := range users {
		p, err := toPrincipal(ctx, u)
		if err != nil {
			return nil, err
		}
		principals = append(principals, p)
	}
	return &common.Page{Items: principals, Total: total, Skip: q.Skip, Limit: q.Limit}, nil
}

// UpdateUser applies the fields present in u. A new password must satisfy
// security.ActivePasswordPolicy.
func UpdateUser(ctx context.Context, id types.ID, u UserUpdating) (*Principal, error) {
	if id == 0 {
		return nil, bizerror.ErrUserNotFound
	}
	changes := map[string]interface{}{}
	if u.Email != nil {
		changes["email"] = *u.Email
	}
	if u.Username != nil {
		changes["username"] = *u.Username
	}
	if u.Password != nil {
		if ok, reason := security.ActivePasswordPolicy.Validate(*u.Password); !ok {
			return nil, &bizerror.ErrWeakPassword{Reason: reason}
		}
		digest, err := security.HashPassword(*u.Password)
		if err != nil {
			return nil, err
		}
		changes["hashed_password"] = digest
	}
	if u.RoleID != nil {
		changes["role_id"] = *u.RoleID
	}

	user := User{}
	err := persistence.ActiveDataSourceManager.GormDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(&User{ID: id}).First(&user).Error; err != nil {
			if gorm.IsRecordNotFoundError(err) {
				return bizerror.ErrUserNotFound
			}
			return err
		}
		if u.RoleID != nil {
			if *u.RoleID == 0 {
				return bizerror.ErrRoleNotFound
			}
			if err := tx.Where(&authority.Role{ID: *u.RoleID}).First(&authority.Role{}).Error; err != nil {
				if gorm.IsRecordNotFoundError(err) {
					return bizerror.ErrRoleNotFound
				}
				return err
			}
		}
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&user).Updates(changes).Error; err != nil {
			return translateUserError(err)
		}
		return tx.Where(&User{ID: id}).First(&user).Error
	})
	if err != nil {
		return nil, err
	}
	logrus.WithContext(ctx).WithField("userId", id).Info("user updated")
	return toPrincipal(ctx, user)
}

func DeleteUser(ctx context.Context, id types.ID) error {
	// a zero id would turn into an unconditional delete
	if id == 0 {
		return bizerror.ErrUserNotFound
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctx).Where(&User{ID: id}).Delete(&User{})
	if db.Error != nil {
		return db.Error
	}
	if db.RowsAffected == 0 {
		return bizerror.ErrUserNotFound
	}
	logrus.WithContext(ctx).WithField("userId", id).Info("user deleted")
	return nil
}

type DefaultAdmin struct {
	Email    string
	Username string
	Password string
}

// EnsureDefaultAdmin creates the admin account unless a user already holds
// its email or username. Seeded roles must exist.
func EnsureDefaultAdmin(ctx context.Context, admin DefaultAdmin) error {
	if admin.Email == "" || admin.Username == "" || admin.Password == "" {
		return errors.New("default admin requires email, username and password")
	}
	if ok, reason := security.ActivePasswordPolicy.Validate(admin.Password); !ok {
		return fmt.Errorf("default admin password rejected: %w", &bizerror.ErrWeakPassword{Reason: reason})
	}
	digest, err := security.HashPassword(admin.Password)
	if err != nil {
		return err
	}
	created := false
	err = persistence.ActiveDataSourceManager.GormDB(ctx).Transaction(func(tx *gorm.DB) error {
		count := 0
		if err := tx.Model(&User{}).Where("email = ? OR username = ?", admin.Email, admin.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		user := User{ID: common.NextId(userIdWorker), Email: admin.Email, Username: admin.Username,
			HashedPassword: digest, RoleID: authority.AdminRoleID}
		if err := tx.Create(&user).Error; err != nil {
			return translateUserError(err)
		}
		created = true
		return nil
	})
	if err != nil {
		return err
	}
	if created {
		logrus.WithContext(ctx).WithField("username", admin.Username).Info("default admin created")
	}
	return nil
}
