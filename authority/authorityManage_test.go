package authority_test

import (
	"context"
	"errors"
	"gatekeeper/authority"
	"gatekeeper/bizerror"
	"gatekeeper/common"
	"gatekeeper/persistence"
	"gatekeeper/testinfra"

	"github.com/jinzhu/gorm"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func permissionNames(detail *authority.RoleDetail) []string {
	var names []string
	for _, p := range detail.Permissions {
		names = append(names, p.Name)
	}
	return names
}

var _ = Describe("authorityManage", func() {
	var (
		testDatabase *testinfra.TestDatabase
		ctx          = context.Background()
	)
	BeforeEach(func() {
		testDatabase = testinfra.StartTestDatabase("gatekeeper")
		persistence.ActiveDataSourceManager = testDatabase.DS
		Expect(authority.MigrateSchema(testDatabase.DS.GormDB(ctx))).To(Succeed())
		authority.InvalidateAllRoles()
		Expect(authority.DefaultSecurityConfiguration(ctx)).To(Succeed())
	})
	AfterEach(func() {
		testinfra.StopTestDatabase(testDatabase)
	})

	Describe("DefaultSecurityConfiguration", func() {
		It("should seed the built-in roles and grants", func() {
			admin, err := authority.LoadRoleDetail(ctx, authority.AdminRoleID)
			Expect(err).To(BeNil())
			Expect(admin.Name).To(Equal("admin"))
			Expect(permissionNames(admin)).To(Equal([]string{"create_user", "read_user", "update_user",
				"delete_user", "manage_roles", "send_email"}))

			user, err := authority.LoadRoleDetail(ctx, authority.DefaultRoleID)
			Expect(err).To(BeNil())
			Expect(user.Name).To(Equal("user"))
			Expect(permissionNames(user)).To(Equal([]string{"read_user"}))

			moderator, err := authority.LoadRoleDetail(ctx, authority.ModeratorRoleID)
			Expect(err).To(BeNil())
			Expect(permissionNames(moderator)).To(Equal([]string{"read_user", "update_user"}))
		})

		It("should be idempotent", func() {
			Expect(authority.DefaultSecurityConfiguration(ctx)).To(Succeed())

			count := 0
			Expect(testDatabase.DS.GormDB(ctx).Model(&authority.RolePermissionBinding{}).Count(&count).Error).To(BeNil())
			Expect(count).To(Equal(9))
			Expect(testDatabase.DS.GormDB(ctx).Model(&authority.Role{}).Count(&count).Error).To(BeNil())
			Expect(count).To(Equal(3))
		})
	})

	Describe("LoadRoleDetail", func() {
		It("should return nil for unknown roles", func() {
			detail, err := authority.LoadRoleDetail(ctx, 999)
			Expect(err).To(BeNil())
			Expect(detail).To(BeNil())

			detail, err = authority.LoadRoleDetail(ctx, 0)
			Expect(err).To(BeNil())
			Expect(detail).To(BeNil())
		})

		It("should serve cached details until the role is invalidated", func() {
			detail, err := authority.LoadRoleDetail(ctx, authority.UserRoleID)
			Expect(err).To(BeNil())
			Expect(detail.PermissionNames().Has("read_user")).To(BeTrue())

			Expect(testDatabase.DS.GormDB(ctx).Where("role_id = ?", authority.UserRoleID).
				Delete(&authority.RolePermissionBinding{}).Error).To(BeNil())

			cached, err := authority.LoadRoleDetail(ctx, authority.UserRoleID)
			Expect(err).To(BeNil())
			Expect(cached).To(BeIdenticalTo(detail))

			authority.InvalidateRole(authority.UserRoleID)
			fresh, err := authority.LoadRoleDetail(ctx, authority.UserRoleID)
			Expect(err).To(BeNil())
			Expect(fresh.PermissionNames().Has("read_user")).To(BeFalse())
		})
	})

	Describe("ReplaceRolePermissions", func() {
		It("should replace the permission set and refresh the cache", func() {
			before, err := authority.LoadRoleDetail(ctx, authority.UserRoleID)
			Expect(err).To(BeNil())
			Expect(before.PermissionNames().Has("send_email")).To(BeFalse())

			detail, err := authority.ReplaceRolePermissions(ctx, authority.UserRoleID,
				authority.RolePermissionsUpdating{Permissions: []string{"send_email", "read_user", "send_email"}})
			Expect(err).To(BeNil())
			Expect(permissionNames(detail)).To(Equal([]string{"read_user", "send_email"}))

			after, err := authority.LoadRoleDetail(ctx, authority.UserRoleID)
			Expect(err).To(BeNil())
			Expect(after.PermissionNames().Has("send_email")).To(BeTrue())
		})

		It("should allow clearing every permission", func() {
			detail, err := authority.ReplaceRolePermissions(ctx, authority.ModeratorRoleID, authority.RolePermissionsUpdating{Permissions: []string{}})
			Expect(err).To(BeNil())
			Expect(detail.Permissions).To(BeEmpty())
		})

		It("should reject unknown permissions without touching the role", func() {
			_, err := authority.ReplaceRolePermissions(ctx, authority.UserRoleID,
				authority.RolePermissionsUpdating{Permissions: []string{"read_user", "fly"}})
			var badParam *bizerror.ErrBadParam
			Expect(errors.As(err, &badParam)).To(BeTrue())
			Expect(err.Error()).To(Equal("unknown permission 'fly'"))

			authority.InvalidateAllRoles()
			detail, err := authority.LoadRoleDetail(ctx, authority.UserRoleID)
			Expect(err).To(BeNil())
			Expect(permissionNames(detail)).To(Equal([]string{"read_user"}))
		})

		It("should report missing roles", func() {
			_, err := authority.ReplaceRolePermissions(ctx, 404, authority.RolePermissionsUpdating{Permissions: []string{}})
			Expect(errors.Is(err, gorm.ErrRecordNotFound)).To(BeTrue())
		})
	})

	Describe("FindRoleByID", func() {
		It("should find seeded roles and report unknown ones", func() {
			role, err := authority.FindRoleByID(ctx, authority.ModeratorRoleID)
			Expect(err).To(BeNil())
			Expect(role.Name).To(Equal("moderator"))

			_, err = authority.FindRoleByID(ctx, 77)
			Expect(err).To(Equal(bizerror.ErrRoleNotFound))
		})
	})

	Describe("QueryRoles and QueryPermissions", func() {
		It("should page roles with their permissions", func() {
			page, err := authority.QueryRoles(ctx, common.PageQuery{Skip: 1, Limit: 1})
			Expect(err).To(BeNil())
			Expect(page.Total).To(Equal(3))
			Expect(page.Skip).To(Equal(1))
			Expect(page.Limit).To(Equal(1))
			items := page.Items.([]*authority.RoleDetail)
			Expect(len(items)).To(Equal(1))
			Expect(items[0].Name).To(Equal("user"))
			Expect(permissionNames(items[0])).To(Equal([]string{"read_user"}))
		})

		It("should search roles by name or description", func() {
			page, err := authority.QueryRoles(ctx, common.PageQuery{Search: "ADMIN"})
			Expect(err).To(BeNil())
			// "admin" by name, "moderator" by its description
			Expect(page.Total).To(Equal(2))
			Expect(page.Limit).To(Equal(10))
		})

		It("should page and search permissions", func() {
			page, err := authority.QueryPermissions(ctx, common.PageQuery{})
			Expect(err).To(BeNil())
			Expect(page.Total).To(Equal(6))

			page, err = authority.QueryPermissions(ctx, common.PageQuery{Search: "user", Limit: 2})
			Expect(err).To(BeNil())
			Expect(page.Total).To(Equal(4))
			items := page.Items.([]authority.Permission)
			Expect(len(items)).To(Equal(2))
			Expect(items[0].Name).To(Equal("create_user"))
		})
	})
})
