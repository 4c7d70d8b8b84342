package authority_test

import (
	"gatekeeper/authority"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type holder struct {
	role *authority.RoleDetail
}

func (h *holder) AssignedRole() *authority.RoleDetail {
	if h == nil {
		return nil
	}
	return h.role
}

func roleWith(name string, perms ...string) *authority.RoleDetail {
	var permissions []authority.Permission
	for i, p := range perms {
		permissions = append(permissions, authority.Permission{ID: types.ID(100 + i), Name: p})
	}
	return authority.NewRoleDetail(authority.Role{ID: 9, Name: name}, permissions)
}

var _ = Describe("Permission evaluator", func() {
	Describe("HasAll", func() {
		It("should be true iff every required permission is granted", func() {
			h := &holder{role: roleWith("moderator", "read_user", "update_user")}

			Expect(authority.HasAll(h)).To(BeTrue())
			Expect(authority.HasAll(h, "read_user")).To(BeTrue())
			Expect(authority.HasAll(h, "read_user", "update_user")).To(BeTrue())
			Expect(authority.HasAll(h, "read_user", "delete_user")).To(BeFalse())
			Expect(authority.HasAll(h, "READ_USER")).To(BeFalse())
		})

		It("should fail closed when no role is assigned", func() {
			Expect(authority.HasAll(&holder{})).To(BeFalse())
			Expect(authority.HasAll(&holder{}, "read_user")).To(BeFalse())

			var typedNil *holder
			Expect(authority.HasAll(typedNil)).To(BeFalse())
			Expect(authority.HasAll(nil, "read_user")).To(BeFalse())
		})

		It("should treat a role without permissions as granting nothing", func() {
			h := &holder{role: authority.NewRoleDetail(authority.Role{ID: 1, Name: "empty"}, nil)}
			Expect(authority.HasAll(h)).To(BeTrue())
			Expect(authority.HasAll(h, "read_user")).To(BeFalse())
			Expect(h.role.Permissions).To(BeEmpty())
			Expect(h.role.Permissions).ToNot(BeNil())
		})
	})

	Describe("HasRole", func() {
		It("should match the role name against the allowed set", func() {
			h := &holder{role: roleWith("admin")}
			Expect(authority.HasRole(h, "admin")).To(BeTrue())
			Expect(authority.HasRole(h, "user", "admin")).To(BeTrue())
			Expect(authority.HasRole(h, "user")).To(BeFalse())
			Expect(authority.HasRole(h)).To(BeFalse())
		})

		It("should fail closed when no role is assigned", func() {
			Expect(authority.HasRole(&holder{}, "admin")).To(BeFalse())
			Expect(authority.HasRole(nil, "admin")).To(BeFalse())
		})
	})

	Describe("PermissionSet", func() {
		It("should answer membership", func() {
			set := authority.NewPermissionSet("a", "b", "a")
			Expect(len(set)).To(Equal(2))
			Expect(set.Has("a")).To(BeTrue())
			Expect(set.Has("c")).To(BeFalse())
			Expect(roleWith("x", "a").PermissionNames().Has("a")).To(BeTrue())
		})
	})
})
