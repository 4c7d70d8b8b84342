package authority_test

import (
	"context"
	"errors"
	"gatekeeper/authority"
	"gatekeeper/bizerror"
	"gatekeeper/common"
	"gatekeeper/testinfra"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("RbacRestAPI", func() {
	var (
		router *gin.Engine
		demo   = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	)
	BeforeEach(func() {
		router = gin.New()
		router.Use(bizerror.ErrorHandling())
		authority.RegisterRbacRestAPI(router)
	})
	AfterEach(func() {
		authority.QueryRolesFunc = authority.QueryRoles
		authority.QueryPermissionsFunc = authority.QueryPermissions
		authority.ReplaceRolePermissionsFunc = authority.ReplaceRolePermissions
	})

	It("should list roles with paging parameters", func() {
		var received common.PageQuery
		authority.QueryRolesFunc = func(ctx context.Context, q common.PageQuery) (*common.Page, error) {
			received = q
			detail := authority.NewRoleDetail(authority.Role{ID: 2, Name: "user", Description: "Regular user", CreatedAt: demo, UpdatedAt: demo},
				[]authority.Permission{{ID: 2, Name: "read_user", Description: "Read user information", CreatedAt: demo, UpdatedAt: demo}})
			return &common.Page{Items: []*authority.RoleDetail{detail}, Total: 3, Skip: q.Skip, Limit: q.Limit}, nil
		}

		req := httptest.NewRequest(http.MethodGet, authority.PathRbac+"/roles?skip=1&limit=1&search=us", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(received).To(Equal(common.PageQuery{Skip: 1, Limit: 1, Search: "us"}))
		Expect(body).To(MatchJSON(`{"items":[{"id":"2","name":"user","description":"Regular user",
			"created_at":"2024-01-02T03:04:05Z","updated_at":"2024-01-02T03:04:05Z",
			"permissions":[{"id":"2","name":"read_user","description":"Read user information",
				"created_at":"2024-01-02T03:04:05Z","updated_at":"2024-01-02T03:04:05Z"}]}],
			"total":3,"skip":1,"limit":1}`))
	})

	It("should validate paging parameters", func() {
		req := httptest.NewRequest(http.MethodGet, authority.PathRbac+"/permissions?limit=101", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"common.bad_param",
			"message":"Key: 'PageQuery.Limit' Error:Field validation for 'Limit' failed on the 'lte' tag","data":null}`))
	})

	It("should list permissions", func() {
		authority.QueryPermissionsFunc = func(ctx context.Context, q common.PageQuery) (*common.Page, error) {
			return &common.Page{Items: []authority.Permission{}, Total: 0, Skip: 0, Limit: 10}, nil
		}
		req := httptest.NewRequest(http.MethodGet, authority.PathRbac+"/permissions", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{"items":[],"total":0,"skip":0,"limit":10}`))
	})

	It("should replace role permissions", func() {
		var receivedID types.ID
		var receivedBody authority.RolePermissionsUpdating
		authority.ReplaceRolePermissionsFunc = func(ctx context.Context, id types.ID, u authority.RolePermissionsUpdating) (*authority.RoleDetail, error) {
			receivedID, receivedBody = id, u
			return authority.NewRoleDetail(authority.Role{ID: id, Name: "user", CreatedAt: demo, UpdatedAt: demo}, nil), nil
		}
		req := httptest.NewRequest(http.MethodPut, authority.PathRbac+"/roles/2/permissions",
			strings.NewReader(`{"permissions":["read_user","send_email"]}`))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(receivedID).To(Equal(types.ID(2)))
		Expect(receivedBody.Permissions).To(Equal([]string{"read_user", "send_email"}))
		Expect(body).To(MatchJSON(`{"id":"2","name":"user","description":"","permissions":[],
			"created_at":"2024-01-02T03:04:05Z","updated_at":"2024-01-02T03:04:05Z"}`))
	})

	It("should reject malformed role permission requests", func() {
		req := httptest.NewRequest(http.MethodPut, authority.PathRbac+"/roles/abc/permissions", strings.NewReader(`{"permissions":[]}`))
		status, _, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))

		req = httptest.NewRequest(http.MethodPut, authority.PathRbac+"/roles/2/permissions", strings.NewReader(`{}`))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(ContainSubstring(`"code":"common.bad_param"`))
	})

	It("should hide internal failures", func() {
		authority.QueryRolesFunc = func(ctx context.Context, q common.PageQuery) (*common.Page, error) {
			return nil, errors.New("dial tcp 10.0.0.1:3306: connection refused")
		}
		req := httptest.NewRequest(http.MethodGet, authority.PathRbac+"/roles", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusInternalServerError))
		Expect(body).To(MatchJSON(`{"code":"common.internal_server_error","message":"internal server error","data":null}`))
	})
})
