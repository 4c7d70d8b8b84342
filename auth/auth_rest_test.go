package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"gatekeeper/account"
	"gatekeeper/auth"
	"gatekeeper/authority"
	"gatekeeper/bizerror"
	"gatekeeper/mail"
	"gatekeeper/session"
	"gatekeeper/testinfra"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
)

func authRouter(s *auth.Service) *gin.Engine {
	router := gin.New()
	router.Use(bizerror.ErrorHandling())
	auth.RegisterAuthRestAPI(router, s, []gin.HandlerFunc{auth.BearerAuthFilter(s.Codec)})
	router.GET("/guarded", auth.BearerAuthFilter(s.Codec), session.RequirePermissions(authority.PermReadUser), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": session.FindSecurityContext(c).Identity.Username})
	})
	return router
}

func call(router *gin.Engine, method, path, token, body string) (int, string) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	status, respBody, _ := testinfra.ExecuteRequest(req, router)
	return status, respBody
}

func accessTokenOf(body string) string {
	grant := auth.TokenGrant{}
	Expect(json.Unmarshal([]byte(body), &grant)).To(Succeed())
	Expect(grant.TokenType).To(Equal("bearer"))
	Expect(grant.AccessToken).ToNot(BeEmpty())
	return grant.AccessToken
}

func TestAuthFlow(t *testing.T) {
	RegisterTestingT(t)
	setupAuthDatabase(t)

	var sent []mail.Message
	s := auth.NewService(newCodec(), recordingMailer(&sent, nil), "https://app.example.com")
	router := authRouter(s)

	var token string

	t.Run("should register and use the granted token", func(t *testing.T) {
		status, body := call(router, http.MethodPost, auth.PathAuth+"/register", "",
			`{"email":"frank@example.com","username":"frank","password":"Str0ng!Pass"}`)
		Expect(status).To(Equal(http.StatusCreated))
		token = accessTokenOf(body)

		status, body = call(router, http.MethodGet, auth.PathAuth+"/me", token, "")
		Expect(status).To(Equal(http.StatusOK))
		me := map[string]interface{}{}
		Expect(json.Unmarshal([]byte(body), &me)).To(Succeed())
		Expect(me["email"]).To(Equal("frank@example.com"))
		Expect(me["username"]).To(Equal("frank"))
		Expect(me["role"].(map[string]interface{})["name"]).To(Equal(authority.RoleUser))
		Expect(body).ToNot(ContainSubstring("hashed"))

		status, body = call(router, http.MethodGet, "/guarded", token, "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{"user":"frank"}`))
	})

	t.Run("should reject invalid registrations", func(t *testing.T) {
		status, body := call(router, http.MethodPost, auth.PathAuth+"/register", "",
			`{"email":"frank@example.com","username":"frank2","password":"Str0ng!Pass"}`)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"account.email_taken","message":"Email already registered","data":null}`))

		status, body = call(router, http.MethodPost, auth.PathAuth+"/register", "",
			`{"email":"grace@example.com","username":"grace","password":"abc"}`)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"security.weak_password","message":"Password must be at least 8 characters long","data":null}`))

		status, body = call(router, http.MethodPost, auth.PathAuth+"/register", "", `{"email":"not-an-email","username":"grace","password":"x"}`)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(ContainSubstring(`"code":"common.bad_param"`))
	})

	t.Run("should log in with json or form credentials", func(t *testing.T) {
		status, body := call(router, http.MethodPost, auth.PathAuth+"/login", "", `{"username":"frank","password":"Str0ng!Pass"}`)
		Expect(status).To(Equal(http.StatusOK))
		accessTokenOf(body)

		form := url.Values{"username": {"frank@example.com"}, "password": {"Str0ng!Pass"}}
		req := httptest.NewRequest(http.MethodPost, auth.PathAuth+"/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		status, body, _ = testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		accessTokenOf(body)
	})

	t.Run("should answer failed logins identically", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, auth.PathAuth+"/login", strings.NewReader(`{"username":"frank","password":"Wr0ng!Pass"}`))
		status1, body1, resp := testinfra.ExecuteRequest(req, router)
		Expect(resp.Header.Get("WWW-Authenticate")).To(Equal("Bearer"))
		status2, body2 := call(router, http.MethodPost, auth.PathAuth+"/login", "", `{"username":"nobody","password":"Wr0ng!Pass"}`)

		Expect(status1).To(Equal(http.StatusUnauthorized))
		Expect(status2).To(Equal(status1))
		Expect(body2).To(Equal(body1))
		Expect(body1).To(MatchJSON(`{"code":"security.invalid_credentials","message":"Incorrect username or password","data":null}`))
	})

	t.Run("should reject missing, malformed and garbled bearer tokens", func(t *testing.T) {
		unauthenticated := `{"code":"common.unauthenticated","message":"unauthenticated","data":null}`

		status, body := call(router, http.MethodGet, auth.PathAuth+"/me", "", "")
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(body).To(MatchJSON(unauthenticated))

		status, _ = call(router, http.MethodGet, auth.PathAuth+"/me", token+"x", "")
		Expect(status).To(Equal(http.StatusUnauthorized))

		for _, header := range []string{"Basic " + token, token, "Bearer", "Bearer  "} {
			req := httptest.NewRequest(http.MethodGet, auth.PathAuth+"/me", nil)
			req.Header.Set("Authorization", header)
			status, body, _ = testinfra.ExecuteRequest(req, router)
			Expect(status).To(Equal(http.StatusUnauthorized), header)
			Expect(body).To(MatchJSON(unauthenticated))
		}

		req := httptest.NewRequest(http.MethodGet, auth.PathAuth+"/me", nil)
		req.Header.Set("Authorization", "bEaReR "+token)
		status, _, _ = testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
	})

	t.Run("should reject reset tokens used as access tokens", func(t *testing.T) {
		resetToken, err := s.Codec.MintReset("frank@example.com", s.Now())
		Expect(err).To(BeNil())
		status, _ := call(router, http.MethodGet, auth.PathAuth+"/me", resetToken, "")
		Expect(status).To(Equal(http.StatusUnauthorized))
	})

	t.Run("should reject expired access tokens", func(t *testing.T) {
		defer func() { auth.NowFunc = time.Now }()
		unauthenticated := `{"code":"common.unauthenticated","message":"unauthenticated","data":null}`

		principal, err := account.FindPrincipalByUsername(context.Background(), "frank")
		Expect(err).To(BeNil())
		minted := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		expiring, err := s.Codec.MintAccess(principal.ID.String(), minted)
		Expect(err).To(BeNil())

		auth.NowFunc = func() time.Time { return minted.Add(s.Codec.AccessTTL() - time.Second) }
		status, _ := call(router, http.MethodGet, auth.PathAuth+"/me", expiring, "")
		Expect(status).To(Equal(http.StatusOK))

		auth.NowFunc = func() time.Time { return minted.Add(s.Codec.AccessTTL()) }
		status, body := call(router, http.MethodGet, auth.PathAuth+"/me", expiring, "")
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(body).To(MatchJSON(unauthenticated))

		auth.NowFunc = time.Now
		stale, err := s.Codec.MintAccess(principal.ID.String(), time.Now().Add(-31*time.Minute))
		Expect(err).To(BeNil())
		status, body = call(router, http.MethodGet, auth.PathAuth+"/me", stale, "")
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(body).To(MatchJSON(unauthenticated))
	})

	t.Run("should forbid routes the role does not grant", func(t *testing.T) {
		guarded := gin.New()
		guarded.Use(bizerror.ErrorHandling())
		guarded.DELETE("/guarded", auth.BearerAuthFilter(s.Codec), session.RequirePermissions(authority.PermDeleteUser),
			func(c *gin.Context) { c.Status(http.StatusNoContent) })
		status, body := call(guarded, http.MethodDelete, "/guarded", token, "")
		Expect(status).To(Equal(http.StatusForbidden))
		Expect(body).To(ContainSubstring(`"code":"security.forbidden"`))
	})

	t.Run("should always acknowledge forgot password requests", func(t *testing.T) {
		sent = nil
		expected := `{"message":"If the email exists, a password reset link has been sent."}`

		status, body := call(router, http.MethodPost, auth.PathAuth+"/forgot-password", "", `{"email":"nobody@example.com"}`)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(expected))
		Expect(sent).To(BeEmpty())

		status, body = call(router, http.MethodPost, auth.PathAuth+"/forgot-password", "", `{"email":"frank@example.com"}`)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(expected))
		Expect(sent).To(HaveLen(1))
	})

	t.Run("should reset the password with the mailed token", func(t *testing.T) {
		link := sent[0].Variables["reset_link"].(string)
		resetToken := link[strings.Index(link, "token=")+len("token="):]

		status, body := call(router, http.MethodPost, auth.PathAuth+"/reset-password", "",
			`{"token":"garbage","new_password":"N3w!Secret"}`)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"security.invalid_token","message":"Invalid or expired reset token","data":null}`))

		status, body = call(router, http.MethodPost, auth.PathAuth+"/reset-password", "",
			`{"token":"`+resetToken+`","new_password":"N3w!Secret"}`)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{"message":"Password has been reset successfully"}`))

		status, _ = call(router, http.MethodPost, auth.PathAuth+"/login", "", `{"username":"frank","password":"N3w!Secret"}`)
		Expect(status).To(Equal(http.StatusOK))
	})

	t.Run("should change the password of the caller", func(t *testing.T) {
		status, body := call(router, http.MethodPost, auth.PathAuth+"/change-password", token,
			`{"old_password":"Str0ng!Pass","new_password":"An0ther!Secret"}`)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"security.incorrect_old_password","message":"Incorrect old password","data":null}`))

		status, body = call(router, http.MethodPost, auth.PathAuth+"/change-password", token,
			`{"old_password":"N3w!Secret","new_password":"An0ther!Secret"}`)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{"message":"Password has been changed successfully"}`))

		status, _ = call(router, http.MethodPost, auth.PathAuth+"/change-password", "", `{"old_password":"a","new_password":"b"}`)
		Expect(status).To(Equal(http.StatusUnauthorized))
	})

	t.Run("should reject tokens of deleted users", func(t *testing.T) {
		principal, err := account.FindPrincipalByUsername(context.Background(), "frank")
		Expect(err).To(BeNil())
		Expect(account.DeleteUser(context.Background(), principal.ID)).To(Succeed())

		status, _ := call(router, http.MethodGet, auth.PathAuth+"/me", token, "")
		Expect(status).To(Equal(http.StatusUnauthorized))
	})
}

func TestFindPrincipal(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should return nil outside of the filter", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		Expect(auth.FindPrincipal(c)).To(BeNil())
		c.Set(auth.KeyPrincipal, "not a principal")
		Expect(auth.FindPrincipal(c)).To(BeNil())
	})

	t.Run("should answer 500 when the store fails", func(t *testing.T) {
		account.FindPrincipalByIDFunc = func(ctx context.Context, id types.ID) (*account.Principal, error) {
			return nil, errors.New("connection reset")
		}
		defer func() { account.FindPrincipalByIDFunc = account.FindPrincipalByID }()

		s := newService(&testinfra.MockMailer{})
		s.Now = time.Now
		grant, err := s.Codec.MintAccess("7", time.Now())
		Expect(err).To(BeNil())
		status, body := call(authRouter(s), http.MethodGet, auth.PathAuth+"/me", grant, "")
		Expect(status).To(Equal(http.StatusInternalServerError))
		Expect(body).To(MatchJSON(`{"code":"common.internal_server_error","message":"internal server error","data":null}`))
	})
}
