package servehttp_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"gatekeeper/servehttp"
	"gatekeeper/testinfra"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
)

func corsRouter(origins ...string) *gin.Engine {
	router := gin.New()
	router.Use(servehttp.CORS(origins))
	router.POST("/api/v1/auth/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestCORS(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should answer preflight of allowed origins with 204", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "authorization, content-type")

		status, body, resp := testinfra.ExecuteRequest(req, corsRouter("http://localhost:3000/", "https://app.example.com"))
		Expect(status).To(Equal(http.StatusNoContent))
		Expect(body).To(BeEmpty())
		Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("http://localhost:3000"))
		Expect(resp.Header.Get("Access-Control-Allow-Credentials")).To(Equal("true"))
		Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
		Expect(resp.Header.Get("Access-Control-Allow-Headers")).To(ContainSubstring("Authorization"))
		Expect(resp.Header.Get("Access-Control-Allow-Headers")).To(ContainSubstring("Content-Type"))
		Expect(resp.Header.Get("Access-Control-Max-Age")).To(Equal("600"))
		Expect(resp.Header.Values("Vary")).To(ContainElement("Origin"))
	})

	t.Run("should decorate simple requests of allowed origins", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.Header.Set("Origin", "https://app.example.com")

		status, body, resp := testinfra.ExecuteRequest(req, corsRouter("https://app.example.com"))
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{"ok":true}`))
		Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("https://app.example.com"))
		Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(BeEmpty())
	})

	t.Run("should not expose responses to other origins", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		status, body, resp := testinfra.ExecuteRequest(req, corsRouter("https://app.example.com"))
		Expect(status).To(Equal(http.StatusForbidden))
		Expect(body).ToNot(ContainSubstring("ok"))
		Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(BeEmpty())

		req = httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		status, _, _ = testinfra.ExecuteRequest(req, corsRouter("https://app.example.com"))
		Expect(status).To(Equal(http.StatusForbidden))
	})

	t.Run("should allow any origin with a wildcard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
		req.Header.Set("Origin", "https://anything.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		status, _, resp := testinfra.ExecuteRequest(req, corsRouter("*"))
		Expect(status).To(Equal(http.StatusNoContent))
		Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("https://anything.example.com"))
		Expect(resp.Header.Get("Access-Control-Allow-Headers")).To(ContainSubstring("Authorization"))
	})

	t.Run("should ignore requests without origin", func(t *testing.T) {
		status, _, resp := testinfra.ExecuteRequest(httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil), corsRouter("*"))
		Expect(status).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})
}
