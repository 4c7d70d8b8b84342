package auth

import (
	"net/http"

	"gatekeeper/bizerror"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var (
	PathAuth = "/api/v1/auth"
)

const (
	MessageResetLinkSent   = "If the email exists, a password reset link has been sent."
	MessagePasswordReset   = "Password has been reset successfully"
	MessagePasswordChanged = "Password has been changed successfully"
)

type authHandler struct {
	service *Service
}

// RegisterAuthRestAPI mounts the credential routes. protected must start with
// BearerAuthFilter, public guards the anonymous routes (rate limits).
func RegisterAuthRestAPI(r *gin.Engine, service *Service, protected []gin.HandlerFunc, public ...gin.HandlerFunc) {
	h := &authHandler{service: service}

	g := r.Group(PathAuth)
	anonymous := g.Group("", public...)
	anonymous.POST("/register", h.handleRegister)
	anonymous.POST("/login", h.handleLogin)
	anonymous.POST("/forgot-password", h.handleForgotPassword)
	anonymous.POST("/reset-password", h.handleResetPassword)

	authenticated := g.Group("", protected...)
	authenticated.GET("/me", h.handleMe)
	authenticated.POST("/change-password", h.handleChangePassword)
}

func (h *authHandler) handleRegister(c *gin.Context) {
	payload := Registration{}
	if err := c.ShouldBindBodyWith(&payload, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	grant, err := h.service.Register(c.Request.Context(), payload)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, grant)
}

func (h *authHandler) handleLogin(c *gin.Context) {
	payload := Credentials{}
	if err := c.ShouldBind(&payload); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	grant, err := h.service.Login(c.Request.Context(), payload)
	if err != nil {
		if err == bizerror.ErrInvalidCredentials {
			c.Header("WWW-Authenticate", "Bearer")
		}
		panic(err)
	}
	c.JSON(http.StatusOK, grant)
}

func (h *authHandler) handleMe(c *gin.Context) {
	principal := FindPrincipal(c)
	if principal == nil {
		panic(bizerror.ErrUnauthenticated)
	}
	c.JSON(http.StatusOK, principal)
}

func (h *authHandler) handleForgotPassword(c *gin.Context) {
	payload := ForgotPasswordRequest{}
	if err := c.ShouldBindBodyWith(&payload, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	h.service.ForgotPassword(c.Request.Context(), payload.Email)
	c.JSON(http.StatusOK, &MessageResponse{Message: MessageResetLinkSent})
}

func (h *authHandler) handleResetPassword(c *gin.Context) {
	payload := ResetPasswordRequest{}
	if err := c.ShouldBindBodyWith(&payload, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := h.service.ResetPassword(c.Request.Context(), payload.Token, payload.NewPassword); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, &MessageResponse{Message: MessagePasswordReset})
}

func (h *authHandler) handleChangePassword(c *gin.Context) {
	principal := FindPrincipal(c)
	if principal == nil {
		panic(bizerror.ErrUnauthenticated)
	}
	payload := ChangePasswordRequest{}
	if err := c.ShouldBindBodyWith(&payload, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := h.service.ChangePassword(c.Request.Context(), principal.ID, payload.OldPassword, payload.NewPassword); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, &MessageResponse{Message: MessagePasswordChanged})
}
