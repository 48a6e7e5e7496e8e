package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/senecalabs/seneca-accounts/internal/interface/http"
	"github.com/senecalabs/seneca-accounts/internal/interface/middleware"
	"github.com/senecalabs/seneca-accounts/pkg/helpers"
)

// AuthModule wires the account lifecycle endpoints.
// Public: register, activate, login, forgot-password, reset-password,
// verify-reset-token. Protected: logout.
type AuthModule struct {
	Handler *handlers.AuthHandler
	JWT     *helpers.JWTManager
}

func NewAuthModule(h *handlers.AuthHandler, jwt *helpers.JWTManager) *AuthModule {
	return &AuthModule{Handler: h, JWT: jwt}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/register", m.Handler.Register)
	rg.GET("/auth/activate/:token", m.Handler.Activate)
	rg.POST("/auth/login", m.Handler.Login)
	rg.POST("/auth/forgot-password", m.Handler.ForgotPassword)
	rg.POST("/auth/reset-password/:token", m.Handler.ResetPassword)
	rg.GET("/auth/verify-reset-token/:token", m.Handler.VerifyResetToken)

	auth := rg.Group("/")
	auth.Use(middleware.Auth(m.JWT))
	{
		auth.POST("/auth/logout", m.Handler.Logout)
	}
}
