package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/senecalabs/seneca-accounts/internal/interface/http"
	"github.com/senecalabs/seneca-accounts/internal/interface/middleware"
	"github.com/senecalabs/seneca-accounts/pkg/helpers"
)

// AccountModule wires the authenticated profile endpoints.
// Protected: GET /api/users/me, PUT /api/users/me, GET /api/users/login-history.
type AccountModule struct {
	Handler *handlers.AccountHandler
	JWT     *helpers.JWTManager
}

func NewAccountModule(h *handlers.AccountHandler, jwt *helpers.JWTManager) *AccountModule {
	return &AccountModule{Handler: h, JWT: jwt}
}

func (m *AccountModule) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/users")
	auth.Use(middleware.Auth(m.JWT))
	{
		auth.GET("/me", m.Handler.GetProfile)
		auth.PUT("/me", m.Handler.UpdateProfile)
		auth.GET("/login-history", m.Handler.LoginHistory)
	}
}
