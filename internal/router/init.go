package router

import (
	"github.com/senecalabs/seneca-accounts/internal/application"
	"github.com/senecalabs/seneca-accounts/internal/container"
	pginfra "github.com/senecalabs/seneca-accounts/internal/infrastructure/postgres"
	handlers "github.com/senecalabs/seneca-accounts/internal/interface/http"
	"github.com/senecalabs/seneca-accounts/internal/router/modules"
)

// InitModules builds the account service from the container singletons and
// registers all feature modules. Called once during startup.
func InitModules(r *Registry) {
	repo := pginfra.NewAccountRepository(container.GetPGPool())

	service := application.NewService(
		repo,
		container.GetMailgun(),
		container.GetJWT(),
		container.GetRabbitPub(),
		container.GetRedis(),
		container.GetLogger(),
		container.GetConfig(),
	)

	authHandler := handlers.NewAuthHandler(service, container.GetLogger())
	accountHandler := handlers.NewAccountHandler(service, container.GetLogger())

	r.Add(modules.NewAuthModule(authHandler, container.GetJWT()))
	r.Add(modules.NewAccountModule(accountHandler, container.GetJWT()))
}
