package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/senecalabs/seneca-accounts/internal/application"
	"github.com/senecalabs/seneca-accounts/pkg/response"
)

// statusForKind maps business failure kinds onto HTTP status codes.
func statusForKind(kind application.Kind) int {
	switch kind {
	case application.KindMissingInput,
		application.KindWeakPassword,
		application.KindInvalidBirthDate,
		application.KindInvalidActivationToken,
		application.KindInvalidOrExpiredToken:
		return http.StatusBadRequest
	case application.KindInvalidCredentials:
		return http.StatusUnauthorized
	case application.KindAccountNotActivated:
		return http.StatusForbidden
	case application.KindAccountNotFound:
		return http.StatusNotFound
	case application.KindAccountExists:
		return http.StatusConflict
	case application.KindEmailSendFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a service error. Tagged failures keep their message;
// untagged infrastructure errors are logged and hidden behind a generic 500.
func writeError(c *gin.Context, logger *logrus.Logger, err error) {
	var ae *application.Error
	if errors.As(err, &ae) {
		status := statusForKind(ae.Kind)
		if status >= http.StatusInternalServerError && logger != nil {
			logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		}
		response.Error[any](c, status, ae.Message, nil)
		return
	}
	if logger != nil {
		logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	response.Error[any](c, http.StatusInternalServerError, "internal server error", nil)
}
