package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/senecalabs/seneca-accounts/internal/application"
	"github.com/senecalabs/seneca-accounts/pkg/response"
	"github.com/senecalabs/seneca-accounts/pkg/validation"
)

type AccountHandler struct {
	Service *application.Service
	Logger  *logrus.Logger
}

func NewAccountHandler(svc *application.Service, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{Service: svc, Logger: logger}
}

// GetProfile GET /api/users/me
func (h *AccountHandler) GetProfile(c *gin.Context) {
	res, err := h.Service.GetProfile(c.Request.Context(), c.GetString("accountID"))
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, res, "profile", nil)
}

// Pointer fields distinguish an omitted field from one sent empty: omitted
// means leave unchanged, empty means clear.
type updateProfileRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Address   *string `json:"address"`
	BirthDate *string `json:"birthDate"`
}

// UpdateProfile PUT /api/users/me
func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	res, err := h.Service.UpdateProfile(c.Request.Context(), c.GetString("accountID"), application.UpdateProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Address:   req.Address,
		BirthDate: req.BirthDate,
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, res, "profile updated", nil)
}

// LoginHistory GET /api/users/login-history
func (h *AccountHandler) LoginHistory(c *gin.Context) {
	res, err := h.Service.GetLoginHistory(c.Request.Context(), c.GetString("accountID"))
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, res, "login history", nil)
}
