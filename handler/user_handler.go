package handler

import (
	"errors"
	"go-auth-api/common"
	"go-auth-api/logger"
	"go-auth-api/service"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
)

type UserHandler struct {
	service *service.UserService
}

func NewUserHandler(s *service.UserService) *UserHandler {
	return &UserHandler{service: s}
}

// ListUsers godoc
// @Summary      List accounts
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   model.User
// @Failure      401  {object}  common.AppError
// @Failure      404  {object}  common.AppError "No users found"
// @Failure      500  {object}  common.AppError
// @Router       /users [get]
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) *common.AppError {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoUsers) {
			return common.NewAppError(http.StatusNotFound, "No users found", nil)
		}
		return common.NewInternalError(err)
	}

	common.WriteJSON(w, http.StatusOK, users)
	return nil
}

// GetUser godoc
// @Summary      Get an account
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Account ID"
// @Success      200  {object}  model.User
// @Failure      401  {object}  common.AppError
// @Failure      404  {object}  common.AppError "User not found"
// @Failure      500  {object}  common.AppError
// @Router       /users/{id} [get]
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) *common.AppError {
	// ids are int4 serials; anything outside that range names no account.
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 32)
	if err != nil || id <= 0 {
		return common.NewAppError(http.StatusNotFound, "User not found", nil)
	}

	user, err := h.service.GetUser(r.Context(), int(id))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return common.NewAppError(http.StatusNotFound, "User not found", nil)
		}
		return common.NewInternalError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"request_id": RequestIDFromContext(r.Context()),
		"user_id":    id,
	}).Debug("User fetched")
	common.WriteJSON(w, http.StatusOK, user)
	return nil
}
