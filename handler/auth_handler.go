package handler

import (
	"errors"
	"go-auth-api/common"
	"go-auth-api/metrics"
	"go-auth-api/model"
	"go-auth-api/service"
	"net/http"
	"time"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

const (
	msgSignedIn  = "Signed in successfully"
	msgRefreshed = "Access token refreshed"
	msgLoggedOut = "Logged out successfully"
)

type AuthHandler struct {
	service      *service.AuthService
	secureCookie bool
	now          func() time.Time
}

func NewAuthHandler(s *service.AuthService, secureCookie bool) *AuthHandler {
	return &AuthHandler{service: s, secureCookie: secureCookie, now: time.Now}
}

// Signup godoc
// @Summary      Register a new account
// @Description  Creates an account and returns it with a one-time plaintext API key.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        user body model.SignupRequest true "Account details"
// @Success      201  {object}  model.SignupResponse
// @Failure      400  {object}  common.AppError "Missing fields, weak password or email already registered"
// @Failure      429  {object}  common.AppError
// @Failure      500  {object}  common.AppError
// @Router       /signup [post]
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.SignupRequest
	if err := common.ValidateAndDecode(r, &req); err != nil {
		metrics.AuthEvent("signup", metrics.OutcomeRejected)
		return err
	}

	resp, err := h.service.Signup(r.Context(), req)
	if err != nil {
		appErr := mapAuthError(err)
		metrics.AuthEvent("signup", outcomeFor(appErr))
		return appErr
	}

	metrics.AuthEvent("signup", metrics.OutcomeSuccess)
	common.WriteJSON(w, http.StatusCreated, resp)
	return nil
}

// Signin godoc
// @Summary      Sign in
// @Description  Verifies credentials, sets the refreshToken cookie and returns a short-lived access token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        credentials body model.SigninRequest true "Email and password"
// @Success      200  {object}  model.TokenResponse
// @Failure      400  {object}  common.AppError "Missing fields or invalid credentials"
// @Failure      429  {object}  common.AppError
// @Failure      500  {object}  common.AppError
// @Router       /signin [post]
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.SigninRequest
	if err := common.ValidateAndDecode(r, &req); err != nil {
		metrics.AuthEvent("signin", metrics.OutcomeRejected)
		return err
	}

	session, err := h.service.Signin(r.Context(), req.Email, req.Password)
	if err != nil {
		appErr := mapAuthError(err)
		metrics.AuthEvent("signin", outcomeFor(appErr))
		return appErr
	}

	h.setRefreshCookie(w, session.RefreshToken)
	metrics.AuthEvent("signin", metrics.OutcomeSuccess)
	common.WriteJSON(w, http.StatusOK, model.TokenResponse{AccessToken: session.AccessToken, Message: msgSignedIn})
	return nil
}

// Refresh godoc
// @Summary      Refresh the access token
// @Description  Exchanges the refreshToken cookie for a new access token.
// @Tags         auth
// @Produce      json
// @Success      200  {object}  model.TokenResponse
// @Failure      401  {object}  common.AppError
// @Failure      500  {object}  common.AppError
// @Router       /refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) *common.AppError {
	token := refreshTokenFrom(r)
	if token == "" {
		metrics.AuthEvent("refresh", metrics.OutcomeRejected)
		return common.NewAppError(http.StatusUnauthorized, "Unauthorized", nil)
	}

	session, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		appErr := mapAuthError(err)
		metrics.AuthEvent("refresh", outcomeFor(appErr))
		return appErr
	}

	if session.RefreshToken != "" {
		h.setRefreshCookie(w, session.RefreshToken)
	}
	metrics.AuthEvent("refresh", metrics.OutcomeSuccess)
	common.WriteJSON(w, http.StatusOK, model.TokenResponse{AccessToken: session.AccessToken, Message: msgRefreshed})
	return nil
}

// Logout godoc
// @Summary      Log out
// @Description  Revokes the refresh token in the cookie, if any, and clears the cookie. Always succeeds unless the store fails.
// @Tags         auth
// @Produce      json
// @Success      200  {object}  model.MessageResponse
// @Failure      500  {object}  common.AppError
// @Router       /logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) *common.AppError {
	if _, err := h.service.Logout(r.Context(), refreshTokenFrom(r)); err != nil {
		metrics.AuthEvent("logout", metrics.OutcomeError)
		return common.NewInternalError(err)
	}

	h.clearRefreshCookie(w)
	metrics.AuthEvent("logout", metrics.OutcomeSuccess)
	common.WriteJSON(w, http.StatusOK, model.MessageResponse{Message: msgLoggedOut})
	return nil
}

// LogoutAll godoc
// @Summary      Log out everywhere
// @Description  Revokes every refresh token held for the authenticated account.
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.MessageResponse
// @Failure      401  {object}  common.AppError
// @Failure      500  {object}  common.AppError
// @Router       /logout/all [post]
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) *common.AppError {
	userID, ok := r.Context().Value(UserIDKey).(int)
	if !ok {
		return common.NewAppError(http.StatusUnauthorized, "Unauthorized", nil)
	}

	if _, err := h.service.LogoutAll(r.Context(), userID); err != nil {
		metrics.AuthEvent("logout_all", metrics.OutcomeError)
		return common.NewInternalError(err)
	}

	h.clearRefreshCookie(w)
	metrics.AuthEvent("logout_all", metrics.OutcomeSuccess)
	common.WriteJSON(w, http.StatusOK, model.MessageResponse{Message: msgLoggedOut})
	return nil
}

func refreshTokenFrom(r *http.Request) string {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  h.now().Add(h.service.Policy().RefreshTTL),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

// mapAuthError turns a service error into the response the caller sees.
func mapAuthError(err error) *common.AppError {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return common.NewAppError(http.StatusBadRequest, verr.Message, nil)
	case errors.Is(err, service.ErrEmailExists):
		return common.NewAppError(http.StatusBadRequest, "Email already exists", nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		return common.NewAppError(http.StatusBadRequest, "Invalid credentials", nil)
	case errors.Is(err, service.ErrUnauthorized):
		return common.NewAppError(http.StatusUnauthorized, "Unauthorized", err)
	default:
		return common.NewInternalError(err)
	}
}

func outcomeFor(e *common.AppError) string {
	if e.Code >= http.StatusInternalServerError {
		return metrics.OutcomeError
	}
	return metrics.OutcomeRejected
}
