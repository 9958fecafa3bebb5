// file: model/request.go

package model

// SignupRequest defines the payload for creating a new account.
// Password length and confirmation are checked against the configured policy
// by the auth service, not by tags.
type SignupRequest struct {
	Username        string `json:"username" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword"`
}

// SigninRequest defines the payload for user authentication.
type SigninRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}
