package model

// SignupResponse carries the created account and the one-time plaintext API key.
type SignupResponse struct {
	User    *User  `json:"user"`
	APIKey  string `json:"api_key"`
	Message string `json:"message"`
}

// TokenResponse is returned by signin and refresh. The refresh token itself only
// travels in the cookie.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	Message     string `json:"message"`
}

// MessageResponse is a body with a single human-readable message.
type MessageResponse struct {
	Message string `json:"message"`
}
