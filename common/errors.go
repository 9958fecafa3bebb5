package common

import (
	"go-auth-api/logger"
	"net/http"

	"github.com/sirupsen/logrus"
)

// MsgInternal is the only body ever returned for a 500.
const MsgInternal = "Internal server error"

type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewInternalError wraps an infrastructure failure. The detail is logged by Send
// and never reaches the client.
func NewInternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, MsgInternal, err)
}

func (e *AppError) Send(w http.ResponseWriter) {
	if e.Err != nil {
		entry := logger.Log.WithFields(logrus.Fields{
			"status_code":    e.Code,
			"internal_error": e.Err.Error(),
		})
		if e.Code >= http.StatusInternalServerError {
			entry.Error(e.Message)
		} else {
			entry.Warn(e.Message)
		}
	}

	WriteJSON(w, e.Code, e)
}
