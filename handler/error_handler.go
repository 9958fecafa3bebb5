package handler

import (
	"fmt"
	"go-auth-api/common"
	"net/http"
)

// AppHandler is a handler that reports failures as an *common.AppError.
type AppHandler func(http.ResponseWriter, *http.Request) *common.AppError

// ErrorHandlingMiddleware sends the AppError returned by next. A panic in
// next becomes a generic 500.
func ErrorHandlingMiddleware(next AppHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				common.NewInternalError(fmt.Errorf("panic: %v", rec)).Send(w)
			}
		}()

		if err := next(w, r); err != nil {
			err.Send(w)
		}
	}
}
