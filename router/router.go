package router

import (
	_ "go-auth-api/docs"
	"go-auth-api/handler"
	"go-auth-api/metrics"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// Handlers are the endpoints the router dispatches to.
type Handlers struct {
	Auth          *handler.AuthHandler
	Users         *handler.UserHandler
	Health        *handler.HealthHandler
	Authenticator *handler.Authenticator
	// RateLimiter throttles /signin and /signup. Nil disables throttling.
	RateLimiter *handler.RateLimiter
}

type Options struct {
	CORSOrigins  []string
	MaxBodyBytes int64
}

func NewRouter(h Handlers, opts Options) http.Handler {
	mux := http.NewServeMux()

	throttle := func(next http.Handler) http.Handler { return next }
	if h.RateLimiter != nil {
		throttle = h.RateLimiter.Limit
	}
	protect := h.Authenticator.Middleware

	mux.Handle("GET /health", handler.ErrorHandlingMiddleware(h.Health.HealthCheck))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	mux.Handle("POST /signup", throttle(handler.ErrorHandlingMiddleware(h.Auth.Signup)))
	mux.Handle("POST /signin", throttle(handler.ErrorHandlingMiddleware(h.Auth.Signin)))
	mux.Handle("POST /refresh", handler.ErrorHandlingMiddleware(h.Auth.Refresh))
	mux.Handle("POST /logout", handler.ErrorHandlingMiddleware(h.Auth.Logout))
	mux.Handle("POST /logout/all", protect(handler.ErrorHandlingMiddleware(h.Auth.LogoutAll)))

	mux.Handle("GET /users", protect(handler.ErrorHandlingMiddleware(h.Users.ListUsers)))
	mux.Handle("GET /users/{id}", protect(handler.ErrorHandlingMiddleware(h.Users.GetUser)))

	var root http.Handler = mux
	root = handler.MaxBodyBytes(opts.MaxBodyBytes)(root)
	root = handler.CORS(opts.CORSOrigins)(root)
	root = metrics.Instrument(root)
	root = handler.Logging(root)
	root = handler.RequestID(root)
	return root
}
