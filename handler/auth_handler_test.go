package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"go-auth-api/model"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	emailExistsSQL = `SELECT EXISTS(SELECT 1 FROM api_users WHERE email = $1)`
	insertUserSQL  = `INSERT INTO api_users (email, name, password, api_key_hash)`
	userByEmailSQL = `SELECT id, name, email, password, api_key_hash, created_at FROM api_users WHERE email = $1`
	upsertTokenSQL = `INSERT INTO refresh_tokens (user_id, token)`
	tokenByValue   = `SELECT id, user_id, token, created_at FROM refresh_tokens WHERE token = $1`
	deleteTokenSQL = `DELETE FROM refresh_tokens WHERE token = $1 RETURNING`
	deleteByUser   = `DELETE FROM refresh_tokens WHERE user_id = $1`
)

var (
	userColumns  = []string{"id", "name", "email", "password", "api_key_hash", "created_at"}
	tokenColumns = []string{"id", "user_id", "token", "created_at"}
)

func serve(h AppHandler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ErrorHandlingMiddleware(h).ServeHTTP(rr, req)
	return rr
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withRefreshCookie(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: token})
	return req
}

func refreshCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == RefreshCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", RefreshCookieName)
	return nil
}

func TestAuthHandler_Signup(t *testing.T) {
	t.Run("success stores a digest of the password", func(t *testing.T) {
		env := newTestEnv(t, testPolicy())
		env.mock.ExpectQuery(regexp.QuoteMeta(emailExistsSQL)).
			WithArgs("a@b.com").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		env.mock.ExpectQuery(regexp.QuoteMeta(insertUserSQL)).
			WithArgs("a@b.com", "alice", bcryptOf("password123"), hexDigest{}).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))

		rr := serve(env.auth.Signup, jsonRequest(http.MethodPost, "/signup",
			`{"username":"alice","email":"a@b.com","password":"password123"}`))

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Len(t, body["api_key"], 64)
		assert.NotEmpty(t, body["message"])
		user := body["user"].(map[string]any)
		assert.Equal(t, float64(1), user["id"])
		assert.Equal(t, "a@b.com", user["email"])
		assert.NotContains(t, user, "password")
		assert.NotContains(t, user, "api_key_hash")
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("duplicate email does not insert", func(t *testing.T) {
		env := newTestEnv(t, testPolicy())
		env.mock.ExpectQuery(regexp.QuoteMeta(emailExistsSQL)).
			WithArgs("a@b.com").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		rr := serve(env.auth.Signup, jsonRequest(http.MethodPost, "/signup",
			`{"username":"alice","email":"a@b.com","password":"password123"}`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.JSONEq(t, `{"code":400,"error":"Email already exists"}`, rr.Body.String())
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	rejected := []struct {
		name    string
		body    string
		message string
	}{
		{"missing username", `{"email":"a@b.com","password":"password123"}`, "All fields are required"},
		{"missing password", `{"username":"alice","email":"a@b.com"}`, "All fields are required"},
		{"invalid email", `{"username":"alice","email":"nope","password":"password123"}`, "Invalid email address"},
		{"short password", `{"username":"alice","email":"a@b.com","password":"short"}`, "Password must be at least 8 characters long"},
		{"malformed body", `{"username":`, "Invalid request body"},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, testPolicy())

			rr := serve(env.auth.Signup, jsonRequest(http.MethodPost, "/signup", tc.body))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tc.message, body["error"])
			assert.NoError(t, env.mock.ExpectationsWereMet())
		})
	}

	t.Run("confirmation mismatch when required", func(t *testing.T) {
		policy := testPolicy()
		policy.RequirePasswordConfirmation = true
		env := newTestEnv(t, policy)

		rr := serve(env.auth.Signup, jsonRequest(http.MethodPost, "/signup",
			`{"username":"alice","email":"a@b.com","password":"password123","confirmPassword":"password124"}`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.JSONEq(t, `{"code":400,"error":"Passwords do not match"}`, rr.Body.String())
	})

	t.Run("store failure is a generic 500", func(t *testing.T) {
		env := newTestEnv(t, testPolicy())
		env.mock.ExpectQuery(regexp.QuoteMeta(emailExistsSQL)).
			WillReturnError(errors.New("connection reset by peer"))

		rr := serve(env.auth.Signup, jsonRequest(http.MethodPost, "/signup",
			`{"username":"alice","email":"a@b.com","password":"password123"}`))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.JSONEq(t, `{"code":500,"error":"Internal server error"}`, rr.Body.String())
		assert.NotContains(t, rr.Body.String(), "connection reset")
	})
}

func TestAuthHandler_Signin(t *testing.T) {
	t.Run("success sets the refresh cookie and stores the token", func(t *testing.T) {
		env := newTestEnv(t, testPolicy())
		digest, err := env.hasher.Hash("password123")
		require.NoError(t, err)

		env.mock.ExpectQuery(regexp.QuoteMeta(userByEmailSQL)).
			WithArgs("a@b.com").
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow(5, "alice", "a@b.com", digest, "hash", time.Now()))
		env.mock.ExpectQuery(regexp.QuoteMeta(upsertTokenSQL)).
			WithArgs(5, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow(1, 5, "stored", time.Now()))

		before := time.Now()
		rr := serve(env.auth.Signin, jsonRequest(http.MethodPost, "/signin", `{"email":"a@b.com","password":"password123"}`))

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var resp model.TokenResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		claims, err := env.tokens.Verify(resp.AccessToken, model.TokenTypeAccess)
		require.NoError(t, err)
		assert.Equal(t, 5, claims.UserID)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Len(t, body, 2, "only the access token and a message are returned")

		c := refreshCookie(t, rr)
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
		assert.Equal(t, "/", c.Path)
		assert.WithinDuration(t, before.Add(30*24*time.Hour), c.Expires, time.Minute)

		refreshClaims, err := env.tokens.Verify(c.Value, model.TokenTypeRefresh)
		require.NoError(t, err)
		assert.Equal(t, 5, refreshClaims.UserID)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		env := newTestEnv(t, testPolicy())
		digest, err := env.hasher.Hash("password123")
		require.NoError(t, err)

		env.mock.ExpectQuery(regexp.QuoteMeta(userByEmailSQL)).
			WithArgs("a@b.com").
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow(5, "alice", "a@b.com", digest, "hash", time.Now()))
		env.mock.ExpectQuery(regexp.QuoteMeta(userByEmailSQL)).
			WithArgs("ghost@b.com").
			WillReturnError(sql.ErrNoRows)

		wrong := serve(env.auth.Signin, jsonRequest(http.MethodPost, "/signin", `{"email":"a@b.com","password":"wrong-password"}`))
		unknown := serve(env.auth.Signin, jsonRequest(http.MethodPost, "/signin", `{"email":"ghost@b.com","password":"password123"}`))

		assert.Equal(t, http.StatusBadRequest, wrong.Code)
		assert.Equal(t, http.StatusBadRequest, unknown.Code)
		assert.Equal(t, wrong.Body.String(), unknown.Body.String())
		assert.JSONEq(t, `{"code":400,"error":"Invalid credentials"}`, wrong.Body.String())
		assert.Empty(t, wrong.Result().Cookies())
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("missing fields", func(t *testing.T) {
		env := newTestEnv(t, testPolicy())

		rr := serve(env.auth.Signin, jsonRequest(http.MethodPost, "/signin", `{"email":"a@b.com"}`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("ledger write failure is a generic 500", func(t *testing.T) {
		env := newTestEnv(t, testPolicy())
		digest, err := env.hasher.Hash("password123")
		require.NoError(t, err)

		env.mock.ExpectQuery(regexp.QuoteMeta(userByEmailSQL)).
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow(5, "alice", "a@b.com", digest, "hash", time.Now()))
		env.mock.ExpectQuery(regexp.QuoteMeta(upsertTokenSQL)).
			WillReturnError(errors.New("disk full"))

		rr := serve(env.auth.Signin, jsonRequest(http.MethodPost, "/signin", `{"email":"a@b.com","password":"password123"}`))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.JSONEq(t, `{"code":500,"error":"Internal server error"}`, rr.Body.String())
		assert.Empty(t, rr.Result().Cookies())
	})
}

func TestAuthHandler_Refresh(t *testing.T) {
	t.Run("missing cookie", func(t *testing.T) {
		env := newTestEnv(t, testPolicy())

		rr := serve(env.auth.Refresh, httptest.NewRequest(http.MethodPost, "/refresh", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("token absent from ledger", func(t *testing.T) {
		env := newTestEnv(t, testPolicy())
		token, err := env.tokens.IssueRefresh(5, "a@b.com")
		require.NoError(t, err)
		env.mock.ExpectQuery(regexp.QuoteMeta(tokenByValue)).
			WithArgs(token).
			WillReturnError(sql.ErrNoRows)

		rr := serve(env.auth.Refresh, withRefreshCookie(httptest.NewRequest(http.MethodPost, "/refresh", nil), token))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.NotContains(t, rr.Body.String(), "accessToken")
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("valid ledger token", func(t *testing.T) {
		env := newTestEnv(t, testPolicy())
		token, err := env.tokens.IssueRefresh(5, "a@b.com")
		require.NoError(t, err)
		env.mock.ExpectQuery(regexp.QuoteMeta(tokenByValue)).
			WithArgs(token).
			WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow(1, 5, token, time.Now().Add(-time.Hour)))

		rr := serve(env.auth.Refresh, withRefreshCookie(httptest.NewRequest(http.MethodPost, "/refresh", nil), token))

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var resp model.TokenResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		claims, err := env.tokens.Verify(resp.AccessToken, model.TokenTypeAccess)
		require.NoError(t, err)
		assert.Equal(t, 5, claims.UserID)
		assert.Equal(t, "5", claims.Subject)
		// Without rotation the cookie is left alone.
		assert.Empty(t, rr.Result().Cookies())
	})

	t.Run("ledger row past its lifetime is revoked", func(t *testing.T) {
		env := newTestEnv(t, testPolicy())
		token, err := env.tokens.IssueRefresh(5, "a@b.com")
		require.NoError(t, err)
		created := time.Now().Add(-31 * 24 * time.Hour)
		env.mock.ExpectQuery(regexp.QuoteMeta(tokenByValue)).
			WithArgs(token).
			WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow(1, 5, token, created))
		env.mock.ExpectQuery(regexp.QuoteMeta(deleteTokenSQL)).
			WithArgs(token).
			WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow(1, 5, token, created))

		rr := serve(env.auth.Refresh, withRefreshCookie(httptest.NewRequest(http.MethodPost, "/refresh", nil), token))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("rotation replaces the cookie", func(t *testing.T) {
		policy := testPolicy()
		policy.RotateRefreshTokens = true
		env := newTestEnv(t, policy)
		token, err := env.tokens.IssueRefresh(5, "a@b.com")
		require.NoError(t, err)
		env.mock.ExpectQuery(regexp.QuoteMeta(tokenByValue)).
			WithArgs(token).
			WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow(1, 5, token, time.Now()))
		env.mock.ExpectBegin()
		env.mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM refresh_tokens WHERE token = $1 AND user_id = $2`)).
			WithArgs(token, 5).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectQuery(regexp.QuoteMeta(upsertTokenSQL)).
			WithArgs(5, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow(2, 5, "next", time.Now()))
		env.mock.ExpectCommit()

		rr := serve(env.auth.Refresh, withRefreshCookie(httptest.NewRequest(http.MethodPost, "/refresh", nil), token))

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		c := refreshCookie(t, rr)
		assert.NotEqual(t, token, c.Value)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	t.Run("no cookie", func(t *testing.T) {
		env := newTestEnv(t, testPolicy())

		rr := serve(env.auth.Logout, httptest.NewRequest(http.MethodPost, "/logout", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"message":"Logged out successfully"}`, rr.Body.String())
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("unknown token", func(t *testing.T) {
		env := newTestEnv(t, testPolicy())
		env.mock.ExpectQuery(regexp.QuoteMeta(deleteTokenSQL)).
			WithArgs("unknown").
			WillReturnRows(sqlmock.NewRows(tokenColumns))

		rr := serve(env.auth.Logout, withRefreshCookie(httptest.NewRequest(http.MethodPost, "/logout", nil), "unknown"))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("known token is removed and the cookie cleared", func(t *testing.T) {
		env := newTestEnv(t, testPolicy())
		env.mock.ExpectQuery(regexp.QuoteMeta(deleteTokenSQL)).
			WithArgs("tok-1").
			WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow(1, 5, "tok-1", time.Now()))

		rr := serve(env.auth.Logout, withRefreshCookie(httptest.NewRequest(http.MethodPost, "/logout", nil), "tok-1"))

		assert.Equal(t, http.StatusOK, rr.Code)
		c := refreshCookie(t, rr)
		assert.Empty(t, c.Value)
		assert.Equal(t, -1, c.MaxAge)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("store failure", func(t *testing.T) {
		env := newTestEnv(t, testPolicy())
		env.mock.ExpectQuery(regexp.QuoteMeta(deleteTokenSQL)).
			WillReturnError(errors.New("db down"))

		rr := serve(env.auth.Logout, withRefreshCookie(httptest.NewRequest(http.MethodPost, "/logout", nil), "tok-1"))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.JSONEq(t, `{"code":500,"error":"Internal server error"}`, rr.Body.String())
	})
}

func TestAuthHandler_LogoutAll(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	env.mock.ExpectExec(regexp.QuoteMeta(deleteByUser)).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 3))

	req := httptest.NewRequest(http.MethodPost, "/logout/all", nil)
	req = req.WithContext(contextWithUser(req, 5))
	rr := serve(env.auth.LogoutAll, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, -1, refreshCookie(t, rr).MaxAge)
	assert.NoError(t, env.mock.ExpectationsWereMet())

	// Without an authenticated user in the context the handler refuses.
	rr = serve(env.auth.LogoutAll, httptest.NewRequest(http.MethodPost, "/logout/all", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
