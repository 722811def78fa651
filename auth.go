package junksite

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Scope names a capability an admin route requires.
type Scope string

const (
	ScopePostsWrite Scope = "posts:write"
	ScopeInboxRead  Scope = "inbox:read"
	ScopeInboxWrite Scope = "inbox:write"
)

var (
	ErrUnauthenticated = errors.New("missing or invalid credentials")
	ErrForbidden       = errors.New("credential lacks the required scope")
)

// Authorizer decides whether a request may use a capability.
type Authorizer interface {
	Authorize(r *http.Request, scope Scope) error
}

// TokenAuthorizer accepts static bearer tokens, each granted a set of scopes.
type TokenAuthorizer struct {
	grants map[string]map[Scope]struct{}
}

// NewTokenAuthorizer returns an authorizer where adminToken holds every scope.
func NewTokenAuthorizer(adminToken string) *TokenAuthorizer {
	a := &TokenAuthorizer{grants: make(map[string]map[Scope]struct{})}
	a.Grant(adminToken, ScopePostsWrite, ScopeInboxRead, ScopeInboxWrite)
	return a
}

// Grant gives token the listed scopes.
func (a *TokenAuthorizer) Grant(token string, scopes ...Scope) {
	if token == "" {
		return
	}
	set, ok := a.grants[token]
	if !ok {
		set = make(map[Scope]struct{})
		a.grants[token] = set
	}
	for _, s := range scopes {
		set[s] = struct{}{}
	}
}

func (a *TokenAuthorizer) Authorize(r *http.Request, scope Scope) error {
	token, ok := bearerToken(r)
	if !ok {
		return ErrUnauthenticated
	}
	var scopes map[Scope]struct{}
	for known, set := range a.grants {
		if subtle.ConstantTimeCompare([]byte(token), []byte(known)) == 1 {
			scopes = set
		}
	}
	if scopes == nil {
		return ErrUnauthenticated
	}
	if _, ok := scopes[scope]; !ok {
		return ErrForbidden
	}
	return nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// requireScope gates a route behind a capability. Failed attempts count
// against the client's IP; once throttled, requests get 429 before any
// credential check.
func (a *App) requireScope(scope Scope) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if !a.authLimiter.Check(ip) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many failed attempts. Try again later.")
			}
			err := a.auth.Authorize(c.Request(), scope)
			switch {
			case err == nil:
				return next(c)
			case errors.Is(err, ErrForbidden):
				return echo.NewHTTPError(http.StatusForbidden, err.Error())
			default:
				a.authLimiter.Record(ip)
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="admin"`)
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}
		}
	}
}
