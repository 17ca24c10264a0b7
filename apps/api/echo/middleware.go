package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

type roleMiddleware func(roles ...user.Role) echo.MiddlewareFunc

// authenticate verifies the bearer token, when there is one, and keeps its claims in the context.
// Requests without a token go through anonymously.
func (s *server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		header := ctx.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			return next(ctx)
		}
		token, ok := bearerToken(header)
		if !ok {
			return core.ErrUnauthenticated
		}
		claims, err := s.verifier.parse(token)
		if err != nil {
			return err
		}
		ctx.Set(contextClaimsKey, claims)
		return next(ctx)
	}
}

// requireRoles lets through active users holding one of roles (any role when empty).
// Roles are checked against the stored user, not the token.
func (s *server) requireRoles(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			var claims *user.Claims
			if c := getContextClaims(ctx); c != nil {
				claims = c.userClaims()
			}
			usr, err := s.opts.Guard.Authorize(ctx.Request().Context(), claims, roles...)
			if err != nil {
				return err
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}
