package user

import (
	"context"

	"github.com/trezcool/darasa/core"
)

// Guard authorizes identity-provider claims against the locally stored users.
// Claims may be stale, so the stored role and blocked flag always win.
type Guard struct {
	repo Repository
}

func NewGuard(repo Repository) *Guard {
	return &Guard{repo: repo}
}

// Authorize returns the stored user behind claims when it may act with one of roles.
// With no roles, any active user is allowed.
func (g *Guard) Authorize(ctx context.Context, claims *Claims, roles ...Role) (User, error) {
	if claims == nil || claims.Email == "" {
		return User{}, core.ErrUnauthenticated
	}

	usr, err := g.repo.GetUserByEmail(ctx, core.CleanString(claims.Email, true /* lower */))
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, core.ErrUnauthenticated
		}
		return User{}, err
	}
	if usr.Blocked {
		return User{}, core.ErrForbidden
	}
	if len(roles) > 0 && !usr.HasRole(roles...) {
		return User{}, core.ErrForbidden
	}
	return usr, nil
}
