package echoapi

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

const (
	contextClaimsKey = "claims"
	contextUserKey   = "user"
)

// Claims represents the identity-provider assertions transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

func (c *Claims) userClaims() *user.Claims {
	role, _ := user.ParseRole(c.Role)
	return &user.Claims{Subject: c.Subject, Email: c.Email, Role: role}
}

// NewClaims returns the claims of a token for usr valid for ttl.
func NewClaims(usr user.User, issuer string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   usr.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: usr.Email,
		Role:  usr.Role.String(),
	}
}

// GenerateToken signs claims with the shared HS256 secret.
func GenerateToken(secret string, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

type tokenVerifier struct {
	secret []byte
	issuer string
}

func (v tokenVerifier) parse(tokenString string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, errors.Wrap(core.ErrUnauthenticated, err.Error())
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, errors.Wrap(core.ErrUnauthenticated, "unexpected issuer")
	}
	return claims, nil
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

func getContextClaims(ctx echo.Context) *Claims {
	claims, _ := ctx.Get(contextClaimsKey).(*Claims)
	return claims
}

// getContextUser returns the user authorized by requireRoles.
func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, core.ErrUnauthenticated
}
