package security

import (
	"erpcache.eve.dev/apierrors"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// Claims mirrors the access token shape minted by the upstream auth
// service; this package only validates tokens, it never issues them.
type Claims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTMiddleware validates a bearer token against secret and, on success,
// stores its *Claims under the echo context key "user" for handlers to
// read via UserFromContext. Token issuance stays an external concern.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		Claims:        &Claims{},
		ErrorHandler: func(c echo.Context, err error) error {
			return apierrors.Unauthorizedf("security: invalid or missing token: %v", err)
		},
	})
}

// UserFromContext extracts the validated Claims stashed by JWTMiddleware.
func UserFromContext(c echo.Context) (*Claims, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil {
		return nil, apierrors.Unauthorizedf("security: no token in request context")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, apierrors.Internalf("security: unexpected claims type %T", token.Claims)
	}
	return claims, nil
}
