package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	DevUserHeader = "X-Dev-User"
	DevRoleHeader = "X-Dev-Role"
)

// Claims carried by access tokens. The subject is the principal's UUID.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey selects HS256 verification instead of JWKS.
	SigningKey []byte
}

const defaultJWKSCacheTTL = 5 * time.Minute

func (cfg JWTConfig) keyFunc() jwt.Keyfunc {
	if len(cfg.SigningKey) > 0 {
		return func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
	}
	return NewJWKSCache(cfg.JWKSURL, defaultJWKSCacheTTL).KeyFunc()
}

// ParseToken verifies tokenStr and returns the principal it names.
func (cfg JWTConfig) ParseToken(tokenStr string, keyFunc jwt.Keyfunc) (Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, keyFunc, opts...)
	if err != nil || !token.Valid {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return principalFrom(claims.Subject, claims.Role)
}

func principalFrom(subject, role string) (Principal, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "token subject is not a valid id")
	}
	r, err := ParseRole(role)
	if err != nil {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return Principal{ID: id, Role: r}, nil
}

func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(token), nil
}

func setPrincipal(c echo.Context, p Principal) {
	c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
}

// JWTMiddleware authenticates bearer tokens and stores the principal on the
// request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	keyFunc := cfg.keyFunc()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}
			p, err := cfg.ParseToken(tokenStr, keyFunc)
			if err != nil {
				return err
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}

// DevAuthMiddleware trusts X-Dev-User and X-Dev-Role. Requests carrying a
// bearer token still go through JWT verification when a config is given.
func DevAuthMiddleware(fallback *JWTConfig) echo.MiddlewareFunc {
	var jwtMW echo.MiddlewareFunc
	if fallback != nil {
		jwtMW = JWTMiddleware(*fallback)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		var viaJWT echo.HandlerFunc
		if jwtMW != nil {
			viaJWT = jwtMW(next)
		}
		return func(c echo.Context) error {
			user := c.Request().Header.Get(DevUserHeader)
			if user == "" && viaJWT != nil && c.Request().Header.Get("Authorization") != "" {
				return viaJWT(c)
			}
			if user == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing "+DevUserHeader+" header")
			}
			role := c.Request().Header.Get(DevRoleHeader)
			if role == "" {
				role = string(RoleAdmin)
			}
			p, err := principalFrom(user, role)
			if err != nil {
				return err
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}

// PrincipalFrom returns the authenticated caller of an echo request.
func PrincipalFrom(c echo.Context) (Principal, error) {
	p, ok := PrincipalFromContext(c.Request().Context())
	if !ok {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	return p, nil
}
