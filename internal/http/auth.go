package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/launchplan/internal/config"
	"github.com/fyrsmithlabs/launchplan/internal/logging"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
)

const (
	accountKey = "launchplan.account"

	// SessionHeader carries an anonymous caller's session between requests.
	SessionHeader = "X-Session-ID"
)

// Claims are the bearer token claims. The subject is the account ID.
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator creates an authenticator from cfg. Without a secret every
// bearer token is rejected and callers can only act anonymously.
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	ttl := cfg.TokenTTL.Duration()
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{
		secret: []byte(cfg.JWTSecret.Value()),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// IssueToken signs a token for accountID.
func (a *Authenticator) IssueToken(accountID string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("jwt secret is required to issue tokens")
	}
	if accountID == "" {
		return "", errors.New("account is required")
	}
	now := a.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses tokenStr and returns the account it was issued for.
func (a *Authenticator) Verify(tokenStr string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("token authentication is not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", jwt.ErrSignatureInvalid
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", jwt.ErrTokenInvalidClaims)
	}
	return claims.Subject, nil
}

// Middleware resolves the caller's account. A request without an
// Authorization header is anonymous; a malformed or invalid token is
// rejected with 401.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return next(c)
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}
			accountID, err := a.Verify(strings.TrimSpace(parts[1]))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			c.Set(accountKey, accountID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithAccountID(req.Context(), accountID)))
			return next(c)
		}
	}
}

// accountID returns the authenticated account, or "" for anonymous callers.
func accountID(c echo.Context) string {
	if id, ok := c.Get(accountKey).(string); ok {
		return id
	}
	return ""
}

// owner returns whose plans the request acts on. An anonymous caller is
// scoped to a session: the one named in the request body, else the one in
// the X-Session-ID header, else a new one. The session in use is sent back
// in the X-Session-ID response header.
func owner(c echo.Context, bodySession string) plan.Owner {
	if id := accountID(c); id != "" {
		return plan.Account(id)
	}
	session := strings.TrimSpace(bodySession)
	if session == "" {
		session = strings.TrimSpace(c.Request().Header.Get(SessionHeader))
	}
	if session == "" {
		session = uuid.NewString()
	}
	c.Response().Header().Set(SessionHeader, session)
	req := c.Request()
	c.SetRequest(req.WithContext(logging.WithSessionID(req.Context(), session)))
	return plan.Owner{SessionID: session}
}
