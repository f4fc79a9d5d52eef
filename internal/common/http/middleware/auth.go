package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// UserIDKey holds the authenticated user id (int64) in the gin context.
	UserIDKey   = "user_id"
	UserRoleKey = "user_role"

	accessTokenType  = "access"
	accessTokenQuery = "access_token"
)

// Identity is the authenticated caller.
type Identity struct {
	ID   int64
	Role string
}

// Authenticator validates HS256 access tokens. Issuing tokens belongs to the
// account service; Issue exists for tooling and tests.
type Authenticator struct {
	secret []byte
	issuer string
}

type tokenClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(secret, issuer string) (*Authenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer}, nil
}

// Authenticate parses and validates a raw token.
func (a *Authenticator) Authenticate(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, pkgerrors.New(pkgerrors.Unauthorized).WithMessage("missing access token")
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if a.issuer != "" && claims.Issuer != a.issuer {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != accessTokenType {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return Identity{ID: userID, Role: claims.Role}, nil
}

// Issue signs an access token for userID.
func (a *Authenticator) Issue(userID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Role:      role,
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// AuthMiddleware requires a valid access token, optionally restricted to roles.
// The token comes from the Authorization header, or the access_token query
// parameter for websocket upgrades.
func AuthMiddleware(auth *Authenticator, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil {
			response.AbortWithErrorCode(c, pkgerrors.ServiceUnavailable, "auth is not configured")
			return
		}
		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = strings.TrimSpace(c.Query(accessTokenQuery))
		}
		identity, err := auth.Authenticate(token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		if len(roles) > 0 && !hasRole(identity.Role, roles) {
			response.AbortWithErrorCode(c, pkgerrors.Forbidden, "insufficient role")
			return
		}

		c.Set(UserIDKey, identity.ID)
		c.Set(UserRoleKey, identity.Role)
		c.Request = c.Request.WithContext(contextkey.WithUserID(c.Request.Context(), identity.ID))
		c.Next()
	}
}

// UserID returns the authenticated user id set by AuthMiddleware.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hasRole(role string, allowed []string) bool {
	for _, item := range allowed {
		if strings.EqualFold(role, item) {
			return true
		}
	}
	return false
}
