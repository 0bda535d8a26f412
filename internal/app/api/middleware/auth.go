package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"

	"github.com/fatflowers/donations/pkg/logctx"
	"github.com/fatflowers/donations/pkg/response"
	"github.com/fatflowers/donations/pkg/types"
)

const (
	identityKey = "identity"
	userIDKey   = "userID"
)

// Claims is the bearer token body: sub is the user id.
type Claims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.StandardClaims
}

var errNoSecret = errors.New("token verification is not configured")

// TokenVerifier checks HS256 bearer tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *TokenVerifier) Verify(raw string) (types.Identity, error) {
	if len(v.secret) == 0 {
		return types.Identity{}, errNoSecret
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return types.Identity{}, err
	}
	if claims.Subject == "" {
		return types.Identity{}, errors.New("token has no subject")
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return types.Identity{}, errors.New("unexpected token issuer")
	}
	return types.Identity{UserID: claims.Subject, Email: claims.Email, Roles: claims.Roles}, nil
}

// AuthMiddleware resolves the caller. A request without a bearer token
// continues anonymously; a token that fails verification is rejected.
func AuthMiddleware(v *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeAuthRequired, "malformed authorization header"))
			return
		}
		who, err := v.Verify(strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeAuthRequired, "invalid token"))
			return
		}
		c.Set(identityKey, who)
		c.Set(userIDKey, who.UserID)
		c.Request = c.Request.WithContext(logctx.WithUserID(c.Request.Context(), who.UserID))
		c.Next()
	}
}

// RequireRole rejects anonymous callers and callers without role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		who := Identity(c)
		if !who.Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeAuthRequired, nil))
			return
		}
		if !who.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorT[any](response.APIResponseCodeForbidden, nil))
			return
		}
		c.Next()
	}
}

func IdentityFrom(c *gin.Context) (types.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return types.Identity{}, false
	}
	who, ok := v.(types.Identity)
	return who, ok
}

// Identity returns the caller, or the anonymous identity.
func Identity(c *gin.Context) types.Identity {
	who, _ := IdentityFrom(c)
	return who
}
