package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	adapter "github.com/gwatts/gin-adapter"
)

// UserIDKey for storing the authenticated user id in Gin context
const UserIDKey = "user_id"

// Auth validates the bearer token against the Auth0 tenant and stores the
// subject under UserIDKey. The wrapped net/http middleware runs the rest of
// the chain itself, so the subject is copied by a second handler.
func Auth(domain, audience string) (gin.HandlersChain, error) {
	issuer, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, fmt.Errorf("parsing issuer url: %w", err)
	}
	provider := jwks.NewCachingProvider(issuer, 5*time.Minute)

	v, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuer.String(),
		[]string{audience},
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("creating token validator: %w", err)
	}

	mw := jwtmiddleware.New(v.ValidateToken,
		jwtmiddleware.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Default().WarnContext(r.Context(), "rejected token", "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"unauthorized","message":"invalid or missing token"}`))
		}),
	)

	return gin.HandlersChain{adapter.Wrap(mw.CheckJWT), subjectAsUserID}, nil
}

func subjectAsUserID(c *gin.Context) {
	if sub, ok := GetAuth0ID(c); ok {
		c.Set(UserIDKey, sub)
	}
	c.Next()
}

// GetAuth0ID extracts the user ID (sub claim) from the JWT token in the Gin context
func GetAuth0ID(c *gin.Context) (string, bool) {
	claims, ok := c.Request.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	if !ok {
		return "", false
	}
	return claims.RegisteredClaims.Subject, true
}

// GetUserID returns the id of the authenticated caller.
func GetUserID(c *gin.Context) (string, bool) {
	if id, ok := c.Get(UserIDKey); ok {
		s, ok := id.(string)
		return s, ok && s != ""
	}
	return "", false
}
