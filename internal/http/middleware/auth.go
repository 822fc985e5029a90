package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/internal/identity"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

// AuthConfig describes how bearer tokens are checked.
type AuthConfig struct {
	Secret string
	// Issuer is optional; when set the iss claim must match.
	Issuer string
}

// Claims are the fields read from the hosted auth platform's access token.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Authenticate verifies the HMAC-signed bearer token and resolves the caller's
// role from the role store, defaulting to patient. The resulting identity.Principal is stored on the
// request context. Every failure is a 401 JSON response.
func Authenticate(cfg AuthConfig, roles identity.RoleStore, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	var parserOpts []jwt.ParserOption
	parserOpts = append(parserOpts, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(parserOpts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Secret == "" {
				apperr.Write(w, apperr.Authentication("authentication is not configured"))
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				apperr.Write(w, apperr.Authentication("missing authorization header"))
				return
			}

			var claims Claims
			token, err := parser.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &claims, func(*jwt.Token) (any, error) {
				return []byte(cfg.Secret), nil
			})
			if err != nil || !token.Valid || claims.Subject == "" {
				apperr.Write(w, apperr.Authentication("invalid token"))
				return
			}

			role, err := roles.RoleOf(r.Context(), claims.Subject)
			if apperr.KindOf(err) == apperr.KindNotFound {
				// Signup assigns patient; a missing row means that trigger has not run yet.
				role, err = identity.RolePatient, nil
			}
			if err != nil {
				logger.Error("failed to resolve role", "error", err, "user_id", claims.Subject)
				apperr.Write(w, apperr.Authentication("could not resolve user"))
				return
			}

			ctx := identity.WithPrincipal(r.Context(), identity.Principal{
				UserID: claims.Subject,
				Email:  claims.Email,
				Role:   role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
