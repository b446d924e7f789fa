// Package auth provides the two authentication middlewares the log store
// needs: Revolori-issued JWT bearer tokens for data owners, and static
// credentials for the technical user (request-access endpoints) and the
// admin user (log generation).
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "overseer/pkg/domain"
	dErrors "overseer/pkg/domain-errors"
	"overseer/pkg/platform/httputil"
	"overseer/pkg/requestcontext"
)

// TokenVerifier validates a bearer token and returns the subject it was
// issued for.
type TokenVerifier interface {
	Verify(token string) (id.SubjectID, error)
}

// HMACVerifier verifies HS256 tokens issued by Revolori. The subject claim
// carries the Revolori ID.
type HMACVerifier struct {
	key []byte
}

func NewHMACVerifier(signingKey string) *HMACVerifier {
	return &HMACVerifier{key: []byte(signingKey)}
}

func (v *HMACVerifier) Verify(tokenString string) (id.SubjectID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.key, nil
	}, jwt.WithExpirationRequired(), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "token has no subject claim")
	}
	return id.ParseSubjectID(subject)
}

// RequireOwner authenticates a data owner via bearer token and stores the
// subject in the request context.
func RequireOwner(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			subject, err := verifier.Verify(token)
			if err != nil {
				logger.WarnContext(ctx, "owner authentication failed",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithSubject(ctx, subject)))
		})
	}
}

// BasicCredentials is a username/password pair for a machine account.
type BasicCredentials struct {
	Username string
	Password string
}

// RequireBasic authenticates machine accounts (technical user, admin) with
// HTTP basic auth. Comparison is constant-time.
func RequireBasic(creds BasicCredentials, realm string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			userOK := subtle.ConstantTimeCompare([]byte(username), []byte(creds.Username)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(password), []byte(creds.Password)) == 1
			if !ok || !userOK || !passOK {
				logger.WarnContext(r.Context(), "basic authentication failed",
					"request_id", requestcontext.RequestID(r.Context()),
					"realm", realm,
				)
				w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "incorrect username or password"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
