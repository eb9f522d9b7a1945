package httpadapter

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type actorContextKey struct{}

func actorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}

func withActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// tokenVerifier checks HS256 bearer tokens. The subject claim is the actor id.
type tokenVerifier struct {
	secret []byte
	issuer string
}

func newTokenVerifier(secret, issuer string) *tokenVerifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &tokenVerifier{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}
}

func (v *tokenVerifier) Subject(tokenStr string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", jwt.ErrTokenInvalidSubject
	}
	return subject, nil
}

func isPublicPath(path string) bool {
	switch path {
	case "/healthz", "/metrics", "/openapi.yaml":
		return true
	default:
		return false
	}
}

// authMiddleware fails closed: without a configured secret every
// non-public request is rejected.
func authMiddleware(next http.Handler, verifier *tokenVerifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tokenStr, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if verifier == nil {
			writeError(w, http.StatusUnauthorized, "authentication not configured")
			return
		}
		subject, err := verifier.Subject(tokenStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		if info := requestInfoFromContext(r.Context()); info != nil {
			info.actorID = subject
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), subject)))
	})
}

func bearerToken(headerValue string) (string, bool) {
	headerValue = strings.TrimSpace(headerValue)
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return token, token != ""
}
