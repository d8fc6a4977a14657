package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey struct{}

// ErrUnauthenticated is returned for missing or invalid bearer tokens.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator verifies HMAC-signed bearer tokens and extracts the user id claim.
type Authenticator struct {
	secret []byte
	claim  string
	issuer string
}

// NewAuthenticator creates an authenticator. claim defaults to "sub".
func NewAuthenticator(secret, claim, issuer string) *Authenticator {
	if claim == "" {
		claim = "sub"
	}
	return &Authenticator{secret: []byte(secret), claim: claim, issuer: issuer}
}

// Verify parses a token and returns the user id it carries.
func (a *Authenticator) Verify(raw string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", errors.Wrapf(ErrUnauthenticated, "invalid token: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.Wrap(ErrUnauthenticated, "unexpected claims type")
	}
	userID, _ := claims[a.claim].(string)
	if userID == "" {
		return "", errors.Wrapf(ErrUnauthenticated, "token has no %s claim", a.claim)
	}
	return userID, nil
}

// Middleware rejects requests without a valid bearer token with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}
		userID, err := a.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, userID)))
	})
}

// IssueToken signs a token for userID, used for development and tests.
func (a *Authenticator) IssueToken(userID string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		a.claim: userID,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if a.issuer != "" {
		claims["iss"] = a.issuer
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// UserID returns the authenticated user id of the request.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
