// Package auth verifies the bearer tokens presented to the conversion API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var (
	// ErrTokenMissing signals that no bearer token was presented.
	ErrTokenMissing = errors.New("auth: token missing")
	// ErrTokenInvalid signals a token that failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// anonymousNamespace derives stable subjects for unverified tokens
var anonymousNamespace = uuid.MustParse("8f9d1c52-5f1e-4b7b-9a43-0c4d2f3c6a10")

// HMACVerifier verifies HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option customises HMACVerifier behaviour.
type Option func(*HMACVerifier)

// WithIssuer requires the iss claim to match issuer.
func WithIssuer(issuer string) Option {
	return func(v *HMACVerifier) {
		v.issuer = strings.TrimSpace(issuer)
	}
}

// NewHMACVerifier creates a verifier for secret. An empty secret is an error.
func NewHMACVerifier(secret string, opts ...Option) (*HMACVerifier, error) {
	if secret == "" {
		return nil, errors.New("auth: secret cannot be empty")
	}
	v := &HMACVerifier{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify checks the signature and time claims of token and returns its subject.
func (v *HMACVerifier) Verify(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenMissing
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return "", fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}
	return claims.Subject, nil
}

// Sign issues an HS256 token for subject valid for ttl. Used by the CLI and tests.
func (v *HMACVerifier) Sign(subject string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type subjectKey struct{}

// WithSubject stores the authenticated subject on ctx.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey{}).(string)
	return subject, ok && subject != ""
}

// AnonymousSubject derives a stable account name for an unverified token so
// that raw tokens are never stored.
func AnonymousSubject(token string) string {
	return "anon-" + uuid.NewSHA1(anonymousNamespace, []byte(token)).String()
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
