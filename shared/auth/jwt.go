package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Outcome is the result of validating a signed token.
type Outcome int

const (
	// OutcomeInvalid covers malformed tokens, bad signatures and claim mismatches.
	OutcomeInvalid Outcome = iota
	// OutcomeExpired means the signature is good but the token is past its expiry.
	OutcomeExpired
	// OutcomeValid means the token can be trusted.
	OutcomeValid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// JWTAuthenticator represents a JWT based authenticator.
type JWTAuthenticator struct {
	audience string
	issuer   string
	now      func() time.Time
}

// NewJWTAuthenticator creates a new JWTAuthenticator instance.
func NewJWTAuthenticator(audience, issuer string) JWTAuthenticator {
	return JWTAuthenticator{
		audience: audience,
		issuer:   issuer,
		now:      time.Now,
	}
}

// WithClock returns a copy of the authenticator that validates expiry against now.
func (a JWTAuthenticator) WithClock(now func() time.Time) JWTAuthenticator {
	a.now = now
	return a
}

// Audience returns the audience every token is issued for.
func (a *JWTAuthenticator) Audience() string {
	return a.audience
}

// Issuer returns the issuer every token is issued by.
func (a *JWTAuthenticator) Issuer() string {
	return a.issuer
}

// GenerateToken generates a JWT token with the given claims and secret.
// This is generic and accepts any type that implements jwt.Claims.
func (a *JWTAuthenticator) GenerateToken(claims jwt.Claims, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenStr, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}

	return tokenStr, nil
}

// ValidateTokenWithClaims validates a JWT token and parses it into the provided claims type.
// The claims parameter should be a pointer to a struct that implements jwt.Claims.
func (a *JWTAuthenticator) ValidateTokenWithClaims(tokenString, secret string, claims jwt.Claims) (*jwt.Token, error) {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return []byte(secret), nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithAudience(a.audience),
		jwt.WithIssuer(a.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(a.clock()),
	)
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return token, nil
}

// Classify validates the token into claims and reports which outcome applies.
// Expiry is only reported for tokens whose signature checked out.
func (a *JWTAuthenticator) Classify(tokenString, secret string, claims jwt.Claims) (Outcome, error) {
	if tokenString == "" {
		return OutcomeInvalid, jwt.ErrTokenMalformed
	}

	_, err := a.ValidateTokenWithClaims(tokenString, secret, claims)
	switch {
	case err == nil:
		return OutcomeValid, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return OutcomeExpired, err
	default:
		return OutcomeInvalid, err
	}
}

func (a *JWTAuthenticator) clock() func() time.Time {
	if a.now == nil {
		return time.Now
	}
	return a.now
}
