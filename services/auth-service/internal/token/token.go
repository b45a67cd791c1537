// Package token issues and verifies the two token kinds the auth service
// hands out: long-lived session tokens and one-hour email verification tokens.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vasapolrittideah/echo-auth-api/shared/auth"
)

// Kind separates session tokens from verification tokens.
type Kind string

const (
	KindSession      Kind = "session"
	KindVerification Kind = "verification"
)

// Config holds the secrets and lifetimes of both token kinds.
type Config struct {
	SessionSecret      string
	SessionTTL         time.Duration
	VerificationSecret string
	VerificationTTL    time.Duration
}

// Claims is the payload of every token issued by Service.
type Claims struct {
	Kind Kind `json:"kind"`
	jwt.RegisteredClaims
}

// Token is a signed token together with its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Result is the outcome of verifying a token. SubjectID is only set when
// Outcome is auth.OutcomeValid.
type Result struct {
	Outcome   auth.Outcome
	SubjectID string
	Err       error
}

// Service mints and checks session and verification tokens.
type Service struct {
	jwtAuth auth.JWTAuthenticator
	cfg     Config
	now     func() time.Time
}

// NewService creates a Service. The authenticator supplies issuer and audience.
func NewService(jwtAuth auth.JWTAuthenticator, cfg Config) *Service {
	return &Service{
		jwtAuth: jwtAuth,
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithClock returns a copy of the service that issues and validates against now.
func (s *Service) WithClock(now func() time.Time) *Service {
	clone := *s
	clone.now = now
	clone.jwtAuth = s.jwtAuth.WithClock(now)
	return &clone
}

// IssueSessionToken mints a session token for subjectID.
func (s *Service) IssueSessionToken(subjectID string) (Token, error) {
	return s.issue(KindSession, subjectID, s.cfg.SessionSecret, s.cfg.SessionTTL)
}

// IssueVerificationToken mints an email verification token for subjectID.
func (s *Service) IssueVerificationToken(subjectID string) (Token, error) {
	return s.issue(KindVerification, subjectID, s.cfg.VerificationSecret, s.cfg.VerificationTTL)
}

// VerifySessionToken checks a bearer session token.
func (s *Service) VerifySessionToken(raw string) Result {
	return s.verify(KindSession, raw, s.cfg.SessionSecret)
}

// VerifyVerificationToken checks a token taken from a verification link.
func (s *Service) VerifyVerificationToken(raw string) Result {
	return s.verify(KindVerification, raw, s.cfg.VerificationSecret)
}

// VerificationTTL is how long verification links stay valid.
func (s *Service) VerificationTTL() time.Duration {
	return s.cfg.VerificationTTL
}

func (s *Service) issue(kind Kind, subjectID, secret string, ttl time.Duration) (Token, error) {
	now := s.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subjectID,
			Issuer:    s.jwtAuth.Issuer(),
			Audience:  jwt.ClaimStrings{s.jwtAuth.Audience()},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	value, err := s.jwtAuth.GenerateToken(claims, secret)
	if err != nil {
		return Token{}, err
	}

	return Token{Value: value, ExpiresAt: expiresAt}, nil
}

func (s *Service) verify(kind Kind, raw, secret string) Result {
	claims := &Claims{}

	outcome, err := s.jwtAuth.Classify(raw, secret, claims)
	if outcome != auth.OutcomeValid {
		return Result{Outcome: outcome, Err: err}
	}

	if claims.Kind != kind || claims.Subject == "" {
		return Result{Outcome: auth.OutcomeInvalid, Err: jwt.ErrTokenInvalidClaims}
	}

	return Result{Outcome: auth.OutcomeValid, SubjectID: claims.Subject}
}
