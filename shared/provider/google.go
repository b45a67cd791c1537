package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"
)

var (
	ErrInvalidIdentityToken  = errors.New("invalid identity token")
	ErrInvalidGoogleAudience = errors.New("invalid google audience")
	ErrUnverifiedGoogleEmail = errors.New("google email is not verified")
)

// GoogleIdentity is the part of a verified Google ID token the service relies on.
type GoogleIdentity struct {
	Subject  string
	Email    string
	FullName string
}

type tokenValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// GoogleIDTokenVerifier checks Google ID tokens issued for a single OAuth client.
type GoogleIDTokenVerifier struct {
	clientID  string
	validator tokenValidator
}

// NewGoogleIDTokenVerifier creates a verifier bound to clientID. Google's
// signing certificates are fetched and cached by the underlying validator.
func NewGoogleIDTokenVerifier(ctx context.Context, clientID string) (*GoogleIDTokenVerifier, error) {
	if clientID == "" {
		return nil, errors.New("missing google client id")
	}

	validator, err := idtoken.NewValidator(ctx, option.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}))
	if err != nil {
		return nil, err
	}

	return &GoogleIDTokenVerifier{
		clientID:  clientID,
		validator: validator,
	}, nil
}

// Verify validates rawToken and extracts the caller's identity. Any failure
// attributable to the token itself wraps ErrInvalidIdentityToken.
func (p *GoogleIDTokenVerifier) Verify(ctx context.Context, rawToken string) (*GoogleIdentity, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidIdentityToken)
	}

	payload, err := p.validator.Validate(ctx, rawToken, p.clientID)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentityToken, err)
	}

	// Not every tokenValidator enforces the audience it is handed.
	if payload.Audience != p.clientID {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIdentityToken, ErrInvalidGoogleAudience)
	}

	email := strings.ToLower(strings.TrimSpace(claimString(payload.Claims, "email")))
	if email == "" {
		return nil, fmt.Errorf("%w: missing email claim", ErrInvalidIdentityToken)
	}

	if !claimBool(payload.Claims, "email_verified") {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIdentityToken, ErrUnverifiedGoogleEmail)
	}

	name := strings.TrimSpace(claimString(payload.Claims, "name"))
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	return &GoogleIdentity{
		Subject:  payload.Subject,
		Email:    email,
		FullName: name,
	}, nil
}

func claimString(claims map[string]any, key string) string {
	v, _ := claims[key].(string)
	return v
}

// Google has sent email_verified both as a JSON bool and as a string.
func claimBool(claims map[string]any, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}
