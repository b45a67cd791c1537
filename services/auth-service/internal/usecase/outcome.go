package usecase

import (
	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/token"
)

// SignupOutcome is the business result of a password signup.
type SignupOutcome int

const (
	// SignupCreated means a new unverified credential was stored.
	SignupCreated SignupOutcome = iota + 1
	// SignupResent means an unverified credential was refreshed and mailed again.
	SignupResent
	// SignupAlreadyRegistered means the email belongs to a verified account.
	SignupAlreadyRegistered
)

// SignupResult reports what a signup did. EmailDispatched is false when the
// notifier failed; the outcome is unaffected.
type SignupResult struct {
	Outcome         SignupOutcome
	Credential      *model.Credential
	EmailDispatched bool
}

// GoogleOutcome is the business result of a Google login.
type GoogleOutcome int

const (
	GoogleCreated GoogleOutcome = iota + 1
	GoogleLoggedIn
	GoogleLinked
	GoogleAlreadyRegistered
	GoogleInvalidToken
)

// GoogleLoginResult carries the session token for every outcome that
// establishes identity.
type GoogleLoginResult struct {
	Outcome      GoogleOutcome
	Credential   *model.Credential
	SessionToken token.Token
	IsNewUser    bool
}

type LoginOutcome int

const (
	LoginSucceeded LoginOutcome = iota + 1
	LoginInvalidCredentials
	// LoginNotVerified means the password matched but the email link was never followed.
	LoginNotVerified
)

type LoginResult struct {
	Outcome      LoginOutcome
	Credential   *model.Credential
	SessionToken token.Token
}

// VerificationOutcome is the business result of following a verification link.
type VerificationOutcome int

const (
	VerificationVerified VerificationOutcome = iota + 1
	VerificationAlreadyVerified
	VerificationExpired
	VerificationInvalid
	VerificationUserNotFound
)

type VerificationResult struct {
	Outcome    VerificationOutcome
	Credential *model.Credential
}
