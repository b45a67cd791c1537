package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/token"
	"github.com/vasapolrittideah/echo-auth-api/shared/auth"
	"github.com/vasapolrittideah/echo-auth-api/shared/provider"
)

// AuthUsecase reconciles incoming signups, Google logins and verification
// links against the stored credential for the same email.
type AuthUsecase interface {
	SubmitLocalSignup(ctx context.Context, params SignupParams) (*SignupResult, error)
	SubmitGoogleLogin(ctx context.Context, idToken string) (*GoogleLoginResult, error)
	SubmitLocalLogin(ctx context.Context, params LoginParams) (*LoginResult, error)
	ConfirmVerificationLink(ctx context.Context, rawToken string) (*VerificationResult, error)
	Profile(ctx context.Context, subjectID string) (*model.Credential, error)
}

// SignupParams defines the parameters for a password signup.
type SignupParams struct {
	FullName string
	Email    string
	Password string
}

// LoginParams defines the parameters for a password login.
type LoginParams struct {
	Email    string
	Password string
}

// TokenService mints session tokens and checks verification tokens.
type TokenService interface {
	IssueSessionToken(subjectID string) (token.Token, error)
	VerifyVerificationToken(raw string) token.Result
}

// VerificationNotifier delivers verification links. Delivery is best effort.
type VerificationNotifier interface {
	SendVerificationEmail(ctx context.Context, credential *model.Credential) error
}

// IdentityVerifier validates a Google ID token issued for this application.
type IdentityVerifier interface {
	Verify(ctx context.Context, rawToken string) (*provider.GoogleIdentity, error)
}

// PasswordHasher produces and checks salted one-way password hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

var ErrInvalidSignup = errors.New("full name, email and password are required")

// writeAttempts bounds how often a lost create or update race re-runs the lookup.
const writeAttempts = 3

var errWriteRace = errors.New("credential kept changing between lookup and write")

type authUsecase struct {
	credentialRepo repository.CredentialRepository
	tokens         TokenService
	notifier       VerificationNotifier
	identities     IdentityVerifier
	hasher         PasswordHasher
	logger         *zerolog.Logger
}

func NewAuthUsecase(
	credentialRepo repository.CredentialRepository,
	tokens TokenService,
	notifier VerificationNotifier,
	identities IdentityVerifier,
	hasher PasswordHasher,
	logger *zerolog.Logger,
) AuthUsecase {
	return &authUsecase{
		credentialRepo: credentialRepo,
		tokens:         tokens,
		notifier:       notifier,
		identities:     identities,
		hasher:         hasher,
		logger:         logger,
	}
}

func (u *authUsecase) SubmitLocalSignup(ctx context.Context, params SignupParams) (*SignupResult, error) {
	fullName := strings.TrimSpace(params.FullName)
	email := model.NormalizeEmail(params.Email)
	if fullName == "" || email == "" || params.Password == "" {
		return nil, ErrInvalidSignup
	}

	for range writeAttempts {
		existing, err := u.credentialRepo.FindByEmail(ctx, email)
		switch {
		case err == nil:
			result, err := u.signupExisting(ctx, existing, fullName, params.Password)
			if errors.Is(err, repository.ErrStaleCredential) {
				u.logger.Debug().Str("email", email).Msg("pending signup changed before resend, re-reading credential")
				continue
			}
			return result, err
		case !errors.Is(err, repository.ErrCredentialNotFound):
			return nil, fmt.Errorf("failed to look up credential: %w", err)
		}

		passwordHash, err := u.hasher.Hash(params.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}

		credential, err := u.credentialRepo.Create(ctx, model.NewLocalCredential(fullName, email, passwordHash))
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				u.logger.Debug().Str("email", email).Msg("signup lost create race, re-reading credential")
				continue
			}
			return nil, fmt.Errorf("failed to create credential: %w", err)
		}

		u.logger.Info().Str("credential_id", credential.SubjectID()).Msg("local credential created")

		return &SignupResult{
			Outcome:         SignupCreated,
			Credential:      credential,
			EmailDispatched: u.notify(ctx, credential),
		}, nil
	}

	return nil, errWriteRace
}

func (u *authUsecase) signupExisting(
	ctx context.Context,
	credential *model.Credential,
	fullName, password string,
) (*SignupResult, error) {
	if credential.IsVerified {
		return &SignupResult{Outcome: SignupAlreadyRegistered, Credential: credential}, nil
	}

	passwordHash, err := u.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	credential.ResetPendingSignup(fullName, passwordHash)
	if err := u.credentialRepo.UpdatePending(ctx, credential); err != nil {
		return nil, fmt.Errorf("failed to update pending credential: %w", err)
	}

	u.logger.Info().Str("credential_id", credential.SubjectID()).Msg("pending signup updated, resending verification")

	return &SignupResult{
		Outcome:         SignupResent,
		Credential:      credential,
		EmailDispatched: u.notify(ctx, credential),
	}, nil
}

// notify never fails the caller: the stored record is the durable fact.
func (u *authUsecase) notify(ctx context.Context, credential *model.Credential) bool {
	if err := u.notifier.SendVerificationEmail(ctx, credential); err != nil {
		u.logger.Warn().
			Err(err).
			Str("credential_id", credential.SubjectID()).
			Str("email", credential.Email).
			Msg("failed to send verification email")
		return false
	}

	return true
}

func (u *authUsecase) SubmitGoogleLogin(ctx context.Context, idToken string) (*GoogleLoginResult, error) {
	identity, err := u.identities.Verify(ctx, idToken)
	if err != nil {
		if errors.Is(err, provider.ErrInvalidIdentityToken) {
			u.logger.Info().Err(err).Msg("rejected google identity token")
			return &GoogleLoginResult{Outcome: GoogleInvalidToken}, nil
		}
		return nil, fmt.Errorf("failed to verify google identity token: %w", err)
	}

	email := model.NormalizeEmail(identity.Email)

	for range writeAttempts {
		existing, err := u.credentialRepo.FindByEmail(ctx, email)
		switch {
		case err == nil:
			result, err := u.googleExisting(ctx, existing, identity)
			if errors.Is(err, repository.ErrStaleCredential) {
				u.logger.Debug().Str("email", email).Msg("pending signup changed before link, re-reading credential")
				continue
			}
			return result, err
		case !errors.Is(err, repository.ErrCredentialNotFound):
			return nil, fmt.Errorf("failed to look up credential: %w", err)
		}

		credential, err := u.credentialRepo.Create(ctx, model.NewGoogleCredential(identity.FullName, email))
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				u.logger.Debug().Str("email", email).Msg("google login lost create race, re-reading credential")
				continue
			}
			return nil, fmt.Errorf("failed to create credential: %w", err)
		}

		u.logger.Info().Str("credential_id", credential.SubjectID()).Msg("google credential created")

		return u.googleSession(GoogleCreated, credential)
	}

	return nil, errWriteRace
}

func (u *authUsecase) googleExisting(
	ctx context.Context,
	credential *model.Credential,
	identity *provider.GoogleIdentity,
) (*GoogleLoginResult, error) {
	switch {
	case credential.AuthMethod == model.AuthMethodGoogle:
		return u.googleSession(GoogleLoggedIn, credential)

	case credential.IsVerified:
		return &GoogleLoginResult{Outcome: GoogleAlreadyRegistered, Credential: credential}, nil

	default:
		credential.LinkGoogle(identity.FullName)
		if err := u.credentialRepo.UpdatePending(ctx, credential); err != nil {
			return nil, fmt.Errorf("failed to link credential to google: %w", err)
		}

		u.logger.Info().Str("credential_id", credential.SubjectID()).Msg("unverified local credential linked to google")

		return u.googleSession(GoogleLinked, credential)
	}
}

func (u *authUsecase) googleSession(outcome GoogleOutcome, credential *model.Credential) (*GoogleLoginResult, error) {
	session, err := u.tokens.IssueSessionToken(credential.SubjectID())
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	return &GoogleLoginResult{
		Outcome:      outcome,
		Credential:   credential,
		SessionToken: session,
		IsNewUser:    outcome == GoogleCreated,
	}, nil
}

// SubmitLocalLogin only accepts verified local credentials. Unknown emails,
// wrong passwords and Google-only accounts all report invalid credentials.
func (u *authUsecase) SubmitLocalLogin(ctx context.Context, params LoginParams) (*LoginResult, error) {
	credential, err := u.credentialRepo.FindByEmail(ctx, model.NormalizeEmail(params.Email))
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return &LoginResult{Outcome: LoginInvalidCredentials}, nil
		}
		return nil, fmt.Errorf("failed to look up credential: %w", err)
	}

	if credential.AuthMethod != model.AuthMethodLocal || credential.PasswordHash == "" {
		return &LoginResult{Outcome: LoginInvalidCredentials}, nil
	}

	if ok, err := u.hasher.Verify(params.Password, credential.PasswordHash); err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	} else if !ok {
		return &LoginResult{Outcome: LoginInvalidCredentials}, nil
	}

	if !credential.IsVerified {
		return &LoginResult{Outcome: LoginNotVerified, Credential: credential}, nil
	}

	session, err := u.tokens.IssueSessionToken(credential.SubjectID())
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	return &LoginResult{Outcome: LoginSucceeded, Credential: credential, SessionToken: session}, nil
}

func (u *authUsecase) ConfirmVerificationLink(ctx context.Context, rawToken string) (*VerificationResult, error) {
	result := u.tokens.VerifyVerificationToken(rawToken)

	switch result.Outcome {
	case auth.OutcomeExpired:
		return &VerificationResult{Outcome: VerificationExpired}, nil
	case auth.OutcomeInvalid:
		u.logger.Debug().Err(result.Err).Msg("rejected verification token")
		return &VerificationResult{Outcome: VerificationInvalid}, nil
	case auth.OutcomeValid:
	default:
		return nil, fmt.Errorf("unknown token outcome %v", result.Outcome)
	}

	for range writeAttempts {
		credential, err := u.credentialRepo.FindByID(ctx, result.SubjectID)
		if err != nil {
			if errors.Is(err, repository.ErrCredentialNotFound) {
				return &VerificationResult{Outcome: VerificationUserNotFound}, nil
			}
			return nil, fmt.Errorf("failed to look up credential: %w", err)
		}

		if credential.IsVerified {
			return &VerificationResult{Outcome: VerificationAlreadyVerified, Credential: credential}, nil
		}

		credential.MarkVerified()
		if err := u.credentialRepo.UpdatePending(ctx, credential); err != nil {
			if errors.Is(err, repository.ErrStaleCredential) {
				u.logger.Debug().Str("credential_id", result.SubjectID).Msg("credential changed before verification, re-reading")
				continue
			}
			return nil, fmt.Errorf("failed to mark credential verified: %w", err)
		}

		u.logger.Info().Str("credential_id", credential.SubjectID()).Msg("email verified")

		return &VerificationResult{Outcome: VerificationVerified, Credential: credential}, nil
	}

	return nil, errWriteRace
}

func (u *authUsecase) Profile(ctx context.Context, subjectID string) (*model.Credential, error) {
	return u.credentialRepo.FindByID(ctx, subjectID)
}
