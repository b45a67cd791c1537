package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/payload"
	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/usecase"
	"github.com/vasapolrittideah/echo-auth-api/shared/validation"
)

const maxBodyBytes = 1 << 20

const (
	msgInvalidBody        = "Invalid request body."
	msgMissingFields      = "Please fill in all required fields."
	msgSignupCreated      = "User created successfully! Please check your email to verify."
	msgSignupRegistered   = "This email is already registered. Please log in."
	msgSignupServerError  = "Server error during signup."
	msgLoginInvalid       = "Invalid email or password."
	msgLoginNotVerified   = "Please verify your email before logging in."
	msgLoginServerError   = "Server error during login."
	msgGoogleCreated      = "User created successfully"
	msgLoggedIn           = "Logged in successfully"
	msgGoogleLinked       = "Account successfully linked to Google and logged in."
	msgGoogleRegistered   = "This email is already registered. Please log in with your password."
	msgGoogleInvalidToken = "Invalid Google token."
	msgGoogleServerError  = "Server error during Google authentication."
	msgProfileNotFound    = "User not found."
	msgProfileServerError = "Server error."
	msgUnauthorized       = "Authentication required."
)

type AuthHTTPHandler struct {
	authUsecase usecase.AuthUsecase
	validator   *validation.Validator
	logger      *zerolog.Logger
}

func NewAuthHTTPHandler(
	authUsecase usecase.AuthUsecase,
	validator *validation.Validator,
	logger *zerolog.Logger,
) *AuthHTTPHandler {
	return &AuthHTTPHandler{
		authUsecase: authUsecase,
		validator:   validator,
		logger:      logger,
	}
}

// Routes mounts the auth endpoints. requireSession guards the profile route.
func (h *AuthHTTPHandler) Routes(requireSession func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.Post("/google", h.GoogleLogin)
	r.Get("/verify-email/{token}", h.VerifyEmail)
	r.With(requireSession).Get("/me", h.Me)

	return r
}

func (h *AuthHTTPHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req payload.SignupRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.authUsecase.SubmitLocalSignup(r.Context(), usecase.SignupParams{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidSignup) {
			writeJSON(w, http.StatusBadRequest, payload.MessageResponse{Message: msgMissingFields})
			return
		}

		h.logger.Error().Err(err).Msg("failed to submit local signup")
		writeJSON(w, http.StatusInternalServerError, payload.MessageResponse{Message: msgSignupServerError})
		return
	}

	switch result.Outcome {
	case usecase.SignupCreated:
		writeJSON(w, http.StatusCreated, payload.MessageResponse{Message: msgSignupCreated})
	case usecase.SignupResent:
		writeJSON(w, http.StatusOK, payload.MessageResponse{Message: msgSignupCreated})
	case usecase.SignupAlreadyRegistered:
		writeJSON(w, http.StatusBadRequest, payload.MessageResponse{Message: msgSignupRegistered})
	default:
		h.logger.Error().Int("outcome", int(result.Outcome)).Msg("unknown signup outcome")
		writeJSON(w, http.StatusInternalServerError, payload.MessageResponse{Message: msgSignupServerError})
	}
}

func (h *AuthHTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req payload.LoginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.authUsecase.SubmitLocalLogin(r.Context(), usecase.LoginParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to submit local login")
		writeJSON(w, http.StatusInternalServerError, payload.MessageResponse{Message: msgLoginServerError})
		return
	}

	switch result.Outcome {
	case usecase.LoginSucceeded:
		writeJSON(w, http.StatusOK, payload.LoginResponse{
			Message:  msgLoggedIn,
			AppToken: result.SessionToken.Value,
		})
	case usecase.LoginInvalidCredentials:
		writeJSON(w, http.StatusUnauthorized, payload.MessageResponse{Message: msgLoginInvalid})
	case usecase.LoginNotVerified:
		writeJSON(w, http.StatusForbidden, payload.MessageResponse{Message: msgLoginNotVerified})
	default:
		h.logger.Error().Int("outcome", int(result.Outcome)).Msg("unknown login outcome")
		writeJSON(w, http.StatusInternalServerError, payload.MessageResponse{Message: msgLoginServerError})
	}
}

func (h *AuthHTTPHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req payload.GoogleLoginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.authUsecase.SubmitGoogleLogin(r.Context(), req.Token)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to submit google login")
		writeJSON(w, http.StatusInternalServerError, payload.MessageResponse{Message: msgGoogleServerError})
		return
	}

	switch result.Outcome {
	case usecase.GoogleCreated:
		writeJSON(w, http.StatusCreated, googleResponse(msgGoogleCreated, result))
	case usecase.GoogleLoggedIn:
		writeJSON(w, http.StatusOK, googleResponse(msgLoggedIn, result))
	case usecase.GoogleLinked:
		writeJSON(w, http.StatusOK, googleResponse(msgGoogleLinked, result))
	case usecase.GoogleAlreadyRegistered:
		writeJSON(w, http.StatusBadRequest, payload.MessageResponse{Message: msgGoogleRegistered})
	case usecase.GoogleInvalidToken:
		writeJSON(w, http.StatusUnauthorized, payload.MessageResponse{Message: msgGoogleInvalidToken})
	default:
		h.logger.Error().Int("outcome", int(result.Outcome)).Msg("unknown google login outcome")
		writeJSON(w, http.StatusInternalServerError, payload.MessageResponse{Message: msgGoogleServerError})
	}
}

func googleResponse(message string, result *usecase.GoogleLoginResult) payload.GoogleLoginResponse {
	return payload.GoogleLoginResponse{
		Message:   message,
		AppToken:  result.SessionToken.Value,
		IsNewUser: result.IsNewUser,
	}
}

func (h *AuthHTTPHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	result, err := h.authUsecase.ConfirmVerificationLink(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to confirm verification link")
		h.writePage(w, http.StatusInternalServerError, pageServerError)
		return
	}

	switch result.Outcome {
	case usecase.VerificationVerified:
		h.writePage(w, http.StatusOK, pageVerified)
	case usecase.VerificationAlreadyVerified:
		h.writePage(w, http.StatusOK, pageAlreadyVerified)
	case usecase.VerificationExpired:
		h.writePage(w, http.StatusBadRequest, pageExpired)
	case usecase.VerificationInvalid:
		h.writePage(w, http.StatusBadRequest, pageInvalid)
	case usecase.VerificationUserNotFound:
		h.writePage(w, http.StatusNotFound, pageUserNotFound)
	default:
		h.logger.Error().Int("outcome", int(result.Outcome)).Msg("unknown verification outcome")
		h.writePage(w, http.StatusInternalServerError, pageServerError)
	}
}

func (h *AuthHTTPHandler) Me(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := SubjectIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, payload.MessageResponse{Message: msgUnauthorized})
		return
	}

	credential, err := h.authUsecase.Profile(r.Context(), subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			writeJSON(w, http.StatusNotFound, payload.MessageResponse{Message: msgProfileNotFound})
			return
		}

		h.logger.Error().Err(err).Str("credential_id", subjectID).Msg("failed to load profile")
		writeJSON(w, http.StatusInternalServerError, payload.MessageResponse{Message: msgProfileServerError})
		return
	}

	writeJSON(w, http.StatusOK, payload.ProfileResponse{
		ID:         credential.SubjectID(),
		FullName:   credential.FullName,
		Email:      credential.Email,
		AuthMethod: string(credential.AuthMethod),
		IsVerified: credential.IsVerified,
	})
}

// decodeAndValidate writes the 400 response itself and reports whether the
// handler may continue.
func (h *AuthHTTPHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, payload.MessageResponse{Message: msgInvalidBody})
		return false
	}

	fieldErrors, err := h.validator.Struct(dst)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to validate request")
		writeJSON(w, http.StatusBadRequest, payload.MessageResponse{Message: msgInvalidBody})
		return false
	}
	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, payload.ValidationErrorResponse{
			Message: msgMissingFields,
			Errors:  fieldErrors,
		})
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
