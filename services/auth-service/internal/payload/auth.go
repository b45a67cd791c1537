package payload

import "github.com/vasapolrittideah/echo-auth-api/shared/validation"

type SignupRequest struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Message  string `json:"message"`
	AppToken string `json:"appToken"`
}

type GoogleLoginRequest struct {
	Token string `json:"token" validate:"required"`
}

// MessageResponse is the body of every JSON answer except Google logins and
// validation failures.
type MessageResponse struct {
	Message string `json:"message"`
}

type GoogleLoginResponse struct {
	Message   string `json:"message"`
	AppToken  string `json:"appToken"`
	IsNewUser bool   `json:"isNewUser"`
}

type ValidationErrorResponse struct {
	Message string                  `json:"message"`
	Errors  []validation.FieldError `json:"errors"`
}

type ProfileResponse struct {
	ID         string `json:"id"`
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	AuthMethod string `json:"authMethod"`
	IsVerified bool   `json:"isVerified"`
}
