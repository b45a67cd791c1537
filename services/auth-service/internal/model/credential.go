package model

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// AuthMethod is how a credential proves ownership of its email.
type AuthMethod string

const (
	AuthMethodLocal  AuthMethod = "local"
	AuthMethodGoogle AuthMethod = "google"
)

// Credential is the single authentication record kept per email address.
// A google credential is always verified, and IsVerified never goes back to false.
type Credential struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	FullName     string        `bson:"full_name"`
	Email        string        `bson:"email"`
	PasswordHash string        `bson:"password_hash,omitempty"`
	AuthMethod   AuthMethod    `bson:"auth_method"`
	IsVerified   bool          `bson:"is_verified"`
	CreatedAt    time.Time     `bson:"created_at"`
	UpdatedAt    time.Time     `bson:"updated_at"`
}

// NormalizeEmail is the canonical form emails are stored and looked up by.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewLocalCredential returns an unverified password credential.
func NewLocalCredential(fullName, email, passwordHash string) *Credential {
	return &Credential{
		FullName:     fullName,
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		AuthMethod:   AuthMethodLocal,
		IsVerified:   false,
	}
}

// NewGoogleCredential returns a verified Google-backed credential.
func NewGoogleCredential(fullName, email string) *Credential {
	return &Credential{
		FullName:   fullName,
		Email:      NormalizeEmail(email),
		AuthMethod: AuthMethodGoogle,
		IsVerified: true,
	}
}

// SubjectID is the identifier carried in tokens issued for this credential.
func (c *Credential) SubjectID() string {
	return c.ID.Hex()
}

// ResetPendingSignup replaces the details of an unverified local signup.
func (c *Credential) ResetPendingSignup(fullName, passwordHash string) {
	c.FullName = fullName
	c.PasswordHash = passwordHash
}

// LinkGoogle promotes an unverified local credential to a Google one.
func (c *Credential) LinkGoogle(fullName string) {
	c.AuthMethod = AuthMethodGoogle
	c.IsVerified = true
	c.PasswordHash = ""
	if fullName != "" {
		c.FullName = fullName
	}
}

// MarkVerified records that the owner proved control of the mailbox.
func (c *Credential) MarkVerified() {
	c.IsVerified = true
}
