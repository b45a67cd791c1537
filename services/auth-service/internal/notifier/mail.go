package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/token"
	"github.com/vasapolrittideah/echo-auth-api/shared/utilities"
)

const verificationSubject = "Verify Your Email for Echo App"

var verificationTemplate = template.Must(template.New("verification").Parse(`
<h1>Welcome to Echo, {{.FullName}}!</h1>
<p>Please click the link below to verify your email address:</p>
<a href="{{.Link}}" style="padding: 10px 15px; background-color: #007bff; color: white; text-decoration: none; border-radius: 5px;">Click to Verify</a>
<br>
<p>If the button doesn't work, copy and paste this link:</p>
<p>{{.Link}}</p>
<br>
<p>This link will expire in {{.ExpiresIn}}.</p>
`))

// Sender delivers an HTML email. *mailer.Mailer satisfies it.
type Sender interface {
	SendHTML(to []string, subject, htmlBody string) error
}

// VerificationTokenIssuer mints the token embedded in verification links.
type VerificationTokenIssuer interface {
	IssueVerificationToken(subjectID string) (token.Token, error)
	VerificationTTL() time.Duration
}

// MailNotifier sends verification links synchronously over SMTP.
type MailNotifier struct {
	sender  Sender
	tokens  VerificationTokenIssuer
	baseURL string
}

// NewMailNotifier creates a MailNotifier. Links point at
// {baseURL}/api/auth/verify-email/{token}.
func NewMailNotifier(sender Sender, tokens VerificationTokenIssuer, baseURL string) *MailNotifier {
	return &MailNotifier{
		sender:  sender,
		tokens:  tokens,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// SendVerificationEmail mints a fresh verification token for the credential
// and mails the link to its address.
func (n *MailNotifier) SendVerificationEmail(ctx context.Context, credential *model.Credential) error {
	if credential == nil || credential.ID.IsZero() {
		return errors.New("credential has no id")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	tok, err := n.tokens.IssueVerificationToken(credential.SubjectID())
	if err != nil {
		return fmt.Errorf("failed to issue verification token: %w", err)
	}

	body, err := n.renderBody(credential.FullName, n.VerificationLink(tok.Value))
	if err != nil {
		return err
	}

	if err := n.sender.SendHTML([]string{credential.Email}, verificationSubject, body); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	return nil
}

// VerificationLink builds the URL a user clicks to confirm their email.
func (n *MailNotifier) VerificationLink(rawToken string) string {
	return n.baseURL + "/api/auth/verify-email/" + url.PathEscape(rawToken)
}

func (n *MailNotifier) renderBody(fullName, link string) (string, error) {
	var buf bytes.Buffer

	err := verificationTemplate.Execute(&buf, struct {
		FullName  string
		Link      string
		ExpiresIn string
	}{
		FullName:  fullName,
		Link:      link,
		ExpiresIn: utilities.HumanizeDuration(n.tokens.VerificationTTL()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render verification email: %w", err)
	}

	return buf.String(), nil
}
