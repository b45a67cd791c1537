package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/model"
)

const (
	TypeVerificationEmail = "email:verification"
	MailQueue             = "mail"
)

type verificationEmailPayload struct {
	CredentialID string `json:"credentialId"`
	Email        string `json:"email"`
	FullName     string `json:"fullName"`
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueuedNotifier hands verification emails to an asynq worker instead of
// talking to SMTP on the request path.
type QueuedNotifier struct {
	client enqueuer
}

// NewQueuedNotifier creates a QueuedNotifier on top of an asynq client.
func NewQueuedNotifier(client *asynq.Client) *QueuedNotifier {
	return &QueuedNotifier{client: client}
}

// SendVerificationEmail enqueues the email. Delivery happens in TaskHandler.
func (n *QueuedNotifier) SendVerificationEmail(ctx context.Context, credential *model.Credential) error {
	payload, err := json.Marshal(verificationEmailPayload{
		CredentialID: credential.SubjectID(),
		Email:        credential.Email,
		FullName:     credential.FullName,
	})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeVerificationEmail, payload)
	if _, err := n.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(MailQueue),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
	); err != nil {
		return fmt.Errorf("failed to enqueue verification email: %w", err)
	}

	return nil
}

type verificationSender interface {
	SendVerificationEmail(ctx context.Context, credential *model.Credential) error
}

// TaskHandler processes queued verification emails.
type TaskHandler struct {
	mail   verificationSender
	logger *zerolog.Logger
}

// NewTaskHandler creates a handler delivering through mail.
func NewTaskHandler(mail verificationSender, logger *zerolog.Logger) *TaskHandler {
	return &TaskHandler{mail: mail, logger: logger}
}

// Register mounts the handler on mux.
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeVerificationEmail, h.ProcessTask)
}

// ProcessTask implements asynq.Handler.
func (h *TaskHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload verificationEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid verification email payload: %v: %w", err, asynq.SkipRetry)
	}

	id, err := bson.ObjectIDFromHex(payload.CredentialID)
	if err != nil {
		return fmt.Errorf("invalid credential id %q: %w", payload.CredentialID, asynq.SkipRetry)
	}

	err = h.mail.SendVerificationEmail(ctx, &model.Credential{
		ID:       id,
		Email:    payload.Email,
		FullName: payload.FullName,
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("email", payload.Email).Msg("verification email attempt failed")
		return err
	}

	h.logger.Info().Str("email", payload.Email).Msg("verification email sent")

	return nil
}

// QueueLogger routes asynq's internal logging through zerolog.
type QueueLogger struct {
	logger *zerolog.Logger
}

func NewQueueLogger(logger *zerolog.Logger) *QueueLogger {
	return &QueueLogger{logger: logger}
}

func (l *QueueLogger) Debug(args ...any) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l *QueueLogger) Info(args ...any)  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l *QueueLogger) Warn(args ...any)  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l *QueueLogger) Error(args ...any) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l *QueueLogger) Fatal(args ...any) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
