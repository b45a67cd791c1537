package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/model"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrDuplicateEmail     = errors.New("credential with this email already exists")
	ErrStaleCredential    = errors.New("credential is no longer a pending local signup")
)

// CredentialRepository defines the interface for credential-related database operations.
type CredentialRepository interface {
	// FindByEmail returns ErrCredentialNotFound when no record uses email.
	FindByEmail(ctx context.Context, email string) (*model.Credential, error)

	// FindByID returns ErrCredentialNotFound for unknown or malformed ids.
	FindByID(ctx context.Context, id string) (*model.Credential, error)

	// Create inserts a new record and fails with ErrDuplicateEmail when the email is taken.
	Create(ctx context.Context, credential *model.Credential) (*model.Credential, error)

	// UpdatePending persists the mutable fields of a record that is still an
	// unverified local signup. It fails with ErrStaleCredential when the stored
	// record has been verified or linked since it was read.
	UpdatePending(ctx context.Context, credential *model.Credential) error
}

const credentialCollection = "credentials"

type credentialMongoRepository struct {
	db *mongo.Database
}

// NewCredentialMongoRepository creates the repository and makes sure the
// unique email index exists.
func NewCredentialMongoRepository(
	ctx context.Context,
	logger *zerolog.Logger,
	db *mongo.Database,
) CredentialRepository {
	collection := db.Collection(credentialCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create credential indexes")
	}

	return &credentialMongoRepository{db: db}
}

func (r *credentialMongoRepository) FindByEmail(ctx context.Context, email string) (*model.Credential, error) {
	return r.findOne(ctx, bson.M{"email": model.NormalizeEmail(email)})
}

func (r *credentialMongoRepository) FindByID(ctx context.Context, id string) (*model.Credential, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrCredentialNotFound
	}

	return r.findOne(ctx, bson.M{"_id": objectID})
}

func (r *credentialMongoRepository) Create(
	ctx context.Context,
	credential *model.Credential,
) (*model.Credential, error) {
	now := time.Now().UTC()
	credential.Email = model.NormalizeEmail(credential.Email)
	credential.CreatedAt = now
	credential.UpdatedAt = now

	result, err := r.db.Collection(credentialCollection).InsertOne(ctx, credential)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateEmail
		}

		return nil, err
	}

	if objectID, ok := result.InsertedID.(bson.ObjectID); ok {
		credential.ID = objectID
	} else {
		return nil, errors.New("failed to convert inserted ID to ObjectID")
	}

	return credential, nil
}

func (r *credentialMongoRepository) UpdatePending(ctx context.Context, credential *model.Credential) error {
	if credential.ID.IsZero() {
		return fmt.Errorf("update credential: %w", ErrCredentialNotFound)
	}

	credential.UpdatedAt = time.Now().UTC()

	result, err := r.db.Collection(credentialCollection).UpdateOne(
		ctx,
		pendingFilter(credential.ID),
		buildSaveUpdate(credential),
	)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return ErrStaleCredential
	}

	return nil
}

func (r *credentialMongoRepository) findOne(ctx context.Context, filter bson.M) (*model.Credential, error) {
	var credential model.Credential

	err := r.db.Collection(credentialCollection).FindOne(ctx, filter).Decode(&credential)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCredentialNotFound
		}

		return nil, err
	}

	return &credential, nil
}

// pendingFilter matches the record only while it is an unverified local signup,
// the one state every write starts from.
func pendingFilter(id bson.ObjectID) bson.M {
	return bson.M{
		"_id":         id,
		"is_verified": false,
		"auth_method": model.AuthMethodLocal,
	}
}

// buildSaveUpdate never writes email or created_at, and only ever sets
// is_verified to true.
func buildSaveUpdate(credential *model.Credential) bson.M {
	set := bson.M{
		"full_name":   credential.FullName,
		"auth_method": credential.AuthMethod,
		"updated_at":  credential.UpdatedAt,
	}
	if credential.IsVerified {
		set["is_verified"] = true
	}

	update := bson.M{"$set": set}
	if credential.PasswordHash != "" {
		set["password_hash"] = credential.PasswordHash
	} else {
		update["$unset"] = bson.M{"password_hash": ""}
	}

	return update
}
