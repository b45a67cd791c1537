package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/token"
	"github.com/vasapolrittideah/echo-auth-api/shared/auth"
	"github.com/vasapolrittideah/echo-auth-api/shared/provider"
)

// --- fakes ---

type memoryCredentials struct {
	mu      sync.Mutex
	byID    map[bson.ObjectID]model.Credential
	updates int
	creates int

	findErr   error
	updateErr error
	// beforeCreate runs once before the next Create, e.g. to simulate a racing writer.
	beforeCreate func(m *memoryCredentials)
	// beforeUpdate runs once before the next UpdatePending, after the caller's read.
	beforeUpdate func()
}

func newMemoryCredentials() *memoryCredentials {
	return &memoryCredentials{byID: make(map[bson.ObjectID]model.Credential)}
}

func (m *memoryCredentials) FindByEmail(_ context.Context, email string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, c := range m.byID {
		if c.Email == model.NormalizeEmail(email) {
			return &c, nil
		}
	}
	return nil, repository.ErrCredentialNotFound
}

func (m *memoryCredentials) FindByID(_ context.Context, id string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrCredentialNotFound
	}
	c, ok := m.byID[objectID]
	if !ok {
		return nil, repository.ErrCredentialNotFound
	}
	return &c, nil
}

func (m *memoryCredentials) Create(_ context.Context, c *model.Credential) (*model.Credential, error) {
	m.mu.Lock()
	if hook := m.beforeCreate; hook != nil {
		m.beforeCreate = nil
		m.mu.Unlock()
		hook(m)
		m.mu.Lock()
	}
	defer m.mu.Unlock()

	for _, existing := range m.byID {
		if existing.Email == c.Email {
			return nil, repository.ErrDuplicateEmail
		}
	}

	m.creates++
	c.ID = bson.NewObjectID()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.byID[c.ID] = *c
	return c, nil
}

func (m *memoryCredentials) UpdatePending(_ context.Context, c *model.Credential) error {
	m.mu.Lock()
	if hook := m.beforeUpdate; hook != nil {
		m.beforeUpdate = nil
		m.mu.Unlock()
		hook()
		m.mu.Lock()
	}
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.byID[c.ID]
	if !ok || stored.IsVerified || stored.AuthMethod != model.AuthMethodLocal {
		return repository.ErrStaleCredential
	}
	m.updates++
	stored.FullName = c.FullName
	stored.PasswordHash = c.PasswordHash
	stored.AuthMethod = c.AuthMethod
	stored.IsVerified = stored.IsVerified || c.IsVerified
	stored.UpdatedAt = time.Now()
	m.byID[c.ID] = stored
	return nil
}

func (m *memoryCredentials) insert(c *model.Credential) *model.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.ID = bson.NewObjectID()
	m.byID[c.ID] = *c
	return c
}

func (m *memoryCredentials) get(t *testing.T, email string) model.Credential {
	t.Helper()
	c, err := m.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return *c
}

func (m *memoryCredentials) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Credential
	err  error
}

func (n *recordingNotifier) SendVerificationEmail(_ context.Context, c *model.Credential) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, *c)
	return n.err
}

type fakeIdentities struct {
	identity *provider.GoogleIdentity
	err      error
}

func (f *fakeIdentities) Verify(context.Context, string) (*provider.GoogleIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

type prefixHasher struct{ err error }

func (h prefixHasher) Hash(password string) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	return "hashed:" + password, nil
}

func (h prefixHasher) Verify(password, encodedHash string) (bool, error) {
	if h.err != nil {
		return false, h.err
	}
	return encodedHash != "" && encodedHash == "hashed:"+password, nil
}

type fixture struct {
	repo       *memoryCredentials
	notifier   *recordingNotifier
	identities *fakeIdentities
	tokens     *token.Service
	usecase    AuthUsecase
}

func newFixture() *fixture {
	f := &fixture{
		repo:       newMemoryCredentials(),
		notifier:   &recordingNotifier{},
		identities: &fakeIdentities{},
		tokens: token.NewService(auth.NewJWTAuthenticator("echo-auth", "echo-auth"), token.Config{
			SessionSecret:      "session-secret",
			SessionTTL:         7 * 24 * time.Hour,
			VerificationSecret: "verification-secret",
			VerificationTTL:    time.Hour,
		}),
	}
	logger := zerolog.Nop()
	f.usecase = NewAuthUsecase(f.repo, f.tokens, f.notifier, f.identities, prefixHasher{}, &logger)
	return f
}

func (f *fixture) googleAs(email, name string) {
	f.identities.identity = &provider.GoogleIdentity{Subject: "g-" + email, Email: email, FullName: name}
	f.identities.err = nil
}

func signup(name, email, password string) SignupParams {
	return SignupParams{FullName: name, Email: email, Password: password}
}

// --- SubmitLocalSignup ---

func TestSubmitLocalSignup_NewEmail(t *testing.T) {
	f := newFixture()

	res, err := f.usecase.SubmitLocalSignup(context.Background(), signup("Ann", "A@x.com", "password123"))
	require.NoError(t, err)

	assert.Equal(t, SignupCreated, res.Outcome)
	assert.True(t, res.EmailDispatched)
	assert.Equal(t, 1, f.repo.count())

	stored := f.repo.get(t, "a@x.com")
	assert.Equal(t, model.AuthMethodLocal, stored.AuthMethod)
	assert.False(t, stored.IsVerified)
	assert.Equal(t, "hashed:password123", stored.PasswordHash)
	assert.Equal(t, "a@x.com", stored.Email)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, stored.ID, f.notifier.sent[0].ID)
}

func TestSubmitLocalSignup_RepeatWhileUnverified(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.usecase.SubmitLocalSignup(ctx, signup("Ann", "a@x.com", "password123"))
	require.NoError(t, err)
	first := f.repo.get(t, "a@x.com")

	res, err := f.usecase.SubmitLocalSignup(ctx, signup("Anne", "a@x.com", "differentpass"))
	require.NoError(t, err)

	assert.Equal(t, SignupResent, res.Outcome)
	assert.Equal(t, 1, f.repo.count())

	second := f.repo.get(t, "a@x.com")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Anne", second.FullName)
	assert.Equal(t, "hashed:differentpass", second.PasswordHash)
	assert.False(t, second.IsVerified)
	assert.Len(t, f.notifier.sent, 2)
}

func TestSubmitLocalSignup_VerifiedEmailRejected(t *testing.T) {
	for _, existing := range []*model.Credential{
		{FullName: "Ann", Email: "a@x.com", PasswordHash: "hashed:orig", AuthMethod: model.AuthMethodLocal, IsVerified: true},
		model.NewGoogleCredential("Ann", "a@x.com"),
	} {
		f := newFixture()
		f.repo.insert(existing)
		before := f.repo.get(t, "a@x.com")

		res, err := f.usecase.SubmitLocalSignup(context.Background(), signup("Mallory", "a@x.com", "whatever123"))
		require.NoError(t, err)

		assert.Equal(t, SignupAlreadyRegistered, res.Outcome)
		assert.Equal(t, before, f.repo.get(t, "a@x.com"))
		assert.Zero(t, f.repo.updates)
		assert.Empty(t, f.notifier.sent)
	}
}

func TestSubmitLocalSignup_NotifierFailureKeepsRecord(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("smtp down")

	res, err := f.usecase.SubmitLocalSignup(context.Background(), signup("Ann", "a@x.com", "password123"))
	require.NoError(t, err)

	assert.Equal(t, SignupCreated, res.Outcome)
	assert.False(t, res.EmailDispatched)
	assert.Equal(t, 1, f.repo.count())
	assert.Len(t, f.notifier.sent, 1)
}

func TestSubmitLocalSignup_LostCreateRaceUsesExistingBranch(t *testing.T) {
	t.Run("racer left it unverified", func(t *testing.T) {
		f := newFixture()
		f.repo.beforeCreate = func(m *memoryCredentials) {
			m.insert(model.NewLocalCredential("Racer", "a@x.com", "hashed:racer"))
		}

		res, err := f.usecase.SubmitLocalSignup(context.Background(), signup("Ann", "a@x.com", "password123"))
		require.NoError(t, err)

		assert.Equal(t, SignupResent, res.Outcome)
		assert.Equal(t, 1, f.repo.count())
		assert.Equal(t, "Ann", f.repo.get(t, "a@x.com").FullName)
	})

	t.Run("racer verified it", func(t *testing.T) {
		f := newFixture()
		f.repo.beforeCreate = func(m *memoryCredentials) {
			m.insert(model.NewGoogleCredential("Racer", "a@x.com"))
		}

		res, err := f.usecase.SubmitLocalSignup(context.Background(), signup("Ann", "a@x.com", "password123"))
		require.NoError(t, err)

		assert.Equal(t, SignupAlreadyRegistered, res.Outcome)
		assert.Equal(t, 1, f.repo.count())
	})
}

func TestSubmitLocalSignup_ConcurrentDuplicatesCreateOneRecord(t *testing.T) {
	f := newFixture()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.usecase.SubmitLocalSignup(context.Background(), signup("Ann", "a@x.com", "password123"))
			assert.NoError(t, err)
			if assert.NotNil(t, res) {
				assert.Contains(t, []SignupOutcome{SignupCreated, SignupResent}, res.Outcome)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.repo.count())
	assert.Equal(t, 1, f.repo.creates)
}

func TestSubmitLocalSignup_InvalidParams(t *testing.T) {
	f := newFixture()

	for _, p := range []SignupParams{
		signup("", "a@x.com", "password123"),
		signup("   ", "a@x.com", "password123"),
		signup("Ann", "", "password123"),
		signup("Ann", "a@x.com", ""),
	} {
		_, err := f.usecase.SubmitLocalSignup(context.Background(), p)
		assert.ErrorIs(t, err, ErrInvalidSignup)
	}
	assert.Zero(t, f.repo.count())
}

func TestSubmitLocalSignup_StoreFailuresAreInternal(t *testing.T) {
	boom := errors.New("mongo unavailable")

	f := newFixture()
	f.repo.findErr = boom
	_, err := f.usecase.SubmitLocalSignup(context.Background(), signup("Ann", "a@x.com", "password123"))
	assert.ErrorIs(t, err, boom)

	f = newFixture()
	f.repo.insert(model.NewLocalCredential("Ann", "a@x.com", "hashed:x"))
	f.repo.updateErr = boom
	_, err = f.usecase.SubmitLocalSignup(context.Background(), signup("Ann", "a@x.com", "password123"))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, f.notifier.sent)
}

func TestSubmitLocalSignup_HashFailure(t *testing.T) {
	f := newFixture()
	logger := zerolog.Nop()
	boom := errors.New("hash failed")
	uc := NewAuthUsecase(f.repo, f.tokens, f.notifier, f.identities, prefixHasher{err: boom}, &logger)

	_, err := uc.SubmitLocalSignup(context.Background(), signup("Ann", "a@x.com", "password123"))
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, f.repo.count())
}

// --- SubmitGoogleLogin ---

func TestSubmitGoogleLogin_NewEmail(t *testing.T) {
	f := newFixture()
	f.googleAs("g@x.com", "Gina")

	res, err := f.usecase.SubmitGoogleLogin(context.Background(), "id-token")
	require.NoError(t, err)

	assert.Equal(t, GoogleCreated, res.Outcome)
	assert.True(t, res.IsNewUser)
	assert.Equal(t, 1, f.repo.count())

	stored := f.repo.get(t, "g@x.com")
	assert.Equal(t, model.AuthMethodGoogle, stored.AuthMethod)
	assert.True(t, stored.IsVerified)
	assert.Empty(t, stored.PasswordHash)
	assert.Equal(t, "Gina", stored.FullName)

	session := f.tokens.VerifySessionToken(res.SessionToken.Value)
	assert.Equal(t, auth.OutcomeValid, session.Outcome)
	assert.Equal(t, stored.ID.Hex(), session.SubjectID)
	assert.Empty(t, f.notifier.sent)
}

func TestSubmitGoogleLogin_ExistingGoogle(t *testing.T) {
	f := newFixture()
	existing := f.repo.insert(model.NewGoogleCredential("Gina", "g@x.com"))
	f.googleAs("g@x.com", "Gina")

	res, err := f.usecase.SubmitGoogleLogin(context.Background(), "id-token")
	require.NoError(t, err)

	assert.Equal(t, GoogleLoggedIn, res.Outcome)
	assert.False(t, res.IsNewUser)
	assert.NotEmpty(t, res.SessionToken.Value)
	assert.Equal(t, existing.ID, res.Credential.ID)
	assert.Zero(t, f.repo.updates)
}

func TestSubmitGoogleLogin_VerifiedLocalRejected(t *testing.T) {
	f := newFixture()
	f.repo.insert(&model.Credential{
		FullName: "Ann", Email: "a@x.com", PasswordHash: "hashed:pw",
		AuthMethod: model.AuthMethodLocal, IsVerified: true,
	})
	before := f.repo.get(t, "a@x.com")
	f.googleAs("a@x.com", "Ann Google")

	res, err := f.usecase.SubmitGoogleLogin(context.Background(), "id-token")
	require.NoError(t, err)

	assert.Equal(t, GoogleAlreadyRegistered, res.Outcome)
	assert.Empty(t, res.SessionToken.Value)
	assert.Equal(t, before, f.repo.get(t, "a@x.com"))
	assert.Zero(t, f.repo.updates)
}

func TestSubmitGoogleLogin_LinksUnverifiedLocalAndIsIdempotent(t *testing.T) {
	f := newFixture()
	original := f.repo.insert(model.NewLocalCredential("Ann", "a@x.com", "hashed:pw"))
	f.googleAs("a@x.com", "Ann Google")

	res, err := f.usecase.SubmitGoogleLogin(context.Background(), "id-token")
	require.NoError(t, err)

	assert.Equal(t, GoogleLinked, res.Outcome)
	assert.False(t, res.IsNewUser)
	assert.Equal(t, auth.OutcomeValid, f.tokens.VerifySessionToken(res.SessionToken.Value).Outcome)

	linked := f.repo.get(t, "a@x.com")
	assert.Equal(t, original.ID, linked.ID)
	assert.Equal(t, model.AuthMethodGoogle, linked.AuthMethod)
	assert.True(t, linked.IsVerified)
	assert.Equal(t, "Ann Google", linked.FullName)
	assert.Empty(t, linked.PasswordHash)

	again, err := f.usecase.SubmitGoogleLogin(context.Background(), "id-token")
	require.NoError(t, err)
	assert.Equal(t, GoogleLoggedIn, again.Outcome)
	assert.Equal(t, 1, f.repo.count())
	assert.Equal(t, 1, f.repo.updates)
}

func TestSubmitGoogleLogin_InvalidToken(t *testing.T) {
	f := newFixture()
	f.identities.err = errors.Join(provider.ErrInvalidIdentityToken, errors.New("token expired"))

	res, err := f.usecase.SubmitGoogleLogin(context.Background(), "bad")
	require.NoError(t, err)

	assert.Equal(t, GoogleInvalidToken, res.Outcome)
	assert.Zero(t, f.repo.count())
}

func TestSubmitGoogleLogin_VerifierOutage(t *testing.T) {
	f := newFixture()
	f.identities.err = context.DeadlineExceeded

	_, err := f.usecase.SubmitGoogleLogin(context.Background(), "id-token")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmitGoogleLogin_LostCreateRaceUsesExistingBranch(t *testing.T) {
	f := newFixture()
	f.googleAs("a@x.com", "Ann Google")
	f.repo.beforeCreate = func(m *memoryCredentials) {
		m.insert(model.NewLocalCredential("Ann", "a@x.com", "hashed:pw"))
	}

	res, err := f.usecase.SubmitGoogleLogin(context.Background(), "id-token")
	require.NoError(t, err)

	assert.Equal(t, GoogleLinked, res.Outcome)
	assert.Equal(t, 1, f.repo.count())
}

// --- SubmitLocalLogin ---

func TestSubmitLocalLogin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	verified := f.repo.insert(&model.Credential{
		FullName: "Ann", Email: "a@x.com", PasswordHash: "hashed:password123",
		AuthMethod: model.AuthMethodLocal, IsVerified: true,
	})
	f.repo.insert(model.NewLocalCredential("Bob", "b@x.com", "hashed:password123"))
	f.repo.insert(model.NewGoogleCredential("Gina", "g@x.com"))

	res, err := f.usecase.SubmitLocalLogin(ctx, LoginParams{Email: " A@X.com ", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, LoginSucceeded, res.Outcome)
	session := f.tokens.VerifySessionToken(res.SessionToken.Value)
	assert.Equal(t, auth.OutcomeValid, session.Outcome)
	assert.Equal(t, verified.ID.Hex(), session.SubjectID)

	tests := []struct {
		name    string
		params  LoginParams
		outcome LoginOutcome
	}{
		{"wrong password", LoginParams{Email: "a@x.com", Password: "nope"}, LoginInvalidCredentials},
		{"unknown email", LoginParams{Email: "z@x.com", Password: "password123"}, LoginInvalidCredentials},
		{"google account", LoginParams{Email: "g@x.com", Password: ""}, LoginInvalidCredentials},
		{"unverified", LoginParams{Email: "b@x.com", Password: "password123"}, LoginNotVerified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.usecase.SubmitLocalLogin(ctx, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Empty(t, res.SessionToken.Value)
		})
	}
}

func TestSubmitLocalLogin_StoreFailure(t *testing.T) {
	f := newFixture()
	boom := errors.New("mongo unavailable")
	f.repo.findErr = boom

	_, err := f.usecase.SubmitLocalLogin(context.Background(), LoginParams{Email: "a@x.com", Password: "x"})
	assert.ErrorIs(t, err, boom)
}

// --- ConfirmVerificationLink ---

func TestConfirmVerificationLink_VerifiesOnce(t *testing.T) {
	f := newFixture()
	c := f.repo.insert(model.NewLocalCredential("Ann", "a@x.com", "hashed:pw"))

	tok, err := f.tokens.IssueVerificationToken(c.SubjectID())
	require.NoError(t, err)

	res, err := f.usecase.ConfirmVerificationLink(context.Background(), tok.Value)
	require.NoError(t, err)
	assert.Equal(t, VerificationVerified, res.Outcome)
	assert.True(t, f.repo.get(t, "a@x.com").IsVerified)
	assert.Equal(t, 1, f.repo.updates)

	again, err := f.usecase.ConfirmVerificationLink(context.Background(), tok.Value)
	require.NoError(t, err)
	assert.Equal(t, VerificationAlreadyVerified, again.Outcome)
	assert.Equal(t, 1, f.repo.updates)
}

func TestConfirmVerificationLink_ExpiredDoesNotMutate(t *testing.T) {
	f := newFixture()
	c := f.repo.insert(model.NewLocalCredential("Ann", "a@x.com", "hashed:pw"))

	past := f.tokens.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	tok, err := past.IssueVerificationToken(c.SubjectID())
	require.NoError(t, err)

	res, err := f.usecase.ConfirmVerificationLink(context.Background(), tok.Value)
	require.NoError(t, err)
	assert.Equal(t, VerificationExpired, res.Outcome)
	assert.False(t, f.repo.get(t, "a@x.com").IsVerified)
	assert.Zero(t, f.repo.updates)
}

func TestConfirmVerificationLink_Invalid(t *testing.T) {
	f := newFixture()
	c := f.repo.insert(model.NewLocalCredential("Ann", "a@x.com", "hashed:pw"))

	session, err := f.tokens.IssueSessionToken(c.SubjectID())
	require.NoError(t, err)

	for _, raw := range []string{"", "garbage", "a.b.c", session.Value} {
		res, err := f.usecase.ConfirmVerificationLink(context.Background(), raw)
		require.NoError(t, err)
		assert.Equal(t, VerificationInvalid, res.Outcome, raw)
	}
	assert.False(t, f.repo.get(t, "a@x.com").IsVerified)
}

func TestConfirmVerificationLink_UserNotFound(t *testing.T) {
	f := newFixture()

	tok, err := f.tokens.IssueVerificationToken(bson.NewObjectID().Hex())
	require.NoError(t, err)

	res, err := f.usecase.ConfirmVerificationLink(context.Background(), tok.Value)
	require.NoError(t, err)
	assert.Equal(t, VerificationUserNotFound, res.Outcome)
}

func TestConfirmVerificationLink_UpdateFailure(t *testing.T) {
	f := newFixture()
	c := f.repo.insert(model.NewLocalCredential("Ann", "a@x.com", "hashed:pw"))
	boom := errors.New("write conflict")
	f.repo.updateErr = boom

	tok, err := f.tokens.IssueVerificationToken(c.SubjectID())
	require.NoError(t, err)

	_, err = f.usecase.ConfirmVerificationLink(context.Background(), tok.Value)
	assert.ErrorIs(t, err, boom)
}

// --- writes racing on a pending signup ---

func TestSubmitLocalSignup_ResendLosesToGoogleLink(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.insert(model.NewLocalCredential("Ann", "a@x.com", "hashed:password123"))
	f.googleAs("a@x.com", "Ann Google")

	var linked *GoogleLoginResult
	f.repo.beforeUpdate = func() {
		var err error
		linked, err = f.usecase.SubmitGoogleLogin(ctx, "id-token")
		require.NoError(t, err)
	}

	res, err := f.usecase.SubmitLocalSignup(ctx, signup("Mallory", "a@x.com", "otherpassword"))
	require.NoError(t, err)

	require.NotNil(t, linked)
	assert.Equal(t, GoogleLinked, linked.Outcome)
	assert.Equal(t, SignupAlreadyRegistered, res.Outcome)

	stored := f.repo.get(t, "a@x.com")
	assert.Equal(t, model.AuthMethodGoogle, stored.AuthMethod)
	assert.True(t, stored.IsVerified)
	assert.Empty(t, stored.PasswordHash)
	assert.Equal(t, "Ann Google", stored.FullName)
	assert.Empty(t, f.notifier.sent)
}

func TestSubmitLocalSignup_ResendLosesToVerification(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.repo.insert(model.NewLocalCredential("Ann", "a@x.com", "hashed:password123"))

	tok, err := f.tokens.IssueVerificationToken(c.SubjectID())
	require.NoError(t, err)

	f.repo.beforeUpdate = func() {
		verified, err := f.usecase.ConfirmVerificationLink(ctx, tok.Value)
		require.NoError(t, err)
		assert.Equal(t, VerificationVerified, verified.Outcome)
	}

	res, err := f.usecase.SubmitLocalSignup(ctx, signup("Mallory", "a@x.com", "otherpassword"))
	require.NoError(t, err)
	assert.Equal(t, SignupAlreadyRegistered, res.Outcome)

	stored := f.repo.get(t, "a@x.com")
	assert.Equal(t, model.AuthMethodLocal, stored.AuthMethod)
	assert.True(t, stored.IsVerified)
	assert.Equal(t, "Ann", stored.FullName)
	assert.Equal(t, "hashed:password123", stored.PasswordHash)
}

func TestSubmitGoogleLogin_LinkLosesToVerification(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.repo.insert(model.NewLocalCredential("Ann", "a@x.com", "hashed:password123"))
	f.googleAs("a@x.com", "Ann Google")

	tok, err := f.tokens.IssueVerificationToken(c.SubjectID())
	require.NoError(t, err)

	f.repo.beforeUpdate = func() {
		_, err := f.usecase.ConfirmVerificationLink(ctx, tok.Value)
		require.NoError(t, err)
	}

	res, err := f.usecase.SubmitGoogleLogin(ctx, "id-token")
	require.NoError(t, err)
	assert.Equal(t, GoogleAlreadyRegistered, res.Outcome)
	assert.Empty(t, res.SessionToken.Value)

	stored := f.repo.get(t, "a@x.com")
	assert.Equal(t, model.AuthMethodLocal, stored.AuthMethod)
	assert.Equal(t, "hashed:password123", stored.PasswordHash)
}

func TestConfirmVerificationLink_LosesToGoogleLink(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.repo.insert(model.NewLocalCredential("Ann", "a@x.com", "hashed:password123"))
	f.googleAs("a@x.com", "Ann Google")

	tok, err := f.tokens.IssueVerificationToken(c.SubjectID())
	require.NoError(t, err)

	f.repo.beforeUpdate = func() {
		_, err := f.usecase.SubmitGoogleLogin(ctx, "id-token")
		require.NoError(t, err)
	}

	res, err := f.usecase.ConfirmVerificationLink(ctx, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, VerificationAlreadyVerified, res.Outcome)

	stored := f.repo.get(t, "a@x.com")
	assert.Equal(t, model.AuthMethodGoogle, stored.AuthMethod)
	assert.True(t, stored.IsVerified)
	assert.Empty(t, stored.PasswordHash)
}

func TestSubmitLocalSignup_GivesUpWhenRecordKeepsChanging(t *testing.T) {
	f := newFixture()
	f.repo.insert(model.NewLocalCredential("Ann", "a@x.com", "hashed:password123"))
	f.repo.updateErr = repository.ErrStaleCredential

	_, err := f.usecase.SubmitLocalSignup(context.Background(), signup("Ann", "a@x.com", "password123"))
	assert.ErrorIs(t, err, errWriteRace)
	assert.Empty(t, f.notifier.sent)
}

// --- scenarios ---

func TestScenario_SignupThenGoogleLinks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.usecase.SubmitLocalSignup(ctx, signup("Ann", "a@x.com", "password123"))
	require.NoError(t, err)
	assert.Equal(t, SignupCreated, res.Outcome)

	stored := f.repo.get(t, "a@x.com")
	assert.Equal(t, model.AuthMethodLocal, stored.AuthMethod)
	assert.False(t, stored.IsVerified)

	f.googleAs("a@x.com", "Ann from Google")
	login, err := f.usecase.SubmitGoogleLogin(ctx, "id-token")
	require.NoError(t, err)
	assert.Equal(t, GoogleLinked, login.Outcome)

	stored = f.repo.get(t, "a@x.com")
	assert.Equal(t, model.AuthMethodGoogle, stored.AuthMethod)
	assert.True(t, stored.IsVerified)
	assert.Equal(t, "Ann from Google", stored.FullName)
}

func TestScenario_VerifyThenSignupAndGoogleAreRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.usecase.SubmitLocalSignup(ctx, signup("Ann", "a@x.com", "password123"))
	require.NoError(t, err)

	c := f.repo.get(t, "a@x.com")
	tok, err := f.tokens.IssueVerificationToken(c.SubjectID())
	require.NoError(t, err)

	verified, err := f.usecase.ConfirmVerificationLink(ctx, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, VerificationVerified, verified.Outcome)

	again, err := f.usecase.SubmitLocalSignup(ctx, signup("Ann", "a@x.com", "password123"))
	require.NoError(t, err)
	assert.Equal(t, SignupAlreadyRegistered, again.Outcome)

	f.googleAs("a@x.com", "Ann")
	login, err := f.usecase.SubmitGoogleLogin(ctx, "id-token")
	require.NoError(t, err)
	assert.Equal(t, GoogleAlreadyRegistered, login.Outcome)
}

func TestProfile(t *testing.T) {
	f := newFixture()
	c := f.repo.insert(model.NewGoogleCredential("Gina", "g@x.com"))

	got, err := f.usecase.Profile(context.Background(), c.SubjectID())
	require.NoError(t, err)
	assert.Equal(t, "g@x.com", got.Email)

	_, err = f.usecase.Profile(context.Background(), bson.NewObjectID().Hex())
	assert.ErrorIs(t, err, repository.ErrCredentialNotFound)
}
