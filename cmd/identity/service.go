package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"relay/cmd/security/password"
)

// defaultCreateAttempts bounds how often Register regenerates a public id after
// Create reports a public id collision that slipped past the pre-check.
const defaultCreateAttempts = 5

// dummyPassword is hashed once at startup; unknown identifiers verify against it
// so login timing does not reveal whether an account exists.
const dummyPassword = "relay-timing-equalization"

// Service implements registration and authentication over a Repository.
// It is safe for concurrent use.
type Service struct {
	repo    Repository
	pw      password.Config
	log     *slog.Logger
	metrics *Metrics
	now     func() time.Time

	createAttempts int
	dummyHash      string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger (default: discard).
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithPasswordConfig overrides hashing parameters and policy
// (default: password.DefaultConfig).
func WithPasswordConfig(cfg password.Config) Option {
	return func(s *Service) { s.pw = cfg }
}

// WithMetrics attaches operation counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service. It hashes a dummy password up front, so a
// broken password configuration fails here rather than on the first login.
func NewService(repo Repository, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("identity: nil repository")
	}

	s := &Service{
		repo:           repo,
		pw:             password.DefaultConfig(),
		log:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:            func() time.Time { return time.Now().UTC() },
		createAttempts: defaultCreateAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	dummy, err := s.pw.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("identity: dummy hash: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

// Register creates a new account and returns it with its public identifier.
//
// Errors: ValidationError for empty fields (or a password rejected by a
// stricter configured policy),
// ConflictError when username or email is taken.
func (s *Service) Register(ctx context.Context, in RegisterInput) (user User, err error) {
	const op = "identity.Register"
	defer func() { s.metrics.observe("register", err) }()

	username := NormalizeUsername(in.Username)
	email := NormalizeEmail(in.Email)
	if username == "" || email == "" || in.Password == "" {
		return User{}, ValidationError{Op: op, Msg: MsgAllFieldsRequired}
	}

	taken, err := s.repo.ExistsUsernameOrEmail(ctx, username, email)
	if err != nil {
		return User{}, fmt.Errorf("%s: lookup: %w", op, err)
	}
	if taken {
		s.log.Info("identity.register.conflict", "username", username)
		return User{}, ConflictError{Op: op}
	}

	hash, err := s.pw.Hash(in.Password)
	if err != nil {
		if isPolicyError(err) {
			return User{}, ValidationError{Op: op, Field: FieldPassword, Msg: MsgPasswordPolicy}
		}
		return User{}, fmt.Errorf("%s: hash: %w", op, err)
	}

	for attempt := 1; ; attempt++ {
		publicID, err := GenerateUnique(ctx, s.repo.PublicIDExists)
		if err != nil {
			return User{}, fmt.Errorf("%s: %w", op, err)
		}

		user, err = s.repo.Create(ctx, Record{
			User: User{
				Username:  username,
				Email:     email,
				PublicID:  publicID,
				CreatedAt: s.now(),
			},
			PasswordHash: hash,
		})
		if err == nil {
			s.log.Info("identity.register.ok", "user_id", user.PublicID)
			return user, nil
		}

		var ce ConflictError
		if errors.As(err, &ce) && ce.Field == FieldPublicID && attempt < s.createAttempts {
			s.log.Warn("identity.register.public_id_collision", "attempt", attempt)
			continue
		}
		if errors.As(err, &ce) {
			s.log.Info("identity.register.conflict", "username", username, "field", ce.Field)
			return User{}, ConflictError{Op: op, Field: ce.Field}
		}
		return User{}, fmt.Errorf("%s: create: %w", op, err)
	}
}

// Authenticate checks identifier (username, email or public id) and password.
//
// Errors: ValidationError for empty input, InvalidCredentialsError for an
// unknown identifier or a wrong password.
func (s *Service) Authenticate(ctx context.Context, identifier, pw string) (user User, err error) {
	const op = "identity.Authenticate"
	defer func() { s.metrics.observe("authenticate", err) }()

	identifier = NormalizeUsername(identifier)
	if identifier == "" || pw == "" {
		return User{}, ValidationError{Op: op, Msg: MsgAllFieldsRequired}
	}

	rec, err := s.repo.FindByLogin(ctx, identifier)
	if err != nil {
		if IsNotFound(err) {
			_, _ = s.pw.Verify(s.dummyHash, pw)
			return User{}, InvalidCredentialsError{Op: op}
		}
		return User{}, fmt.Errorf("%s: lookup: %w", op, err)
	}

	ok, err := s.pw.Verify(rec.PasswordHash, pw)
	if err != nil {
		s.log.Error("identity.authenticate.bad_hash", "user_id", rec.PublicID, "err", err)
		return User{}, fmt.Errorf("%s: verify: %w", op, err)
	}
	if !ok {
		return User{}, InvalidCredentialsError{Op: op}
	}

	return rec.User, nil
}

// Ping reports whether the underlying store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func isPolicyError(err error) bool {
	return errors.Is(err, password.ErrPasswordEmpty) ||
		errors.Is(err, password.ErrPasswordTooShort) ||
		errors.Is(err, password.ErrPasswordTooLong) ||
		errors.Is(err, password.ErrWeakPassword)
}
