package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// PostgresRepository implements Repository over PostgreSQL.
//
// The pgx pool is owned by the caller; Close does not close it.
// Table identifiers are quoted via pgx.Identifier.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the repository.
type PostgresOption func(*PostgresRepository) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the users table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(r *PostgresRepository) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		r.schema = schema
		return nil
	}
}

// NewPostgresRepository constructs a PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresRepository, error) {
	r := &PostgresRepository{
		pool:   pool,
		schema: "public",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return r, nil
}

// MigratePostgres applies the users schema through a database/sql view of pool.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	// The returned *sql.DB borrows connections from pool and holds none idle.
	db := stdlib.OpenDBFromPool(pool)
	return Migrate(ctx, db, DialectPostgres)
}

func (r *PostgresRepository) users() string {
	return pgx.Identifier{r.schema, "users"}.Sanitize()
}

func (r *PostgresRepository) ExistsUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+r.users()+` WHERE username = $1 OR email = $2)`,
		username, NormalizeEmail(email),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("identity: exists username/email: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) PublicIDExists(ctx context.Context, publicID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+r.users()+` WHERE user_id = $1)`,
		publicID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("identity: exists user_id: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Create(ctx context.Context, rec Record) (User, error) {
	const op = "identity.PostgresRepository.Create"

	rec.Email = NormalizeEmail(rec.Email)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO `+r.users()+` (username, email, hashed_password, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		rec.Username, rec.Email, rec.PasswordHash, rec.PublicID, rec.CreatedAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec.User, nil
}

func (r *PostgresRepository) FindByLogin(ctx context.Context, identifier string) (Record, error) {
	const op = "identity.PostgresRepository.FindByLogin"

	var rec Record
	err := r.pool.QueryRow(ctx,
		`SELECT username, email, hashed_password, user_id, created_at
		   FROM `+r.users()+`
		  WHERE username = $1 OR email = $2 OR user_id = $1
		  ORDER BY id
		  LIMIT 1`,
		identifier, NormalizeEmail(identifier),
	).Scan(&rec.Username, &rec.Email, &rec.PasswordHash, &rec.PublicID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, NotFoundError{Op: op, Resource: "user"}
		}
		return Record{}, fmt.Errorf("%s: %w", op, err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close is a no-op; the pool belongs to the caller.
func (r *PostgresRepository) Close() error { return nil }

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	switch strings.ToLower(strings.TrimSpace(pgErr.ConstraintName)) {
	case "uq_users_username":
		return FieldUsername, true
	case "uq_users_email":
		return FieldEmail, true
	case "uq_users_user_id":
		return FieldPublicID, true
	default:
		return uniqueField(pgErr.ConstraintName), true
	}
}

var _ Repository = (*PostgresRepository)(nil)
