package identity

import (
	"context"
	"time"
)

// User is a registered account as seen by callers. It never carries the
// password hash.
type User struct {
	Username  string
	Email     string
	PublicID  string
	CreatedAt time.Time
}

// Record is the persisted shape of a user: the public fields plus the encoded
// password hash. It only crosses the Repository boundary.
type Record struct {
	User
	PasswordHash string
}

// RegisterInput describes a registration request. All fields are required.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Repository is the credential persistence boundary.
//
// Create must enforce uniqueness of username, email and public id and report a
// violation as ConflictError with the matching Field. FindByLogin matches the
// identifier against username, lower-cased email or public id and returns
// ErrNotFound when nothing matches.
type Repository interface {
	ExistsUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	PublicIDExists(ctx context.Context, publicID string) (bool, error)
	Create(ctx context.Context, rec Record) (User, error)
	FindByLogin(ctx context.Context, identifier string) (Record, error)

	Ping(ctx context.Context) error
	Close() error
}
