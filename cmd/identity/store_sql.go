package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// SQLRepository implements Repository over database/sql for the SQLite and
// MySQL dialects. created_at is stored as unix milliseconds.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLRepository wraps an already migrated handle. The repository owns db
// and closes it in Close.
func NewSQLRepository(db *sql.DB, d Dialect) (*SQLRepository, error) {
	if db == nil {
		return nil, errors.New("identity: nil db")
	}
	if d != DialectSQLite && d != DialectMySQL {
		return nil, fmt.Errorf("identity: SQLRepository does not support dialect %q", string(d))
	}
	return &SQLRepository{db: db, dialect: d}, nil
}

// OpenSQLite opens (creating if needed) the SQLite file at path and applies
// migrations. ":memory:" is accepted for throwaway stores.
func OpenSQLite(ctx context.Context, path string) (*SQLRepository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("identity: sqlite path is required")
	}
	if path != ":memory:" {
		path = filepath.Clean(path)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	return openSQL(ctx, db, DialectSQLite)
}

// OpenMySQL connects to MySQL/MariaDB with dsn (go-sql-driver format) and
// applies migrations.
func OpenMySQL(ctx context.Context, dsn string) (*SQLRepository, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetConnMaxLifetime(5 * time.Minute)

	return openSQL(ctx, db, DialectMySQL)
}

func openSQL(ctx context.Context, db *sql.DB, d Dialect) (*SQLRepository, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", d, err)
	}
	if err := Migrate(ctx, db, d); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLRepository(db, d)
}

func (r *SQLRepository) ExistsUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM users WHERE username = ? OR email = ?`,
		username, NormalizeEmail(email),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("identity: exists username/email: %w", err)
	}
	return n > 0, nil
}

func (r *SQLRepository) PublicIDExists(ctx context.Context, publicID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM users WHERE user_id = ?`,
		publicID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("identity: exists user_id: %w", err)
	}
	return n > 0, nil
}

func (r *SQLRepository) Create(ctx context.Context, rec Record) (User, error) {
	const op = "identity.SQLRepository.Create"

	rec.Email = NormalizeEmail(rec.Email)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = time.UnixMilli(rec.CreatedAt.UnixMilli()).UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, email, hashed_password, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.Username, rec.Email, rec.PasswordHash, rec.PublicID, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if field, ok := r.classifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return rec.User, nil
}

func (r *SQLRepository) FindByLogin(ctx context.Context, identifier string) (Record, error) {
	const op = "identity.SQLRepository.FindByLogin"

	var (
		rec       Record
		createdMs int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT username, email, hashed_password, user_id, created_at
		   FROM users
		  WHERE username = ? OR email = ? OR user_id = ?
		  ORDER BY id
		  LIMIT 1`,
		identifier, NormalizeEmail(identifier), identifier,
	).Scan(&rec.Username, &rec.Email, &rec.PasswordHash, &rec.PublicID, &createdMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, NotFoundError{Op: op, Resource: "user"}
		}
		return Record{}, fmt.Errorf("%s: %w", op, err)
	}
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SQLRepository) classifyUniqueViolation(err error) (string, bool) {
	switch r.dialect {
	case DialectSQLite:
		var sqliteErr *msqlite.Error
		if errors.As(err, &sqliteErr) {
			if sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE ||
				strings.Contains(strings.ToLower(sqliteErr.Error()), "unique constraint failed") {
				return uniqueField(sqliteErr.Error()), true
			}
		}
	case DialectMySQL:
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return uniqueField(myErr.Message), true
		}
	}
	return "", false
}

// uniqueField maps a driver message or constraint name to a logical field.
// Only the part naming the key is inspected, never the duplicate value.
func uniqueField(s string) string {
	s = strings.ToLower(s)
	for _, marker := range []string{"for key", "constraint failed:"} {
		if i := strings.LastIndex(s, marker); i >= 0 {
			s = s[i+len(marker):]
			break
		}
	}
	switch {
	case strings.Contains(s, "user_id"):
		return FieldPublicID
	case strings.Contains(s, "username"):
		return FieldUsername
	case strings.Contains(s, "email"):
		return FieldEmail
	default:
		return ""
	}
}

var _ Repository = (*SQLRepository)(nil)
