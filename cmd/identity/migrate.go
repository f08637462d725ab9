package identity

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"relay/cmd/identity/migrations"
)

// Dialect names a SQL backend supported by the credential store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) goose() (goose.Dialect, error) {
	switch d {
	case DialectSQLite:
		return goose.DialectSQLite3, nil
	case DialectMySQL:
		return goose.DialectMySQL, nil
	case DialectPostgres:
		return goose.DialectPostgres, nil
	default:
		return "", fmt.Errorf("identity: unsupported dialect %q", string(d))
	}
}

// Migrate applies the embedded users schema for dialect d.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	gd, err := d.goose()
	if err != nil {
		return err
	}

	dir, err := fs.Sub(migrations.FS, string(d))
	if err != nil {
		return fmt.Errorf("identity: migrations for %s: %w", d, err)
	}

	provider, err := goose.NewProvider(gd, db, dir)
	if err != nil {
		return fmt.Errorf("identity: goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("identity: migrate %s: %w", d, err)
	}
	return nil
}
