// Package migrate applies the storefront schema with goose. The SQL files
// are embedded so every binary carries the schema it was built against.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migrations are created.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Source picks the embedded set when dir is empty, otherwise the directory
// on disk.
func Source(dir string) fs.FS {
	if dir == "" {
		return Embedded()
	}
	return os.DirFS(dir)
}

// Result is one applied or rolled back migration.
type Result struct {
	Version   int64
	File      string
	Direction string
	Empty     bool
}

// Runner drives a goose provider over a Postgres pool.
type Runner struct {
	provider *goose.Provider
}

func NewRunner(db *sql.DB, migrations fs.FS) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider}, nil
}

func (r *Runner) Up(ctx context.Context) ([]Result, error) {
	res, err := r.provider.Up(ctx)
	return results(res...), wrap("up", err)
}

func (r *Runner) Down(ctx context.Context) ([]Result, error) {
	res, err := r.provider.Down(ctx)
	return results(res), wrap("down", err)
}

// Redo rolls back the newest migration and applies it again.
func (r *Runner) Redo(ctx context.Context) ([]Result, error) {
	down, err := r.provider.Down(ctx)
	if err != nil {
		return results(down), wrap("redo down", err)
	}
	up, err := r.provider.UpByOne(ctx)
	return results(down, up), wrap("redo up", err)
}

// To moves the schema up or down until version is the newest applied one.
func (r *Runner) To(ctx context.Context, version int64) ([]Result, error) {
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, wrap("version", err)
	}
	switch {
	case version > current:
		res, err := r.provider.UpTo(ctx, version)
		return results(res...), wrap("up-to", err)
	case version < current:
		res, err := r.provider.DownTo(ctx, version)
		return results(res...), wrap("down-to", err)
	}
	return nil, nil
}

// Status lists every known migration with its state.
func (r *Runner) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	st, err := r.provider.Status(ctx)
	return st, wrap("status", err)
}

// Apply runs a command by name as the migrate binary accepts it.
func (r *Runner) Apply(ctx context.Context, command, version string) ([]Result, error) {
	switch command {
	case "up":
		return r.Up(ctx)
	case "down":
		return r.Down(ctx)
	case "redo":
		return r.Redo(ctx)
	case "version":
		v, err := strconv.ParseInt(version, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", version, err)
		}
		return r.To(ctx, v)
	}
	return nil, fmt.Errorf("unknown migration command %q", command)
}

func (r *Runner) Close() error {
	return r.provider.Close()
}

func results(in ...*goose.MigrationResult) []Result {
	out := make([]Result, 0, len(in))
	for _, res := range in {
		if res == nil || res.Source == nil {
			continue
		}
		out = append(out, Result{
			Version:   res.Source.Version,
			File:      res.Source.Path,
			Direction: res.Direction,
			Empty:     res.Empty,
		})
	}
	return out
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
