package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/multierr"
)

const (
	upMarker   = "-- +goose Up"
	downMarker = "-- +goose Down"
)

var (
	fileNamePattern = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	slugBreaks      = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slug turns "Add Cart Notes" into "add_cart_notes".
func Slug(name string) string {
	return strings.Trim(slugBreaks.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// Create writes an empty Up/Down migration named <UTC timestamp>_<slug>.sql
// into dir and returns its path. It never overwrites an existing file.
func Create(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := Slug(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}
	path := filepath.Join(dir, now.UTC().Format("20060102150405")+"_"+slug+".sql")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", path, err)
	}
	body := fmt.Sprintf("%s\n-- +goose StatementBegin\n-- %s\n-- +goose StatementEnd\n\n%s\n-- +goose StatementBegin\n-- undo %s\n-- +goose StatementEnd\n",
		upMarker, slug, downMarker, slug)
	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %q: %w", path, err)
	}
	return path, f.Close()
}

// Validate checks every .sql file in fsys: the file name carries a unique
// 14 digit version and the body has an Up section followed by a Down
// section. All problems are reported together.
func Validate(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	var problems error
	versions := make(map[string]string, len(names))
	for _, name := range names {
		m := fileNamePattern.FindStringSubmatch(name)
		if m == nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: name must look like YYYYMMDDHHMMSS_name.sql", name))
			continue
		}
		if other, dup := versions[m[1]]; dup {
			problems = multierr.Append(problems, fmt.Errorf("%s: version %s already used by %s", name, m[1], other))
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			problems = multierr.Append(problems, err)
			continue
		}
		up := strings.Index(string(body), upMarker)
		down := strings.Index(string(body), downMarker)
		switch {
		case up < 0:
			problems = multierr.Append(problems, fmt.Errorf("%s: missing %q", name, upMarker))
		case down < 0:
			problems = multierr.Append(problems, fmt.Errorf("%s: missing %q", name, downMarker))
		case down < up:
			problems = multierr.Append(problems, fmt.Errorf("%s: Down section precedes Up", name))
		}
	}
	return problems
}
