package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var slugRe = regexp.MustCompile(`[^a-z0-9_]+`)

const scaffold = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- New tables carry tenant_id and lead their indexes with it.
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- undo %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes an empty goose migration to
// <dir>/<version>_<slug>.sql and returns its path. The version is the
// current UTC second, moved past the newest migration already in dir so
// files created back to back keep their creation order.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	versions, err := scanVersions(dir)
	if err != nil {
		return "", err
	}
	version := nextVersion(time.Now().UTC(), latest(versions))

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version, slug))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration %q: %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, scaffold, slug); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugRe.ReplaceAllString(slug, "_")
	return strings.Trim(slug, "_")
}

func latest(versions map[string]string) string {
	var newest string
	for v := range versions {
		if v > newest {
			newest = v
		}
	}
	return newest
}

// nextVersion formats now, or one second past newest when the clock has
// not moved beyond it.
func nextVersion(now time.Time, newest string) string {
	candidate := now.Format(versionLayout)
	if newest == "" || candidate > newest {
		return candidate
	}
	last, err := time.Parse(versionLayout, newest)
	if err != nil {
		return candidate
	}
	return last.Add(time.Second).Format(versionLayout)
}
