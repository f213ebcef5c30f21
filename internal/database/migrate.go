package database

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Migration is one versioned pair of SQL scripts.
type Migration struct {
	Version    int
	Name       string
	UpScript   string
	DownScript string
}

func (m *Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationFile matches 000001_init.up.sql and its .down.sql partner.
var migrationFile = regexp.MustCompile(`^(\d{6})_([a-z0-9_]+)\.(up|down)\.sql$`)

// Migrations returns the embedded content schema migrations ordered by version.
var Migrations = sync.OnceValues(func() ([]Migration, error) {
	return parseMigrations(migrationFS, "migrations")
})

// parseMigrations reads up/down pairs from dir. A misnamed .sql file, a
// duplicate version or an unpaired script is an error so a broken release
// never starts applying half a schema.
func parseMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		match := migrationFile.FindStringSubmatch(name)
		if match == nil {
			return nil, fmt.Errorf("migration %s: name must look like 000001_name.up.sql", name)
		}
		version, _ := strconv.Atoi(match[1])

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: match[2]}
			byVersion[version] = m
		} else if m.Name != match[2] {
			return nil, fmt.Errorf("duplicate migration version %06d: %s and %s", version, m.Name, match[2])
		}

		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if match[3] == "up" {
			m.UpScript = string(body)
		} else {
			m.DownScript = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		switch {
		case m.UpScript == "":
			return nil, fmt.Errorf("migration %s has no up script", m)
		case m.DownScript == "":
			return nil, fmt.Errorf("migration %s has no down script", m)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}

func findMigration(registered []Migration, version int) (Migration, bool) {
	i := slices.IndexFunc(registered, func(m Migration) bool { return m.Version == version })
	if i < 0 {
		return Migration{}, false
	}
	return registered[i], true
}
