package migrator

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"sort"

	"github.com/mandelsoft/vfs/pkg/vfs"
)

// Catalog is an ordered source of migration units.
type Catalog interface {
	// List returns the versions of all units in ascending order.
	List(ctx context.Context) ([]string, error)
	// Load materializes the unit with the given version. A new unit is
	// returned on every call.
	Load(ctx context.Context, version string) (Unit, error)
}

// Creator is implemented by catalogs that can persist new units.
type Creator interface {
	// Create stores a new unit with the given version and content, and returns
	// its location.
	Create(ctx context.Context, version string, content []byte) (string, error)
	// Location returns where a unit with the given version would be stored.
	Location(version string) string
}

// Pending returns the catalog versions whose yymmdd_hhmmss key doesn't appear
// in applied, in ascending order.
func Pending(ctx context.Context, c Catalog, applied []string) ([]string, error) {
	appliedKeys := make(map[string]struct{}, len(applied))
	for _, v := range applied {
		appliedKeys[versionKey(v)] = struct{}{}
	}

	all, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]string, 0, len(all))
	for _, v := range all {
		if !IsVersion(v) {
			continue
		}
		if _, ok := appliedKeys[versionKey(v)]; ok {
			continue
		}
		pending = append(pending, v)
	}
	slices.Sort(pending)

	return pending, nil
}

const sqlUnitExt = ".sql"

var sqlUnitFileRx = regexp.MustCompile(`^(m\d{6}_\d{6}_\w+)\.sql$`)

// DirCatalog is a catalog of SQL unit files stored in a single directory.
type DirCatalog struct {
	fs  vfs.FileSystem
	dir string
}

var (
	_ Catalog = (*DirCatalog)(nil)
	_ Creator = (*DirCatalog)(nil)
)

// NewDirCatalog returns a catalog backed by the directory dir on fs. It
// returns ErrCatalogUnavailable if dir doesn't exist or isn't a directory.
func NewDirCatalog(fs vfs.FileSystem, dir string) (*DirCatalog, error) {
	fi, err := fs.Stat(dir)
	if err != nil {
		if vfs.IsErrNotExist(err) {
			return nil, fmt.Errorf("%w: the migration directory does not exist: %s",
				ErrCatalogUnavailable, dir)
		}
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", ErrCatalogUnavailable, dir)
	}

	return &DirCatalog{fs: fs, dir: dir}, nil
}

// Dir returns the directory the catalog reads units from.
func (c *DirCatalog) Dir() string {
	return c.dir
}

// List implements Catalog. Directories and files that don't follow the unit
// naming convention are skipped.
func (c *DirCatalog) List(_ context.Context) ([]string, error) {
	entries, err := vfs.ReadDir(c.fs, c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed reading migration directory %s: %w", c.dir, err)
	}

	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Mode().IsRegular() {
			continue
		}
		m := sqlUnitFileRx.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		versions = append(versions, m[1])
	}
	sort.Strings(versions)

	return versions, nil
}

// Load implements Catalog.
func (c *DirCatalog) Load(_ context.Context, version string) (Unit, error) {
	path := c.Location(version)
	content, err := vfs.ReadFile(c.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed reading migration file %s: %w", path, err)
	}

	u, err := parseSQLUnit(version, content)
	if err != nil {
		return nil, fmt.Errorf("invalid migration file %s: %w", path, err)
	}

	return u, nil
}

// Location implements Creator.
func (c *DirCatalog) Location(version string) string {
	return filepath.Join(c.dir, version+sqlUnitExt)
}

// Create implements Creator. It refuses to overwrite an existing file.
func (c *DirCatalog) Create(_ context.Context, version string, content []byte) (string, error) {
	if !IsVersion(version) {
		return "", fmt.Errorf("invalid migration version '%s'", version)
	}

	path := c.Location(version)
	if _, err := c.fs.Stat(path); err == nil {
		return "", fmt.Errorf("migration file %s already exists", path)
	} else if !vfs.IsErrNotExist(err) {
		return "", fmt.Errorf("failed checking migration file %s: %w", path, err)
	}

	if err := vfs.WriteFile(c.fs, path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed writing migration file %s: %w", path, err)
	}

	return path, nil
}

// Registry is a catalog of units registered in code.
type Registry struct {
	units map[string]Unit
}

var _ Catalog = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{units: map[string]Unit{}}
}

// Register adds a unit to the registry.
func (r *Registry) Register(version string, u Unit) error {
	if !IsVersion(version) {
		return fmt.Errorf("invalid migration version '%s'", version)
	}
	if version == BaseVersion {
		return fmt.Errorf("version '%s' is reserved", version)
	}
	if _, ok := r.units[version]; ok {
		return fmt.Errorf("migration '%s' is already registered", version)
	}
	r.units[version] = u

	return nil
}

// MustRegister is like Register, but panics on error. It's meant to be used
// from package init functions.
func (r *Registry) MustRegister(version string, u Unit) {
	if err := r.Register(version, u); err != nil {
		panic(err)
	}
}

// List implements Catalog.
func (r *Registry) List(_ context.Context) ([]string, error) {
	versions := make([]string, 0, len(r.units))
	for v := range r.units {
		versions = append(versions, v)
	}
	slices.Sort(versions)

	return versions, nil
}

// Load implements Catalog.
func (r *Registry) Load(_ context.Context, version string) (Unit, error) {
	u, ok := r.units[version]
	if !ok {
		return nil, fmt.Errorf("migration '%s' is not registered", version)
	}

	return u, nil
}
