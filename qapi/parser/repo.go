package parser

import (
	"fmt"
	"os"
	"path/filepath"
)

// Repo resolves QAPI include directives against a directory-context
// stack, so a path in an "include" declaration is always interpreted
// relative to the file that named it. Grounded on the QemuRepo trait in
// the original implementation.
type Repo interface {
	// Include reads the file at path (relative to the current context)
	// and returns its contents plus a Context which, when closed,
	// restores the previous directory. Grounded on
	// QemuRepo::include + QemuRepoContext's Drop-based pop.
	Include(path string) (string, Context, error)
}

// Context is the Go idiom for QemuRepoContext's RAII directory-stack
// guard: instead of a Drop impl, the caller defers ctx.Close().
type Context interface {
	Close()
}

// FileRepo resolves includes against the local filesystem, starting
// from an initial schema directory. Grounded on QemuFileRepo.
type FileRepo struct {
	dirs []string
}

// NewFileRepo starts a repo rooted at the directory containing the
// initial schema file.
func NewFileRepo(rootDir string) *FileRepo {
	return &FileRepo{dirs: []string{rootDir}}
}

func (r *FileRepo) context() string { return r.dirs[len(r.dirs)-1] }

func (r *FileRepo) pushContext(dir string) { r.dirs = append(r.dirs, dir) }

func (r *FileRepo) popContext() {
	r.dirs = r.dirs[:len(r.dirs)-1]
	if len(r.dirs) == 0 {
		panic("qapi/parser: FileRepo context stack underflow")
	}
}

type fileRepoContext struct{ repo *FileRepo }

func (c *fileRepoContext) Close() { c.repo.popContext() }

// Include reads path relative to the current directory context, pushing
// that file's directory as the new context for any includes it
// triggers.
func (r *FileRepo) Include(path string) (string, Context, error) {
	fullPath := filepath.Join(r.context(), path)

	contents, err := os.ReadFile(fullPath)
	if err != nil {
		return "", nil, fmt.Errorf("qapi/parser: include %q: %w", path, err)
	}

	r.pushContext(filepath.Dir(fullPath))

	return string(contents), &fileRepoContext{repo: r}, nil
}

// CanonicalPath returns the filesystem path Include would read for path,
// given the repo's current context — used by the include-dedup set in
// Compile to ensure each file is parsed at most once (spec.md §4.1,
// testable property S6).
func (r *FileRepo) CanonicalPath(path string) (string, error) {
	full := filepath.Join(r.context(), path)
	return filepath.Abs(full)
}
