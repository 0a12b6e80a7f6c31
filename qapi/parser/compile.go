package parser

import (
	"fmt"

	"github.com/canonical/qapi/qapi/schema"
)

// Result is the fully include-resolved output of Compile: every
// declaration seen across the root file and its transitive includes, in
// encounter order, plus the set of file paths visited (deduplicated).
// Grounded on codegen::include / codegen::codegen's driver loop, which
// performs exactly this walk against a Context accumulator.
type Result struct {
	Decls    []schema.Decl
	Included []string
}

// Compile parses rootFile (relative to rootDir) and every file it
// transitively includes, in the order the original's `include` function
// walks them: process the file's own declarations first, then visit the
// includes it collected in order, depth-first (each included file's own
// includes are fully processed before the next sibling include).
func Compile(rootDir, rootFile string) (*Result, error) {
	repo := NewFileRepo(rootDir)
	res := &Result{}
	seen := make(map[string]bool)

	if err := compileFile(repo, rootFile, res, seen); err != nil {
		return nil, err
	}

	return res, nil
}

func compileFile(repo *FileRepo, path string, res *Result, seen map[string]bool) error {
	canon, err := repo.CanonicalPath(path)
	if err != nil {
		return err
	}

	if seen[canon] {
		return nil
	}

	seen[canon] = true

	contents, ctx, err := repo.Include(path)
	if err != nil {
		return err
	}
	defer ctx.Close()

	res.Included = append(res.Included, canon)

	p := New(Preprocess(contents))

	var includes []string

	for p.More() {
		decl, err := p.Next()
		if err != nil {
			return fmt.Errorf("qapi/parser: %s: %w", path, err)
		}

		if inc, ok := decl.(*schema.Include); ok {
			includes = append(includes, inc.Path)
			continue
		}

		res.Decls = append(res.Decls, decl)
	}

	for _, inc := range includes {
		if err := compileFile(repo, inc, res, seen); err != nil {
			return err
		}
	}

	return nil
}
