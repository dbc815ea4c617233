// Package security guards filesystem lookups built from externally supplied
// names. Catalog version labels come from a release manifest or from CLI
// flags, and are joined onto the IDB root to find version data; a label like
// "../elsewhere" must not read outside that root.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory reports an error when filePath resolves outside
// safeDir. Both sides are canonicalized through symlinks; for a path that
// does not exist yet, the nearest existing ancestor is canonicalized instead,
// so a symlinked intermediate directory cannot smuggle the path out.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("resolve safe directory: %w", err)
	}

	canonical := absPath
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		canonical = resolved
	} else {
		for check := absPath; ; {
			parent := filepath.Dir(check)
			if parent == check {
				break
			}
			if resolved, err := filepath.EvalSymlinks(parent); err == nil {
				rel, _ := filepath.Rel(parent, absPath)
				canonical = filepath.Join(resolved, rel)
				break
			}
			check = parent
		}
	}

	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("resolve safe directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalSafeDir, canonical)
	if err != nil {
		return fmt.Errorf("path outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal: %s escapes %s", filePath, safeDir)
	}
	return nil
}
