package ops

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/clipnest/internal/errors"
)

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // for import (read file)
	PathCheckWrite                      // for export (write file)
)

// ValidatePath checks an import/export path:
// 1. No directory traversal (.. components)
// 2. Extension matches ext
// 3. Not a symlink
// 4. For reads, the file exists
func ValidatePath(path string, mode PathCheckMode, ext string) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if filepath.Ext(cleaned) != ext {
		return errors.NewInvalidRequest("path must have " + ext + " extension")
	}

	info, err := os.Lstat(cleaned)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		return errors.NewInvalidRequest("path must not be a symlink")
	case err == nil && info.IsDir():
		return errors.NewInvalidRequest("path is a directory")
	case err != nil && mode == PathCheckRead:
		if os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// DefaultExportsDir returns baseDir/exports.
func DefaultExportsDir(baseDir string) string {
	return filepath.Join(baseDir, "exports")
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// Also check for forward slashes on all platforms (e.g., user input)
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
