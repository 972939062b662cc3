//go:build windows

package ops

import (
	"os"

	"github.com/hpungsan/clipnest/internal/errors"
)

// openFileNoFollowRead opens an import file.
// On Windows, O_NOFOLLOW is not available; ValidatePath rejects symlinks.
func openFileNoFollowRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, err
	}
	return f, nil
}
