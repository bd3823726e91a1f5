package fu

import (
	"path/filepath"

	"go-ml.dev/pkg/iokit"
)

/*
ModelPath resolves artifact name under the root directory,
an empty root means the user cache directory
*/
func ModelPath(root, s string) string {
	if filepath.IsAbs(s) {
		return s
	}
	if root == "" {
		return iokit.CacheFile(filepath.Join("go-ml", "Models", s))
	}
	return filepath.Join(root, s)
}
