package fsutil

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ExpandHome expands a leading "~" or "~/" to the user's home directory.
// Other paths, including "~user", are returned unchanged.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "home dir")
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
}

// ResolveDir expands and absolutizes dir and checks that it names a directory.
func ResolveDir(dir string) (string, error) {
	if dir == "" {
		return "", errors.New("empty directory path")
	}
	p, err := ExpandHome(dir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errors.Wrap(err, "abs path")
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", errors.Wrapf(err, "stat %s", abs)
	}
	if !fi.IsDir() {
		return "", errors.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}
