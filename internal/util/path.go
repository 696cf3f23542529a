package util

import (
	"fmt"
	"os"
)

// EnsureDir creates path (and parents) if it does not exist, failing if the
// path exists but is not a directory.
func EnsureDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(path, 0o700)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists and is not a directory", path)
	}
	return nil
}
