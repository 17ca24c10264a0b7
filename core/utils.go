package core

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// NewID returns a time-ordered (v7) UUID string.
// IDs generated by one process sort in creation order.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// IsID reports whether s is a well-formed UUID.
func IsID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// Getwd tries to find the project root, i.e. the closest directory holding a go.mod.
// go-test changes the working directory to the test package being run during tests,
// so config files are looked up from the root instead.
// Falls back to the current working directory (e.g. deployed binaries).
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
