package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideDirectory is returned for paths that escape the configured directory
var ErrOutsideDirectory = errors.New("path is outside configured directory")

// PathValidator confines file access to one directory tree
type PathValidator struct {
	configuredDirectory string
	realDirectory       string
}

// NewPathValidator creates a new path validator for the given directory. The
// directory does not need to exist yet.
func NewPathValidator(configuredDirectory string) (*PathValidator, error) {
	if configuredDirectory == "" {
		return nil, fmt.Errorf("configured directory cannot be empty")
	}

	absDir, err := filepath.Abs(configuredDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configured directory: %w", err)
	}

	return &PathValidator{
		configuredDirectory: filepath.Clean(absDir),
		realDirectory:       evalExisting(filepath.Clean(absDir)),
	}, nil
}

// GetConfiguredDirectory returns the absolute configured directory
func (v *PathValidator) GetConfiguredDirectory() string {
	return v.configuredDirectory
}

// Resolve turns path into an absolute path inside the configured directory.
// Relative paths are taken relative to the configured directory.
func (v *PathValidator) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(v.configuredDirectory, path)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	if !v.IsPathWithinDirectory(absPath) {
		return "", fmt.Errorf("%w: %s", ErrOutsideDirectory, path)
	}
	return absPath, nil
}

// ValidatePath checks that path resolves inside the configured directory
func (v *PathValidator) ValidatePath(path string) error {
	_, err := v.Resolve(path)
	return err
}

// IsPathWithinDirectory reports whether an absolute path, with symlinks
// followed as far as they exist, stays inside the configured directory.
func (v *PathValidator) IsPathWithinDirectory(absPath string) bool {
	if !within(absPath, v.configuredDirectory) && !within(absPath, v.realDirectory) {
		return false
	}
	real := evalExisting(absPath)
	return within(real, v.configuredDirectory) || within(real, v.realDirectory)
}

// ValidateDirectory checks that dirPath is inside the configured directory
// and, when it exists, is a directory.
func (v *PathValidator) ValidateDirectory(dirPath string) error {
	resolved, err := v.Resolve(dirPath)
	if err != nil {
		return err
	}

	info, err := os.Stat(resolved)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dirPath)
	}
	return nil
}

func within(path, dir string) bool {
	if path == dir {
		return true
	}
	prefix := dir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// evalExisting resolves symlinks in the longest existing prefix of path and
// re-appends the missing tail, so files that are about to be created are
// checked against their real parent.
func evalExisting(path string) string {
	var tail []string
	current := path
	for {
		if resolved, err := filepath.EvalSymlinks(current); err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path
		}
		tail = append(tail, filepath.Base(current))
		current = parent
	}
}
