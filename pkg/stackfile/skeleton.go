// SPDX-License-Identifier: MPL-2.0

package stackfile

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultFileName is the stack file looked up when none is given.
const DefaultFileName = "stack.yaml"

// ErrFileExists is returned by WriteSkeleton when a file exists and force is off.
var ErrFileExists = errors.New("file already exists")

//go:embed skeleton/stack.yaml skeleton/env.example skeleton/requirements.txt
var skeletonFS embed.FS

// skeletonFiles maps embedded files to their names in the target directory.
var skeletonFiles = []struct{ src, dst string }{
	{"skeleton/stack.yaml", DefaultFileName},
	{"skeleton/env.example", ".env.example"},
	{"skeleton/requirements.txt", "requirements.txt"},
}

// DefaultStack returns the content of the default stack file.
func DefaultStack() []byte {
	data, _ := skeletonFS.ReadFile("skeleton/stack.yaml")
	return data
}

// WriteSkeleton writes the default stack file, a .env.example and a
// requirements.txt placeholder into dir. An existing stack file is an error
// unless force is set; the other files are only written when missing.
// It returns the paths it wrote.
func WriteSkeleton(dir string, force bool) ([]string, error) {
	stackPath := filepath.Join(dir, DefaultFileName)
	if _, err := os.Stat(stackPath); err == nil && !force {
		return nil, fmt.Errorf("%w: %s", ErrFileExists, stackPath)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	var written []string
	for _, f := range skeletonFiles {
		dst := filepath.Join(dir, f.dst)
		if f.dst != DefaultFileName {
			if _, err := os.Stat(dst); err == nil {
				continue
			} else if !errors.Is(err, fs.ErrNotExist) {
				return written, err
			}
		}
		data, err := skeletonFS.ReadFile(f.src)
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", dst, err)
		}
		written = append(written, dst)
	}
	return written, nil
}
