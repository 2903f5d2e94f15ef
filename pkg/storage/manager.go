package storage

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Manager handles download directory layout and file writes
type Manager struct {
	fs      afero.Fs
	rootDir string

	mu      sync.Mutex
	folders map[string]bool
}

// NewManager creates a storage manager rooted at the given directory
func NewManager(fs afero.Fs, rootDir string) (*Manager, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{
		fs:      fs,
		rootDir: rootDir,
		folders: make(map[string]bool),
	}, nil
}

// Fs returns the underlying filesystem
func (m *Manager) Fs() afero.Fs {
	return m.fs
}

// RootDir returns the root download directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// EnsureFolder creates (if needed) and returns a subdirectory under the root.
// An empty name resolves to the root itself.
func (m *Manager) EnsureFolder(name string) (string, error) {
	if name == "" {
		return m.rootDir, nil
	}
	dir := filepath.Join(m.rootDir, CleanFolderName(name))

	m.mu.Lock()
	known := m.folders[dir]
	m.mu.Unlock()
	if known {
		return dir, nil
	}

	if err := m.fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", name, err)
	}

	m.mu.Lock()
	m.folders[dir] = true
	m.mu.Unlock()
	return dir, nil
}

// EnsureUniqueSubfolder creates a subfolder of parent whose name does not
// collide with an existing one, suffixing _1, _2, ... as needed. After too
// many collisions a random stem is used instead.
func (m *Manager) EnsureUniqueSubfolder(parent, name string) (string, error) {
	base := CleanFolderName(name)
	if base == "" {
		base = "post"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < 100; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d", base, i)
		}
		dir := filepath.Join(parent, candidate)
		if m.folders[dir] {
			continue
		}
		exists, err := afero.DirExists(m.fs, dir)
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}
		if err := m.fs.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create folder %s: %w", candidate, err)
		}
		m.folders[dir] = true
		return dir, nil
	}

	dir := filepath.Join(parent, base+"_"+uuid.NewString()[:8])
	if err := m.fs.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	m.folders[dir] = true
	return dir, nil
}

// UniqueFilePath returns a path in dir for filename that does not collide
// with an existing file, appending a numeric suffix before the extension
// when necessary.
func (m *Manager) UniqueFilePath(dir, filename string) (string, error) {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)

	candidate := filepath.Join(dir, filename)
	for i := 1; ; i++ {
		exists, err := afero.Exists(m.fs, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
}

// TempPath returns a unique temporary path next to the final destination
func (m *Manager) TempPath(finalPath string) string {
	return finalPath + ".part-" + uuid.NewString()[:8]
}

// SaveFile streams r to the destination path via a temporary file and an
// atomic rename. Returns the number of bytes written.
func (m *Manager) SaveFile(r io.Reader, path string) (int64, error) {
	tempPath := m.TempPath(path)

	out, err := m.fs.Create(tempPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	written, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		m.fs.Remove(tempPath)
		return 0, fmt.Errorf("failed to write file data: %w", err)
	}

	if closeErr != nil {
		m.fs.Remove(tempPath)
		return 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := m.fs.Rename(tempPath, path); err != nil {
		m.fs.Remove(tempPath)
		return 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return written, nil
}

// CleanFolderName strips characters unsafe for directory names
func CleanFolderName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimSpace(b.String())
	cleaned = strings.Trim(cleaned, ".")
	return cleaned
}

// CleanFilename strips characters unsafe for filenames
func CleanFilename(name string) string {
	cleaned := CleanFolderName(name)
	if cleaned == "" {
		return "file"
	}
	return cleaned
}
