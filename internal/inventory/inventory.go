// Package inventory manages the document files on disk: listing accepted
// files, sanitized uploads and traversal-safe reads.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/renameio"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/store"
)

// Extensions lists the accepted document extensions (lower case).
var Extensions = []string{".md", ".markdown"}

// DefaultStem replaces a stem that sanitizes to nothing.
const DefaultStem = "document"

// maxUniqueAttempts bounds the -N suffix search.
const maxUniqueAttempts = 10000

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Accepted reports whether name has an accepted extension.
func Accepted(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// SanitizeFilename reduces an uploaded name to a safe base name with a
// lower-case accepted extension.
func SanitizeFilename(original string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(base))
	if !Accepted(base) {
		return "", doerrors.New(doerrors.ErrCodeUnsupportedExtension, "unsupported file extension", nil).
			WithDetail("filename", original).
			WithSuggestion("Upload .md or .markdown files")
	}
	stem := strings.Trim(unsafeChars.ReplaceAllString(strings.TrimSuffix(base, filepath.Ext(base)), "_"), "_")
	if stem == "" {
		stem = DefaultStem
	}
	return stem + ext, nil
}

// Inventory is the documents directory.
type Inventory struct {
	dir string
}

// New returns the inventory rooted at dir.
func New(dir string) *Inventory {
	return &Inventory{dir: dir}
}

// Dir returns the documents directory.
func (i *Inventory) Dir() string {
	return i.dir
}

// EnsureDir creates the documents directory.
func (i *Inventory) EnsureDir() error {
	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		return doerrors.IOError("create documents directory", err).WithDetail("path", i.dir)
	}
	return nil
}

// List returns accepted regular files, sorted. Hidden files and
// subdirectories are ignored. A missing directory is empty.
func (i *Inventory) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(i.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, doerrors.IOError("list documents", err).WithDetail("path", i.dir)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || !e.Type().IsRegular() || !Accepted(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Path resolves name inside the documents directory.
func (i *Inventory) Path(name string) (string, error) {
	if err := store.ValidateFilename(name); err != nil {
		return "", err
	}
	path := filepath.Join(i.dir, name)
	rel, err := filepath.Rel(i.dir, path)
	if err != nil || rel != name {
		return "", doerrors.New(doerrors.ErrCodeInvalidFilename, "filename escapes documents directory", err).
			WithDetail("filename", name)
	}
	return path, nil
}

// Exists reports whether name is a regular file in the inventory.
func (i *Inventory) Exists(name string) bool {
	path, err := i.Path(name)
	if err != nil {
		return false
	}
	info, err := os.Lstat(path)
	return err == nil && info.Mode().IsRegular()
}

// Read returns the content of name.
func (i *Inventory) Read(name string) (string, error) {
	path, err := i.Path(name)
	if err != nil {
		return "", err
	}
	info, err := os.Lstat(path)
	if err == nil && !info.Mode().IsRegular() {
		return "", doerrors.New(doerrors.ErrCodeInvalidFilename, "not a regular file", nil).WithDetail("filename", name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", doerrors.New(doerrors.ErrCodeFileNotFound, "document not found", err).WithDetail("filename", name)
		}
		return "", doerrors.IOError("read document", err).WithDetail("filename", name)
	}
	return string(data), nil
}

// Save sanitizes original, picks a free name (name-1.md, name-2.md, ...)
// and writes content. It returns the stored name.
func (i *Inventory) Save(original string, content []byte) (string, error) {
	name, err := SanitizeFilename(original)
	if err != nil {
		return "", err
	}
	if err := i.EnsureDir(); err != nil {
		return "", err
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	ext := filepath.Ext(name)
	for n := 0; n < maxUniqueAttempts; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, n, ext)
		}
		path := filepath.Join(i.dir, candidate)

		// Reserve the name, then fill it atomically.
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", doerrors.IOError("create document", err).WithDetail("filename", candidate)
		}
		_ = f.Close()

		if err := renameio.WriteFile(path, content, 0o644); err != nil {
			_ = os.Remove(path)
			return "", doerrors.IOError("write document", err).WithDetail("filename", candidate)
		}
		return candidate, nil
	}
	return "", doerrors.IOError("no free filename", nil).WithDetail("filename", name)
}

// Remove deletes name. A missing file is not an error.
func (i *Inventory) Remove(name string) error {
	path, err := i.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return doerrors.IOError("delete document", err).WithDetail("filename", name)
	}
	return nil
}
