// Package store persists document metadata records in a CSV table.
//
// Writers serialize on an advisory lock file next to the table and replace
// the table by atomic rename, so readers take no lock and always see a
// complete file.
package store

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
)

const (
	// DateLayout is the on-disk format of date_uploaded.
	DateLayout = "2006-01-02"
	// TimestampLayout is the on-disk format of updated_at (UTC).
	TimestampLayout = "2006-01-02 15:04:05"
)

// Header is the record table's column order.
var Header = []string{"filename", "title", "description", "is_public", "date_uploaded", "updated_at"}

// Record is the metadata kept for one document file.
type Record struct {
	// Filename is the unique, immutable key.
	Filename    string `json:"filename"`
	Title       string `json:"title"`
	Description string `json:"description"`
	// IsPublic defaults to false: new documents are private.
	IsPublic bool `json:"is_public"`
	// DateUploaded is set once at creation (date only).
	DateUploaded time.Time `json:"date_uploaded"`
	// UpdatedAt changes on every metadata mutation.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRecord returns a blank private record for filename created at now.
func NewRecord(filename string, now time.Time) Record {
	now = now.UTC()
	return Record{
		Filename:     filename,
		DateUploaded: truncateDay(now),
		UpdatedAt:    now.Truncate(time.Second),
	}
}

// NeedsEnrichment reports whether title or description is still blank.
func (r Record) NeedsEnrichment() bool {
	return strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Description) == ""
}

// VisibleTo reports whether the record may be shown to a viewer.
func (r Record) VisibleTo(authenticated bool) bool {
	return authenticated || r.IsPublic
}

// ValidateFilename checks that name is a usable record key: non-empty and a
// bare file name without directory components.
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return doerrors.ValidationError("filename is empty", nil)
	}
	if name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return doerrors.New(doerrors.ErrCodeInvalidFilename, "filename must not contain path separators", nil).
			WithDetail("filename", name)
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Store is the record table.
type Store interface {
	// List returns every record in file order.
	List(ctx context.Context) ([]Record, error)
	// Get returns the record for filename and whether it exists.
	Get(ctx context.Context, filename string) (Record, bool, error)
	// Upsert inserts rec, or replaces the existing row in place.
	Upsert(ctx context.Context, rec Record) error
	// Update applies fn to an existing record under the write lock.
	Update(ctx context.Context, filename string, fn func(*Record) error) (Record, error)
	// Delete removes the row for filename. Absent rows are a no-op.
	Delete(ctx context.Context, filename string) error
	// ReplaceAll atomically replaces the whole table.
	ReplaceAll(ctx context.Context, recs []Record) error
}

// ErrNotFound is matched with errors.Is when Update targets a missing record.
var ErrNotFound = doerrors.New(doerrors.ErrCodeRecordMissing, "record not found", nil)
