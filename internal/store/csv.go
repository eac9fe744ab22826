package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/metrics"
)

// CSVStore is a Store backed by a CSV file.
type CSVStore struct {
	path       string
	lockPath   string
	now        func() time.Time
	lockWait   time.Duration
	retryDelay time.Duration

	// mu serializes writers inside this process; the file lock covers other processes.
	mu sync.Mutex

	// beforeCommit runs after the temp file is written and before the rename.
	beforeCommit func() error
}

// Option configures a CSVStore.
type Option func(*CSVStore)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *CSVStore) {
		s.now = now
	}
}

// WithLockWait bounds how long a writer waits for the table lock.
func WithLockWait(d time.Duration) Option {
	return func(s *CSVStore) {
		if d > 0 {
			s.lockWait = d
		}
	}
}

// NewCSVStore opens the table at path. The file need not exist yet; the lock
// file is <path>.lock.
func NewCSVStore(path string, opts ...Option) *CSVStore {
	s := &CSVStore{
		path:       path,
		lockPath:   path + ".lock",
		now:        time.Now,
		lockWait:   10 * time.Second,
		retryDelay: 25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the table path.
func (s *CSVStore) Path() string {
	return s.path
}

// EnsureTable creates the table with only a header if it does not exist.
func (s *CSVStore) EnsureTable(ctx context.Context) error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	return s.mutate(ctx, "init", func(recs []Record) ([]Record, error) {
		return recs, nil
	})
}

// Ready reports whether the table is readable.
func (s *CSVStore) Ready(_ context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return f.Close()
}

// List implements Store. Readers never take the lock.
func (s *CSVStore) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read()
}

// Get implements Store.
func (s *CSVStore) Get(ctx context.Context, filename string) (Record, bool, error) {
	recs, err := s.List(ctx)
	if err != nil {
		return Record{}, false, err
	}
	if i := indexOf(recs, filename); i >= 0 {
		return recs[i], true, nil
	}
	return Record{}, false, nil
}

// Upsert implements Store. A replaced row keeps its position and its
// DateUploaded, and is always stamped with the current time. A new row
// keeps caller timestamps; zero ones are filled from the clock.
func (s *CSVStore) Upsert(ctx context.Context, rec Record) error {
	if err := ValidateFilename(rec.Filename); err != nil {
		return err
	}

	return s.mutate(ctx, "upsert", func(recs []Record) ([]Record, error) {
		now := s.now().UTC()

		if i := indexOf(recs, rec.Filename); i >= 0 {
			rec.DateUploaded = recs[i].DateUploaded
			rec.UpdatedAt = now.Truncate(time.Second)
			recs[i] = rec
			return recs, nil
		}

		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = now.Truncate(time.Second)
		}
		if rec.DateUploaded.IsZero() {
			rec.DateUploaded = truncateDay(now)
		}
		return append(recs, rec), nil
	})
}

// Update implements Store. fn may not change Filename or DateUploaded;
// UpdatedAt is set after fn returns.
func (s *CSVStore) Update(ctx context.Context, filename string, fn func(*Record) error) (Record, error) {
	var out Record
	err := s.mutate(ctx, "update", func(recs []Record) ([]Record, error) {
		i := indexOf(recs, filename)
		if i < 0 {
			return nil, doerrors.New(doerrors.ErrCodeRecordMissing, "record not found: "+filename, nil).
				WithDetail("filename", filename)
		}

		rec := recs[i]
		if err := fn(&rec); err != nil {
			return nil, err
		}
		rec.Filename = recs[i].Filename
		rec.DateUploaded = recs[i].DateUploaded
		rec.UpdatedAt = s.now().UTC().Truncate(time.Second)

		recs[i] = rec
		out = rec
		return recs, nil
	})
	return out, err
}

// Delete implements Store.
func (s *CSVStore) Delete(ctx context.Context, filename string) error {
	return s.mutate(ctx, "delete", func(recs []Record) ([]Record, error) {
		i := indexOf(recs, filename)
		if i < 0 {
			return recs, nil
		}
		return append(recs[:i], recs[i+1:]...), nil
	})
}

// ReplaceAll implements Store. Duplicate filenames keep the first occurrence.
// Rows whose metadata differs from the stored row are stamped with the
// current time.
func (s *CSVStore) ReplaceAll(ctx context.Context, recs []Record) error {
	for _, r := range recs {
		if err := ValidateFilename(r.Filename); err != nil {
			return err
		}
	}

	return s.mutate(ctx, "replace_all", func(current []Record) ([]Record, error) {
		stamp := s.now().UTC().Truncate(time.Second)
		seen := make(map[string]bool, len(recs))
		out := make([]Record, 0, len(recs))
		for _, r := range recs {
			if seen[r.Filename] {
				continue
			}
			seen[r.Filename] = true
			if i := indexOf(current, r.Filename); i >= 0 {
				switch {
				case !sameMetadata(current[i], r):
					r.UpdatedAt = stamp
				case r.UpdatedAt.IsZero():
					r.UpdatedAt = current[i].UpdatedAt
				}
			} else if r.UpdatedAt.IsZero() {
				r.UpdatedAt = stamp
			}
			out = append(out, r)
		}
		return out, nil
	})
}

// mutate runs lock, read, apply, write temp, fsync, rename, unlock.
// When apply or any step fails the table is left untouched.
func (s *CSVStore) mutate(ctx context.Context, op string, apply func([]Record) ([]Record, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	lock := NewFileLock(s.lockPath)
	if err := lock.Lock(lockCtx, s.retryDelay); err != nil {
		return doerrors.New(doerrors.ErrCodeStoreLock, "could not lock record table", err).
			WithDetail("lock", s.lockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("store_unlock_failed", slog.String("lock", s.lockPath), slog.String("error", err.Error()))
		}
	}()

	recs, err := s.read()
	if err != nil {
		return err
	}

	recs, err = apply(recs)
	if err != nil {
		return err
	}

	if err := s.write(recs); err != nil {
		return err
	}

	metrics.StoreWritesTotal.WithLabelValues(op).Inc()
	slog.Debug("store_committed", slog.String("op", op), slog.Int("records", len(recs)))
	return nil
}

func (s *CSVStore) read() ([]Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, doerrors.IOError("failed to open record table", err).WithDetail("path", s.path)
	}
	defer f.Close()

	return decode(f, s.path)
}

func (s *CSVStore) write(recs []Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return doerrors.IOError("failed to create table directory", err)
	}

	pending, err := renameio.TempFile(filepath.Dir(s.path), s.path)
	if err != nil {
		return doerrors.IOError("failed to create temp table", err).WithDetail("path", s.path)
	}
	defer func() { _ = pending.Cleanup() }()

	if err := encode(pending, recs); err != nil {
		return doerrors.IOError("failed to write temp table", err).WithDetail("path", s.path)
	}

	if s.beforeCommit != nil {
		if err := s.beforeCommit(); err != nil {
			return doerrors.IOError("write aborted before commit", err)
		}
	}

	// CloseAtomicallyReplace fsyncs, closes and renames over the table.
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return doerrors.IOError("failed to replace record table", err).WithDetail("path", s.path)
	}
	return nil
}

func encode(w io.Writer, recs []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write(toRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// decode reads a table. Unparseable or duplicate rows are skipped and logged.
func decode(r io.Reader, source string) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, doerrors.IOError("failed to read table header", err).WithDetail("path", source)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var recs []Record
	seen := make(map[string]bool)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				skipRow(source, pe.StartLine, doerrors.CorruptionError("malformed csv row", err))
				continue
			}
			return nil, doerrors.IOError("failed to read record table", err).WithDetail("path", source)
		}

		line, _ := cr.FieldPos(0)
		rec, err := fromRow(row, cols)
		if err != nil {
			skipRow(source, line, err)
			continue
		}
		if seen[rec.Filename] {
			skipRow(source, line, doerrors.CorruptionError("duplicate filename "+rec.Filename, nil))
			continue
		}
		seen[rec.Filename] = true
		recs = append(recs, rec)
	}
	return recs, nil
}

func skipRow(source string, line int, err error) {
	metrics.CorruptRowsTotal.Inc()
	args := append([]any{slog.String("path", source), slog.Int("line", line)}, doerrors.LogArgs(err)...)
	slog.Warn("store_row_skipped", args...)
}

type columns map[string]int

func columnIndex(header []string) (columns, error) {
	cols := make(columns, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	if _, ok := cols["filename"]; !ok {
		return nil, doerrors.IOError("record table has no filename column", nil)
	}
	return cols, nil
}

func (c columns) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func toRow(r Record) []string {
	row := []string{r.Filename, r.Title, r.Description, "false", "", ""}
	if r.IsPublic {
		row[3] = "true"
	}
	if !r.DateUploaded.IsZero() {
		row[4] = r.DateUploaded.Format(DateLayout)
	}
	if !r.UpdatedAt.IsZero() {
		row[5] = r.UpdatedAt.UTC().Format(TimestampLayout)
	}
	return row
}

func fromRow(row []string, cols columns) (Record, error) {
	if len(row) > len(cols) {
		return Record{}, doerrors.CorruptionError(fmt.Sprintf("row has %d fields, header has %d", len(row), len(cols)), nil)
	}

	rec := Record{
		Filename:    strings.TrimSpace(cols.get(row, "filename")),
		Title:       cols.get(row, "title"),
		Description: cols.get(row, "description"),
		IsPublic:    ParseBool(cols.get(row, "is_public")),
	}
	if err := ValidateFilename(rec.Filename); err != nil {
		return Record{}, doerrors.CorruptionError("invalid filename", err)
	}

	if v := strings.TrimSpace(cols.get(row, "date_uploaded")); v != "" {
		d, err := time.Parse(DateLayout, v)
		if err != nil {
			return Record{}, doerrors.CorruptionError("invalid date_uploaded "+v, err)
		}
		rec.DateUploaded = d
	}
	if v := strings.TrimSpace(cols.get(row, "updated_at")); v != "" {
		ts, err := time.Parse(TimestampLayout, v)
		if err != nil {
			return Record{}, doerrors.CorruptionError("invalid updated_at "+v, err)
		}
		rec.UpdatedAt = ts
	}
	return rec, nil
}

// ParseBool accepts 1/true/yes/y in any case; everything else is false.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}

func indexOf(recs []Record, filename string) int {
	for i := range recs {
		if recs[i].Filename == filename {
			return i
		}
	}
	return -1
}

func sameMetadata(a, b Record) bool {
	return a.Title == b.Title && a.Description == b.Description && a.IsPublic == b.IsPublic
}
