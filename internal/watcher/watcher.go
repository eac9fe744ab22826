package watcher

import (
	"strings"
	"time"

	"github.com/Aman-CERP/thedocs/internal/inventory"
)

// Operation is the kind of change seen for a file.
type Operation int

const (
	// OpCreate is a new file.
	OpCreate Operation = iota
	// OpModify is a content change.
	OpModify
	// OpDelete is a removed file.
	OpDelete
	// OpRename is a file moved out of the directory. Moves into the
	// directory arrive as OpCreate.
	OpRename
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change to a document file.
type FileEvent struct {
	// Name is the bare file name inside the watched directory.
	Name      string
	Operation Operation
	Timestamp time.Time
}

// Options configures a DirWatcher.
type Options struct {
	// Debounce is how long the directory must be quiet before a batch is emitted.
	Debounce time.Duration
	// PollInterval is used when fsnotify is unavailable.
	PollInterval time.Duration
	// EventBufferSize bounds the number of undelivered batches.
	EventBufferSize int
	// ForcePolling skips fsnotify (network mounts, some containers).
	ForcePolling bool
	// Accept filters file names. Defaults to AcceptDocument.
	Accept func(name string) bool
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		Debounce:        500 * time.Millisecond,
		PollInterval:    2 * time.Second,
		EventBufferSize: 16,
		Accept:          AcceptDocument,
	}
}

// WithDefaults fills zero values from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	if o.Accept == nil {
		o.Accept = d.Accept
	}
	return o
}

// AcceptDocument accepts visible files with a document extension. Editor
// swap and temp files are rejected by the extension check.
func AcceptDocument(name string) bool {
	return !strings.HasPrefix(name, ".") && inventory.Accepted(name)
}
