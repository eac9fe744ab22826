package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns PASS, WARN or FAIL.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult is the result of one check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports a failed required check.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Dependency is something that can report readiness, such as the record
// table or a search backend.
type Dependency interface {
	Ready(ctx context.Context) error
}

type dependency struct {
	name     string
	dep      Dependency
	required bool
	hint     string
}

// DefaultTimeout bounds each dependency check.
const DefaultTimeout = 5 * time.Second

// Checker runs the checks.
type Checker struct {
	verbose    bool
	output     io.Writer
	timeout    time.Duration
	promptPath string
	deps       []dependency
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints details under each result.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the writer PrintResults uses.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// WithTimeout bounds each dependency check.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPromptFile checks that the enrichment prompt template exists.
func WithPromptFile(path string) Option {
	return func(c *Checker) {
		c.promptPath = path
	}
}

// WithDependency adds a readiness check. A failing optional dependency is a
// warning; hint is shown with it.
func WithDependency(name string, dep Dependency, required bool, hint string) Option {
	return func(c *Checker) {
		if dep != nil {
			c.deps = append(c.deps, dependency{name: name, dep: dep, required: required, hint: hint})
		}
	}
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{
		output:  os.Stdout,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against the documents directory docsDir.
func (c *Checker) RunAll(ctx context.Context, docsDir string) []CheckResult {
	results := []CheckResult{
		c.CheckWritePermissions(docsDir),
		c.CheckDiskSpace(docsDir),
		c.CheckFileDescriptors(),
	}
	if c.promptPath != "" {
		results = append(results, c.CheckPromptFile(c.promptPath))
	}
	for _, d := range c.deps {
		results = append(results, c.checkDependency(ctx, d))
	}
	return results
}

func (c *Checker) checkDependency(ctx context.Context, d dependency) CheckResult {
	result := CheckResult{Name: d.name, Required: d.required}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := d.dep.Ready(ctx); err != nil {
		result.Status = StatusFail
		if !d.required {
			result.Status = StatusWarn
		}
		result.Message = err.Error()
		result.Details = d.hint
		return result
	}
	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckWritePermissions checks that files can be created in dir.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{Name: "write_permissions", Required: true}

	f, err := os.CreateTemp(dir, ".thedocs-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot write to %s: %v", dir, err)
		return result
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckPromptFile warns when the prompt template is missing; enrichment then
// uses the built-in prompt.
func (c *Checker) CheckPromptFile(path string) CheckResult {
	result := CheckResult{Name: "prompt_template", Required: false}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		result.Status = StatusWarn
		result.Message = "not found, using the built-in prompt"
		result.Details = path
	case err != nil:
		result.Status = StatusWarn
		result.Message = err.Error()
	case info.IsDir():
		result.Status = StatusWarn
		result.Message = "is a directory, using the built-in prompt"
		result.Details = path
	default:
		result.Status = StatusPass
		result.Message = filepath.Base(path)
	}
	return result
}

// HasCriticalFailures reports whether any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "ready", "ready_with_warnings" or "failed".
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes a report to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "thedocs system check")
	_, _ = fmt.Fprintln(c.output, "====================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var problems []string
	for _, r := range results {
		if r.Status != StatusPass {
			problems = append(problems, r.Name+": "+r.Message)
		}
	}
	if len(problems) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d issue(s):\n", len(problems))
		for _, p := range problems {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", p)
		}
	}
}
