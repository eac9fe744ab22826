package preflight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDependency struct {
	err error
}

func (f fakeDependency) Ready(context.Context) error {
	return f.err
}

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
		{CheckStatus(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestCheckResult_IsCritical(t *testing.T) {
	tests := []struct {
		name     string
		result   CheckResult
		expected bool
	}{
		{"required pass is not critical", CheckResult{Status: StatusPass, Required: true}, false},
		{"required fail is critical", CheckResult{Status: StatusFail, Required: true}, true},
		{"optional fail is not critical", CheckResult{Status: StatusFail}, false},
		{"required warn is not critical", CheckResult{Status: StatusWarn, Required: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsCritical())
		})
	}
}

func TestCheckResult_JSONUsesStatusNames(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "x", Status: StatusWarn})

	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"warn"`)
}

func TestCheckWritePermissions(t *testing.T) {
	// Given: a writable directory and a missing one
	dir := t.TempDir()
	c := New()

	// When/Then: only the writable one passes, and no probe file is left
	assert.Equal(t, StatusPass, c.CheckWritePermissions(dir).Status)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	missing := c.CheckWritePermissions(filepath.Join(dir, "nope"))
	assert.Equal(t, StatusFail, missing.Status)
	assert.True(t, missing.IsCritical())
}

func TestCheckPromptFile(t *testing.T) {
	dir := t.TempDir()
	prompt := filepath.Join(dir, "summarize.md")
	require.NoError(t, os.WriteFile(prompt, []byte("Summarize"), 0o644))
	c := New()

	assert.Equal(t, StatusPass, c.CheckPromptFile(prompt).Status)
	assert.Equal(t, StatusWarn, c.CheckPromptFile(filepath.Join(dir, "missing.md")).Status)
	assert.Equal(t, StatusWarn, c.CheckPromptFile(dir).Status)
}

func TestCheckDiskSpace_TempDir(t *testing.T) {
	result := New().CheckDiskSpace(t.TempDir())

	assert.Equal(t, "disk_space", result.Name)
	assert.Contains(t, result.Message, "free")
}

func TestRunAll_Dependencies(t *testing.T) {
	// Given: a required dependency that is ready and an optional one that is not
	c := New(
		WithDependency("record_table", fakeDependency{}, true, ""),
		WithDependency("fulltext", fakeDependency{err: errors.New("connection refused")}, false, "lexicon search is used"),
		WithDependency("skipped", nil, true, ""),
	)

	// When: running every check
	results := c.RunAll(context.Background(), t.TempDir())

	// Then: the optional failure is a warning and nil dependencies are skipped
	byName := map[string]CheckResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, StatusPass, byName["record_table"].Status)
	assert.Equal(t, StatusWarn, byName["fulltext"].Status)
	assert.Equal(t, "lexicon search is used", byName["fulltext"].Details)
	assert.NotContains(t, byName, "skipped")
	assert.False(t, c.HasCriticalFailures([]CheckResult{byName["record_table"], byName["fulltext"]}))
}

func TestRunAll_RequiredDependencyFails(t *testing.T) {
	c := New(WithDependency("record_table", fakeDependency{err: errors.New("corrupt")}, true, ""))

	results := c.RunAll(context.Background(), t.TempDir())

	assert.True(t, c.HasCriticalFailures(results))
	assert.Equal(t, "failed", c.SummaryStatus(results))
}

func TestSummaryStatus(t *testing.T) {
	c := New()

	assert.Equal(t, "ready", c.SummaryStatus([]CheckResult{{Status: StatusPass}}))
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus([]CheckResult{{Status: StatusPass}, {Status: StatusWarn}}))
	assert.Equal(t, "failed", c.SummaryStatus([]CheckResult{{Status: StatusFail, Required: true}}))
}

func TestPrintResults(t *testing.T) {
	// Given: one pass and one warning with details
	var buf bytes.Buffer
	c := New(WithOutput(&buf), WithVerbose(true))
	results := []CheckResult{
		{Name: "write_permissions", Status: StatusPass, Message: "OK", Required: true},
		{Name: "fulltext", Status: StatusWarn, Message: "connection refused", Details: "lexicon search is used"},
	}

	// When: printing
	c.PrintResults(results)

	// Then: statuses, details and the issue list are shown
	out := buf.String()
	assert.Contains(t, out, "[PASS] write_permissions: OK")
	assert.Contains(t, out, "[WARN] fulltext: connection refused")
	assert.Contains(t, out, "      lexicon search is used")
	assert.Contains(t, out, "Status: READY_WITH_WARNINGS")
	assert.Contains(t, out, "1 issue(s):")
}
