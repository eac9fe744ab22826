package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newProject creates a project directory whose config disables enrichment.
func newProject(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("RUN_ENVIRONMENT", "development")
	t.Setenv("THEDOCS_ENRICH_PROVIDER", "")
	t.Setenv("THEDOCS_FULLTEXT_ENDPOINT", "")
	t.Setenv("ELASTICSEARCH_URL", "")
	t.Setenv("OPENAI_API_KEY", "")

	dir := t.TempDir()
	cfg := "enrichment:\n  provider: none\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".thedocs.yaml"), []byte(cfg), 0o644))
	return dir
}

// run executes the CLI against project dir and returns stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"--config-dir", dir}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	// Given: the root command
	cmd := NewRootCmd()

	// When: collecting subcommand names
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}

	// Then: every command is present
	for _, want := range []string{"reconcile", "search", "list", "add", "rm", "visibility", "edit", "watch", "serve", "doctor", "config", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_DebugFlagExists(t *testing.T) {
	cmd := NewRootCmd()
	flag := cmd.PersistentFlags().Lookup("debug")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestAddListSearchRemove_Flow(t *testing.T) {
	// Given: an empty project
	dir := newProject(t)
	src := writeSource(t, "Deploy Notes.md", "# Deploy\nRolling update steps for the cluster.\n")

	// When: adding a public document
	out, err := run(t, dir, "add", src, "--title", "Deploy", "--description", "How we ship", "--public")

	// Then: it is stored under a sanitized name
	require.NoError(t, err)
	assert.Contains(t, out, "Added Deploy_Notes.md")
	assert.FileExists(t, filepath.Join(dir, "markdown_files", "Deploy_Notes.md"))
	assert.FileExists(t, filepath.Join(dir, "database", "index.csv"))

	// And: list shows it
	out, err = run(t, dir, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Deploy_Notes.md")
	assert.Contains(t, out, "public")

	// And: an anonymous search finds it by body text
	out, err = run(t, dir, "search", "--format", "json", "rolling")
	require.NoError(t, err)
	assert.Contains(t, out, `"count": 1`)
	assert.Contains(t, out, `"filename": "Deploy_Notes.md"`)

	// When: removing it
	out, err = run(t, dir, "rm", "Deploy_Notes.md")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed Deploy_Notes.md")

	// Then: search no longer finds it
	out, err = run(t, dir, "search", "rolling")
	require.NoError(t, err)
	assert.Contains(t, out, `No documents match "rolling".`)
}

func TestSearch_PrivateDocumentsNeedFlag(t *testing.T) {
	// Given: a private document
	dir := newProject(t)
	src := writeSource(t, "secret.md", "launch codes\n")
	_, err := run(t, dir, "add", src, "--title", "Secret", "--description", "internal")
	require.NoError(t, err)

	// When: searching anonymously and with --private
	anon, err := run(t, dir, "search", "--format", "json", "launch")
	require.NoError(t, err)
	priv, err := run(t, dir, "search", "--format", "json", "--private", "launch")
	require.NoError(t, err)

	// Then: only the authenticated search sees it
	assert.Contains(t, anon, `"count": 0`)
	assert.Contains(t, priv, `"count": 1`)
}

func TestVisibilityAndEdit(t *testing.T) {
	// Given: a private document
	dir := newProject(t)
	src := writeSource(t, "notes.md", "body\n")
	_, err := run(t, dir, "add", src, "--title", "Old", "--description", "Keep me")
	require.NoError(t, err)

	// When: publishing it and changing only the title
	_, err = run(t, dir, "visibility", "notes.md", "public")
	require.NoError(t, err)
	_, err = run(t, dir, "edit", "notes.md", "--title", "New")
	require.NoError(t, err)

	// Then: the table reflects both changes and keeps the description
	out, err := run(t, dir, "list", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "New"`)
	assert.Contains(t, out, `"description": "Keep me"`)
	assert.Contains(t, out, `"is_public": true`)
}

func TestVisibility_RejectsUnknownValue(t *testing.T) {
	dir := newProject(t)

	_, err := run(t, dir, "visibility", "notes.md", "hidden")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "public or private")
}

func TestEdit_RequiresAFlag(t *testing.T) {
	dir := newProject(t)

	_, err := run(t, dir, "edit", "notes.md")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to edit")
}

func TestSearch_RejectsUnknownFormat(t *testing.T) {
	dir := newProject(t)

	_, err := run(t, dir, "search", "--format", "xml", "x")

	require.Error(t, err)
}

func TestReconcile_CreatesRecordsForDroppedFiles(t *testing.T) {
	// Given: files copied straight into the documents directory
	dir := newProject(t)
	docs := filepath.Join(dir, "markdown_files")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "a.md"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "b.md"), []byte("beta"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "c.txt"), []byte("ignored"), 0o644))

	// When: reconciling with JSON output
	out, err := run(t, dir, "reconcile", "--json")

	// Then: two records are created
	require.NoError(t, err)
	assert.Contains(t, out, `"new": 2`)

	table, err := os.ReadFile(filepath.Join(dir, "database", "index.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(table)), "\n")
	assert.Len(t, lines, 3)

	// When: reconciling again with plain output
	out, err = run(t, dir, "reconcile", "--plain")

	// Then: nothing new is created
	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 0 new")
}

func TestConfigInitAndShow(t *testing.T) {
	// Given: a project without a config file
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("RUN_ENVIRONMENT", "development")
	dir := t.TempDir()

	// When: initializing the project config
	out, err := run(t, dir, "config", "init")

	// Then: the file exists and show reports the defaults
	require.NoError(t, err)
	assert.Contains(t, out, "Created")
	assert.FileExists(t, filepath.Join(dir, ".thedocs.yaml"))
	assert.FileExists(t, filepath.Join(dir, "prompts", "summarize_markdown.md"))

	out, err = run(t, dir, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "documents_dir: markdown_files")

	// When: initializing again without --force
	out, err = run(t, dir, "config", "init")

	// Then: the file is left alone
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	dir := newProject(t)
	t.Setenv("OPENAI_API_KEY", "sk-test-secret")

	out, err := run(t, dir, "config", "show")

	require.NoError(t, err)
	assert.NotContains(t, out, "sk-test-secret")
}

func TestDoctor_ReportsReadyProject(t *testing.T) {
	// Given: a fresh project without full-text or enrichment
	dir := newProject(t)

	// When: running the checks as JSON
	out, err := run(t, dir, "doctor", "--json")

	// Then: the required checks pass
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "record_table"`)
	assert.Contains(t, out, `"name": "write_permissions"`)
	assert.NotContains(t, out, `"status": "failed"`)
}
