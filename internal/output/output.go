// Package output formats command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Aman-CERP/thedocs/internal/search"
	"github.com/Aman-CERP/thedocs/internal/store"
)

// Writer prints status lines, tables and JSON.
type Writer struct {
	out      io.Writer
	useColor bool
}

// New creates a Writer without color.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// WithColor enables styled table headers.
func (w *Writer) WithColor(on bool) *Writer {
	w.useColor = on
	return w
}

// Status prints msg after icon. Write errors are ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status line.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success line.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success line.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning line.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning line.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error line.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error line.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON prints v indented.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Records prints records as a table.
func (w *Writer) Records(recs []store.Record) {
	if len(recs) == 0 {
		w.Status("", "No documents.")
		return
	}
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		vis := "private"
		if r.IsPublic {
			vis = "public"
		}
		rows = append(rows, []string{
			r.Filename,
			truncate(r.Title, 40),
			truncate(r.Description, 60),
			vis,
			r.DateUploaded.Format(store.DateLayout),
		})
	}
	w.table([]string{"FILENAME", "TITLE", "DESCRIPTION", "VISIBILITY", "UPLOADED"}, rows)
}

// SearchResults prints a search response.
func (w *Writer) SearchResults(query string, resp search.Response) {
	if resp.Count == 0 {
		w.Statusf("", "No documents match %q.", query)
		return
	}
	rows := make([][]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		rows = append(rows, []string{r.Filename, truncate(oneLine(r.Snippet), 80)})
	}
	w.table([]string{"FILENAME", "SNIPPET"}, rows)
	w.Statusf("", "%d result(s)", resp.Count)
}

func (w *Writer) table(headers []string, rows [][]string) {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	if w.useColor {
		header = header.Foreground(lipgloss.Color("#7C3AED"))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	_, _ = fmt.Fprintln(w.out, t.String())
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
