package mcp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Aman-CERP/thedocs/internal/store"
)

const markdownMIME = "text/markdown"

func documentURI(filename string) string {
	return "doc://" + url.PathEscape(filename)
}

func toDocumentOutput(r store.Record) DocumentOutput {
	return DocumentOutput{
		Filename:     r.Filename,
		Title:        r.Title,
		Description:  r.Description,
		IsPublic:     r.IsPublic,
		DateUploaded: r.DateUploaded.Format(store.DateLayout),
		URI:          documentURI(r.Filename),
	}
}

// FormatSearchResults renders search output as markdown.
func FormatSearchResults(out SearchDocumentsOutput) string {
	if out.Count == 0 {
		return fmt.Sprintf("No documents match %q", out.Query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Results for %q\n\n", out.Query)
	fmt.Fprintf(&sb, "Found %d document", out.Count)
	if out.Count != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")
	for i, r := range out.Results {
		fmt.Fprintf(&sb, "%d. **%s**\n", i+1, r.Filename)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   > %s\n", strings.ReplaceAll(r.Snippet, "\n", " "))
		}
	}
	return sb.String()
}

// FormatDocumentList renders a listing as markdown.
func FormatDocumentList(out ListDocumentsOutput) string {
	if out.Count == 0 {
		return "No documents."
	}
	var sb strings.Builder
	for _, d := range out.Documents {
		title := d.Title
		if title == "" {
			title = d.Filename
		}
		fmt.Fprintf(&sb, "- **%s** (`%s`, %s)", title, d.Filename, d.DateUploaded)
		if d.Description != "" {
			fmt.Fprintf(&sb, ": %s", d.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func clampLimit(limit, def, lo, hi int) int {
	if limit <= 0 {
		return def
	}
	if limit < lo {
		return lo
	}
	if limit > hi {
		return hi
	}
	return limit
}
