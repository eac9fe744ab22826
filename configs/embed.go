// Package configs embeds the templates `thedocs config init` writes.
//
// Template files:
//   - project-config.example.yaml: .thedocs.yaml for a project directory
//   - summarize_markdown.md: the enrichment prompt, written to the prompts dir
//
// Edit the files in this directory and rebuild to change them.
package configs

import _ "embed"

// ProjectConfigTemplate is written to .thedocs.yaml by `thedocs config init`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

// PromptTemplate is the default enrichment prompt. {markdown_file_content}
// is replaced by the document body.
//
//go:embed summarize_markdown.md
var PromptTemplate string
