// Package preflight checks that a thedocs project can run: the documents
// directory is writable, the disk has room, the record table parses, and the
// optional search and enrichment backends answer.
//
//	checker := preflight.New(preflight.WithDependency("fulltext", engine, false))
//	results := checker.RunAll(ctx, docsDir)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
