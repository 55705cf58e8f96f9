package ports

import (
	"context"
	"fmt"
	"strings"

	"validatetest/internal/engine/highlight"
	"validatetest/internal/engine/parser"
	"validatetest/internal/engine/query"
	"validatetest/internal/engine/tree"
)

// Document is an immutable snapshot of one open document.
type Document struct {
	Path        string
	Language    string
	Version     int
	Tree        *tree.Tree
	Diagnostics []parser.Diagnostic
	// Incremental is set when the tree reused nodes of the previous version.
	Incremental bool
	Stats       parser.Stats
	// Changed lists the byte ranges rebuilt since the previous version.
	Changed []tree.Range
}

// Text returns the document source.
func (d *Document) Text() []byte { return d.Tree.Source() }

// ExportFormat names a tree serialisation.
type ExportFormat string

const (
	ExportSExpr ExportFormat = "sexp"
	ExportJSON  ExportFormat = "json"
	ExportYAML  ExportFormat = "yaml"
)

func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case ExportSExpr, ExportJSON, ExportYAML:
		return f, nil
	case "":
		return ExportSExpr, nil
	}
	return "", fmt.Errorf("unknown export format %q (want sexp, json or yaml)", s)
}

// DocumentService keeps parsed documents and answers the read operations the
// CLI and the watcher drive.
type DocumentService interface {
	Open(ctx context.Context, path string, text []byte) (*Document, error)
	Update(ctx context.Context, path string, text []byte) (*Document, error)
	Apply(ctx context.Context, path string, edit tree.Edit) (*Document, error)
	Close(path string) bool
	Document(path string) (*Document, bool)
	Paths() []string

	Highlight(ctx context.Context, path string) ([]highlight.Span, error)
	Query(ctx context.Context, path, source string) ([]query.Capture, error)
	Format(ctx context.Context, path string) (string, error)
	Export(ctx context.Context, path string, format ExportFormat) ([]byte, error)
}

// Rechecker reloads a document from disk after a change.
type Rechecker interface {
	Recheck(ctx context.Context, path string) (*Document, error)
	Document(path string) (*Document, bool)
}
