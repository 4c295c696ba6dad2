package formats

import (
	"fmt"
	"io"
	"sort"

	"externaltypes/internal/engine/allowlist"
	"externaltypes/internal/engine/findings"
)

const (
	markdownHeader    = "| Crate | Type | Used In |"
	markdownSeparator = "| ---   | ---  | ---     |"
)

// MarkdownRows returns one table row per unapproved external type
// reference, sorted by row text. Locations use rustdoc's raw line and
// column values.
func MarkdownRows(fs []*findings.Finding) []string {
	rows := make([]string, 0, len(fs))
	for _, f := range fs {
		if f.Kind != findings.KindUnapprovedExternalRef {
			continue
		}
		location := "unknown"
		if f.Span != nil {
			location = fmt.Sprintf("%s:%d:%d", f.Span.Filename, f.Span.Begin[0], f.Span.Begin[1])
		}
		rows = append(rows, fmt.Sprintf("| %s | %s | %s |", allowlist.CrateName(f.TypeName), f.TypeName, location))
	}
	sort.Strings(rows)
	return rows
}

// WriteMarkdownTable writes the header and the rows of MarkdownRows.
func WriteMarkdownTable(w io.Writer, fs []*findings.Finding) error {
	if _, err := fmt.Fprintln(w, markdownHeader); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, markdownSeparator); err != nil {
		return err
	}
	for _, row := range MarkdownRows(fs) {
		if _, err := fmt.Fprintln(w, row); err != nil {
			return err
		}
	}
	return nil
}
