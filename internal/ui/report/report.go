// Package report renders audit findings for people and for tools.
package report

import (
	"fmt"
	"io"

	"externaltypes/internal/engine/findings"
	"externaltypes/internal/ui/report/formats"
)

// Format selects how findings are rendered.
type Format string

const (
	FormatErrors        Format = "errors"
	FormatMarkdownTable Format = "markdown-table"
	FormatSARIF         Format = "sarif"
)

// Formats lists the accepted output formats in help order.
var Formats = []Format{FormatErrors, FormatMarkdownTable, FormatSARIF}

// ParseFormat accepts the names listed in Formats.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("invalid output format: %s. Expected `errors`, `markdown-table` or `sarif`.", s)
}

// Render writes set to w in the given format.
func Render(w io.Writer, format Format, workspaceRoot string, set *findings.Set, opts ...PrinterOption) error {
	switch format {
	case FormatErrors:
		p, err := NewPrinter(w, workspaceRoot, opts...)
		if err != nil {
			return err
		}
		return p.PrintAll(set)
	case FormatMarkdownTable:
		return formats.WriteMarkdownTable(w, set.Sorted())
	case FormatSARIF:
		data, err := formats.GenerateSARIF(workspaceRoot, set.Sorted())
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write sarif report: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unsupported output format %q", format)
}
