package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"externaltypes/internal/engine/findings"
	"externaltypes/internal/engine/rustdoc"

	"github.com/charmbracelet/lipgloss"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mattn/go-runewidth"
)

// DefaultFileCacheSize is the number of source files kept in memory while
// printing.
const DefaultFileCacheSize = 64

type PrinterOption func(*Printer)

// WithColor forces color on or off. By default color follows the terminal
// capabilities of the writer and is off when NO_COLOR is set.
func WithColor(enabled bool) PrinterOption {
	return func(p *Printer) {
		p.color = enabled
	}
}

func WithFileCacheSize(size int) PrinterOption {
	return func(p *Printer) {
		if size > 0 {
			p.cacheSize = size
		}
	}
}

// Printer renders findings the way rustc renders diagnostics: a colored
// severity, the headline and an excerpt of the source the finding points at.
type Printer struct {
	out           *errWriter
	workspaceRoot string
	color         bool
	cacheSize     int
	files         *lru.Cache[string, string]

	errorStyle   lipgloss.Style
	warningStyle lipgloss.Style
	errorCount   lipgloss.Style
	warningCount lipgloss.Style
}

// NewPrinter returns a Printer writing to w. Relative span file names are
// resolved against workspaceRoot.
func NewPrinter(w io.Writer, workspaceRoot string, opts ...PrinterOption) (*Printer, error) {
	renderer := lipgloss.NewRenderer(w)
	p := &Printer{
		out:           &errWriter{w: w},
		workspaceRoot: workspaceRoot,
		color:         os.Getenv("NO_COLOR") == "",
		cacheSize:     DefaultFileCacheSize,
		errorStyle:    renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		warningStyle:  renderer.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		errorCount:    renderer.NewStyle().Foreground(lipgloss.Color("1")),
		warningCount:  renderer.NewStyle().Foreground(lipgloss.Color("3")),
	}
	for _, opt := range opts {
		opt(p)
	}
	cache, err := lru.New[string, string](p.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create source file cache: %w", err)
	}
	p.files = cache
	return p, nil
}

// PrintAll prints every finding in set order followed by a summary line.
// An empty set prints nothing.
func (p *Printer) PrintAll(set *findings.Set) error {
	for _, f := range set.Sorted() {
		p.printSeverity(f.Severity())
		p.out.printf("%s\n", f.Headline())
		if f.Span != nil {
			p.printContext(f.Span, f.Subtext())
		}
	}
	if !set.IsEmpty() {
		p.out.printf("%d %s, %d %s emitted\n",
			set.ErrorCount(), p.style(p.errorCount, "errors"),
			set.WarningCount(), p.style(p.warningCount, "warnings"))
	}
	return p.out.err
}

func (p *Printer) printSeverity(s findings.Severity) {
	if s == findings.SeverityError {
		p.out.printf("%s", p.style(p.errorStyle, "error: "))
		return
	}
	p.out.printf("%s", p.style(p.warningStyle, "warning: "))
}

func (p *Printer) style(st lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return st.Render(text)
}

// printContext prints the source excerpt for span. When the file cannot be
// read a short block explains why instead.
func (p *Printer) printContext(span *rustdoc.Span, subtext string) {
	contents, err := p.source(span.Filename)
	if err != nil {
		p.printSeverity(findings.SeverityError)
		p.out.printf("%s\n", subtext)
		p.out.printf("  --> %s:%d:%d\n", span.Filename, span.Begin[0], span.Begin[1]+1)
		p.out.printf("   | Failed to load %q\n", span.Filename)
		p.out.printf("   | relative to %q\n", p.workspaceRoot)
		p.out.printf("   | to provide error message context.\n")
		p.out.printf("   | Cause: %v\n", err)
		return
	}

	lines := strings.Split(strings.ReplaceAll(contents, "\r\n", "\n"), "\n")
	begin, ok := position(lines, span.Begin)
	if !ok {
		return
	}
	end, hasEnd := position(lines, span.End)
	if hasEnd && (end.line < begin.line || (end.line == begin.line && end.col < begin.col)) {
		hasEnd = false
	}

	last := begin.line
	if hasEnd {
		last = end.line
	}
	width := len(strconv.Itoa(last))
	gutter := strings.Repeat(" ", width)
	numbered := func(line int) string {
		return fmt.Sprintf("%*d | %s", width, line, lines[line-1])
	}

	p.out.printf("%s --> %s:%d:%d\n", gutter, span.Filename, begin.line, begin.col+1)
	p.out.printf("%s |\n", gutter)
	p.out.printf("%s\n", numbered(begin.line))

	first := []rune(lines[begin.line-1])
	pad := strings.Repeat(" ", runewidth.StringWidth(string(first[:begin.col])))
	switch {
	case !hasEnd:
		p.out.printf("%s | %s^\n", gutter, pad)
	case end.line == begin.line:
		p.out.printf("%s | %s%s\n", gutter, pad, underline(runewidth.StringWidth(string(first[begin.col:end.col]))))
	default:
		p.out.printf("%s | %s%s\n", gutter, pad, "^"+strings.Repeat("-", max(runewidth.StringWidth(string(first[begin.col:]))-1, 0)))
		if end.line-begin.line > 1 {
			p.out.printf("%s | ...\n", gutter)
		}
		p.out.printf("%s\n", numbered(end.line))
		lastLine := []rune(lines[end.line-1])
		p.out.printf("%s | %s^\n", gutter, strings.Repeat("-", max(runewidth.StringWidth(string(lastLine[:end.col]))-1, 0)))
	}
	p.out.printf("%s |\n", gutter)
	p.out.printf("%s = %s\n\n", gutter, subtext)
}

// underline marks a span of the given display width: carets at both ends
// joined by dashes.
func underline(width int) string {
	if width <= 1 {
		return "^"
	}
	return "^" + strings.Repeat("-", width-2) + "^"
}

type pos struct {
	line int
	col  int
}

// position validates a rustdoc (1-based line, 0-based column) pair against
// the file. Columns count characters and may point one past the last one.
func position(lines []string, lc [2]int) (pos, bool) {
	line, col := lc[0], lc[1]
	if line < 1 || line > len(lines) || col < 0 {
		return pos{}, false
	}
	if col > len([]rune(lines[line-1])) {
		return pos{}, false
	}
	return pos{line: line, col: col}, true
}

func (p *Printer) source(name string) (string, error) {
	if contents, ok := p.files.Get(name); ok {
		return contents, nil
	}
	full := name
	if !filepath.IsAbs(full) {
		full = filepath.Join(p.workspaceRoot, name)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("failed to load source file for error context: %w", err)
	}
	contents := string(data)
	p.files.Add(name, contents)
	return contents, nil
}

// errWriter keeps the first write error so printing code can stay linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
