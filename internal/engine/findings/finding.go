// Package findings holds the results of a public API audit: typed findings,
// their severity, rendering text and the deduplicating, ordered Set that
// collects them.
package findings

import (
	"fmt"
	"strings"

	"externaltypes/internal/engine/rustdoc"
)

type Kind int

const (
	KindUnapprovedExternalRef Kind = iota
	KindFieldsStripped
	KindHiddenModule
	KindHiddenItem
	KindUnusedApprovalPattern
	KindDuplicateApproved
)

// Kinds lists every finding kind in declaration order.
var Kinds = []Kind{
	KindUnapprovedExternalRef,
	KindFieldsStripped,
	KindHiddenModule,
	KindHiddenItem,
	KindUnusedApprovalPattern,
	KindDuplicateApproved,
}

func (k Kind) String() string {
	switch k {
	case KindUnapprovedExternalRef:
		return "unapproved_external_type_ref"
	case KindFieldsStripped:
		return "fields_stripped"
	case KindHiddenModule:
		return "hidden_module"
	case KindHiddenItem:
		return "hidden_item"
	case KindUnusedApprovalPattern:
		return "unused_approval_pattern"
	case KindDuplicateApproved:
		return "duplicate_approved"
	default:
		return "unknown"
	}
}

// Severity returns Error for unapproved references and Warning otherwise.
func (k Kind) Severity() Severity {
	if k == KindUnapprovedExternalRef {
		return SeverityError
	}
	return SeverityWarning
}

// hasSpan reports whether findings of this kind point at source code.
func (k Kind) hasSpan() bool {
	switch k {
	case KindUnapprovedExternalRef, KindHiddenModule, KindHiddenItem, KindDuplicateApproved:
		return true
	}
	return false
}

type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Finding is one reported problem. Which fields are set depends on Kind.
type Finding struct {
	Kind Kind
	// TypeName is the external type, the struct with stripped fields or the
	// unused pattern. Empty for KindHiddenItem.
	TypeName string
	What     Location
	// In is the rendered traversal path the reference was found under.
	In   string
	Span *rustdoc.Span
	// HiddenModule is the guessed doc-hidden module, "" when no guess.
	HiddenModule string
	// Duplicates lists every pattern that matched TypeName.
	Duplicates []string

	key string
}

func NewUnapprovedExternalRef(typeName string, what Location, in string, span *rustdoc.Span) *Finding {
	f := &Finding{Kind: KindUnapprovedExternalRef, TypeName: typeName, What: what, In: in, Span: span}
	f.key = fmt.Sprintf("%s:%s:%s:%s", spanKey(span), typeName, what, in)
	return f
}

func NewFieldsStripped(typeName string) *Finding {
	return &Finding{Kind: KindFieldsStripped, TypeName: typeName, key: typeName}
}

// NewHiddenModule reports a re-export whose target could not be resolved.
// hiddenModule is a best-effort guess at the `#[doc(hidden)]` module.
func NewHiddenModule(typeName string, what Location, in string, span *rustdoc.Span, hiddenModule string) *Finding {
	return &Finding{
		Kind:         KindHiddenModule,
		TypeName:     typeName,
		What:         what,
		In:           in,
		Span:         span,
		HiddenModule: hiddenModule,
		key:          typeName,
	}
}

func NewHiddenItem(what Location, in string, span *rustdoc.Span) *Finding {
	return &Finding{Kind: KindHiddenItem, What: what, In: in, Span: span, key: spanKey(span)}
}

func NewUnusedApprovalPattern(pattern string) *Finding {
	return &Finding{Kind: KindUnusedApprovalPattern, TypeName: pattern, key: pattern}
}

func NewDuplicateApproved(typeName string, what Location, in string, span *rustdoc.Span, patterns []string) *Finding {
	f := &Finding{
		Kind:       KindDuplicateApproved,
		TypeName:   typeName,
		What:       what,
		In:         in,
		Span:       span,
		Duplicates: append([]string(nil), patterns...),
	}
	f.key = fmt.Sprintf("%s:%s:%s:%s", spanKey(span), typeName, what, in)
	return f
}

func (f *Finding) Severity() Severity {
	return f.Kind.Severity()
}

// Key is the sort and identity key. Findings with equal keys are the same
// finding as far as a Set is concerned.
func (f *Finding) Key() string {
	return f.key
}

func (f *Finding) Headline() string {
	switch f.Kind {
	case KindUnapprovedExternalRef:
		return fmt.Sprintf("Unapproved external type `%s` referenced in public API", f.TypeName)
	case KindHiddenModule:
		module := f.HiddenModule
		if module == "" {
			module = "???"
		}
		return fmt.Sprintf("Module path for reexported type `%s` contains a `#[doc(hidden)]` module \"%s\". "+
			"Types declared in this module cannot be checked for external types", f.TypeName, module)
	case KindHiddenItem:
		return fmt.Sprintf("%s %s references a hidden item. "+
			"Items marked `#[doc(hidden)]` cannot be checked for external types", f.What, f.In)
	case KindFieldsStripped:
		return fmt.Sprintf("Fields on `%s` marked `#[doc(hidden)]` cannot be checked for external types", f.TypeName)
	case KindUnusedApprovalPattern:
		return fmt.Sprintf("Approved external type `%s` wasn't referenced in public API", f.TypeName)
	case KindDuplicateApproved:
		var b strings.Builder
		fmt.Fprintf(&b, "External type `%s` is allowed multiple times:\n Allowed patterns:", f.TypeName)
		for _, p := range f.Duplicates {
			b.WriteString("\n    - ")
			b.WriteString(p)
		}
		return b.String()
	}
	return ""
}

// Subtext names the location and enclosing path, or "" for kinds that do
// not point at source code.
func (f *Finding) Subtext() string {
	if !f.Kind.hasSpan() {
		return ""
	}
	return fmt.Sprintf("in %s `%s`", f.What, f.In)
}

func (f *Finding) String() string {
	return f.Headline()
}

func spanKey(span *rustdoc.Span) string {
	if span == nil {
		return "none"
	}
	return fmt.Sprintf("%s:%07d:%07d", span.Filename, span.Begin[0], span.Begin[1])
}
