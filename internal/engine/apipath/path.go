// Package apipath tracks where in the public API the visitor currently is.
package apipath

import (
	"strings"

	"externaltypes/internal/engine/rustdoc"
)

type ComponentType int

const (
	Crate ComponentType = iota
	AssocConst
	AssocType
	Constant
	Enum
	EnumVariant
	Function
	Impl
	Module
	ReExport
	Static
	Struct
	StructField
	Trait
	TypeAlias
	Union
)

var componentNames = [...]string{
	Crate:       "crate",
	AssocConst:  "assoc_const",
	AssocType:   "assoc_type",
	Constant:    "constant",
	Enum:        "enum",
	EnumVariant: "enum_variant",
	Function:    "function",
	Impl:        "impl",
	Module:      "module",
	ReExport:    "re_export",
	Static:      "static",
	Struct:      "struct",
	StructField: "struct_field",
	Trait:       "trait",
	TypeAlias:   "type_alias",
	Union:       "union",
}

func (c ComponentType) String() string {
	if int(c) < len(componentNames) {
		return componentNames[c]
	}
	return "unknown"
}

type component struct {
	typ  ComponentType
	name string
	span *rustdoc.Span
}

// Path is an immutable sequence of components. Push and PushRaw return a new
// Path and never modify the receiver, so sibling branches of the traversal
// cannot observe each other's segments.
type Path struct {
	stack []component
}

// New starts a path at the crate root.
func New(crateName string) Path {
	return Path{stack: []component{{typ: Crate, name: crateName}}}
}

// Push extends the path with a named item.
func (p Path) Push(typ ComponentType, item *rustdoc.Item) Path {
	return p.PushRaw(typ, item.DisplayName(), item.Span)
}

func (p Path) PushRaw(typ ComponentType, name string, span *rustdoc.Span) Path {
	stack := make([]component, len(p.stack), len(p.stack)+1)
	copy(stack, p.stack)
	return Path{stack: append(stack, component{typ: typ, name: name, span: span})}
}

// LastType returns the kind of the innermost component.
func (p Path) LastType() (ComponentType, bool) {
	if len(p.stack) == 0 {
		return 0, false
	}
	return p.stack[len(p.stack)-1].typ, true
}

// LastSpan returns the span of the innermost component, if it has one.
func (p Path) LastSpan() *rustdoc.Span {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1].span
}

func (p Path) Len() int {
	return len(p.stack)
}

// String joins the named components with `::`. Impl blocks are anonymous
// and do not appear.
func (p Path) String() string {
	names := make([]string, 0, len(p.stack))
	for _, c := range p.stack {
		if c.name != "" {
			names = append(names, c.name)
		}
	}
	return strings.Join(names, "::")
}
