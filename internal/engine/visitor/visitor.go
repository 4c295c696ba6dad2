// Package visitor walks the public API of a crate's rustdoc item graph and
// records every external type that reaches it without approval.
package visitor

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"externaltypes/internal/core/config"
	"externaltypes/internal/core/errors"
	"externaltypes/internal/engine/allowlist"
	"externaltypes/internal/engine/apipath"
	"externaltypes/internal/engine/findings"
	"externaltypes/internal/engine/rustdoc"
	"externaltypes/internal/shared/observability"
)

// DefaultMaxDepth bounds recursion on pathological graphs.
const DefaultMaxDepth = 512

type visibilityCheck int

const (
	// checkVisibility skips items that are not public in their context.
	checkVisibility visibilityCheck = iota
	// assumePublic visits the item regardless of its declared visibility.
	// Used for private items that are publicly re-exported.
	assumePublic
)

type Option func(*Visitor)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Visitor) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func WithMaxDepth(depth int) Option {
	return func(v *Visitor) {
		if depth > 0 {
			v.maxDepth = depth
		}
	}
}

func WithMetrics(m *observability.AuditMetrics) Option {
	return func(v *Visitor) {
		v.metrics = m
	}
}

// WithFaults routes internal fault reports to f instead of a private
// channel built on the visitor's logger.
func WithFaults(f *errors.Faults) Option {
	return func(v *Visitor) {
		v.faults = f
	}
}

// Visitor owns the findings and pattern usage accumulated during one walk.
// It is single use and not safe for concurrent use.
type Visitor struct {
	crate         *rustdoc.Crate
	matcher       *allowlist.Matcher
	rootCrateID   uint32
	rootCrateName string

	findings *findings.Set
	usage    *allowlist.Usage

	logger   *slog.Logger
	faults   *errors.Faults
	metrics  *observability.AuditMetrics
	maxDepth int
	depth    int
	visited  bool
}

// New compiles the allow-list in cfg and resolves the root crate of crate.
func New(cfg config.Config, crate *rustdoc.Crate, opts ...Option) (*Visitor, error) {
	if crate == nil {
		return nil, errors.New(errors.CodeValidationError, "crate is required")
	}
	matcher, err := allowlist.Compile(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "invalid allow-list")
	}
	rootID, err := crate.RootCrateID()
	if err != nil {
		return nil, err
	}
	rootName, err := crate.RootName()
	if err != nil {
		return nil, err
	}

	v := &Visitor{
		crate:         crate,
		matcher:       matcher,
		rootCrateID:   rootID,
		rootCrateName: rootName,
		usage:         allowlist.NewUsage(matcher.Patterns()),
		logger:        slog.Default(),
		maxDepth:      DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.faults == nil {
		v.faults = errors.NewFaults(v.logger)
	}
	v.findings = findings.NewSet(v.faults)
	return v, nil
}

// RootCrateName is the name external type paths are compared against.
func (v *Visitor) RootCrateName() string {
	return v.rootCrateName
}

// VisitAll walks every item of the root module and returns the findings,
// including one UnusedApprovalPattern per pattern that never matched.
func (v *Visitor) VisitAll() (*findings.Set, error) {
	if v.visited {
		return nil, errors.New(errors.CodeInternal, "VisitAll may only be called once per visitor")
	}
	v.visited = true

	root, err := v.crate.RootModule()
	if err != nil {
		return nil, err
	}
	rootPath := apipath.New(v.rootCrateName)
	for _, id := range root.Items {
		item, err := v.item(id)
		if err != nil {
			return nil, err
		}
		if err := v.visitItem(rootPath, item, checkVisibility); err != nil {
			return nil, err
		}
	}

	for _, pattern := range v.usage.Unused() {
		v.add(findings.NewUnusedApprovalPattern(pattern))
	}
	return v.findings, nil
}

// isPublic reports whether item is reachable by a consumer given where it
// was found. Default visibility is promoted for enum variants, fields of
// enum variants, associated types and trait items.
func isPublic(path apipath.Path, item *rustdoc.Item) bool {
	switch item.Visibility.Kind {
	case rustdoc.VisibilityPublic:
		return true
	case rustdoc.VisibilityDefault:
		last, ok := path.LastType()
		if !ok {
			return false
		}
		switch item.Inner.(type) {
		case *rustdoc.Variant:
			if last == apipath.Enum {
				return true
			}
		case *rustdoc.StructField:
			if last == apipath.EnumVariant {
				return true
			}
		case *rustdoc.AssocType:
			// Impls of private traits are skipped before their items are
			// reached, so any associated type seen here belongs to a public
			// trait.
			return true
		}
		return last == apipath.Trait
	default:
		return false
	}
}

func (v *Visitor) visitItem(path apipath.Path, item *rustdoc.Item, check visibilityCheck) error {
	if check == checkVisibility && !isPublic(path, item) {
		return nil
	}
	if err := v.enter(path); err != nil {
		return err
	}
	defer v.leave()

	v.logger.Debug("visiting item", "path", path.String(), "name", item.DisplayName(), "id", string(item.ID))

	switch inner := item.Inner.(type) {
	case *rustdoc.AssocConst:
		path = v.push(path, apipath.AssocConst, item)
		return v.visitType(path, findings.StructField, inner.Type.Inner)
	case *rustdoc.AssocType:
		path = v.push(path, apipath.AssocType, item)
		if err := v.visitTypeRef(path, findings.AssocType, inner.Type); err != nil {
			return err
		}
		if err := v.visitGenericBounds(path, inner.Bounds); err != nil {
			return err
		}
		return v.visitGenerics(path, inner.Generics)
	case *rustdoc.Constant:
		path = v.push(path, apipath.Constant, item)
		return v.visitType(path, findings.Constant, inner.Type.Inner)
	case *rustdoc.Enum:
		path = v.push(path, apipath.Enum, item)
		return v.visitEnum(path, inner)
	case *rustdoc.Function:
		path = v.push(path, apipath.Function, item)
		if err := v.visitFnSig(path, inner.Sig); err != nil {
			return err
		}
		return v.visitGenerics(path, inner.Generics)
	case *rustdoc.Use:
		return v.visitUse(path, item, inner)
	case *rustdoc.Module:
		if !inner.IsCrate {
			path = v.push(path, apipath.Module, item)
		}
		for _, id := range inner.Items {
			child, err := v.item(id)
			if err != nil {
				return err
			}
			// Re-exported items also appear under the root crate with a
			// foreign crate id. Only the `use` carries the re-export's span,
			// so the shadow copy is skipped.
			if child.CrateID != v.rootCrateID {
				continue
			}
			if err := v.visitItem(path, child, checkVisibility); err != nil {
				return err
			}
		}
		return nil
	case *rustdoc.Static:
		path = v.push(path, apipath.Static, item)
		return v.visitType(path, findings.Static, inner.Type.Inner)
	case *rustdoc.Struct:
		path = v.push(path, apipath.Struct, item)
		return v.visitStruct(path, inner)
	case *rustdoc.StructField:
		path = v.push(path, apipath.StructField, item)
		return v.visitType(path, findings.StructField, inner.Type.Inner)
	case *rustdoc.Trait:
		path = v.push(path, apipath.Trait, item)
		return v.visitTrait(path, inner)
	case *rustdoc.TypeAlias:
		path = v.push(path, apipath.TypeAlias, item)
		if err := v.visitType(path, findings.TypeAlias, inner.Type.Inner); err != nil {
			return err
		}
		return v.visitGenerics(path, inner.Generics)
	case *rustdoc.Union:
		path = v.push(path, apipath.Union, item)
		return v.visitUnion(path, inner)
	case *rustdoc.Variant:
		path = v.push(path, apipath.EnumVariant, item)
		return v.visitVariant(path, inner)
	case *rustdoc.ExternType:
		return unstableFeature(path, "extern_types",
			"https://doc.rust-lang.org/beta/unstable-book/language-features/extern-types.html")
	case *rustdoc.TraitAlias:
		return unstableFeature(path, "trait_alias",
			"https://doc.rust-lang.org/beta/unstable-book/language-features/trait-alias.html")
	case *rustdoc.ExternCrate, *rustdoc.Impl, *rustdoc.Macro, *rustdoc.ProcMacro,
		*rustdoc.Primitive, *rustdoc.Unknown:
		// Impls are reached through the types that own them.
		return nil
	default:
		return unsupported(path, fmt.Sprintf("item kind %T", inner))
	}
}

func (v *Visitor) visitUse(path apipath.Path, item *rustdoc.Item, use *rustdoc.Use) error {
	path = path.PushRaw(apipath.ReExport, use.Name, item.Span)
	v.metrics.ItemVisited(apipath.ReExport.String())
	if use.ID == nil {
		return nil
	}
	target := *use.ID

	if targetItem, ok := v.crate.Item(target); ok {
		if targetItem.CrateID == v.rootCrateID {
			return v.visitItem(path, targetItem, assumePublic)
		}
		// Foreign items in the index are the shadow copies of this same
		// re-export; the path table entry below covers them.
		return nil
	}

	if summary, ok := v.crate.Summary(target); ok {
		v.checkAllowType(path, findings.ReExport, summary.FullName())
		return nil
	}

	v.add(findings.NewHiddenModule(use.Name, findings.ReExport, path.String(), path.LastSpan(),
		inferHiddenModule(use.Source, v.crate)))
	return nil
}

// inferHiddenModule guesses which segment of a `use` source path is a
// `#[doc(hidden)]` module: the first segment that no indexed item is named.
// This is a heuristic; it returns "" when every segment is known.
func inferHiddenModule(source string, crate *rustdoc.Crate) string {
	for _, part := range strings.Split(source, "::") {
		if !crate.HasItemNamed(part) {
			return part
		}
	}
	return ""
}

func (v *Visitor) visitEnum(path apipath.Path, enum *rustdoc.Enum) error {
	if err := v.visitGenerics(path, enum.Generics); err != nil {
		return err
	}
	if err := v.visitImpls(path, enum.Impls); err != nil {
		return err
	}
	return v.visitItems(path, enum.Variants)
}

func (v *Visitor) visitStruct(path apipath.Path, strct *rustdoc.Struct) error {
	if err := v.visitGenerics(path, strct.Generics); err != nil {
		return err
	}

	var fields []rustdoc.Id
	switch {
	case strct.Kind.Plain != nil:
		if strct.Kind.Plain.HasStrippedFields {
			v.add(findings.NewFieldsStripped(path.String()))
		}
		fields = strct.Kind.Plain.Fields
	case strct.Kind.Tuple != nil:
		fields = presentIDs(strct.Kind.Tuple)
	}
	if err := v.visitItems(path, fields); err != nil {
		return err
	}
	return v.visitImpls(path, strct.Impls)
}

func (v *Visitor) visitUnion(path apipath.Path, union *rustdoc.Union) error {
	if err := v.visitGenerics(path, union.Generics); err != nil {
		return err
	}
	if err := v.visitItems(path, union.Fields); err != nil {
		return err
	}
	return v.visitImpls(path, union.Impls)
}

func (v *Visitor) visitTrait(path apipath.Path, trait *rustdoc.Trait) error {
	if err := v.visitGenerics(path, trait.Generics); err != nil {
		return err
	}
	if err := v.visitGenericBounds(path, trait.Bounds); err != nil {
		return err
	}
	return v.visitItems(path, trait.Items)
}

func (v *Visitor) visitVariant(path apipath.Path, variant *rustdoc.Variant) error {
	switch {
	case variant.Kind.Tuple != nil:
		// Tuple entries are struct field items, not types.
		return v.visitItems(path, presentIDs(variant.Kind.Tuple))
	case variant.Kind.Struct != nil:
		if variant.Kind.Struct.HasStrippedFields {
			v.faults.Bug("enum variant has stripped fields although private items are documented",
				"path", path.String())
		}
		return v.visitItems(path, variant.Kind.Struct.Fields)
	}
	return nil
}

func (v *Visitor) visitItems(path apipath.Path, ids []rustdoc.Id) error {
	for _, id := range ids {
		item, err := v.item(id)
		if err != nil {
			return err
		}
		if err := v.visitItem(path, item, checkVisibility); err != nil {
			return err
		}
	}
	return nil
}

func (v *Visitor) visitImpls(path apipath.Path, ids []rustdoc.Id) error {
	for _, id := range ids {
		implItem, err := v.item(id)
		if err != nil {
			return err
		}
		span := implItem.Span
		if span == nil {
			span = path.LastSpan()
		}
		if err := v.visitImpl(path.PushRaw(apipath.Impl, "", span), implItem); err != nil {
			return err
		}
	}
	return nil
}

func (v *Visitor) visitImpl(path apipath.Path, item *rustdoc.Item) error {
	impl, ok := item.Inner.(*rustdoc.Impl)
	if !ok {
		return v.faults.BugAbort(fmt.Sprintf("impl list of %s references non-impl item %s", path, item.ID))
	}
	if !impl.BlanketImpl.IsZero() {
		return nil
	}
	v.metrics.ItemVisited(apipath.Impl.String())

	if impl.Trait != nil {
		if traitItem, ok := v.crate.Item(impl.Trait.ID); ok && !isPublic(path, traitItem) {
			return nil
		}
		// The trait's own generic args belong to the trait and are checked
		// where the trait is declared.
		if err := v.checkPath(path, findings.ImplementedTrait, *impl.Trait); err != nil {
			return err
		}
	}

	if err := v.visitGenerics(path, impl.Generics); err != nil {
		return err
	}
	return v.visitItems(path, impl.Items)
}

func (v *Visitor) visitFnSig(path apipath.Path, sig rustdoc.FunctionSignature) error {
	for i, input := range sig.Inputs {
		if i == 0 && input.Name == "self" {
			continue
		}
		if err := v.visitType(path, findings.ArgumentNamed(input.Name), input.Type.Inner); err != nil {
			return err
		}
	}
	return v.visitTypeRef(path, findings.ReturnValue, sig.Output)
}

func (v *Visitor) visitTypeRef(path apipath.Path, what findings.Location, ref rustdoc.TypeRef) error {
	if ref.IsZero() {
		return nil
	}
	return v.visitType(path, what, ref.Inner)
}

func (v *Visitor) visitType(path apipath.Path, what findings.Location, typ rustdoc.Type) error {
	if typ == nil {
		return nil
	}
	if err := v.enter(path); err != nil {
		return err
	}
	defer v.leave()

	switch t := typ.(type) {
	case *rustdoc.ResolvedPath:
		return v.checkPath(path, what, t.Path)
	case *rustdoc.Generic, *rustdoc.PrimitiveType:
		return nil
	case *rustdoc.FunctionPointer:
		if err := v.visitFnSig(path, t.Sig); err != nil {
			return err
		}
		return v.visitGenericParamDefs(path, t.GenericParams)
	case *rustdoc.Tuple:
		for _, elem := range t.Elems {
			if err := v.visitTypeRef(path, findings.EnumTupleEntry, elem); err != nil {
				return err
			}
		}
		return nil
	case *rustdoc.Slice:
		return v.visitTypeRef(path, what, t.Elem)
	case *rustdoc.Array:
		return v.visitTypeRef(path, what, t.Type)
	case *rustdoc.RawPointer:
		return v.visitTypeRef(path, what, t.Type)
	case *rustdoc.BorrowedRef:
		return v.visitTypeRef(path, what, t.Type)
	case *rustdoc.DynTrait:
		for _, poly := range t.Traits {
			if err := v.checkPath(path, findings.DynTrait, poly.Trait); err != nil {
				return err
			}
			if err := v.visitGenericParamDefs(path, poly.GenericParams); err != nil {
				return err
			}
		}
		return nil
	case *rustdoc.ImplTrait:
		for _, bound := range t.Bounds {
			if bound.TraitBound == nil {
				continue
			}
			if err := v.checkPath(path, what, bound.TraitBound.Trait); err != nil {
				return err
			}
			if err := v.visitGenericParamDefs(path, bound.TraitBound.GenericParams); err != nil {
				return err
			}
		}
		return nil
	case *rustdoc.QualifiedPath:
		if err := v.visitTypeRef(path, findings.QualifiedSelfType, t.SelfType); err != nil {
			return err
		}
		if t.Trait != nil {
			return v.checkPath(path, findings.QualifiedSelfTypeAsTrait, *t.Trait)
		}
		return nil
	case *rustdoc.Pat:
		return unsupported(path, "pattern types are unstable and rustc internal (rust-lang#120131)")
	case *rustdoc.Infer:
		v.faults.Bug("visit of an inferred type `_`", "path", path.String())
		return unsupported(path, "inferred type `_`")
	default:
		return unsupported(path, fmt.Sprintf("type expression %T", t))
	}
}

func (v *Visitor) visitGenericArgs(path apipath.Path, args *rustdoc.GenericArgs) error {
	switch {
	case args.AngleBracketed != nil:
		for _, arg := range args.AngleBracketed.Args {
			if err := v.visitTypeRef(path, findings.GenericArg, arg.Type); err != nil {
				return err
			}
		}
		for _, constraint := range args.AngleBracketed.Constraints {
			switch binding := constraint.Binding; {
			case binding.Equality != nil:
				if err := v.visitTypeRef(path, findings.GenericDefaultBinding, binding.Equality.Type); err != nil {
					return err
				}
			default:
				if err := v.visitGenericBounds(path, binding.Constraint); err != nil {
					return err
				}
			}
		}
	case args.Parenthesized != nil:
		for _, input := range args.Parenthesized.Inputs {
			if err := v.visitTypeRef(path, findings.ClosureInput, input); err != nil {
				return err
			}
		}
		return v.visitTypeRef(path, findings.ClosureOutput, args.Parenthesized.Output)
	}
	return nil
}

func (v *Visitor) visitGenericBounds(path apipath.Path, bounds []rustdoc.GenericBound) error {
	for _, bound := range bounds {
		if bound.TraitBound == nil {
			continue
		}
		if err := v.checkPath(path, findings.TraitBound, bound.TraitBound.Trait); err != nil {
			return err
		}
		if err := v.visitGenericParamDefs(path, bound.TraitBound.GenericParams); err != nil {
			return err
		}
	}
	return nil
}

func (v *Visitor) visitGenericParamDefs(path apipath.Path, params []rustdoc.GenericParamDef) error {
	for _, param := range params {
		switch kind := param.Kind; {
		case kind.Type != nil:
			if err := v.visitGenericBounds(path, kind.Type.Bounds); err != nil {
				return err
			}
			if err := v.visitTypeRef(path, findings.GenericDefaultBinding, kind.Type.Default); err != nil {
				return err
			}
		case kind.Const != nil:
			if err := v.visitTypeRef(path, findings.ConstGeneric, kind.Const.Type); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Visitor) visitGenerics(path apipath.Path, generics rustdoc.Generics) error {
	if err := v.visitGenericParamDefs(path, generics.Params); err != nil {
		return err
	}
	for _, pred := range generics.WherePredicates {
		switch {
		case pred.BoundPredicate != nil:
			// The bounded type itself is not checked: it is usually a
			// generic parameter or a private helper type.
			if err := v.visitGenericBounds(path, pred.BoundPredicate.Bounds); err != nil {
				return err
			}
			if err := v.visitGenericParamDefs(path, pred.BoundPredicate.GenericParams); err != nil {
				return err
			}
		case pred.EqPredicate != nil:
			if err := v.visitTypeRef(path, findings.WhereBound, pred.EqPredicate.LHS); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkPath checks the item a path refers to, then its generic args.
func (v *Visitor) checkPath(path apipath.Path, what findings.Location, p rustdoc.Path) error {
	v.checkExternal(path, what, p.ID)
	if p.Args != nil {
		return v.visitGenericArgs(path, p.Args)
	}
	return nil
}

func (v *Visitor) checkExternal(path apipath.Path, what findings.Location, id rustdoc.Id) {
	if summary, ok := v.crate.Summary(id); ok {
		v.checkAllowType(path, what, summary.FullName())
		return
	}
	if !v.inRootCrate(id) {
		v.add(findings.NewHiddenItem(what, path.String(), path.LastSpan()))
	}
}

func (v *Visitor) checkAllowType(path apipath.Path, what findings.Location, typeName string) {
	match, err := v.matcher.Classify(v.rootCrateName, typeName)
	if err == nil {
		if match.Kind == allowlist.MatchApproved {
			v.usage.MarkUsed(match.Pattern)
		}
		return
	}

	var dup *allowlist.DuplicateMatchesError
	if stderrors.As(err, &dup) {
		sources := make([]string, len(dup.Patterns))
		for i, p := range dup.Patterns {
			v.usage.MarkUsed(p)
			sources[i] = p.Source
		}
		v.add(findings.NewDuplicateApproved(typeName, what, path.String(), path.LastSpan(), sources))
		return
	}
	// ErrNoMatch or *BaseLibraryNotAllowedError
	v.add(findings.NewUnapprovedExternalRef(typeName, what, path.String(), path.LastSpan()))
}

func (v *Visitor) add(f *findings.Finding) {
	if v.findings.Add(f) {
		v.logger.Debug("detected finding", "kind", f.Kind.String(), "type", f.TypeName, "in", f.In)
		v.metrics.FindingAdded(f.Kind.String())
	}
}

func (v *Visitor) push(path apipath.Path, typ apipath.ComponentType, item *rustdoc.Item) apipath.Path {
	v.metrics.ItemVisited(typ.String())
	return path.Push(typ, item)
}

func (v *Visitor) item(id rustdoc.Id) (*rustdoc.Item, error) {
	if item, ok := v.crate.Item(id); ok {
		return item, nil
	}
	err := &errors.DomainError{Code: errors.CodeNotFound}
	if summary, ok := v.crate.Summary(id); ok {
		err.Message = fmt.Sprintf("failed to find item in index for ID %s but did find an item summary for %s (%s)",
			id, summary.FullName(), summary.Kind)
	} else {
		err.Message = fmt.Sprintf("failed to find item in index for ID %s", id)
	}
	return nil, err.WithContext(errors.CtxItem, string(id))
}

func (v *Visitor) inRootCrate(id rustdoc.Id) bool {
	item, ok := v.crate.Item(id)
	return ok && item.CrateID == v.rootCrateID
}

func (v *Visitor) enter(path apipath.Path) error {
	v.depth++
	if v.depth > v.maxDepth {
		v.depth--
		err := &errors.DomainError{
			Code:    errors.CodeInternal,
			Message: fmt.Sprintf("maximum traversal depth %d exceeded", v.maxDepth),
		}
		return err.WithContext(errors.CtxPath, path.String())
	}
	return nil
}

func (v *Visitor) leave() {
	v.depth--
}

func presentIDs(ids []*rustdoc.Id) []rustdoc.Id {
	out := make([]rustdoc.Id, 0, len(ids))
	for _, id := range ids {
		if id != nil {
			out = append(out, *id)
		}
	}
	return out
}
