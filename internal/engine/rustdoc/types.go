package rustdoc

import (
	"encoding/json"
	"fmt"
)

// Type is a rustdoc type expression. The set of implementations is closed
// to this package.
type Type interface {
	typeExpr()
}

// TypeRef holds an optional type expression inside another structure.
// Inner is nil when rustdoc emitted null.
type TypeRef struct {
	Inner Type
}

// Some wraps t in a TypeRef.
func Some(t Type) TypeRef {
	return TypeRef{Inner: t}
}

func (r TypeRef) IsZero() bool {
	return r.Inner == nil
}

func (r *TypeRef) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		r.Inner = nil
		return nil
	}
	t, err := decodeType(b)
	if err != nil {
		return err
	}
	r.Inner = t
	return nil
}

// ResolvedPath is a reference to a named item, possibly with generic args.
type ResolvedPath struct {
	Path
}

type DynTrait struct {
	Traits   []PolyTrait `json:"traits"`
	Lifetime *string     `json:"lifetime"`
}

// Generic is a reference to a generic parameter such as `T`.
type Generic struct {
	Name string
}

type PrimitiveType struct {
	Name string
}

type FunctionPointer struct {
	Sig           FunctionSignature `json:"sig"`
	GenericParams []GenericParamDef `json:"generic_params"`
}

type Tuple struct {
	Elems []TypeRef
}

type Slice struct {
	Elem TypeRef
}

type Array struct {
	Type TypeRef `json:"type"`
	Len  string  `json:"len"`
}

// Pat is an unstable pattern type (`u32 is 1..`).
type Pat struct {
	Type TypeRef `json:"type"`
}

type ImplTrait struct {
	Bounds []GenericBound
}

// Infer is the `_` type.
type Infer struct{}

type RawPointer struct {
	IsMutable bool    `json:"is_mutable"`
	Type      TypeRef `json:"type"`
}

type BorrowedRef struct {
	Lifetime  *string `json:"lifetime"`
	IsMutable bool    `json:"is_mutable"`
	Type      TypeRef `json:"type"`
}

// QualifiedPath is `<SelfType as Trait>::Name`.
type QualifiedPath struct {
	Name     string       `json:"name"`
	Args     *GenericArgs `json:"args"`
	SelfType TypeRef      `json:"self_type"`
	Trait    *Path        `json:"trait"`
}

func (*ResolvedPath) typeExpr()    {}
func (*DynTrait) typeExpr()        {}
func (*Generic) typeExpr()         {}
func (*PrimitiveType) typeExpr()   {}
func (*FunctionPointer) typeExpr() {}
func (*Tuple) typeExpr()           {}
func (*Slice) typeExpr()           {}
func (*Array) typeExpr()           {}
func (*Pat) typeExpr()             {}
func (*ImplTrait) typeExpr()       {}
func (*Infer) typeExpr()           {}
func (*RawPointer) typeExpr()      {}
func (*BorrowedRef) typeExpr()     {}
func (*QualifiedPath) typeExpr()   {}

func decodeType(b []byte) (Type, error) {
	tag, body, err := splitTagged(b)
	if err != nil {
		return nil, fmt.Errorf("type: %w", err)
	}
	switch tag {
	case "resolved_path":
		var p ResolvedPath
		if err := json.Unmarshal(body, &p.Path); err != nil {
			return nil, err
		}
		return &p, nil
	case "dyn_trait":
		return decodeAs[DynTrait](body)
	case "generic":
		var name string
		if err := json.Unmarshal(body, &name); err != nil {
			return nil, err
		}
		return &Generic{Name: name}, nil
	case "primitive":
		var name string
		if err := json.Unmarshal(body, &name); err != nil {
			return nil, err
		}
		return &PrimitiveType{Name: name}, nil
	case "function_pointer":
		return decodeAs[FunctionPointer](body)
	case "tuple":
		var t Tuple
		if err := json.Unmarshal(body, &t.Elems); err != nil {
			return nil, err
		}
		return &t, nil
	case "slice":
		var s Slice
		if err := json.Unmarshal(body, &s.Elem); err != nil {
			return nil, err
		}
		return &s, nil
	case "array":
		return decodeAs[Array](body)
	case "pat":
		return decodeAs[Pat](body)
	case "impl_trait":
		var t ImplTrait
		if err := json.Unmarshal(body, &t.Bounds); err != nil {
			return nil, err
		}
		return &t, nil
	case "infer":
		return &Infer{}, nil
	case "raw_pointer":
		return decodeAs[RawPointer](body)
	case "borrowed_ref":
		return decodeAs[BorrowedRef](body)
	case "qualified_path":
		return decodeAs[QualifiedPath](body)
	}
	return nil, fmt.Errorf("unknown type expression %q", tag)
}

// Path names an item by id. Older format versions call the display name
// "name" instead of "path".
type Path struct {
	Path string       `json:"path"`
	ID   Id           `json:"id"`
	Args *GenericArgs `json:"args"`
}

func (p *Path) UnmarshalJSON(b []byte) error {
	type plain Path
	var raw struct {
		plain
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = Path(raw.plain)
	if p.Path == "" {
		p.Path = raw.Name
	}
	return nil
}

type PolyTrait struct {
	Trait         Path              `json:"trait"`
	GenericParams []GenericParamDef `json:"generic_params"`
}

// FnInput is one named function parameter.
type FnInput struct {
	Name string
	Type TypeRef
}

func (in *FnInput) UnmarshalJSON(b []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("function input: %w", err)
	}
	if err := json.Unmarshal(pair[0], &in.Name); err != nil {
		return fmt.Errorf("function input name: %w", err)
	}
	return json.Unmarshal(pair[1], &in.Type)
}

type FunctionSignature struct {
	Inputs      []FnInput `json:"inputs"`
	Output      TypeRef   `json:"output"`
	IsCVariadic bool      `json:"is_c_variadic"`
}

// GenericArgs is either angle bracketed (`<T, Item = U>`), parenthesized
// (`Fn(A) -> B`) or return type notation (`method(..)`).
type GenericArgs struct {
	AngleBracketed     *AngleBracketedArgs
	Parenthesized      *ParenthesizedArgs
	ReturnTypeNotation bool
}

type AngleBracketedArgs struct {
	Args        []GenericArg          `json:"args"`
	Constraints []AssocItemConstraint `json:"constraints"`
}

type ParenthesizedArgs struct {
	Inputs []TypeRef `json:"inputs"`
	Output TypeRef   `json:"output"`
}

func (a *GenericArgs) UnmarshalJSON(b []byte) error {
	tag, body, err := splitTagged(b)
	if err != nil {
		return fmt.Errorf("generic args: %w", err)
	}
	switch tag {
	case "angle_bracketed":
		a.AngleBracketed = &AngleBracketedArgs{}
		if err := json.Unmarshal(body, a.AngleBracketed); err != nil {
			return err
		}
		if a.AngleBracketed.Constraints == nil {
			// format versions before 32 called these bindings
			var legacy struct {
				Bindings []AssocItemConstraint `json:"bindings"`
			}
			if err := json.Unmarshal(body, &legacy); err == nil {
				a.AngleBracketed.Constraints = legacy.Bindings
			}
		}
		return nil
	case "parenthesized":
		a.Parenthesized = &ParenthesizedArgs{}
		return json.Unmarshal(body, a.Parenthesized)
	case "return_type_notation":
		a.ReturnTypeNotation = true
		return nil
	}
	return fmt.Errorf("unknown generic args %q", tag)
}

// GenericArg is one argument inside angle brackets.
type GenericArg struct {
	Lifetime string
	Type     TypeRef
	Const    bool
	Infer    bool
}

func (a *GenericArg) UnmarshalJSON(b []byte) error {
	tag, body, err := splitTagged(b)
	if err != nil {
		return fmt.Errorf("generic arg: %w", err)
	}
	switch tag {
	case "lifetime":
		return json.Unmarshal(body, &a.Lifetime)
	case "type":
		return json.Unmarshal(body, &a.Type)
	case "const":
		a.Const = true
		return nil
	case "infer":
		a.Infer = true
		return nil
	}
	return fmt.Errorf("unknown generic arg %q", tag)
}

type AssocItemConstraint struct {
	Name    string                  `json:"name"`
	Args    *GenericArgs            `json:"args"`
	Binding AssocItemConstraintKind `json:"binding"`
}

// AssocItemConstraintKind is `Item = Term` (Equality) or `Item: Bounds`
// (Constraint).
type AssocItemConstraintKind struct {
	Equality   *Term
	Constraint []GenericBound
}

func (k *AssocItemConstraintKind) UnmarshalJSON(b []byte) error {
	tag, body, err := splitTagged(b)
	if err != nil {
		return fmt.Errorf("constraint: %w", err)
	}
	switch tag {
	case "equality":
		k.Equality = &Term{}
		return json.Unmarshal(body, k.Equality)
	case "constraint":
		k.Constraint = []GenericBound{}
		return json.Unmarshal(body, &k.Constraint)
	}
	return fmt.Errorf("unknown constraint kind %q", tag)
}

// Term is the right hand side of an equality constraint: a type or a constant.
type Term struct {
	Type     TypeRef
	Constant bool
}

func (t *Term) UnmarshalJSON(b []byte) error {
	tag, body, err := splitTagged(b)
	if err != nil {
		return fmt.Errorf("term: %w", err)
	}
	switch tag {
	case "type":
		return json.Unmarshal(body, &t.Type)
	case "constant":
		t.Constant = true
		return nil
	}
	return fmt.Errorf("unknown term %q", tag)
}

type TraitBound struct {
	Trait         Path              `json:"trait"`
	GenericParams []GenericParamDef `json:"generic_params"`
	Modifier      string            `json:"modifier"`
}

// GenericBound is a trait bound, an outlives bound or a precise capture
// (`use<'a, T>`).
type GenericBound struct {
	TraitBound *TraitBound      `json:"trait_bound,omitempty"`
	Outlives   *string          `json:"outlives,omitempty"`
	Use        *json.RawMessage `json:"use,omitempty"`
}

type GenericParamDef struct {
	Name string              `json:"name"`
	Kind GenericParamDefKind `json:"kind"`
}

type LifetimeParam struct {
	Outlives []string `json:"outlives"`
}

type TypeParam struct {
	Bounds      []GenericBound `json:"bounds"`
	Default     TypeRef        `json:"default"`
	IsSynthetic bool           `json:"is_synthetic"`
}

type ConstParam struct {
	Type    TypeRef `json:"type"`
	Default *string `json:"default"`
}

type GenericParamDefKind struct {
	Lifetime *LifetimeParam `json:"lifetime,omitempty"`
	Type     *TypeParam     `json:"type,omitempty"`
	Const    *ConstParam    `json:"const,omitempty"`
}

type Generics struct {
	Params          []GenericParamDef `json:"params"`
	WherePredicates []WherePredicate  `json:"where_predicates"`
}

type BoundPredicate struct {
	Type          TypeRef           `json:"type"`
	Bounds        []GenericBound    `json:"bounds"`
	GenericParams []GenericParamDef `json:"generic_params"`
}

type LifetimePredicate struct {
	Lifetime string   `json:"lifetime"`
	Outlives []string `json:"outlives"`
}

type EqPredicate struct {
	LHS TypeRef `json:"lhs"`
	RHS Term    `json:"rhs"`
}

type WherePredicate struct {
	BoundPredicate    *BoundPredicate    `json:"bound_predicate,omitempty"`
	LifetimePredicate *LifetimePredicate `json:"lifetime_predicate,omitempty"`
	EqPredicate       *EqPredicate       `json:"eq_predicate,omitempty"`
}
