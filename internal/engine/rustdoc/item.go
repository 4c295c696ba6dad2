package rustdoc

import (
	"encoding/json"
	"fmt"
)

// Span locates an item in its source file. Lines are 1-based and columns
// 0-based, as rustdoc emits them.
type Span struct {
	Filename string `json:"filename"`
	Begin    [2]int `json:"begin"`
	End      [2]int `json:"end"`
}

type VisibilityKind int

const (
	VisibilityDefault VisibilityKind = iota
	VisibilityPublic
	VisibilityCrate
	VisibilityRestricted
)

func (k VisibilityKind) String() string {
	switch k {
	case VisibilityPublic:
		return "public"
	case VisibilityCrate:
		return "crate"
	case VisibilityRestricted:
		return "restricted"
	default:
		return "default"
	}
}

type Visibility struct {
	Kind VisibilityKind
	// Parent and Path are set for `pub(in path)` visibility.
	Parent Id
	Path   string
}

func (v *Visibility) UnmarshalJSON(b []byte) error {
	tag, body, err := splitTagged(b)
	if err != nil {
		return fmt.Errorf("visibility: %w", err)
	}
	switch tag {
	case "public":
		v.Kind = VisibilityPublic
	case "default":
		v.Kind = VisibilityDefault
	case "crate":
		v.Kind = VisibilityCrate
	case "restricted":
		var r struct {
			Parent Id     `json:"parent"`
			Path   string `json:"path"`
		}
		if err := json.Unmarshal(body, &r); err != nil {
			return fmt.Errorf("visibility: %w", err)
		}
		v.Kind = VisibilityRestricted
		v.Parent = r.Parent
		v.Path = r.Path
	default:
		return fmt.Errorf("unknown visibility %q", tag)
	}
	return nil
}

// Item is one node of the item graph.
type Item struct {
	ID         Id                `json:"id"`
	CrateID    uint32            `json:"crate_id"`
	Name       *string           `json:"name"`
	Span       *Span             `json:"span"`
	Visibility Visibility        `json:"visibility"`
	Docs       *string           `json:"docs"`
	Attrs      []json.RawMessage `json:"-"`
	Inner      ItemInner         `json:"-"`
}

// DisplayName returns the item's name or "" for anonymous items such as impls.
func (i *Item) DisplayName() string {
	if i.Name == nil {
		return ""
	}
	return *i.Name
}

func (i *Item) UnmarshalJSON(b []byte) error {
	type plain Item
	var raw struct {
		plain
		Attrs []json.RawMessage `json:"attrs"`
		Inner json.RawMessage   `json:"inner"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	inner, err := decodeItemInner(raw.Inner)
	if err != nil {
		return fmt.Errorf("item %s: %w", raw.ID, err)
	}
	*i = Item(raw.plain)
	i.Attrs = raw.Attrs
	i.Inner = inner
	return nil
}

// ItemInner is the kind-specific payload of an Item. The set of
// implementations is closed to this package.
type ItemInner interface {
	itemInner()
}

type Module struct {
	IsCrate    bool `json:"is_crate"`
	Items      []Id `json:"items"`
	IsStripped bool `json:"is_stripped"`
}

type ExternCrate struct {
	Name   string  `json:"name"`
	Rename *string `json:"rename"`
}

// Use is a `use` declaration; a `pub use` re-exports its target.
type Use struct {
	Source string `json:"source"`
	Name   string `json:"name"`
	ID     *Id    `json:"id"`
	IsGlob bool   `json:"is_glob"`
}

type Union struct {
	Generics          Generics `json:"generics"`
	HasStrippedFields bool     `json:"has_stripped_fields"`
	Fields            []Id     `json:"fields"`
	Impls             []Id     `json:"impls"`
}

type Struct struct {
	Kind     StructKind `json:"kind"`
	Generics Generics   `json:"generics"`
	Impls    []Id       `json:"impls"`
}

// StructKind is one of unit, tuple or plain. Tuple entries are nil for
// fields stripped from the output.
type StructKind struct {
	Unit  bool
	Tuple []*Id
	Plain *PlainFields
}

type PlainFields struct {
	Fields            []Id `json:"fields"`
	HasStrippedFields bool `json:"has_stripped_fields"`
}

func (k *StructKind) UnmarshalJSON(b []byte) error {
	tag, body, err := splitTagged(b)
	if err != nil {
		return fmt.Errorf("struct kind: %w", err)
	}
	switch tag {
	case "unit":
		k.Unit = true
		return nil
	case "tuple":
		k.Tuple = []*Id{}
		return json.Unmarshal(body, &k.Tuple)
	case "plain":
		k.Plain = &PlainFields{}
		return json.Unmarshal(body, k.Plain)
	}
	return fmt.Errorf("unknown struct kind %q", tag)
}

// StructField is the declared type of one field.
type StructField struct {
	Type TypeRef
}

type Enum struct {
	Generics            Generics `json:"generics"`
	HasStrippedVariants bool     `json:"has_stripped_variants"`
	Variants            []Id     `json:"variants"`
	Impls               []Id     `json:"impls"`
}

type Variant struct {
	Kind VariantKind `json:"kind"`
}

// VariantKind is one of plain, tuple or struct.
type VariantKind struct {
	Plain  bool
	Tuple  []*Id
	Struct *PlainFields
}

func (k *VariantKind) UnmarshalJSON(b []byte) error {
	tag, body, err := splitTagged(b)
	if err != nil {
		return fmt.Errorf("variant kind: %w", err)
	}
	switch tag {
	case "plain":
		k.Plain = true
		return nil
	case "tuple":
		k.Tuple = []*Id{}
		return json.Unmarshal(body, &k.Tuple)
	case "struct":
		k.Struct = &PlainFields{}
		return json.Unmarshal(body, k.Struct)
	}
	return fmt.Errorf("unknown variant kind %q", tag)
}

type Function struct {
	Sig      FunctionSignature `json:"sig"`
	Generics Generics          `json:"generics"`
	HasBody  bool              `json:"has_body"`
}

type Trait struct {
	IsAuto          bool           `json:"is_auto"`
	IsUnsafe        bool           `json:"is_unsafe"`
	Items           []Id           `json:"items"`
	Generics        Generics       `json:"generics"`
	Bounds          []GenericBound `json:"bounds"`
	Implementations []Id           `json:"implementations"`
}

type TraitAlias struct {
	Generics Generics       `json:"generics"`
	Params   []GenericBound `json:"params"`
}

type Impl struct {
	IsUnsafe    bool     `json:"is_unsafe"`
	Generics    Generics `json:"generics"`
	Trait       *Path    `json:"trait"`
	For         TypeRef  `json:"for"`
	Items       []Id     `json:"items"`
	IsNegative  bool     `json:"is_negative"`
	IsSynthetic bool     `json:"is_synthetic"`
	BlanketImpl TypeRef  `json:"blanket_impl"`
}

type TypeAlias struct {
	Type     TypeRef  `json:"type"`
	Generics Generics `json:"generics"`
}

type Constant struct {
	Type TypeRef `json:"type"`
}

type Static struct {
	Type      TypeRef `json:"type"`
	IsMutable bool    `json:"is_mutable"`
}

type ExternType struct{}

type Macro struct{}

type ProcMacro struct{}

type Primitive struct {
	Name string `json:"name"`
}

type AssocConst struct {
	Type  TypeRef `json:"type"`
	Value *string `json:"value"`
}

type AssocType struct {
	Generics Generics       `json:"generics"`
	Bounds   []GenericBound `json:"bounds"`
	Type     TypeRef        `json:"type"`
}

// Unknown holds an item kind this package does not model.
type Unknown struct {
	Tag string
}

func (*Module) itemInner()      {}
func (*ExternCrate) itemInner() {}
func (*Use) itemInner()         {}
func (*Union) itemInner()       {}
func (*Struct) itemInner()      {}
func (*StructField) itemInner() {}
func (*Enum) itemInner()        {}
func (*Variant) itemInner()     {}
func (*Function) itemInner()    {}
func (*Trait) itemInner()       {}
func (*TraitAlias) itemInner()  {}
func (*Impl) itemInner()        {}
func (*TypeAlias) itemInner()   {}
func (*Constant) itemInner()    {}
func (*Static) itemInner()      {}
func (*ExternType) itemInner()  {}
func (*Macro) itemInner()       {}
func (*ProcMacro) itemInner()   {}
func (*Primitive) itemInner()   {}
func (*AssocConst) itemInner()  {}
func (*AssocType) itemInner()   {}
func (*Unknown) itemInner()     {}

func decodeItemInner(b json.RawMessage) (ItemInner, error) {
	tag, body, err := splitTagged(b)
	if err != nil {
		return nil, fmt.Errorf("item inner: %w", err)
	}
	switch tag {
	case "module":
		return decodeAs[Module](body)
	case "extern_crate":
		return decodeAs[ExternCrate](body)
	case "use", "import":
		return decodeAs[Use](body)
	case "union":
		return decodeAs[Union](body)
	case "struct":
		return decodeAs[Struct](body)
	case "struct_field":
		var field StructField
		if err := json.Unmarshal(body, &field.Type); err != nil {
			return nil, err
		}
		return &field, nil
	case "enum":
		return decodeAs[Enum](body)
	case "variant":
		return decodeAs[Variant](body)
	case "function":
		return decodeAs[Function](body)
	case "trait":
		return decodeAs[Trait](body)
	case "trait_alias":
		return decodeAs[TraitAlias](body)
	case "impl":
		return decodeAs[Impl](body)
	case "type_alias", "typedef":
		return decodeAs[TypeAlias](body)
	case "constant":
		return decodeAs[Constant](body)
	case "static":
		return decodeAs[Static](body)
	case "extern_type":
		return &ExternType{}, nil
	case "macro":
		return &Macro{}, nil
	case "proc_macro":
		return &ProcMacro{}, nil
	case "primitive":
		return decodeAs[Primitive](body)
	case "assoc_const":
		return decodeAs[AssocConst](body)
	case "assoc_type":
		return decodeAs[AssocType](body)
	}
	return &Unknown{Tag: tag}, nil
}

func decodeAs[T any](body json.RawMessage) (*T, error) {
	v := new(T)
	if len(body) == 0 || string(body) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return nil, err
	}
	return v, nil
}

// splitTagged splits a serde externally tagged enum value into its tag and
// payload. Unit variants are bare strings and have no payload.
func splitTagged(b []byte) (string, json.RawMessage, error) {
	if len(b) == 0 {
		return "", nil, fmt.Errorf("empty value")
	}
	if b[0] == '"' {
		var tag string
		if err := json.Unmarshal(b, &tag); err != nil {
			return "", nil, err
		}
		return tag, nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return "", nil, err
	}
	if len(obj) != 1 {
		return "", nil, fmt.Errorf("expected a single variant, got %d keys", len(obj))
	}
	for tag, body := range obj {
		return tag, body, nil
	}
	return "", nil, nil
}
