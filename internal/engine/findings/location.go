package findings

import "fmt"

type locationKind int

const (
	locAssocType locationKind = iota
	locArgumentNamed
	locClosureInput
	locClosureOutput
	locConstGeneric
	locConstant
	locDynTrait
	locEnumTupleEntry
	locGenericArg
	locGenericDefaultBinding
	locImplementedTrait
	locQualifiedSelfType
	locQualifiedSelfTypeAsTrait
	locReExport
	locReturnValue
	locStatic
	locStructField
	locTraitBound
	locTypeAlias
	locWhereBound
)

var locationText = map[locationKind]string{
	locAssocType:                "associated type",
	locClosureInput:             "closure input of",
	locClosureOutput:            "closure output of",
	locConstGeneric:             "const generic of",
	locConstant:                 "constant",
	locDynTrait:                 "dyn trait of",
	locEnumTupleEntry:           "enum tuple entry of",
	locGenericArg:               "generic arg of",
	locGenericDefaultBinding:    "generic default binding of",
	locImplementedTrait:         "implemented trait of",
	locQualifiedSelfType:        "qualified self type",
	locQualifiedSelfTypeAsTrait: "qualified type `as` trait",
	locReExport:                 "re-export named",
	locReturnValue:              "return value of",
	locStatic:                   "static value",
	locStructField:              "struct field of",
	locTraitBound:               "trait bound of",
	locTypeAlias:                "type alias of",
	locWhereBound:               "where bound of",
}

// Location says where, relative to the enclosing path, an external type was
// found. Only ArgumentNamed carries data.
type Location struct {
	kind     locationKind
	argument string
}

var (
	AssocType                = Location{kind: locAssocType}
	ClosureInput             = Location{kind: locClosureInput}
	ClosureOutput            = Location{kind: locClosureOutput}
	ConstGeneric             = Location{kind: locConstGeneric}
	Constant                 = Location{kind: locConstant}
	DynTrait                 = Location{kind: locDynTrait}
	EnumTupleEntry           = Location{kind: locEnumTupleEntry}
	GenericArg               = Location{kind: locGenericArg}
	GenericDefaultBinding    = Location{kind: locGenericDefaultBinding}
	ImplementedTrait         = Location{kind: locImplementedTrait}
	QualifiedSelfType        = Location{kind: locQualifiedSelfType}
	QualifiedSelfTypeAsTrait = Location{kind: locQualifiedSelfTypeAsTrait}
	ReExport                 = Location{kind: locReExport}
	ReturnValue              = Location{kind: locReturnValue}
	Static                   = Location{kind: locStatic}
	StructField              = Location{kind: locStructField}
	TraitBound               = Location{kind: locTraitBound}
	TypeAlias                = Location{kind: locTypeAlias}
	WhereBound               = Location{kind: locWhereBound}
)

// ArgumentNamed is the location of a function parameter.
func ArgumentNamed(name string) Location {
	return Location{kind: locArgumentNamed, argument: name}
}

func (l Location) String() string {
	if l.kind == locArgumentNamed {
		return fmt.Sprintf("argument named `%s` of", l.argument)
	}
	return locationText[l.kind]
}
