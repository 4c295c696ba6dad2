package visitor

import (
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"

	"externaltypes/internal/core/config"
	"externaltypes/internal/engine/findings"
	"externaltypes/internal/engine/rustdoc"

	"github.com/stretchr/testify/require"
)

const rootCrate = "test_crate"

// graph builds small rustdoc item graphs for a crate named test_crate.
// Every item gets its own source line so findings never collide by key.
type graph struct {
	crate *rustdoc.Crate
	root  *rustdoc.Module
	next  int
	line  int
}

func newGraph() *graph {
	g := &graph{
		crate: &rustdoc.Crate{
			Root:  "0",
			Index: map[rustdoc.Id]*rustdoc.Item{},
			Paths: map[rustdoc.Id]rustdoc.ItemSummary{},
		},
		root: &rustdoc.Module{IsCrate: true},
		next: 1,
	}
	name := rootCrate
	g.crate.Index["0"] = &rustdoc.Item{
		ID:         "0",
		Name:       &name,
		Visibility: rustdoc.Visibility{Kind: rustdoc.VisibilityPublic},
		Inner:      g.root,
	}
	g.crate.Paths["0"] = rustdoc.ItemSummary{Path: []string{rootCrate}, Kind: "module"}
	return g
}

func (g *graph) newID() rustdoc.Id {
	id := rustdoc.Id(strconv.Itoa(g.next))
	g.next++
	return id
}

// item adds an item owned by the root crate.
func (g *graph) item(name string, vis rustdoc.VisibilityKind, inner rustdoc.ItemInner) rustdoc.Id {
	return g.itemIn(0, name, vis, inner)
}

func (g *graph) itemIn(crateID uint32, name string, vis rustdoc.VisibilityKind, inner rustdoc.ItemInner) rustdoc.Id {
	id := g.newID()
	g.line++
	it := &rustdoc.Item{
		ID:         id,
		CrateID:    crateID,
		Visibility: rustdoc.Visibility{Kind: vis},
		Inner:      inner,
		Span: &rustdoc.Span{
			Filename: "src/lib.rs",
			Begin:    [2]int{g.line, 0},
			End:      [2]int{g.line, 20},
		},
	}
	if name != "" {
		n := name
		it.Name = &n
	}
	g.crate.Index[id] = it
	return id
}

func (g *graph) pub(name string, inner rustdoc.ItemInner) rustdoc.Id {
	return g.item(name, rustdoc.VisibilityPublic, inner)
}

func (g *graph) priv(name string, inner rustdoc.ItemInner) rustdoc.Id {
	return g.item(name, rustdoc.VisibilityDefault, inner)
}

// top lists id in the root module.
func (g *graph) top(id rustdoc.Id) rustdoc.Id {
	g.root.Items = append(g.root.Items, id)
	return id
}

// external registers a path table entry for an item of another crate that
// is not in the index.
func (g *graph) external(path string) rustdoc.Id {
	id := g.newID()
	g.crate.Paths[id] = rustdoc.ItemSummary{CrateID: 1, Path: strings.Split(path, "::"), Kind: "struct"}
	return id
}

func (g *graph) get(id rustdoc.Id) *rustdoc.Item {
	return g.crate.Index[id]
}

func pathTo(id rustdoc.Id, args ...rustdoc.TypeRef) rustdoc.Path {
	p := rustdoc.Path{ID: id}
	if len(args) > 0 {
		angle := &rustdoc.AngleBracketedArgs{}
		for _, a := range args {
			angle.Args = append(angle.Args, rustdoc.GenericArg{Type: a})
		}
		p.Args = &rustdoc.GenericArgs{AngleBracketed: angle}
	}
	return p
}

func resolved(id rustdoc.Id, args ...rustdoc.TypeRef) rustdoc.TypeRef {
	return rustdoc.Some(&rustdoc.ResolvedPath{Path: pathTo(id, args...)})
}

func traitBound(id rustdoc.Id) rustdoc.GenericBound {
	return rustdoc.GenericBound{TraitBound: &rustdoc.TraitBound{Trait: pathTo(id)}}
}

func arg(name string, t rustdoc.TypeRef) rustdoc.FnInput {
	return rustdoc.FnInput{Name: name, Type: t}
}

func fn(output rustdoc.TypeRef, inputs ...rustdoc.FnInput) *rustdoc.Function {
	return &rustdoc.Function{Sig: rustdoc.FunctionSignature{Inputs: inputs, Output: output}, HasBody: true}
}

func field(t rustdoc.TypeRef) *rustdoc.StructField {
	return &rustdoc.StructField{Type: t}
}

func plainStruct(fields ...rustdoc.Id) *rustdoc.Struct {
	return &rustdoc.Struct{Kind: rustdoc.StructKind{Plain: &rustdoc.PlainFields{Fields: fields}}}
}

func allow(patterns ...string) config.Config {
	cfg := config.Default()
	cfg.AllowedExternalTypes = patterns
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func visit(t *testing.T, g *graph, cfg config.Config, opts ...Option) []*findings.Finding {
	t.Helper()
	v, err := New(cfg, g.crate, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	set, err := v.VisitAll()
	require.NoError(t, err)
	return set.Sorted()
}

func visitErr(t *testing.T, g *graph, cfg config.Config, opts ...Option) error {
	t.Helper()
	v, err := New(cfg, g.crate, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	_, err = v.VisitAll()
	return err
}

// locations maps each finding's type name to its location text.
func locations(fs []*findings.Finding) map[string]string {
	out := make(map[string]string, len(fs))
	for _, f := range fs {
		out[f.TypeName] = f.What.String()
	}
	return out
}
