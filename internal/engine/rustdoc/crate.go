// Package rustdoc models the JSON item graph that `rustdoc --output-format json`
// emits for a crate. Only the parts the public API audit reads are decoded.
package rustdoc

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"externaltypes/internal/core/errors"
)

// Id is rustdoc's opaque item identifier. Newer format versions emit numbers,
// older ones strings; both decode to the same textual form.
type Id string

func (id *Id) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = Id(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid item id %s: %w", string(b), err)
	}
	*id = Id(n.String())
	return nil
}

// ItemSummary is an entry of the crate's path table.
type ItemSummary struct {
	CrateID uint32   `json:"crate_id"`
	Path    []string `json:"path"`
	Kind    string   `json:"kind"`
}

// FullName joins the path segments with the Rust namespace separator.
func (s ItemSummary) FullName() string {
	return strings.Join(s.Path, "::")
}

type ExternalCrate struct {
	Name        string `json:"name"`
	HTMLRootURL string `json:"html_root_url,omitempty"`
}

// Crate is the whole item graph of one compiled library.
type Crate struct {
	Root           Id                       `json:"root"`
	CrateVersion   string                   `json:"crate_version,omitempty"`
	IncludePrivate bool                     `json:"includes_private"`
	Index          map[Id]*Item             `json:"index"`
	Paths          map[Id]ItemSummary       `json:"paths"`
	ExternalCrates map[string]ExternalCrate `json:"external_crates"`
	FormatVersion  int                      `json:"format_version"`

	namesOnce sync.Once
	names     map[string]struct{}
}

// Load reads a rustdoc JSON file from disk.
func Load(path string) (*Crate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rustdoc json %s: %w", path, err)
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	return c, nil
}

func Decode(r io.Reader) (*Crate, error) {
	var c Crate
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "failed to decode rustdoc json")
	}
	if c.Index == nil {
		c.Index = make(map[Id]*Item)
	}
	if c.Paths == nil {
		c.Paths = make(map[Id]ItemSummary)
	}
	return &c, nil
}

// Item returns the indexed item for id.
func (c *Crate) Item(id Id) (*Item, bool) {
	item, ok := c.Index[id]
	return item, ok
}

// Summary returns the path table entry for id.
func (c *Crate) Summary(id Id) (ItemSummary, bool) {
	s, ok := c.Paths[id]
	return s, ok
}

func (c *Crate) RootItem() (*Item, error) {
	item, ok := c.Index[c.Root]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "root not found in index")
	}
	return item, nil
}

func (c *Crate) RootCrateID() (uint32, error) {
	root, err := c.RootItem()
	if err != nil {
		return 0, err
	}
	return root.CrateID, nil
}

func (c *Crate) RootName() (string, error) {
	root, err := c.RootItem()
	if err != nil {
		return "", err
	}
	if root.Name == nil || *root.Name == "" {
		return "", errors.New(errors.CodeNotFound, "root item has no name")
	}
	return *root.Name, nil
}

// RootModule finds the module flagged as the crate root.
func (c *Crate) RootModule() (*Module, error) {
	if root, err := c.RootItem(); err == nil {
		if m, ok := root.Inner.(*Module); ok && m.IsCrate {
			return m, nil
		}
	}
	for _, item := range c.Index {
		if m, ok := item.Inner.(*Module); ok && m.IsCrate {
			return m, nil
		}
	}
	return nil, errors.New(errors.CodeNotFound, "failed to find crate root module")
}

// HasItemNamed reports whether any indexed item carries the given name.
func (c *Crate) HasItemNamed(name string) bool {
	c.namesOnce.Do(func() {
		c.names = make(map[string]struct{}, len(c.Index))
		for _, item := range c.Index {
			if item.Name != nil {
				c.names[*item.Name] = struct{}{}
			}
		}
	})
	_, ok := c.names[name]
	return ok
}
