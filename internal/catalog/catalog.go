// Package catalog loads the catalog metadata the rule compilers read: stores,
// categories, attributes with their options and rules, and optionally
// products used to seed development indices.
package catalog

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/utafrali/searchandising/internal/domain"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

// File is the yaml layout of one catalog file. A catalog may be split across
// several files; their sections are concatenated.
type File struct {
	Stores     []StoreSpec     `yaml:"stores"`
	Categories []CategorySpec  `yaml:"categories"`
	Attributes []AttributeSpec `yaml:"attributes"`
	Products   []ProductSpec   `yaml:"products"`
}

type StoreSpec struct {
	ID   int64  `yaml:"id"`
	Code string `yaml:"code"`
}

type CategorySpec struct {
	ID       int64                 `yaml:"id"`
	ParentID int64                 `yaml:"parent_id"`
	Name     string                `yaml:"name"`
	Position int                   `yaml:"position"`
	Active   *bool                 `yaml:"active"`
	Virtual  bool                  `yaml:"virtual"`
	Rule     *domain.ConditionNode `yaml:"rule"`
	// InactiveStores lists the stores the category is disabled in.
	InactiveStores []int64 `yaml:"inactive_stores"`
}

type AttributeSpec struct {
	ID      int64        `yaml:"id"`
	Code    string       `yaml:"code"`
	Label   string       `yaml:"label"`
	Input   string       `yaml:"input"`
	Backend string       `yaml:"backend"`
	Field   string       `yaml:"field"`
	Options []OptionSpec `yaml:"options"`
}

type OptionSpec struct {
	ID        int64                 `yaml:"id"`
	Label     string                `yaml:"label"`
	SortOrder int                   `yaml:"sort_order"`
	Rule      *domain.ConditionNode `yaml:"rule"`
}

// ProductSpec is a product with its index fields, indexed once per store.
type ProductSpec struct {
	ID     int64          `yaml:"id"`
	Stores []int64        `yaml:"stores"`
	Fields map[string]any `yaml:"fields"`
}

// Catalog is immutable once built and safe for concurrent reads.
type Catalog struct {
	stores       []domain.Store
	categories   map[int64]CategorySpec
	children     map[int64][]int64
	attributes   map[string]domain.Attribute
	attributeIDs map[int64]string
	products     []ProductSpec
}

// Load reads every yaml file matching pattern, a doublestar glob such as
// "config/catalog/**/*.yaml".
func Load(pattern string) (*Catalog, error) {
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, apperrors.Configuration(fmt.Sprintf("catalog pattern %q: %v", pattern, err))
	}
	if len(paths) == 0 {
		return nil, apperrors.Configuration(fmt.Sprintf("catalog pattern %q matches no files", pattern))
	}
	slices.Sort(paths)

	files := make([]File, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog file: %w", err)
		}
		f, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		files = append(files, f)
	}
	return Build(files...)
}

// Parse decodes one catalog file. Unknown keys are rejected.
func Parse(data []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, apperrors.Configuration(fmt.Sprintf("decode catalog: %v", err))
	}
	return f, nil
}

// Build validates files and indexes them. Duplicate ids, unknown parents
// and unknown attribute input types are configuration errors.
func Build(files ...File) (*Catalog, error) {
	c := &Catalog{
		categories:   make(map[int64]CategorySpec),
		children:     make(map[int64][]int64),
		attributes:   make(map[string]domain.Attribute),
		attributeIDs: make(map[int64]string),
	}

	seenStores := map[int64]bool{}
	for _, f := range files {
		for _, s := range f.Stores {
			if seenStores[s.ID] {
				return nil, apperrors.Configuration(fmt.Sprintf("store %d defined twice", s.ID))
			}
			seenStores[s.ID] = true
			c.stores = append(c.stores, domain.Store{ID: s.ID, Code: s.Code})
		}
		for _, cat := range f.Categories {
			if cat.ID <= 0 {
				return nil, apperrors.Configuration(fmt.Sprintf("category %q has no id", cat.Name))
			}
			if _, dup := c.categories[cat.ID]; dup {
				return nil, apperrors.Configuration(fmt.Sprintf("category %d defined twice", cat.ID))
			}
			c.categories[cat.ID] = cat
		}
		for _, spec := range f.Attributes {
			attr, err := buildAttribute(spec)
			if err != nil {
				return nil, err
			}
			if _, dup := c.attributes[attr.Code]; dup {
				return nil, apperrors.Configuration(fmt.Sprintf("attribute %q defined twice", attr.Code))
			}
			if _, dup := c.attributeIDs[attr.ID]; dup {
				return nil, apperrors.Configuration(fmt.Sprintf("attribute id %d defined twice", attr.ID))
			}
			c.attributes[attr.Code] = attr
			c.attributeIDs[attr.ID] = attr.Code
		}
		c.products = append(c.products, f.Products...)
	}
	slices.SortFunc(c.stores, func(a, b domain.Store) int { return cmp.Compare(a.ID, b.ID) })

	for id, cat := range c.categories {
		if cat.ParentID == 0 {
			continue
		}
		if _, ok := c.categories[cat.ParentID]; !ok {
			return nil, apperrors.Configuration(fmt.Sprintf("category %d has unknown parent %d", id, cat.ParentID))
		}
		c.children[cat.ParentID] = append(c.children[cat.ParentID], id)
	}
	for parent, ids := range c.children {
		slices.SortFunc(ids, func(a, b int64) int {
			pa, pb := c.categories[a].Position, c.categories[b].Position
			if pa != pb {
				return cmp.Compare(pa, pb)
			}
			return cmp.Compare(a, b)
		})
		c.children[parent] = ids
	}
	return c, nil
}

func buildAttribute(spec AttributeSpec) (domain.Attribute, error) {
	if spec.ID <= 0 || spec.Code == "" {
		return domain.Attribute{}, apperrors.Configuration(fmt.Sprintf("attribute %q needs an id and a code", spec.Code))
	}
	kind, err := domain.ParseAttributeKind(spec.Input)
	if err != nil {
		return domain.Attribute{}, fmt.Errorf("attribute %q: %w", spec.Code, err)
	}
	backend := domain.BackendType(spec.Backend)
	if backend == "" {
		backend = domain.BackendVarchar
	}

	attr := domain.Attribute{
		ID:      spec.ID,
		Code:    spec.Code,
		Label:   spec.Label,
		Kind:    kind,
		Backend: backend,
		Field:   spec.Field,
	}
	for _, o := range spec.Options {
		attr.Options = append(attr.Options, domain.AttributeOption{
			ID: o.ID, Label: o.Label, SortOrder: o.SortOrder, Rule: o.Rule,
		})
	}
	slices.SortStableFunc(attr.Options, func(a, b domain.AttributeOption) int {
		return cmp.Compare(a.SortOrder, b.SortOrder)
	})
	return attr, nil
}

// Stores returns every store ordered by id.
func (c *Catalog) Stores() []domain.Store { return slices.Clone(c.stores) }

// StoreIDs returns the id of every store.
func (c *Catalog) StoreIDs(context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(c.stores))
	for _, s := range c.stores {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (c *Catalog) category(spec CategorySpec, storeID int64) domain.Category {
	active := spec.Active == nil || *spec.Active
	if slices.Contains(spec.InactiveStores, storeID) {
		active = false
	}
	return domain.Category{
		ID:        spec.ID,
		ParentID:  spec.ParentID,
		Name:      spec.Name,
		Position:  spec.Position,
		IsActive:  active,
		IsVirtual: spec.Virtual,
		Rule:      spec.Rule,
	}
}

// Category returns category id as seen from storeID.
func (c *Catalog) Category(_ context.Context, id, storeID int64) (domain.Category, error) {
	spec, ok := c.categories[id]
	if !ok {
		return domain.Category{}, apperrors.NotFound("category", id)
	}
	return c.category(spec, storeID), nil
}

// Children returns the direct children of parentID ordered by position.
func (c *Catalog) Children(_ context.Context, parentID, storeID int64) ([]domain.Category, error) {
	ids := c.children[parentID]
	out := make([]domain.Category, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.category(c.categories[id], storeID))
	}
	return out, nil
}

// AttributeByCode returns the attribute with the given code.
func (c *Catalog) AttributeByCode(code string) (domain.Attribute, bool) {
	a, ok := c.attributes[code]
	return a, ok
}

// AttributeByID returns the attribute with the given id.
func (c *Catalog) AttributeByID(id int64) (domain.Attribute, bool) {
	code, ok := c.attributeIDs[id]
	if !ok {
		return domain.Attribute{}, false
	}
	return c.attributes[code], true
}

// VirtualAttributes returns the attributes whose options carry rules, by code.
func (c *Catalog) VirtualAttributes() []domain.Attribute {
	var out []domain.Attribute
	for _, a := range c.attributes {
		if a.Kind.Behavior().Virtual {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b domain.Attribute) int { return cmp.Compare(a.Code, b.Code) })
	return out
}

// Documents returns the base index document of every product per store,
// keyed by composite document id.
func (c *Catalog) Documents() map[string]domain.Fields {
	out := make(map[string]domain.Fields)
	for _, p := range c.products {
		stores := p.Stores
		if len(stores) == 0 {
			stores, _ = c.StoreIDs(context.Background())
		}
		for _, storeID := range stores {
			doc := domain.Fields{"entity_id": p.ID, "store_id": storeID}
			for k, v := range p.Fields {
				doc[k] = v
			}
			out[domain.DocumentID(p.ID, storeID)] = doc
		}
	}
	return out
}
