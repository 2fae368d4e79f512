package domain

import (
	"fmt"

	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

// AttributeKind is the closed set of attribute behaviours.
type AttributeKind int

const (
	KindStandard AttributeKind = iota
	KindVirtualList
	KindVirtualFlag
)

// KindBehavior is what an attribute kind implies for rules and facets.
type KindBehavior struct {
	// Virtual kinds compute option membership from per-option rules.
	Virtual bool
	// FacetPrefix prefixes query group names built for the attribute.
	FacetPrefix string
	// SingleOption kinds expose exactly one option (a yes/no flag).
	SingleOption bool
}

var kindBehaviors = map[AttributeKind]KindBehavior{
	KindStandard:    {},
	KindVirtualList: {Virtual: true, FacetPrefix: "virtual_attribute_"},
	KindVirtualFlag: {Virtual: true, FacetPrefix: "virtual_attribute_", SingleOption: true},
}

var kindNames = map[AttributeKind]string{
	KindStandard:    "standard",
	KindVirtualList: "virtual_attribute_list",
	KindVirtualFlag: "virtual_attribute_flag",
}

var standardInputs = map[string]struct{}{
	"": {}, "text": {}, "textarea": {}, "select": {}, "multiselect": {},
	"price": {}, "boolean": {}, "date": {}, "weight": {},
}

// ParseAttributeKind resolves a catalog frontend input type to a kind. It is
// called once when catalog metadata is loaded.
func ParseAttributeKind(frontendInput string) (AttributeKind, error) {
	for k, name := range kindNames {
		if name == frontendInput && k != KindStandard {
			return k, nil
		}
	}
	if _, ok := standardInputs[frontendInput]; ok {
		return KindStandard, nil
	}
	return KindStandard, apperrors.Configuration(fmt.Sprintf("unknown attribute input type %q", frontendInput))
}

// Behavior returns the behaviour table entry of k.
func (k AttributeKind) Behavior() KindBehavior { return kindBehaviors[k] }

func (k AttributeKind) String() string { return kindNames[k] }

// BackendType is the storage type of attribute values.
type BackendType string

const (
	BackendInt      BackendType = "int"
	BackendDecimal  BackendType = "decimal"
	BackendVarchar  BackendType = "varchar"
	BackendText     BackendType = "text"
	BackendDatetime BackendType = "datetime"
	BackendBoolean  BackendType = "boolean"
)

// Attribute is catalog attribute metadata.
type Attribute struct {
	ID      int64             `json:"id"`
	Code    string            `json:"code"`
	Label   string            `json:"label"`
	Kind    AttributeKind     `json:"kind"`
	Backend BackendType       `json:"backend"`
	Field   string            `json:"field,omitempty"`
	Options []AttributeOption `json:"options,omitempty"`
}

// FieldName is the index field holding the attribute's values.
func (a Attribute) FieldName() string {
	if a.Field != "" {
		return a.Field
	}
	return a.Code
}

// Ordered reports whether range operators apply to the attribute.
func (a Attribute) Ordered() bool {
	switch a.Backend {
	case BackendInt, BackendDecimal, BackendDatetime:
		return true
	}
	return false
}

// QueryGroupName is the facet name of a virtual attribute, e.g. "virtual_attribute_color".
func (a Attribute) QueryGroupName() string {
	return a.Kind.Behavior().FacetPrefix + a.Code
}

// Option returns the option with the given id.
func (a Attribute) Option(id int64) (AttributeOption, bool) {
	for _, o := range a.Options {
		if o.ID == id {
			return o, true
		}
	}
	return AttributeOption{}, false
}

// AttributeOption is one value of an attribute. Options of virtual
// attributes carry the rule computing their membership.
type AttributeOption struct {
	ID        int64          `json:"id"`
	Label     string         `json:"label"`
	SortOrder int            `json:"sort_order"`
	Rule      *ConditionNode `json:"rule,omitempty"`
}
