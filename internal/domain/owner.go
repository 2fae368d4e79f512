package domain

// AdminStoreID is the store scope shared by every store view.
const AdminStoreID int64 = 0

// OwnerKind names what a rule or a set of positions belongs to.
type OwnerKind string

const (
	OwnerSearchTerm      OwnerKind = "search_term"
	OwnerCategory        OwnerKind = "category"
	OwnerAttributeOption OwnerKind = "attribute_option"
)

// Owner identifies a search term or category in a store scope.
type Owner struct {
	Kind    OwnerKind `json:"kind"`
	ID      int64     `json:"id"`
	StoreID int64     `json:"store_id"`
}

// Persisted reports whether the owner has a stored identity.
func (o Owner) Persisted() bool { return o.ID > 0 }

// Store is a store view of the catalog.
type Store struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
}

// Category is a catalog category. Virtual categories compute their
// membership from Rule; static ones list products directly and inherit
// their active children.
type Category struct {
	ID        int64          `json:"id"`
	ParentID  int64          `json:"parent_id"`
	Name      string         `json:"name"`
	Position  int            `json:"position"`
	IsActive  bool           `json:"is_active"`
	IsVirtual bool           `json:"is_virtual"`
	Rule      *ConditionNode `json:"rule,omitempty"`
}

// SearchTerm is a stored search query merchandisers can rank products for.
type SearchTerm struct {
	ID      int64  `json:"id"`
	StoreID int64  `json:"store_id"`
	Text    string `json:"text"`
}

// CategoryField is the index field listing a product's static categories.
const CategoryField = "categories"
