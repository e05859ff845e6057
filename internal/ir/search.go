package ir

import "time"

// MaxLimit is the absolute ceiling on rows returned by any search,
// regardless of configuration or caller input.
const MaxLimit = 1000

// Sort fields accepted by Search.Sort.
const (
	SortID         = "id"
	SortName       = "name"
	SortType       = "type"
	SortCreateDate = "createdate"
)

// ValidSorts lists the accepted Search.Sort values.
var ValidSorts = map[string]bool{
	"":             true,
	SortID:         true,
	SortName:       true,
	SortType:       true,
	SortCreateDate: true,
}

// Search is a declarative entity filter. Zero-valued fields do not filter.
type Search struct {
	IDs         []int64   `json:"ids,omitempty" yaml:"ids,omitempty"`
	TypeLike    string    `json:"type,omitempty" yaml:"type,omitempty"`
	NameLike    string    `json:"name,omitempty" yaml:"name,omitempty"`
	ParentIDs   []int64   `json:"parentIds,omitempty" yaml:"parentIds,omitempty"`
	CreateStart time.Time `json:"createStart,omitempty" yaml:"createStart,omitempty"`
	CreateEnd   time.Time `json:"createEnd,omitempty" yaml:"createEnd,omitempty"`
	Limit       int       `json:"limit,omitempty" yaml:"limit,omitempty"`
	Skip        int       `json:"skip,omitempty" yaml:"skip,omitempty"`
	Sort        string    `json:"sort,omitempty" yaml:"sort,omitempty"`
	Reverse     bool      `json:"reverse,omitempty" yaml:"reverse,omitempty"`
}

// RelationSearch is a declarative relation filter. MinID is exclusive:
// only relations with id strictly greater than MinID match.
type RelationSearch struct {
	IDs     []int64  `json:"ids,omitempty"`
	Types   []string `json:"types,omitempty"`
	FromIDs []int64  `json:"fromIds,omitempty"`
	ToIDs   []int64  `json:"toIds,omitempty"`
	// SubjectIDs matches edits and tombstones about the given relations.
	SubjectIDs []int64        `json:"subjectIds,omitempty"`
	Kinds      []RelationKind `json:"kinds,omitempty"`
	MinID      int64          `json:"minId,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	Skip       int            `json:"skip,omitempty"`
	Reverse    bool           `json:"reverse,omitempty"`
}

// ClampLimit returns a limit in [1, ceiling], substituting def for
// non-positive input. ceiling itself never exceeds MaxLimit.
func ClampLimit(limit, def, ceiling int) int {
	if ceiling <= 0 || ceiling > MaxLimit {
		ceiling = MaxLimit
	}
	if limit <= 0 {
		limit = def
	}
	if limit <= 0 {
		limit = ceiling
	}
	if limit > ceiling {
		limit = ceiling
	}
	return limit
}
