package permission

import (
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/ir"
)

// ActionSet is a set of actions encoded as bits in c, r, u, d order.
type ActionSet uint8

var actionChars = map[rune]ir.Action{
	'c': ir.ActionCreate,
	'r': ir.ActionRead,
	'u': ir.ActionUpdate,
	'd': ir.ActionDelete,
}

func bit(a ir.Action) ActionSet {
	switch a {
	case ir.ActionCreate:
		return 1
	case ir.ActionRead:
		return 2
	case ir.ActionUpdate:
		return 4
	case ir.ActionDelete:
		return 8
	}
	return 0
}

// Has reports whether the set contains a.
func (s ActionSet) Has(a ir.Action) bool {
	b := bit(a)
	return b != 0 && s&b == b
}

// String renders the set in canonical lowercase "crud" order.
func (s ActionSet) String() string {
	var b strings.Builder
	for _, a := range ir.Actions {
		if s.Has(a) {
			b.WriteByte(string(a)[0])
		}
	}
	return b.String()
}

// ParseActionSet parses a permission string. Characters are drawn from
// c, r, u, d in any case and order, each at most once.
func ParseActionSet(s string) (ActionSet, error) {
	var set ActionSet
	for _, ch := range strings.ToLower(s) {
		a, ok := actionChars[ch]
		if !ok {
			return 0, apperr.BadRequest("invalid permission character %q in %q", ch, s)
		}
		if set.Has(a) {
			return 0, apperr.BadRequest("duplicate permission character %q in %q", ch, s)
		}
		set |= bit(a)
	}
	return set, nil
}

// Permissions maps a user id to its granted actions. User 0 is the
// public/default grant. Grants are additive across users.
type Permissions map[int64]ActionSet

// ParsePermissions parses the wire form: decimal user id keys mapped to
// permission strings. Users with an empty string get no grants.
func ParsePermissions(m map[string]string) (Permissions, error) {
	perms := make(Permissions, len(m))
	for key, value := range m {
		id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil || id < 0 {
			return nil, apperr.BadRequest("invalid permission user id %q", key)
		}
		set, err := ParseActionSet(value)
		if err != nil {
			return nil, err
		}
		if set == 0 {
			continue
		}
		if _, dup := perms[id]; dup {
			return nil, apperr.BadRequest("permission user id %d given twice", id)
		}
		perms[id] = set
	}
	return perms, nil
}

// Relations expands the permissions into grant relations pointing at
// entityID, ordered by user id then c, r, u, d.
func (p Permissions) Relations(entityID int64) []ir.Relation {
	users := make([]int64, 0, len(p))
	for id := range p {
		users = append(users, id)
	}
	slices.Sort(users)

	var rels []ir.Relation
	for _, id := range users {
		for _, a := range ir.Actions {
			if p[id].Has(a) {
				rels = append(rels, ir.Relation{
					Type:   string(a),
					FromID: id,
					ToID:   entityID,
					Kind:   ir.KindLive,
				})
			}
		}
	}
	return rels
}

// FromRelations collects the live grant relations of a package.
func FromRelations(rels []ir.Relation) Permissions {
	perms := Permissions{}
	for _, r := range rels {
		if r.Kind != ir.KindLive && r.Kind != "" {
			continue
		}
		a := ir.Action(r.Type)
		if a.Valid() {
			perms[r.FromID] |= bit(a)
		}
	}
	return perms
}

// Strings renders the wire form with canonical permission strings.
func (p Permissions) Strings() map[string]string {
	out := make(map[string]string, len(p))
	for id, set := range p {
		if set != 0 {
			out[strconv.FormatInt(id, 10)] = set.String()
		}
	}
	return out
}

// Normalize parses and re-renders a wire permission map.
func Normalize(m map[string]string) (map[string]string, error) {
	perms, err := ParsePermissions(m)
	if err != nil {
		return nil, err
	}
	return perms.Strings(), nil
}
