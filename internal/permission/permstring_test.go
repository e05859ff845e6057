package permission

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentgraph/internal/apperr"
)

func TestParseActionSet(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"crud", "crud"},
		{"DURC", "crud"},
		{"rC", "cr"},
		{"d", "d"},
	}
	for _, tt := range tests {
		set, err := ParseActionSet(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, set.String(), tt.in)
	}
}

func TestParseActionSet_Rejects(t *testing.T) {
	for _, in := range []string{"x", "crx", "rr", "rR", "c r"} {
		_, err := ParseActionSet(in)
		assert.True(t, apperr.IsBadRequest(err), "%q", in)
	}
}

func TestParsePermissions_Rejects(t *testing.T) {
	bad := []map[string]string{
		{"abc": "r"},
		{"-1": "r"},
		{"5": "rq"},
		{"7": "c", "07": "r"},
	}
	for _, m := range bad {
		_, err := ParsePermissions(m)
		assert.True(t, apperr.IsBadRequest(err), "%v", m)
	}
}

func TestPermissions_Relations(t *testing.T) {
	perms, err := ParsePermissions(map[string]string{"0": "CR", "12": "ud", "3": ""})
	require.NoError(t, err)

	rels := perms.Relations(40)
	require.Len(t, rels, 4)

	var got []string
	for _, r := range rels {
		assert.Equal(t, int64(40), r.ToID)
		got = append(got, strconv.FormatInt(r.FromID, 10)+":"+r.Type)
	}
	assert.Equal(t, []string{"0:create", "0:read", "12:update", "12:delete"}, got)
}

func TestPermissions_RoundTripProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 500; i++ {
		m := randomPermissionMap(rng)

		want, err := Normalize(m)
		require.NoError(t, err, "%v", m)

		perms, err := ParsePermissions(m)
		require.NoError(t, err)
		got := FromRelations(perms.Relations(99)).Strings()

		assert.Equal(t, want, got, "%v", m)
	}
}

// randomPermissionMap produces a valid wire map with shuffled, mixed-case
// permission strings.
func randomPermissionMap(rng *rand.Rand) map[string]string {
	m := map[string]string{}
	for n := rng.IntN(5); n > 0; n-- {
		chars := []byte("crud")
		rng.Shuffle(len(chars), func(i, j int) { chars[i], chars[j] = chars[j], chars[i] })
		s := string(chars[:rng.IntN(5)])
		if rng.IntN(2) == 0 {
			s = strings.ToUpper(s)
		}
		m[strconv.Itoa(rng.IntN(20))] = s
	}
	return m
}
