package presence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentgraph/internal/testutil"
)

const grace = 10 * time.Second

func newRegistry() (*Registry, *testutil.ManualClock) {
	clock := testutil.NewManualClock(time.Time{})
	return NewRegistry(WithClock(clock.Now)), clock
}

func TestNewKey_Canonical(t *testing.T) {
	a := NewKey(7, []int64{30, 10, 20, 10})
	b := NewKey(7, []int64{10, 20, 30})

	assert.Equal(t, a, b)
	assert.Equal(t, "10,20,30", a.Scope)
	assert.Equal(t, "", NewKey(7, nil).Scope)
}

func TestDecay_RefreshedEntriesPersist(t *testing.T) {
	r, clock := newRegistry()
	alice := NewKey(1, []int64{5})
	bob := NewKey(2, []int64{5})

	r.Update("room", alice, bob)
	clock.Advance(8 * time.Second)
	r.Update("room", alice)
	clock.Advance(8 * time.Second)

	assert.Equal(t, []Key{alice}, r.Decay("room", grace), "bob's heartbeat is 16s old")
}

func TestDecay_BoundaryIsInclusive(t *testing.T) {
	r, clock := newRegistry()
	k := NewKey(1, nil)

	r.Update("g", k)
	clock.Advance(grace)
	assert.Equal(t, []Key{k}, r.Decay("g", grace))

	clock.Advance(time.Nanosecond)
	assert.Empty(t, r.Decay("g", grace))
	assert.Zero(t, r.Groups(), "empty groups are pruned")
}

func TestDecay_Ordered(t *testing.T) {
	r, _ := newRegistry()
	r.Update("g", NewKey(3, []int64{1}), NewKey(1, []int64{2}), NewKey(1, []int64{1}))

	assert.Equal(t, []Key{
		{UserID: 1, Scope: "1"},
		{UserID: 1, Scope: "2"},
		{UserID: 3, Scope: "1"},
	}, r.Decay("g", grace))
}

func TestUpdate_ReconnectMerges(t *testing.T) {
	r, _ := newRegistry()

	r.Update("g", NewKey(1, []int64{2, 1}))
	r.Update("g", NewKey(1, []int64{1, 2}))

	assert.Len(t, r.Decay("g", grace), 1)
}

func TestCounts_Multiset(t *testing.T) {
	r, clock := newRegistry()

	r.Update("g", NewKey(1, []int64{5}), NewKey(1, []int64{5, 6}), NewKey(2, []int64{5}))
	assert.Equal(t, map[int64]int{1: 2, 2: 1}, r.Counts("g", grace))

	clock.Advance(grace + time.Second)
	r.Update("g", NewKey(2, []int64{5}))
	assert.Equal(t, map[int64]int{2: 1}, r.Counts("g", grace))
}

func TestGroupsAreIndependent(t *testing.T) {
	r, _ := newRegistry()
	k := NewKey(1, nil)

	r.Update("a", k)
	assert.Empty(t, r.Decay("b", grace))
	assert.Equal(t, []Key{k}, r.Decay("a", grace))
}

func TestUpdate_SweepsUnreadGroups(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	r := NewRegistry(WithClock(clock.Now), WithRetention(30*time.Second))
	alice := NewKey(1, []int64{5})

	r.Update("abandoned", alice)
	clock.Advance(20 * time.Second)
	r.Update("recent", alice)
	assert.Equal(t, 2, r.Groups(), "nothing is old enough to sweep yet")

	clock.Advance(15 * time.Second)
	r.Update("current", alice)

	assert.Equal(t, 2, r.Groups())
	assert.Empty(t, r.Decay("abandoned", time.Hour))
	assert.Equal(t, []Key{alice}, r.Decay("recent", time.Hour))
}

func TestForget(t *testing.T) {
	r, _ := newRegistry()
	a, b := NewKey(1, nil), NewKey(2, nil)
	r.Update("g", a, b)

	r.Forget("g", a)
	assert.Equal(t, []Key{b}, r.Decay("g", grace))

	r.Forget("g")
	assert.Empty(t, r.Decay("g", grace))
	assert.Zero(t, r.Groups())
}

func TestConcurrentHeartbeats(t *testing.T) {
	r, clock := newRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := NewKey(int64(i%10), []int64{int64(i)})
			r.Update(fmt.Sprintf("g%d", i%3), key)
			clock.Advance(time.Millisecond)
			_ = r.Counts(fmt.Sprintf("g%d", i%3), grace)
		}()
	}
	wg.Wait()

	total := 0
	for g := 0; g < 3; g++ {
		total += len(r.Decay(fmt.Sprintf("g%d", g), grace))
	}
	require.Equal(t, 50, total)
}
