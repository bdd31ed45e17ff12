package mergejoin

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type child struct {
	parent  int64
	version int64
	label   string
}

func childKey(c *child) Key { return Key{ID: c.parent, Version: c.version} }

func collectLabels(t *testing.T, c *Cursor[child], key Key) []string {
	t.Helper()
	var labels []string
	require.NoError(t, c.Collect(key, func(ch *child) error {
		labels = append(labels, ch.label)
		return nil
	}))
	return labels
}

func TestKeyCompare(t *testing.T) {
	tests := []struct {
		a, b Key
		want int
	}{
		{Key{1, 1}, Key{1, 1}, 0},
		{Key{1, 2}, Key{2, 1}, -1},
		{Key{2, 1}, Key{1, 9}, 1},
		{Key{5, 1}, Key{5, 2}, -1},
		{Key{5, 3}, Key{5, 2}, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.a.Compare(tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestCollectWayVersions(t *testing.T) {
	// way 5 v1 has nodes 10, 20; v2 has node 10
	rows := []child{
		{5, 1, "10"},
		{5, 1, "20"},
		{5, 2, "10"},
	}
	c := NewCursor(rows, childKey)

	assert.Equal(t, []string{"10", "20"}, collectLabels(t, c, Key{5, 1}))
	assert.Equal(t, []string{"10"}, collectLabels(t, c, Key{5, 2}))
	assert.True(t, c.Done())
}

func TestCollectSkipsOrphans(t *testing.T) {
	rows := []child{
		{1, 1, "orphan-a"},
		{2, 1, "keep"},
		{3, 1, "orphan-b"},
		{3, 2, "orphan-c"},
		{4, 1, "last"},
	}
	c := NewCursor(rows, childKey)

	assert.Equal(t, []string{"keep"}, collectLabels(t, c, Key{2, 1}))
	assert.Equal(t, 2, c.Pos())
	assert.Equal(t, []string{"last"}, collectLabels(t, c, Key{4, 1}))
	assert.True(t, c.Done())
}

func TestCollectStopsAtLargerKey(t *testing.T) {
	rows := []child{{7, 1, "a"}, {9, 1, "b"}}
	c := NewCursor(rows, childKey)

	assert.Empty(t, collectLabels(t, c, Key{8, 1}))
	assert.Equal(t, 1, c.Pos(), "child of a later parent must not be consumed")
	assert.Equal(t, []string{"b"}, collectLabels(t, c, Key{9, 1}))
}

func TestCollectDuplicatesKeepOrder(t *testing.T) {
	rows := []child{{1, 0, "first"}, {1, 0, "second"}, {1, 0, "third"}}
	c := NewCursor(rows, childKey)
	assert.Equal(t, []string{"first", "second", "third"}, collectLabels(t, c, Key{ID: 1}))
}

func TestSkipAdvancesPastDeletedParent(t *testing.T) {
	// node 3 v2 is deleted but still has tag rows at v1 and v2
	rows := []child{{3, 1, "old"}, {3, 2, "stale"}, {4, 1, "next"}}
	c := NewCursor(rows, childKey)

	require.NoError(t, c.Skip(Key{3, 2}))
	assert.Equal(t, 2, c.Pos())
	assert.Equal(t, []string{"next"}, collectLabels(t, c, Key{4, 1}))
}

func TestCountDoesNotConsume(t *testing.T) {
	rows := []child{{1, 0, "hidden"}, {2, 0, "shown"}, {2, 0, "hidden"}, {2, 0, "shown"}, {3, 0, "shown"}}
	c := NewCursor(rows, childKey)

	n := c.Count(Key{ID: 2}, func(ch *child) bool { return ch.label == "shown" })
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, c.Pos())
	assert.Equal(t, 3, c.Count(Key{ID: 2}, nil))

	assert.Equal(t, []string{"shown", "hidden", "shown"}, collectLabels(t, c, Key{ID: 2}))
}

func TestCollectPropagatesVisitError(t *testing.T) {
	boom := errors.New("boom")
	c := NewCursor([]child{{1, 1, "a"}, {1, 1, "b"}}, childKey)

	calls := 0
	err := c.Collect(Key{1, 1}, func(*child) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestStrictOrder(t *testing.T) {
	c := NewCursor([]child{{1, 1, "a"}, {2, 1, "b"}}, childKey)
	c.SetStrict(true)

	require.NoError(t, c.Skip(Key{2, 1}))
	err := c.Skip(Key{1, 1})
	assert.ErrorIs(t, err, ErrOutOfOrder)

	unsorted := NewCursor([]child{{2, 1, "b"}, {1, 1, "a"}}, childKey)
	unsorted.SetStrict(true)
	assert.ErrorIs(t, unsorted.Skip(Key{3, 1}), ErrOutOfOrder)

	lenient := NewCursor([]child{{2, 1, "b"}, {1, 1, "a"}}, childKey)
	assert.NoError(t, lenient.Skip(Key{3, 1}))
}

// Every child is visited exactly once, under the parent with the same key,
// and the cursor never moves backwards.
func TestCollectMatchesExactly(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		var parents []Key
		for id := int64(1); id <= 40; id++ {
			if rng.Intn(3) == 0 {
				continue
			}
			for v := int64(1); v <= int64(1+rng.Intn(3)); v++ {
				parents = append(parents, Key{id, v})
			}
		}

		var rows []child
		for i := 0; i < 200; i++ {
			rows = append(rows, child{parent: int64(1 + rng.Intn(45)), version: int64(1 + rng.Intn(4)), label: string(rune('a' + i%26))})
		}
		sort.SliceStable(rows, func(i, j int) bool { return childKey(&rows[i]).Compare(childKey(&rows[j])) < 0 })

		c := NewCursor(rows, childKey)
		c.SetStrict(true)
		visited := make(map[*child]int)
		lastPos := 0
		for _, p := range parents {
			require.NoError(t, c.Collect(p, func(ch *child) error {
				assert.Equal(t, p, childKey(ch))
				visited[ch]++
				return nil
			}))
			assert.GreaterOrEqual(t, c.Pos(), lastPos)
			lastPos = c.Pos()
		}

		isParent := make(map[Key]bool, len(parents))
		for _, p := range parents {
			isParent[p] = true
		}
		for i := range rows {
			want := 0
			if isParent[childKey(&rows[i])] {
				want = 1
			}
			assert.Equal(t, want, visited[&rows[i]], "row %d %+v", i, rows[i])
		}
	}
}
