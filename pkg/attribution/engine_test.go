package attribution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeScenario(t *testing.T) {
	keys := map[int]string{100: "k1", 101: "k2", 205: "k3", 206: "k4"}
	catalog := NewIDSet(100)

	res, err := New().Attribute(context.Background(), keys, catalog)
	require.NoError(t, err)

	assert.Equal(t, Groups{
		100: {100, 101},
		205: {205, 206},
	}, res.Groups)
	assert.Equal(t, 4, res.ValidDepots)
	assert.Equal(t, 2, res.Attributed)
	assert.Equal(t, 2, res.Clustered)
	assert.Equal(t, 1, res.SyntheticOwners)
	assert.Zero(t, res.Dropped())
}

func TestAttributeSkipsBlankKeys(t *testing.T) {
	keys := map[int]string{5: "", 6: "   ", 7: "\t\n", 8: "k"}

	res, err := New().Attribute(context.Background(), keys, NewIDSet(1, 2, 3))
	require.NoError(t, err)

	for _, depots := range res.Groups {
		assert.NotContains(t, depots, 5)
		assert.NotContains(t, depots, 6)
		assert.NotContains(t, depots, 7)
	}
	assert.Equal(t, 1, res.ValidDepots)
}

func TestAttributeEmptyInput(t *testing.T) {
	res, err := New().Attribute(context.Background(), map[int]string{}, NewIDSet())
	require.NoError(t, err)
	assert.Empty(t, res.Groups)
	assert.Zero(t, res.ValidDepots)
}

func TestAttributeZeroDepot(t *testing.T) {
	// 0 has no catalog neighbour in [1, 10) and clusters with 3; the run's minimum is 0 so the
	// whole run is discarded.
	keys := map[int]string{0: "a", 3: "b", 500: "c"}

	res, err := New().Attribute(context.Background(), keys, NewIDSet())
	require.NoError(t, err)

	assert.Equal(t, Groups{500: {500}}, res.Groups)
	assert.Equal(t, 2, res.Dropped())
	_, hasZero := res.Groups[0]
	assert.False(t, hasZero)
}

func TestAttributeIsPartition(t *testing.T) {
	keys := make(map[int]string)
	for id := 1; id <= 3000; id += 7 {
		keys[id] = "key"
	}
	catalog := NewIDSet(10, 400, 410, 1200, 2999)

	res, err := New(WithMaxGap(20)).Attribute(context.Background(), keys, catalog)
	require.NoError(t, err)

	seen := make(map[int]int)
	for owner, depots := range res.Groups {
		assert.NotZero(t, owner)
		for i, d := range depots {
			_, valid := keys[d]
			assert.True(t, valid, "depot %d is not an input depot", d)
			seen[d]++
			if i > 0 {
				assert.Less(t, depots[i-1], d, "group %d is not ascending", owner)
			}
		}
	}
	for d, n := range seen {
		assert.Equal(t, 1, n, "depot %d appears %d times", d, n)
	}
	assert.Equal(t, len(keys), len(seen))
}

func TestAttributeDeterministic(t *testing.T) {
	keys := make(map[int]string)
	for id := 1; id <= 5000; id += 3 {
		keys[id] = "key"
	}
	catalog := NewIDSet(7, 77, 777, 1500, 1520, 4000)

	first, err := New().Attribute(context.Background(), keys, catalog)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := New().Attribute(context.Background(), keys, catalog)
		require.NoError(t, err)
		assert.Equal(t, first.Groups, again.Groups)
	}
}

func TestClusterGapBoundary(t *testing.T) {
	groups, err := Cluster(context.Background(), []int{300, 250, 200, 351}, 50, Hooks{})
	require.NoError(t, err)

	assert.Equal(t, Groups{
		200: {200, 250, 300},
		351: {351},
	}, groups)
}

func TestClusterIdempotent(t *testing.T) {
	input := []int{9000, 10, 12, 70, 71, 500, 549, 600, 601, 602, 3000}
	maxGap := 50

	once, err := Cluster(context.Background(), input, maxGap, Hooks{})
	require.NoError(t, err)

	var residue []int
	for _, owner := range once.Owners() {
		residue = append(residue, once[owner]...)
	}
	twice, err := Cluster(context.Background(), residue, maxGap, Hooks{})
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestClusterDeduplicates(t *testing.T) {
	groups, err := Cluster(context.Background(), []int{5, 5, 6}, 50, Hooks{})
	require.NoError(t, err)
	assert.Equal(t, Groups{5: {5, 6}}, groups)
}

func TestPrimaryReportsProgress(t *testing.T) {
	depots := make([]int, 25)
	for i := range depots {
		depots[i] = i + 1
	}

	var seen []Progress
	hooks := Hooks{Interval: 10, Progress: func(p Progress) { seen = append(seen, p) }}

	_, unattributed, err := Primary(context.Background(), depots, NewIDSet(), hooks)
	require.NoError(t, err)
	assert.Len(t, unattributed, 25)

	require.Len(t, seen, 4)
	assert.Equal(t, Progress{Phase: PhasePrimary, Processed: 0, Total: 25}, seen[0])
	assert.Equal(t, 20, seen[2].Processed)
	assert.Equal(t, Progress{Phase: PhasePrimary, Processed: 25, Total: 25}, seen[3])
}

func TestAttributeCancelledMidRun(t *testing.T) {
	keys := make(map[int]string, 10000)
	for id := 1; id <= 10000; id++ {
		keys[id*100] = "key"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := New(WithCheckInterval(100), WithProgress(func(p Progress) {
		if p.Phase == PhasePrimary && p.Processed >= 5000 {
			cancel()
		}
	}))

	res, err := eng.Attribute(ctx, keys, NewIDSet(100, 200))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAttributeCancelledDuringClustering(t *testing.T) {
	keys := make(map[int]string)
	for id := 1000; id < 200000; id += 100 {
		keys[id] = "key"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := New(WithMaxGap(10), WithProgress(func(p Progress) {
		if p.Phase == PhasePrimary && p.Processed == p.Total {
			cancel()
		}
	}))

	res, err := eng.Attribute(ctx, keys, NewIDSet())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestAttributeAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New().Attribute(ctx, map[int]string{1: "a"}, NewIDSet(1))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrCancelled)
}
