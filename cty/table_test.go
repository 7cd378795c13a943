package cty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupLongestPrefix(t *testing.T) {
	tbl := parseSample(t)
	e, ok := tbl.Lookup("DL1ABC")
	require.True(t, ok)
	assert.Equal(t, 50.5, e.Latitude, "DL1 must beat DL")

	e, ok = tbl.Lookup("DL2ABC")
	require.True(t, ok)
	assert.Equal(t, "Fed. Rep. of Germany", e.Name)
	assert.Equal(t, 51.0, e.Latitude)
}

func TestLookupExactMatchPrecedence(t *testing.T) {
	tbl := parseSample(t)
	e, ok := tbl.Lookup("BS7H")
	require.True(t, ok)
	assert.Equal(t, "Scarborough Reef", e.Name)
	assert.True(t, e.ExactMatch)

	e, ok = tbl.Lookup("DL0XYZ")
	require.True(t, ok)
	assert.Equal(t, 15, e.CQZone)
}

func TestLookupExactKeyStillCompetesAsPrefix(t *testing.T) {
	tbl := parseSample(t)
	e, ok := tbl.Lookup("BS7HA")
	require.True(t, ok)
	assert.Equal(t, "Scarborough Reef", e.Name)
	assert.True(t, e.ExactMatch)
}

func TestLookupNonExactAlias(t *testing.T) {
	tbl := parseSample(t)
	e, ok := tbl.Lookup("S6ABC")
	require.True(t, ok)
	assert.Equal(t, "Singapore", e.Name)
	assert.False(t, e.ExactMatch)

	e, ok = tbl.Lookup("S6")
	require.True(t, ok)
	assert.Equal(t, "Singapore", e.Name)
}

func TestLookupSingleCharacterPrefix(t *testing.T) {
	tbl := parseSample(t)
	e, ok := tbl.Lookup("BX1AA")
	require.True(t, ok)
	assert.Equal(t, "China", e.Name)
}

func TestLookupNoMatch(t *testing.T) {
	tbl := parseSample(t)
	for _, call := range []string{"012", "", "ZZ9ZZ", "dl1abc"} {
		_, ok := tbl.Lookup(call)
		assert.False(t, ok, call)
	}
}

func TestLookupRoundTripsEveryKey(t *testing.T) {
	tbl := parseSample(t)
	for _, key := range tbl.Keys() {
		want, _ := tbl.Entity(key)
		got, ok := tbl.Lookup(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
}

// lookupByLength is the plain decreasing-length scan the trie replaces.
func lookupByLength(tbl *Table, call string) (Entity, bool) {
	if e, ok := tbl.Entity(call); ok && e.ExactMatch {
		return e, true
	}
	for n := len(call); n >= 1; n-- {
		if e, ok := tbl.Entity(call[:n]); ok {
			return e, true
		}
	}
	return Entity{}, false
}

func TestLookupMatchesLengthScan(t *testing.T) {
	tbl := parseSample(t)
	calls := []string{
		"DL1ABC", "DL0XYZ", "DL0XY", "DL0XYZA", "DA0HQ", "Y21AA", "XY9", "XY9Z",
		"9V1ZZ", "S6", "S61A", "BS7H", "BS7HA", "BS7", "B", "BY1PK", "3H0A",
		"1A0KM", "VU2ABC", "VU2ABD", "AT2X", "012", "Q", "",
	}
	for _, call := range calls {
		want, wantOK := lookupByLength(tbl, call)
		got, ok := tbl.Lookup(call)
		assert.Equal(t, wantOK, ok, call)
		assert.Equal(t, want, got, call)
	}
}

func TestKeysOrdering(t *testing.T) {
	tbl := parseSample(t)
	keys := tbl.Keys()
	require.Len(t, keys, tbl.Len())
	for i := 1; i < len(keys); i++ {
		prev, cur := keys[i-1], keys[i]
		if len(prev) == len(cur) {
			assert.Less(t, prev, cur)
		} else {
			assert.Greater(t, len(prev), len(cur))
		}
	}

	keys[0] = "mutated"
	assert.NotEqual(t, "mutated", tbl.Keys()[0])
}

func TestKeysWithPrefix(t *testing.T) {
	tbl := parseSample(t)
	assert.Equal(t, []string{"BS7H", "BS7"}, tbl.KeysWithPrefix("BS7"))
	assert.Equal(t, []string{"DL0XYZ", "DL1", "DL"}, tbl.KeysWithPrefix("DL"))
	assert.Empty(t, tbl.KeysWithPrefix("QQ"))
}

func TestNilTable(t *testing.T) {
	var tbl *Table
	_, ok := tbl.Lookup("DL1ABC")
	assert.False(t, ok)
	assert.Zero(t, tbl.Len())
	assert.Nil(t, tbl.Keys())
}

func TestResolverCachesHits(t *testing.T) {
	r := NewResolver(parseSample(t), 16)
	first, ok := r.Lookup("DL2XYZ")
	require.True(t, ok)

	entry, ok := r.cache.get("DL2XYZ")
	require.True(t, ok)
	assert.True(t, entry.ok)
	assert.Equal(t, first, entry.entity)

	again, ok := r.Lookup("DL2XYZ")
	require.True(t, ok)
	assert.Equal(t, first, again)
}

func TestResolverCachesMisses(t *testing.T) {
	r := NewResolver(parseSample(t), 16)
	_, ok := r.Lookup("ZZ9ZZA")
	require.False(t, ok)

	entry, ok := r.cache.get("ZZ9ZZA")
	require.True(t, ok)
	assert.False(t, entry.ok)

	_, ok = r.Lookup("ZZ9ZZA")
	assert.False(t, ok)
}

func TestResolverKeysByRawInput(t *testing.T) {
	r := NewResolver(parseSample(t), 16)
	_, ok := r.Lookup("DL1ABC/P")
	require.True(t, ok)
	_, ok = r.cache.get("DL1ABC/P")
	assert.True(t, ok)
	_, ok = r.cache.get("DL1ABC")
	assert.False(t, ok)
}

func TestResolverEvictsLeastRecentlyUsed(t *testing.T) {
	r := NewResolver(parseSample(t), 2)
	r.Lookup("DL1A")
	r.Lookup("DL2A")
	r.Lookup("DL1A")
	r.Lookup("DL3A")

	_, ok := r.cache.get("DL2A")
	assert.False(t, ok, "DL2A should have been evicted")
	_, ok = r.cache.get("DL1A")
	assert.True(t, ok)
	_, ok = r.cache.get("DL3A")
	assert.True(t, ok)
	assert.EqualValues(t, 2, r.Metrics().CacheEntries)
}

func TestResolverMetrics(t *testing.T) {
	r := NewResolver(parseSample(t), 16)
	r.Lookup("DL2XYZ")
	r.Lookup("DL2XYZ")
	r.Lookup("ZZ9ZZA")
	r.Lookup("ZZ9ZZA")

	m := r.Metrics()
	assert.EqualValues(t, 4, m.TotalLookups)
	assert.EqualValues(t, 2, m.CacheHits)
	assert.EqualValues(t, 2, m.CacheEntries)
	assert.EqualValues(t, 2, m.Validated)
	assert.EqualValues(t, 1, m.ValidatedFromCache)
}

func TestResolverWithoutCache(t *testing.T) {
	tbl := parseSample(t)
	r := NewResolver(tbl, 0)
	e, ok := r.Lookup("S6ABC")
	require.True(t, ok)
	assert.Equal(t, "Singapore", e.Name)
	r.Lookup("S6ABC")

	m := r.Metrics()
	assert.EqualValues(t, 2, m.TotalLookups)
	assert.Zero(t, m.CacheHits)
	assert.Same(t, tbl, r.Table())
}
