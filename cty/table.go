// Package cty decodes the CTY prefix database (cty.dat, with cty.plist as an
// alternate source) and resolves callsigns to DXCC entities using exact-call
// overrides and longest-prefix matching.
package cty

import (
	"sort"
	"strings"
)

// Table maps prefixes and alias calls to entities. A Table is built once by a
// loader and never modified afterwards, so it may be shared between goroutines
// without locking.
type Table struct {
	entries     map[string]Entity
	keys        []string
	trie        byteTrie // same key set as entries
	fingerprint uint64
}

func newTable(entries map[string]Entity, fingerprint uint64) *Table {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) == len(keys[j]) {
			return keys[i] < keys[j]
		}
		return len(keys[i]) > len(keys[j])
	})
	return &Table{
		entries:     entries,
		keys:        keys,
		trie:        newByteTrie(keys),
		fingerprint: fingerprint,
	}
}

// Lookup resolves a callsign to its entity. A key equal to the whole callsign
// wins outright only when it is an exact-match alias; otherwise the longest
// key that prefixes the callsign is returned, whatever its exact flag. The
// callsign is matched verbatim.
func (t *Table) Lookup(callsign string) (Entity, bool) {
	if t == nil {
		return Entity{}, false
	}
	if e, ok := t.entries[callsign]; ok && e.ExactMatch {
		return e, true
	}
	if n := t.trie.match(callsign); n > 0 {
		return t.entries[callsign[:n]], true
	}
	return Entity{}, false
}

// Entity returns the entity stored under key without any prefix matching.
func (t *Table) Entity(key string) (Entity, bool) {
	if t == nil {
		return Entity{}, false
	}
	e, ok := t.entries[key]
	return e, ok
}

// Len reports the number of keys in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Keys returns all keys, longest first and lexically within a length.
func (t *Table) Keys() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// KeysWithPrefix returns all keys starting with pref, in Keys order.
func (t *Table) KeysWithPrefix(pref string) []string {
	if t == nil {
		return nil
	}
	matches := make([]string, 0)
	for _, key := range t.keys {
		if strings.HasPrefix(key, pref) {
			matches = append(matches, key)
		}
	}
	return matches
}

// Fingerprint is an xxh3 hash of the source bytes the table was decoded from.
// Two tables with the same fingerprint were built from identical input.
func (t *Table) Fingerprint() uint64 {
	if t == nil {
		return 0
	}
	return t.fingerprint
}

// byteTrie indexes table keys one byte per level; element 0 is the root.
// match walks a callsign down from the root and remembers the deepest node
// that ends a key.
type byteTrie []trieNode

type trieNode struct {
	children map[byte]int32
	endsKey  bool
}

func newByteTrie(keys []string) byteTrie {
	tr := byteTrie{{}}
	for _, key := range keys {
		tr = tr.insert(key)
	}
	return tr
}

func (tr byteTrie) insert(key string) byteTrie {
	if key == "" {
		return tr
	}
	n := 0
	for i := 0; i < len(key); i++ {
		child, ok := tr[n].children[key[i]]
		if !ok {
			if tr[n].children == nil {
				tr[n].children = make(map[byte]int32)
			}
			child = int32(len(tr))
			tr[n].children[key[i]] = child
			tr = append(tr, trieNode{})
		}
		n = int(child)
	}
	tr[n].endsKey = true
	return tr
}

// match returns the length of the longest key that prefixes s, or 0.
func (tr byteTrie) match(s string) int {
	if len(tr) == 0 {
		return 0
	}
	best, n := 0, 0
	for i := 0; i < len(s); i++ {
		child, ok := tr[n].children[s[i]]
		if !ok {
			break
		}
		n = int(child)
		if tr[n].endsKey {
			best = i + 1
		}
	}
	return best
}
