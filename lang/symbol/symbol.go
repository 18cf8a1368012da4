// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package symbol interns strings into dense integer ids, used as compact
// keys in class method tables, module globals, and instance field maps.
//
// Grounded on jcorbin/gothird's symbols type (core.go): a flat slice of
// owned strings plus a map for the miss path, generalized here to the exact
// Table contract spec.md §4.2 requires (intern/name), with ids that grow
// monotonically and are never reused.
package symbol

// ID is a dense, stable symbol identifier. Ids are assigned in intern order
// starting at 0 and are never reused for the lifetime of a Table.
type ID uint32

// Table interns strings to Ids by content equality.
type Table struct {
	strings []string
	byName  map[string]ID
}

// NewTable creates an empty symbol table.
func NewTable() *Table {
	return &Table{byName: make(map[string]ID)}
}

// Intern returns the id for s, assigning a new one on first sight.
func (t *Table) Intern(s string) ID {
	if id, ok := t.byName[s]; ok {
		return id
	}
	id := ID(len(t.strings))
	t.strings = append(t.strings, s)
	t.byName[s] = id
	return id
}

// Name returns the string interned under id, or "" if id is out of range.
func (t *Table) Name(id ID) string {
	if int(id) < 0 || int(id) >= len(t.strings) {
		return ""
	}
	return t.strings[id]
}

// Lookup returns the id already assigned to s without interning it.
func (t *Table) Lookup(s string) (ID, bool) {
	id, ok := t.byName[s]
	return id, ok
}

// Len returns the number of interned symbols.
func (t *Table) Len() int { return len(t.strings) }
