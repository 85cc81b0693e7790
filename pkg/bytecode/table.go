package bytecode

// tableMaxLoad is the load factor at which a Table grows, matching the
// clox constant of the same name.
const tableMaxLoad = 0.75

type tableEntry struct {
	key   *ObjString
	value Value
	// present distinguishes a genuinely empty slot from a tombstone: a
	// deleted slot that must still stop a linear probe from treating the
	// chain as broken. An empty slot has
	// key == nil and present == false; a tombstone has key == nil and
	// present == true.
	present bool
}

// Table is an open-addressing hash table keyed by interned Lox strings. It
// mirrors clox's table.c: linear probing, power-of-two capacity, tombstone
// deletion, and a 0.75 max load factor. None of the example Go programs in
// this project's lineage implement probing this way (they reach for Go's
// builtin map), so this file is built directly from the original table
// algorithm rather than adapted from an existing Go source.
type Table struct {
	count    int
	entries  []tableEntry
}

// NewTable returns an empty table with no backing storage allocated yet.
func NewTable() *Table {
	return &Table{}
}

// Count returns the number of occupied slots, tombstones included: Delete
// leaves the count unchanged, and only a resize drops tombstones from it.
func (t *Table) Count() int {
	return t.count
}

func findEntry(entries []tableEntry, key *ObjString) *tableEntry {
	capacity := len(entries)
	idx := int(key.Hash) & (capacity - 1)
	var tombstone *tableEntry

	for {
		entry := &entries[idx]
		if entry.key == nil {
			if !entry.present {
				if tombstone != nil {
					return tombstone
				}
				return entry
			}
			if tombstone == nil {
				tombstone = entry
			}
		} else if entry.key == key {
			return entry
		}

		idx = (idx + 1) & (capacity - 1)
	}
}

func growCapacity(capacity int) int {
	if capacity < 8 {
		return 8
	}
	return capacity * 2
}

func (t *Table) adjustCapacity(capacity int) {
	entries := make([]tableEntry, capacity)

	t.count = 0
	for i := range t.entries {
		old := &t.entries[i]
		if old.key == nil {
			continue
		}
		dest := findEntry(entries, old.key)
		dest.key = old.key
		dest.value = old.value
		dest.present = true
		t.count++
	}

	t.entries = entries
}

// Set inserts or overwrites key's value, growing the table first if doing
// so would exceed the max load factor. Reports whether key was new.
func (t *Table) Set(key *ObjString, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.adjustCapacity(growCapacity(len(t.entries)))
	}

	entry := findEntry(t.entries, key)
	isNewKey := entry.key == nil
	if isNewKey && !entry.present {
		t.count++
	}

	entry.key = key
	entry.value = value
	entry.present = true
	return isNewKey
}

// Get returns the value bound to key and whether it was found.
func (t *Table) Get(key *ObjString) (Value, bool) {
	if t.count == 0 {
		return NilValue, false
	}

	entry := findEntry(t.entries, key)
	if entry.key == nil {
		return NilValue, false
	}
	return entry.value, true
}

// Delete removes key, leaving a tombstone behind so later probes that
// skipped over this slot while inserting a different key still terminate
// correctly.
func (t *Table) Delete(key *ObjString) bool {
	if t.count == 0 {
		return false
	}

	entry := findEntry(t.entries, key)
	if entry.key == nil {
		return false
	}

	entry.key = nil
	entry.value = NilValue
	entry.present = true
	return true
}

// AddAll copies every entry of from into t, overwriting on key collision.
// Used to implement class inheritance: a subclass starts from a copy of its
// superclass's method table.
func (t *Table) AddAll(from *Table) {
	for i := range from.entries {
		entry := &from.entries[i]
		if entry.key == nil {
			continue
		}
		t.Set(entry.key, entry.value)
	}
}

// FindString looks up an interned string by content without first
// allocating an ObjString, used by the VM's string interner to decide
// whether a freshly scanned or concatenated string already exists on the
// heap.
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if t.count == 0 {
		return nil
	}

	capacity := len(t.entries)
	idx := int(hash) & (capacity - 1)

	for {
		entry := &t.entries[idx]
		if entry.key == nil {
			if !entry.present {
				return nil
			}
		} else if entry.key.Hash == hash && entry.key.Chars == chars {
			return entry.key
		}

		idx = (idx + 1) & (capacity - 1)
	}
}

// RemoveWhite deletes every key that survived a mark phase unmarked,
// keeping the string-interning table from holding the last live reference
// to strings nothing else in the heap points to anymore.
func (t *Table) RemoveWhite() {
	for i := range t.entries {
		entry := &t.entries[i]
		if entry.key != nil && entry.key.self != nil && !entry.key.self.Marked {
			t.Delete(entry.key)
		}
	}
}

// Each calls fn for every live entry in an unspecified order.
func (t *Table) Each(fn func(key *ObjString, value Value)) {
	for i := range t.entries {
		entry := &t.entries[i]
		if entry.key != nil {
			fn(entry.key, entry.value)
		}
	}
}
