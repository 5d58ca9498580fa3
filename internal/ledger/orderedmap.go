package ledger

// orderedMap keeps records in first-insert order alongside a key index.
// A key's position is assigned once at first insert and never reassigned;
// updates mutate the record in place without touching the index. Lookup by
// key and enumeration by position therefore always agree.
type orderedMap[V any] struct {
	records []V
	index   map[string]int
}

func newOrderedMap[V any]() orderedMap[V] {
	return orderedMap[V]{index: make(map[string]int)}
}

func (m *orderedMap[V]) len() int {
	return len(m.records)
}

func (m *orderedMap[V]) has(key string) bool {
	_, ok := m.index[key]
	return ok
}

// get returns the record for key, or the zero value when absent.
func (m *orderedMap[V]) get(key string) (V, bool) {
	pos, ok := m.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return m.records[pos], true
}

// at returns the record at the given position.
func (m *orderedMap[V]) at(pos int) (V, bool) {
	if pos < 0 || pos >= len(m.records) {
		var zero V
		return zero, false
	}
	return m.records[pos], true
}

// insert appends the record and assigns the next position. When the key is
// already present nothing changes and the existing position is returned.
func (m *orderedMap[V]) insert(key string, value V) (int, bool) {
	if pos, ok := m.index[key]; ok {
		return pos, false
	}
	pos := len(m.records)
	m.records = append(m.records, value)
	m.index[key] = pos
	return pos, true
}

// update overwrites the record at the key's existing position. The position
// and sequence order never change on update.
func (m *orderedMap[V]) update(key string, value V) bool {
	pos, ok := m.index[key]
	if !ok {
		return false
	}
	m.records[pos] = value
	return true
}

// clone deep-copies the sequence and index.
func (m *orderedMap[V]) clone() orderedMap[V] {
	copied := orderedMap[V]{
		records: make([]V, len(m.records)),
		index:   make(map[string]int, len(m.index)),
	}
	copy(copied.records, m.records)
	for k, pos := range m.index {
		copied.index[k] = pos
	}
	return copied
}
