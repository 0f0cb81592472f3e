package executor

import (
	"bytes"
	"encoding/json"
)

// OrderedMap is a string-keyed map that remembers insertion order, used to hold the result of
// executing a selection set so the JSON response preserves field order per the response format.
type OrderedMap struct {
	keys   []string
	values []interface{}
	index  map[string]int
}

func NewOrderedMap() *OrderedMap {
	return &OrderedMap{
		index: map[string]int{},
	}
}

// NewOrderedMapWithLength allocates a map with n pre-reserved, initially-empty slots. Set can be
// used to fill a slot by index once its value becomes available, which lets fields that resolve
// out of order (e.g. because they're backed by asynchronous futures) still be written into the
// result in grouped-field-set order.
func NewOrderedMapWithLength(n int) *OrderedMap {
	return &OrderedMap{
		keys:   make([]string, n),
		values: make([]interface{}, n),
		index:  make(map[string]int, n),
	}
}

// Append adds a new key/value pair to the end of the map.
func (m *OrderedMap) Append(key string, value interface{}) {
	if m.index == nil {
		m.index = map[string]int{}
	}
	if i, ok := m.index[key]; ok {
		m.values[i] = value
		return
	}
	m.index[key] = len(m.keys)
	m.keys = append(m.keys, key)
	m.values = append(m.values, value)
}

// Set fills the slot at index i, allocated via NewOrderedMapWithLength, with the given key/value
// pair.
func (m *OrderedMap) Set(i int, key string, value interface{}) {
	m.keys[i] = key
	m.values[i] = value
	m.index[key] = i
}

func (m *OrderedMap) Get(key string) (interface{}, bool) {
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return m.values[i], true
}

func (m *OrderedMap) Len() int {
	return len(m.keys)
}

func (m *OrderedMap) Keys() []string {
	return m.keys
}

// Items returns the map's key/value pairs in insertion order.
func (m *OrderedMap) Items() []OrderedMapItem {
	items := make([]OrderedMapItem, len(m.keys))
	for i, key := range m.keys {
		items[i] = OrderedMapItem{Key: key, Value: m.values[i]}
	}
	return items
}

type OrderedMapItem struct {
	Key   string
	Value interface{}
}

func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	pairs := make([][]byte, len(m.keys))
	for i, key := range m.keys {
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		valueJSON, err := json.Marshal(m.values[i])
		if err != nil {
			return nil, err
		}
		pairs[i] = bytes.Join([][]byte{keyJSON, valueJSON}, []byte{':'})
	}
	return append(append([]byte{'{'}, bytes.Join(pairs, []byte{','})...), '}'), nil
}
