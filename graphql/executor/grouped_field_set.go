package executor

import (
	"github.com/solvent-graphql/engine/graphql/ast"
)

// GroupedFieldSetItem contains a key and field list pair in a GroupedFieldSet.
type GroupedFieldSetItem struct {
	Key    string
	Fields []*ast.Field
}

// DeferredFragment holds the fields collected under an active, undisabled @defer directive. Its
// fields are not merged into the enclosing GroupedFieldSet; instead they are handed to the
// incremental delivery machinery, which starts executing them as their own payload right after
// the enclosing selection set's own fields have been started.
type DeferredFragment struct {
	Label  string
	Fields *GroupedFieldSet
}

// GroupedFieldSet holds the results of the GraphQL CollectFields algorithm: an ordered mapping
// from response name to the field nodes that share it, plus any fragments that were pulled out of
// the set by an active @defer directive.
type GroupedFieldSet struct {
	m        map[string]int
	items    []GroupedFieldSetItem
	Deferred []*DeferredFragment
}

// NewGroupedFieldSetWithCapacity allocates a GroupedFieldSet with capacity for n elements.
func NewGroupedFieldSetWithCapacity(n int) *GroupedFieldSet {
	return &GroupedFieldSet{
		m:     make(map[string]int, n),
		items: make([]GroupedFieldSetItem, 0, n),
	}
}

// Append appends a field to the list for the given key.
func (m *GroupedFieldSet) Append(key string, field *ast.Field) {
	if idx, ok := m.m[key]; !ok {
		idx = len(m.items)
		m.m[key] = idx
		m.items = append(m.items, GroupedFieldSetItem{
			Key:    key,
			Fields: []*ast.Field{field},
		})
	} else {
		m.items[idx].Fields = append(m.items[idx].Fields, field)
	}
}

// AppendDeferred registers a fragment that was collected under an active @defer directive.
func (m *GroupedFieldSet) AppendDeferred(label string, fields *GroupedFieldSet) {
	m.Deferred = append(m.Deferred, &DeferredFragment{
		Label:  label,
		Fields: fields,
	})
}

// Len returns the length of the GroupedFieldSet
func (m *GroupedFieldSet) Len() int {
	return len(m.items)
}

// Items returns the items in the GroupedFieldSet, in the order they were added.
func (m *GroupedFieldSet) Items() []GroupedFieldSetItem {
	return m.items
}
