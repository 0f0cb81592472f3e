package executor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvent-graphql/engine/graphql/executor/internal/future"
	"github.com/solvent-graphql/engine/graphql/parser"
	"github.com/solvent-graphql/engine/graphql/schema"
)

// sliceStreamer is a Streamer backed by an in-memory slice, used to exercise field resolvers that
// hand the executor a Streamer instead of a plain slice.
type sliceStreamer struct {
	values   []interface{}
	index    int
	canceled bool
}

func (s *sliceStreamer) Next(ctx context.Context) (interface{}, bool, error) {
	if s.index >= len(s.values) {
		return nil, false, nil
	}
	v := s.values[s.index]
	s.index++
	return v, true, nil
}

func (s *sliceStreamer) Cancel(ctx context.Context) error {
	s.canceled = true
	return nil
}

func TestExecuteRequestIncrementalDefer(t *testing.T) {
	detailType := &schema.ObjectType{
		Name: "IncrementalDetail",
		Fields: map[string]*schema.FieldDefinition{
			"extra": {
				Type: schema.StringType,
				Resolve: func(*schema.FieldContext) (interface{}, error) {
					return "stuff", nil
				},
			},
		},
	}
	profileType := &schema.ObjectType{
		Name: "IncrementalProfile",
		Fields: map[string]*schema.FieldDefinition{
			"bio": {
				Type: schema.StringType,
				Resolve: func(*schema.FieldContext) (interface{}, error) {
					return "hello", nil
				},
			},
			"detail": {
				Type: detailType,
				Resolve: func(*schema.FieldContext) (interface{}, error) {
					return struct{}{}, nil
				},
			},
		},
	}
	queryType := &schema.ObjectType{
		Name: "IncrementalQuery",
		Fields: map[string]*schema.FieldDefinition{
			"name": {
				Type: schema.StringType,
				Resolve: func(*schema.FieldContext) (interface{}, error) {
					return "root", nil
				},
			},
			"profile": {
				Type: profileType,
				Resolve: func(*schema.FieldContext) (interface{}, error) {
					return struct{}{}, nil
				},
			},
		},
	}

	s, err := schema.New(&schema.SchemaDefinition{
		Query:           queryType,
		AdditionalTypes: []schema.NamedType{detailType},
	})
	require.NoError(t, err)

	doc, parseErrs := parser.ParseDocument([]byte(`{
		name
		... @defer(label: "profile") {
			profile {
				bio
				... @defer(label: "detail") {
					detail { extra }
				}
			}
		}
	}`))
	require.Empty(t, parseErrs)

	data, errs, seq, hasSeq := ExecuteRequestIncremental(context.Background(), &Request{
		Document: doc,
		Schema:   s,
	})
	require.Empty(t, errs)
	require.True(t, hasSeq)
	defer seq.Close()

	serialized, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"root"}`, string(serialized))

	// The outer fragment's payload arrives first: it was registered before the nested one, and
	// nothing it depends on is slower to resolve.
	patch, ok := seq.Next(nil)
	require.True(t, ok)
	assert.Equal(t, "profile", patch.Label)
	assert.Nil(t, patch.Path)
	assert.True(t, patch.HasNext)
	profileData, err := json.Marshal(patch.Data)
	require.NoError(t, err)
	assert.Equal(t, `{"profile":{"bio":"hello"}}`, string(profileData))

	// The inner fragment is nested inside the outer one and must never be delivered first, even
	// though both fragments' fields resolve synchronously and would otherwise tie.
	patch, ok = seq.Next(nil)
	require.True(t, ok)
	assert.Equal(t, "detail", patch.Label)
	assert.Equal(t, []interface{}{"profile"}, patch.Path)
	assert.False(t, patch.HasNext)
	detailData, err := json.Marshal(patch.Data)
	require.NoError(t, err)
	assert.Equal(t, `{"detail":{"extra":"stuff"}}`, string(detailData))

	patch, ok = seq.Next(nil)
	require.True(t, ok)
	assert.False(t, patch.HasNext)
	assert.Nil(t, patch.Data)

	_, ok = seq.Next(nil)
	assert.False(t, ok)
}

func TestExecuteRequestIncrementalStreamedList(t *testing.T) {
	queryType := &schema.ObjectType{
		Name: "StreamedListQuery",
		Fields: map[string]*schema.FieldDefinition{
			"items": {
				Type: schema.NewListType(schema.IntType),
				Resolve: func(*schema.FieldContext) (interface{}, error) {
					return []interface{}{1, 2, 3, 4}, nil
				},
			},
		},
	}

	s, err := schema.New(&schema.SchemaDefinition{Query: queryType})
	require.NoError(t, err)

	doc, parseErrs := parser.ParseDocument([]byte(`{items @stream(initialCount: 1)}`))
	require.Empty(t, parseErrs)

	data, errs, seq, hasSeq := ExecuteRequestIncremental(context.Background(), &Request{
		Document: doc,
		Schema:   s,
	})
	require.Empty(t, errs)
	require.True(t, hasSeq)
	defer seq.Close()

	serialized, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Equal(t, `{"items":[1]}`, string(serialized))

	var values []interface{}
	var paths [][]interface{}
	for {
		patch, ok := seq.Next(nil)
		require.True(t, ok)
		if patch.Data == nil && !patch.HasNext && patch.Path == nil {
			break
		}
		values = append(values, patch.Data)
		paths = append(paths, patch.Path)
		if !patch.HasNext {
			break
		}
	}

	assert.Equal(t, []interface{}{2, 3, 4}, values)
	assert.Equal(t, [][]interface{}{
		{"items", 1},
		{"items", 2},
		{"items", 3},
	}, paths)
}

// TestExecuteRequestIncrementalStreamerWithoutDirective verifies that a Streamer-backed field
// resolved without an active @stream directive is drained entirely into the primary response, the
// same way a plain slice would be, rather than forcing every item through a PayloadSequence.
func TestExecuteRequestIncrementalStreamerWithoutDirective(t *testing.T) {
	queryType := &schema.ObjectType{
		Name: "StreamerInlineQuery",
		Fields: map[string]*schema.FieldDefinition{
			"items": {
				Type: schema.NewListType(schema.IntType),
				Resolve: func(*schema.FieldContext) (interface{}, error) {
					return &sliceStreamer{values: []interface{}{1, 2, 3}}, nil
				},
			},
		},
	}

	s, err := schema.New(&schema.SchemaDefinition{Query: queryType})
	require.NoError(t, err)

	doc, parseErrs := parser.ParseDocument([]byte(`{items}`))
	require.Empty(t, parseErrs)

	data, errs, seq, hasSeq := ExecuteRequestIncremental(context.Background(), &Request{
		Document: doc,
		Schema:   s,
	})
	require.Empty(t, errs)
	assert.False(t, hasSeq)
	assert.Nil(t, seq)

	serialized, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Equal(t, `{"items":[1,2,3]}`, string(serialized))
}

// TestExecuteRequestIncrementalStreamerWithDirective exercises the incremental branch of
// completeStreamer: a Streamer-backed field with an active @stream directive delivers its
// initialCount items in the primary response and the rest as ordered subsequent payloads.
func TestExecuteRequestIncrementalStreamerWithDirective(t *testing.T) {
	streamer := &sliceStreamer{values: []interface{}{1, 2, 3, 4, 5}}
	queryType := &schema.ObjectType{
		Name: "StreamerIncrementalQuery",
		Fields: map[string]*schema.FieldDefinition{
			"items": {
				Type: schema.NewListType(schema.IntType),
				Resolve: func(*schema.FieldContext) (interface{}, error) {
					return streamer, nil
				},
			},
		},
	}

	s, err := schema.New(&schema.SchemaDefinition{Query: queryType})
	require.NoError(t, err)

	doc, parseErrs := parser.ParseDocument([]byte(`{items @stream(initialCount: 2, label: "more")}`))
	require.Empty(t, parseErrs)

	data, errs, seq, hasSeq := ExecuteRequestIncremental(context.Background(), &Request{
		Document: doc,
		Schema:   s,
	})
	require.Empty(t, errs)
	require.True(t, hasSeq)
	defer seq.Close()

	serialized, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Equal(t, `{"items":[1,2]}`, string(serialized))

	var values []interface{}
	for {
		patch, ok := seq.Next(nil)
		require.True(t, ok)
		if patch.Path == nil {
			break
		}
		assert.Equal(t, "more", patch.Label)
		values = append(values, patch.Data)
		if !patch.HasNext {
			break
		}
	}
	assert.Equal(t, []interface{}{3, 4, 5}, values)
}

// TestExecuteRequestIncrementalStreamerCancellation verifies that a Streamer which still has items
// left when completeStreamer stops pulling eagerly is canceled if the caller closes the sequence
// before draining it.
func TestExecuteRequestIncrementalStreamerCancellation(t *testing.T) {
	values := make([]interface{}, maxStreamLookahead+10)
	for i := range values {
		values[i] = i
	}
	streamer := &sliceStreamer{values: values}
	queryType := &schema.ObjectType{
		Name: "StreamerCancellationQuery",
		Fields: map[string]*schema.FieldDefinition{
			"items": {
				Type: schema.NewListType(schema.IntType),
				Resolve: func(*schema.FieldContext) (interface{}, error) {
					return streamer, nil
				},
			},
		},
	}

	s, err := schema.New(&schema.SchemaDefinition{Query: queryType})
	require.NoError(t, err)

	doc, parseErrs := parser.ParseDocument([]byte(`{items @stream(initialCount: 0)}`))
	require.Empty(t, parseErrs)

	_, errs, seq, hasSeq := ExecuteRequestIncremental(context.Background(), &Request{
		Document: doc,
		Schema:   s,
	})
	require.Empty(t, errs)
	require.True(t, hasSeq)

	// completeStreamer stopped pulling after maxStreamLookahead items; the streamer still has
	// items left and must be canceled on close.
	require.NoError(t, seq.Close())
	assert.True(t, streamer.canceled)

	_, ok := seq.Next(nil)
	assert.False(t, ok)
}

// TestPayloadSequenceOrdering verifies that a later-registered payload whose own work finishes
// before an earlier one's is still withheld until the earlier one is ready, by chaining it after
// the earlier payload's future exactly as deferFragment and completeStreamer do.
func TestPayloadSequenceOrdering(t *testing.T) {
	pollCount := 0
	slow := future.New(func() (future.Result[any], bool) {
		pollCount++
		if pollCount < 3 {
			return future.Result[any]{}, false
		}
		return future.Result[any]{Value: "first"}, true
	})

	earlier := newPayloadRecord("earlier", nil, nil)
	earlier.data = slow

	later := newPayloadRecord("later", nil, nil)
	later.data = chainAfter(earlier, future.Ok[any]("second"))

	seq := &PayloadSequence{e: &executor{subsequentPayloads: []*payloadRecord{earlier, later}}}

	idleCalls := 0
	patch, ok := seq.Next(func() { idleCalls++ })
	require.True(t, ok)
	assert.Equal(t, "earlier", patch.Label)
	assert.Equal(t, "first", patch.Data)
	assert.Greater(t, idleCalls, 0)

	patch, ok = seq.Next(nil)
	require.True(t, ok)
	assert.Equal(t, "later", patch.Label)
	assert.Equal(t, "second", patch.Data)
	assert.False(t, patch.HasNext)
}

func TestExecuteRequestIncrementalFeatureGatedField(t *testing.T) {
	queryType := &schema.ObjectType{
		Name: "FeatureGatedQuery",
		Fields: map[string]*schema.FieldDefinition{
			"always": {
				Type: schema.StringType,
				Resolve: func(*schema.FieldContext) (interface{}, error) {
					return "visible", nil
				},
			},
			"gated": {
				Type:             schema.StringType,
				RequiredFeatures: schema.NewFeatureSet("beta"),
				Resolve: func(*schema.FieldContext) (interface{}, error) {
					return "secret", nil
				},
			},
		},
	}

	s, err := schema.New(&schema.SchemaDefinition{Query: queryType})
	require.NoError(t, err)

	doc, parseErrs := parser.ParseDocument([]byte(`{always gated}`))
	require.Empty(t, parseErrs)

	data, errs := ExecuteRequest(context.Background(), &Request{Document: doc, Schema: s})
	require.Empty(t, errs)
	serialized, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Equal(t, `{"always":"visible"}`, string(serialized))

	data, errs = ExecuteRequest(context.Background(), &Request{
		Document: doc,
		Schema:   s,
		Features: schema.NewFeatureSet("beta"),
	})
	require.Empty(t, errs)
	serialized, err = json.Marshal(data)
	require.NoError(t, err)
	assert.Equal(t, `{"always":"visible","gated":"secret"}`, string(serialized))
}
