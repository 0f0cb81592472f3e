package executor

import (
	"context"
	"reflect"

	"github.com/solvent-graphql/engine/graphql/ast"
	"github.com/solvent-graphql/engine/graphql/executor/internal/future"
	"github.com/solvent-graphql/engine/graphql/schema"
)

// payloadRecord tracks a single subsequent payload produced by @defer or @stream: either a
// deferred fragment's fields, or one list item delivered past a stream's initialCount. Errors
// raised while resolving the payload are caught into this record's own log instead of the
// primary response's, so a null-bubble inside a deferred fragment can't take down data the
// client already received.
type payloadRecord struct {
	label  string
	path   *path
	errors []*Error
	data   future.Future[any]
	parent *payloadRecord

	// done is set once this record has been yielded by a PayloadSequence, so a record is never
	// delivered twice.
	done bool

	catchError func(future.Result[any]) future.Result[any]
}

func newPayloadRecord(label string, path *path, parent *payloadRecord) *payloadRecord {
	record := &payloadRecord{label: label, path: path, parent: parent}
	record.catchError = newCatchError(&record.errors)
	return record
}

// deferFragment executes a fragment pulled out of a selection set by an active @defer directive
// and registers it as a subsequent payload. If the fragment is nested inside another deferred or
// streamed payload, PayloadSequence.Next holds it back until that parent record has been yielded,
// so a child payload can never be yielded before the payload it's nested in.
func (e *executor) deferFragment(label string, objectType *schema.ObjectType, objectValue interface{}, fields *GroupedFieldSet, path *path, parentRecord *payloadRecord) {
	record := newPayloadRecord(label, path, parentRecord)
	data := future.MapOk(e.executeGroupedFieldSet(fields, objectType, objectValue, path, false, record), func(m *OrderedMap) any {
		return m
	})
	record.data = chainAfter(parentRecord, data)
	e.subsequentPayloads = append(e.subsequentPayloads, record)
}

// streamArgs holds the coerced arguments of an active @stream directive on a list field.
type streamArgs struct {
	label        string
	initialCount int
}

// activeStreamDirective returns the coerced @stream arguments present on field, or nil if the
// directive is absent, undefined in the schema, or disabled via its if argument.
func activeStreamDirective(field *ast.Field, s *schema.Schema, variableValues map[string]interface{}) *streamArgs {
	def := s.Directives()["stream"]
	if def == nil {
		return nil
	}
	for _, directive := range field.Directives {
		if directive.Name.Name != "stream" {
			continue
		}
		arguments, err := coerceArgumentValues(directive, def.Arguments, directive.Arguments, variableValues)
		if err != nil || arguments["if"] == false {
			return nil
		}
		label, _ := arguments["label"].(string)
		initialCount, _ := arguments["initialCount"].(int)
		if initialCount < 0 {
			initialCount = 0
		}
		return &streamArgs{label: label, initialCount: initialCount}
	}
	return nil
}

// completeStreamedList completes the first initialCount items of result synchronously, as part
// of the enclosing payload, and registers the remainder as individual subsequent payloads, one
// per item. Each remaining item's record is chained after the previous one's so items are always
// yielded in list order even though they resolve independently.
func (e *executor) completeStreamedList(innerType schema.Type, fields []*ast.Field, result reflect.Value, path *path, record *payloadRecord, stream *streamArgs) future.Future[any] {
	initialCount := stream.initialCount
	if initialCount > result.Len() {
		initialCount = result.Len()
	}

	completedResult := make([]future.Future[any], initialCount)
	for i := range completedResult {
		completedResult[i] = e.catchErrorIfNullable(innerType, e.completeValue(innerType, fields, result.Index(i).Interface(), path.WithIntComponent(i), record), record)
	}

	var previous *payloadRecord
	for i := initialCount; i < result.Len(); i++ {
		itemPath := path.WithIntComponent(i)
		itemRecord := newPayloadRecord(stream.label, itemPath, record)
		itemData := e.catchErrorIfNullable(innerType, e.completeValue(innerType, fields, result.Index(i).Interface(), itemPath, itemRecord), itemRecord)
		itemRecord.data = chainAfter(previous, itemData)
		e.subsequentPayloads = append(e.subsequentPayloads, itemRecord)
		previous = itemRecord
	}

	return future.MapOk(future.Join(completedResult...), func(l []interface{}) interface{} {
		return l
	})
}

// Streamer can be returned by a field resolver in place of a slice to drive a @stream'd list from
// an incremental source (a database cursor, for example) instead of a value already held in
// memory. Next is called once per item, in order; ok is false once the stream is exhausted. This
// is a minimal synchronous protocol: the corpus has no existing async-iterator type to ground a
// richer one on, and any resolver slow enough to need asynchrony can already return a
// ResolvePromise for each item it completes.
type Streamer interface {
	Next(ctx context.Context) (value interface{}, ok bool, err error)

	// Cancel is called when a PayloadSequence is closed while the stream may still hold items
	// that were not pulled, so the underlying source (a cursor, a subscription) can release its
	// resources.
	Cancel(ctx context.Context) error
}

// completeStreamer drives a Streamer-backed list field. If no @stream directive is active on the
// field, the entire stream is drained inline and folded into the returned future, exactly like an
// ordinary in-memory slice would be: no subsequent payloads are registered, and the field's result
// reaches the caller as part of the primary response. If @stream is active, the first initialCount
// items complete synchronously as part of the enclosing payload and up to maxStreamLookahead of
// the rest are pulled immediately, each registered as its own payload record chained in order;
// items beyond that bound are not pulled.
func (e *executor) completeStreamer(innerType schema.Type, fields []*ast.Field, streamer Streamer, path *path, record *payloadRecord) future.Future[any] {
	stream := activeStreamDirective(fields[0], e.Schema, e.VariableValues)
	if stream == nil {
		return e.completeStreamerInline(innerType, fields, streamer, path, record)
	}

	var initial []future.Future[any]
	index := 0
	for ; index < stream.initialCount; index++ {
		value, ok, err := streamer.Next(e.Context)
		if err != nil {
			initial = append(initial, future.Err[any](err))
			index++
			break
		}
		if !ok {
			break
		}
		initial = append(initial, e.catchErrorIfNullable(innerType, e.completeValue(innerType, fields, value, path.WithIntComponent(index), record), record))
	}

	var previous *payloadRecord
	pulled := 0
	for ; pulled < maxStreamLookahead; pulled++ {
		value, ok, err := streamer.Next(e.Context)
		if !ok && err == nil {
			break
		}
		itemPath := path.WithIntComponent(index)
		itemRecord := newPayloadRecord(stream.label, itemPath, record)
		var itemData future.Future[any]
		if err != nil {
			itemData = future.Err[any](err)
		} else {
			itemData = e.catchErrorIfNullable(innerType, e.completeValue(innerType, fields, value, itemPath, itemRecord), itemRecord)
		}
		itemRecord.data = chainAfter(previous, itemData)
		e.subsequentPayloads = append(e.subsequentPayloads, itemRecord)
		previous = itemRecord
		index++
		if err != nil {
			break
		}
	}
	if pulled == maxStreamLookahead {
		// The stream may still have more items than we were willing to pull eagerly; keep a
		// reference so a PayloadSequence can cancel it if the caller stops consuming early.
		e.openStreamers = append(e.openStreamers, streamer)
	}

	return future.MapOk(future.Join(initial...), func(l []interface{}) interface{} {
		return l
	})
}

// completeStreamerInline drains streamer to exhaustion (or maxStreamLookahead, whichever comes
// first) and completes every item as part of the primary response. Used whenever a Streamer-backed
// field is resolved without an active @stream directive, so that a plain, non-incremental query
// against a Streamer-backed field behaves exactly like one against an ordinary slice.
func (e *executor) completeStreamerInline(innerType schema.Type, fields []*ast.Field, streamer Streamer, path *path, record *payloadRecord) future.Future[any] {
	var items []future.Future[any]
	for index := 0; index < maxStreamLookahead; index++ {
		value, ok, err := streamer.Next(e.Context)
		if err != nil {
			items = append(items, future.Err[any](err))
			break
		}
		if !ok {
			break
		}
		items = append(items, e.catchErrorIfNullable(innerType, e.completeValue(innerType, fields, value, path.WithIntComponent(index), record), record))
	}
	return future.MapOk(future.Join(items...), func(l []interface{}) interface{} {
		return l
	})
}

// chainAfter wraps f so it only becomes ready once prev's data future has settled, or returns f
// unchanged if prev is nil. This is what gives strict index ordering to a stream's items.
func chainAfter(prev *payloadRecord, f future.Future[any]) future.Future[any] {
	if prev == nil {
		return f
	}
	return future.Then(prev.data, func(future.Result[any]) future.Future[any] {
		return f
	})
}

// maxStreamLookahead bounds how many items of a Streamer-backed list are pulled and spread across
// subsequent payloads in a single completeStreamer call.
const maxStreamLookahead = 1000

// ExecutionPatchResult represents one subsequent payload of an incremental response: either a
// deferred fragment's fields or one streamed list item.
type ExecutionPatchResult struct {
	Data    interface{}
	Path    []interface{}
	Label   string
	Errors  []*Error

	// HasNext reports whether any further subsequent payloads remain after this one.
	HasNext bool
}

// PayloadSequence yields an executor's subsequent payloads (registered by @defer and @stream) in
// the order they become ready, pulling a new one from e.subsequentPayloads each time Next is
// called. It never runs a goroutine; progress only happens while Next is being called, exactly
// like wait() does for a single future.
type PayloadSequence struct {
	e      *executor
	closed bool
}

// Next returns the next ready subsequent payload, calling idle whenever none of the pending
// records can currently progress. The final call before the sequence is exhausted returns an
// ExecutionPatchResult with no data and HasNext false; every call after that returns (nil, false).
func (s *PayloadSequence) Next(idle func()) (*ExecutionPatchResult, bool) {
	if s.closed {
		return nil, false
	}
	for {
		if len(s.e.subsequentPayloads) == 0 {
			s.closed = true
			return &ExecutionPatchResult{HasNext: false}, true
		}

		for i, record := range s.e.subsequentPayloads {
			record.data.Poll()
			if !record.data.IsReady() || (record.parent != nil && !record.parent.done) {
				continue
			}
			s.e.subsequentPayloads = append(s.e.subsequentPayloads[:i:i], s.e.subsequentPayloads[i+1:]...)
			record.done = true
			return s.yield(record), true
		}

		if idle == nil {
			s.closed = true
			return nil, false
		}
		idle()
	}
}

// yield converts a now-ready payload record into its ExecutionPatchResult, folding in any errors
// raised while resolving it.
func (s *PayloadSequence) yield(record *payloadRecord) *ExecutionPatchResult {
	result := record.data.Result()
	errs := record.errors
	if result.IsErr() {
		errs = append(errs, result.Error.(*Error))
	}
	return &ExecutionPatchResult{
		Data:    result.Value,
		Path:    record.path.Slice(),
		Label:   record.label,
		Errors:  errs,
		HasNext: len(s.e.subsequentPayloads) > 0,
	}
}

// Close stops the sequence early, calling Cancel on every Streamer that was pulled up to the
// maxStreamLookahead bound. It is safe to call even after the sequence has been fully drained.
func (s *PayloadSequence) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.e.subsequentPayloads = nil
	var firstErr error
	for _, streamer := range s.e.openStreamers {
		if err := streamer.Cancel(s.e.Context); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.e.openStreamers = nil
	return firstErr
}
