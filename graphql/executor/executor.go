package executor

import (
	"context"
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/solvent-graphql/engine/graphql/ast"
	"github.com/solvent-graphql/engine/graphql/executor/internal/future"
	"github.com/solvent-graphql/engine/graphql/schema"
	"github.com/solvent-graphql/engine/graphql/schema/introspection"
	"github.com/solvent-graphql/engine/graphql/validator"
)

// ResolveResult represents the result of a field resolver. This type is generally used with
// ResolvePromise to pass around asynchronous results.
type ResolveResult struct {
	Value interface{}
	Error error
}

// ResolvePromise can be used to resolve fields asynchronously. You may return ResolvePromise from
// the field's resolve function. If you do, you must define an IdleHandler for the request. Any time
// request execution is unable to proceed, the idle handler will be invoked. Before the idle handler
// returns, a result must be sent to at least one previously returned ResolvePromise.
type ResolvePromise chan ResolveResult

// Request defines all of the inputs required to execute a GraphQL query.
type Request struct {
	Document       *ast.Document
	Schema         *schema.Schema
	OperationName  string
	VariableValues map[string]interface{}
	InitialValue   interface{}
	IdleHandler    func()

	// Features lists the feature flags enabled for this request. Fields and union members with
	// unmet RequiredFeatures are treated as nonexistent.
	Features schema.FeatureSet
}

// ExecuteRequest executes a request.
func ExecuteRequest(ctx context.Context, r *Request) (*OrderedMap, []*Error) {
	if e, errs := newExecutor(ctx, r); errs != nil {
		return nil, errs
	} else if opType := e.Operation.OperationType; opType == nil || opType.Value == "query" {
		return e.executeQuery(r.InitialValue)
	} else if opType.Value == "mutation" {
		return e.executeMutation(r.InitialValue)
	} else if opType.Value == "subscription" {
		return e.executeSubscriptionEvent(r.InitialValue)
	}
	panic("unexpected operation type")
}

// ExecuteRequestIncremental executes a request, additionally returning a PayloadSequence when the
// request produced any deferred or streamed subsequent payloads. hasSequence is false when no
// @defer or @stream ever fired, in which case the caller should treat this identically to a plain
// ExecuteRequest call.
func ExecuteRequestIncremental(ctx context.Context, r *Request) (data *OrderedMap, errs []*Error, sequence *PayloadSequence, hasSequence bool) {
	e, errs := newExecutor(ctx, r)
	if errs != nil {
		return nil, errs, nil, false
	}
	switch opType := e.Operation.OperationType; {
	case opType == nil || opType.Value == "query":
		data, errs = e.executeQuery(r.InitialValue)
	case opType.Value == "mutation":
		data, errs = e.executeMutation(r.InitialValue)
	case opType.Value == "subscription":
		data, errs = e.executeSubscriptionEvent(r.InitialValue)
	default:
		panic("unexpected operation type")
	}
	if len(e.subsequentPayloads) == 0 {
		return data, errs, nil, false
	}
	return data, errs, &PayloadSequence{e: e}, true
}

// IsSubscription can be used to determine if a request is for a subscription.
func IsSubscription(doc *ast.Document, operationName string) bool {
	operation, err := GetOperation(doc, operationName)
	return err == nil && operation.OperationType != nil && operation.OperationType.Value == "subscription"
}

// Subscribe resolves the root subscription field of a request and returns the result.
func Subscribe(ctx context.Context, r *Request) (interface{}, *Error) {
	if e, errs := newExecutor(ctx, r); errs != nil {
		return nil, errs[0]
	} else if e.Operation.OperationType != nil && e.Operation.OperationType.Value == "subscription" {
		return e.subscribe(r.InitialValue)
	} else {
		return nil, newError(e.Operation, "A subscription operation is required.")
	}
}

type executor struct {
	Context             context.Context
	Schema              *schema.Schema
	FragmentDefinitions map[string]*ast.FragmentDefinition
	VariableValues      map[string]interface{}
	Features            schema.FeatureSet
	Errors              []*Error
	Operation           *ast.OperationDefinition
	IdleHandler         func()

	// GroupedFieldSetCache is used to cache the results of collectFields.
	GroupedFieldSetCache map[string]*GroupedFieldSet

	// CatchError is used to handle errors for nullable fields in the primary response. The
	// closure is generated on construction to avoid allocations during execution.
	CatchError func(future.Result[any]) future.Result[any]

	// subsequentPayloads holds payload records for fragments deferred with @defer and list items
	// streamed with @stream, in the order they were registered. A PayloadSequence drains this
	// slice as records become ready.
	subsequentPayloads []*payloadRecord

	// openStreamers holds Streamer values that completeStreamer stopped pulling from only because
	// it hit maxStreamLookahead, not because they were exhausted. A PayloadSequence cancels these
	// on Close.
	openStreamers []Streamer
}

func newCatchError(log *[]*Error) func(future.Result[any]) future.Result[any] {
	return func(r future.Result[any]) future.Result[any] {
		if r.IsErr() {
			*log = append(*log, r.Error.(*Error))
			r.Error = nil
		}
		return r
	}
}

// catchErrorFunc returns the error-catching closure that applies to the given payload record, or
// to the primary response if record is nil.
func (e *executor) catchErrorFunc(record *payloadRecord) func(future.Result[any]) future.Result[any] {
	if record == nil {
		return e.CatchError
	}
	return record.catchError
}

func newExecutor(ctx context.Context, r *Request) (*executor, []*Error) {
	operation, err := GetOperation(r.Document, r.OperationName)
	if err != nil {
		return nil, []*Error{err}
	}
	coercedVariableValues, errs := coerceVariableValues(r.Schema, operation, r.VariableValues)
	if errs != nil {
		return nil, errs
	}

	e := &executor{
		Context:              ctx,
		Schema:               r.Schema,
		FragmentDefinitions:  map[string]*ast.FragmentDefinition{},
		VariableValues:       coercedVariableValues,
		Features:             r.Features,
		Operation:            operation,
		IdleHandler:          r.IdleHandler,
		GroupedFieldSetCache: map[string]*GroupedFieldSet{},
	}
	e.CatchError = func(r future.Result[any]) future.Result[any] {
		if r.IsErr() {
			e.Errors = append(e.Errors, r.Error.(*Error))
			r.Error = nil
		}
		return r
	}
	for _, def := range r.Document.Definitions {
		if def, ok := def.(*ast.FragmentDefinition); ok {
			e.FragmentDefinitions[def.Name.Name] = def
		}
	}
	return e, nil
}

func (e *executor) executeQuery(initialValue interface{}) (*OrderedMap, []*Error) {
	queryType := e.Schema.QueryType()
	if !schema.IsObjectType(queryType) {
		return nil, []*Error{newError(e.Operation, "This schema cannot perform queries.")}
	}
	if data, err := wait(e, e.executeSelections(e.Operation.SelectionSet.Selections, queryType, initialValue, nil, false, true, nil)); err != nil {
		e.Errors = append(e.Errors, err.(*Error))
		return nil, e.Errors
	} else if data != nil {
		return data, e.Errors
	}
	return nil, nil
}

func (e *executor) executeMutation(initialValue interface{}) (*OrderedMap, []*Error) {
	mutationType := e.Schema.MutationType()
	if !schema.IsObjectType(mutationType) {
		return nil, []*Error{newError(e.Operation, "This schema cannot perform mutations.")}
	}
	// @defer is disallowed on the root selection set of a mutation: mutation fields execute
	// serially and a deferred payload would have to jump the queue.
	if data, err := wait(e, e.executeSelections(e.Operation.SelectionSet.Selections, mutationType, initialValue, nil, true, false, nil)); err != nil {
		e.Errors = append(e.Errors, err.(*Error))
		return nil, e.Errors
	} else if data != nil {
		return data, e.Errors
	}
	return nil, nil
}

func (e *executor) subscribe(initialValue interface{}) (interface{}, *Error) {
	subscriptionType := e.Schema.SubscriptionType()
	if !schema.IsObjectType(subscriptionType) {
		return nil, newError(e.Operation, "This schema cannot perform subscriptions.")
	}

	groupedFieldSet := e.collectFields(subscriptionType, e.Operation.SelectionSet.Selections, false)

	if groupedFieldSet.Len() != 1 {
		return nil, newError(e.Operation.SelectionSet, "Subscriptions must contain exactly one root field selection.")
	}

	item := groupedFieldSet.Items()[0]
	fields := item.Fields
	field := fields[0]
	fieldName := field.Name.Name
	fieldDef := subscriptionType.GetField(fieldName, e.Features)
	if fieldDef == nil {
		return nil, newError(field, "Undefined root subscription field.")
	}
	argumentValues, err := coerceArgumentValues(field, fieldDef.Arguments, field.Arguments, e.VariableValues)
	if err != nil {
		return nil, err
	}

	resolveValue, resolveErr := fieldDef.Resolve(&schema.FieldContext{
		Context:     e.Context,
		Schema:      e.Schema,
		Object:      initialValue,
		Arguments:   argumentValues,
		Features:    e.Features,
		IsSubscribe: true,
	})
	if !isNil(resolveErr) {
		return nil, &Error{
			Message: resolveErr.Error(),
			Locations: []Location{{
				Line:   field.Position().Line,
				Column: field.Position().Column,
			}},
			Path:          []interface{}{item.Key},
			originalError: resolveErr,
		}
	}
	return resolveValue, nil
}

func (e *executor) executeSubscriptionEvent(initialValue interface{}) (*OrderedMap, []*Error) {
	subscriptionType := e.Schema.SubscriptionType()
	if !schema.IsObjectType(subscriptionType) {
		return nil, []*Error{newError(e.Operation, "This schema cannot perform subscriptions.")}
	}
	// @defer is disallowed on the root selection set of a subscription: there is exactly one
	// event payload to deliver per event, with no "rest of the response" to finish later.
	if data, err := wait(e, e.executeSelections(e.Operation.SelectionSet.Selections, subscriptionType, initialValue, nil, false, false, nil)); err != nil {
		e.Errors = append(e.Errors, err.(*Error))
		return nil, e.Errors
	} else if data != nil {
		return data, e.Errors
	}
	return nil, nil
}

func wait[T any](e *executor, f future.Future[T]) (T, error) {
	var result future.Result[T]
	done := false
	f = future.Map(f, func(r future.Result[T]) future.Result[T] {
		result = r
		done = true
		return r
	})
	f.Poll()
	for !done {
		if e.IdleHandler == nil {
			return result.Value, newError(nil, "No idle handler defined.")
		}
		e.IdleHandler()
		f.Poll()
	}
	return result.Value, result.Error
}

// executeSelections collects the grouped field set for selections and executes it. Fragments
// pulled out by an active @defer directive begin resolving immediately alongside the rest of the
// selection set, and are registered as subsequent payloads to be delivered once their own fields
// complete; they do not wait on the enclosing selection set's result.
func (e *executor) executeSelections(selections []ast.Selection, objectType *schema.ObjectType, objectValue interface{}, path *path, forceSerial bool, allowDefer bool, record *payloadRecord) future.Future[*OrderedMap] {
	groupedFieldSet := e.collectFields(objectType, selections, allowDefer)
	result := e.executeGroupedFieldSet(groupedFieldSet, objectType, objectValue, path, forceSerial, record)
	for _, deferred := range groupedFieldSet.Deferred {
		e.deferFragment(deferred.Label, objectType, objectValue, deferred.Fields, path, record)
	}
	return result
}

func (e *executor) executeGroupedFieldSet(groupedFieldSet *GroupedFieldSet, objectType *schema.ObjectType, objectValue interface{}, path *path, forceSerial bool, record *payloadRecord) future.Future[*OrderedMap] {
	// A field hidden by an unmet RequiredFeatures gate occupies no slot at all, so feature-gated
	// selections are resolved against the schema before resultMap is sized.
	type resolved struct {
		responseKey string
		fields      []*ast.Field
		fieldDef    *schema.FieldDefinition
		isTypename  bool
	}
	items := groupedFieldSet.Items()
	resolvedItems := make([]resolved, 0, len(items))
	for _, item := range items {
		fieldName := item.Fields[0].Name.Name
		if fieldName == "__typename" {
			resolvedItems = append(resolvedItems, resolved{responseKey: item.Key, isTypename: true})
			continue
		}
		fieldDef := objectType.GetField(fieldName, e.Features)
		if fieldDef == nil && objectType == e.Schema.QueryType() {
			fieldDef = introspection.MetaFields[fieldName]
		}
		if fieldDef != nil {
			resolvedItems = append(resolvedItems, resolved{responseKey: item.Key, fields: item.Fields, fieldDef: fieldDef})
		}
	}

	resultMap := NewOrderedMapWithLength(len(resolvedItems))
	futures := make([]future.Future[any], 0, len(resolvedItems))

	for i, item := range resolvedItems {
		if item.isTypename {
			resultMap.Set(i, item.responseKey, objectType.Name)
			continue
		}

		f := e.catchErrorIfNullable(item.fieldDef.Type, e.executeField(objectValue, item.fields, item.fieldDef, path.WithStringComponent(item.responseKey), record), record)
		if forceSerial {
			responseValue, err := wait(e, f)
			if err != nil {
				return future.Err[*OrderedMap](err)
			}
			resultMap.Set(i, item.responseKey, responseValue)
		} else {
			i := i
			responseKey := item.responseKey
			futures = append(futures, future.MapOk(f, func(responseValue any) any {
				resultMap.Set(i, responseKey, responseValue)
				return nil
			}))
		}
	}

	return future.MapOk(future.After(futures...), func(struct{}) *OrderedMap {
		return resultMap
	})
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) && rv.IsNil()
}

func newFieldResolveError(fields []*ast.Field, err error, path *path) *Error {
	locations := make([]Location, len(fields))
	for i, field := range fields {
		locations[i].Line = field.Position().Line
		locations[i].Column = field.Position().Column
	}
	return &Error{
		Message:       err.Error(),
		Locations:     locations,
		Path:          path.Slice(),
		originalError: err,
	}
}

func (e *executor) executeField(objectValue interface{}, fields []*ast.Field, fieldDef *schema.FieldDefinition, path *path, record *payloadRecord) future.Future[any] {
	field := fields[0]
	argumentValues, coercionErr := coerceArgumentValues(field, fieldDef.Arguments, field.Arguments, e.VariableValues)
	if coercionErr != nil {
		return future.Err[any](coercionErr)
	}
	if err := e.Context.Err(); err != nil {
		return future.Err[any](newFieldResolveError(fields, err, path))
	}
	resolvedValue, err := fieldDef.Resolve(&schema.FieldContext{
		Context:   e.Context,
		Schema:    e.Schema,
		Object:    objectValue,
		Arguments: argumentValues,
		Features:  e.Features,
	})
	if !isNil(err) {
		return future.Err[any](newFieldResolveError(fields, err, path))
	}
	if f, ok := resolvedValue.(ResolvePromise); ok {
		return future.Then(future.New(func() (future.Result[any], bool) {
			var result future.Result[any]
			select {
			case r := <-f:
				if !isNil(r.Error) {
					result.Error = r.Error
				} else {
					result.Value = r.Value
				}
				return result, true
			default:
				return result, false
			}
		}), func(r future.Result[any]) future.Future[any] {
			if r.IsOk() {
				return e.completeValue(fieldDef.Type, fields, r.Value, path, record)
			}
			return future.Err[any](newFieldResolveError(fields, r.Error, path))
		})
	}
	return e.completeValue(fieldDef.Type, fields, resolvedValue, path, record)
}

func (e *executor) catchErrorIfNullable(t schema.Type, f future.Future[any], record *payloadRecord) future.Future[any] {
	if schema.IsNonNullType(t) {
		return f
	}
	return future.Map(f, e.catchErrorFunc(record))
}

func (e *executor) completeValue(fieldType schema.Type, fields []*ast.Field, result interface{}, path *path, record *payloadRecord) future.Future[any] {
	if nonNullType, ok := fieldType.(*schema.NonNullType); ok {
		return future.Map(e.completeValue(nonNullType.Type, fields, result, path, record), func(r future.Result[any]) future.Result[any] {
			if r.IsOk() && r.Value == nil {
				r.Error = newErrorWithPath(fields[0], path, "Null result for non-null field.")
			}
			return r
		})
	}

	if isNil(result) {
		return future.Ok[any](nil)
	}

	if err, ok := result.(error); ok {
		return future.Err[any](newFieldResolveError(fields, err, path))
	}

	switch fieldType := fieldType.(type) {
	case *schema.ListType:
		result := reflect.ValueOf(result)
		if streamer, ok := result.Interface().(Streamer); ok {
			return e.completeStreamer(fieldType.Type, fields, streamer, path, record)
		}
		if result.Kind() != reflect.Slice {
			return future.Err[any](newErrorWithPath(fields[0], path, "Result is not a list."))
		}
		if stream := activeStreamDirective(fields[0], e.Schema, e.VariableValues); stream != nil {
			return e.completeStreamedList(fieldType.Type, fields, result, path, record, stream)
		}
		innerType := fieldType.Type
		completedResult := make([]future.Future[any], result.Len())
		for i := range completedResult {
			completedResult[i] = e.catchErrorIfNullable(innerType, e.completeValue(innerType, fields, result.Index(i).Interface(), path.WithIntComponent(i), record), record)
		}
		return future.MapOk(future.Join(completedResult...), func(l []interface{}) interface{} {
			return l
		})
	case *schema.ScalarType:
		coerced, err := fieldType.CoerceResult(result)
		if err != nil {
			return future.Err[any](newErrorWithPath(fields[0], path, "Unexpected result: %v", err))
		}
		return future.Ok(coerced)
	case *schema.EnumType:
		coerced, err := fieldType.CoerceResult(result)
		if err != nil {
			return future.Err[any](newErrorWithPath(fields[0], path, "Unexpected result: %v", err))
		}
		return future.Ok[any](coerced)
	case *schema.ObjectType, *schema.InterfaceType, *schema.UnionType:
		objectType := e.resolveObjectType(fieldType, result)
		if objectType == nil {
			return future.Err[any](newErrorWithPath(fields[0], path, "Unable to determine object type."))
		}
		return future.MapOk(e.executeSelections(mergeSelectionSets(fields), objectType, result, path, false, true, record), func(m *OrderedMap) interface{} {
			return m
		})
	}
	panic(fmt.Sprintf("unexpected field type: %T", fieldType))
}

// resolveObjectType determines the concrete object type backing an interface or union value.
// ResolveType, if defined, is consulted first. Otherwise, if the value reports its own type name
// (via TypeNamer), that name is looked up directly. Failing that, IsTypeOf is linearly scanned
// across the abstract type's possible types, matching the historical behavior for
// implementations that never adopted ResolveType or TypeNamer.
func (e *executor) resolveObjectType(fieldType schema.Type, result interface{}) *schema.ObjectType {
	switch fieldType := fieldType.(type) {
	case *schema.ObjectType:
		return fieldType
	case *schema.InterfaceType:
		if fieldType.ResolveType != nil {
			if name := fieldType.ResolveType(e.Context, result); name != "" {
				t := e.objectTypeNamed(name)
				for _, impl := range e.Schema.InterfaceImplementations(fieldType.Name) {
					if impl == t {
						return t
					}
				}
				return nil
			}
		}
		if name, ok := typeNameOf(result); ok {
			if t := e.objectTypeNamed(name); t != nil {
				for _, impl := range e.Schema.InterfaceImplementations(fieldType.Name) {
					if impl == t {
						return t
					}
				}
			}
		}
		for _, t := range e.Schema.InterfaceImplementations(fieldType.Name) {
			if t.IsTypeOf != nil && t.IsTypeOf(result) {
				return t
			}
		}
	case *schema.UnionType:
		if fieldType.ResolveType != nil {
			if name := fieldType.ResolveType(e.Context, result); name != "" {
				t := e.objectTypeNamed(name)
				for _, member := range fieldType.MemberTypes {
					if member == t {
						return t
					}
				}
				return nil
			}
		}
		if name, ok := typeNameOf(result); ok {
			if t := e.objectTypeNamed(name); t != nil {
				for _, member := range fieldType.MemberTypes {
					if member == t {
						return t
					}
				}
			}
		}
		for _, t := range fieldType.MemberTypes {
			if t.IsTypeOf != nil && t.IsTypeOf(result) {
				return t
			}
		}
	}
	return nil
}

func (e *executor) objectTypeNamed(name string) *schema.ObjectType {
	t, _ := e.Schema.NamedTypes()[name].(*schema.ObjectType)
	return t
}

// TypeNamer can be implemented by resolved values to report their GraphQL object type name
// directly, bypassing a linear IsTypeOf scan.
type TypeNamer interface {
	GraphQLTypeName() string
}

func typeNameOf(v interface{}) (string, bool) {
	if n, ok := v.(TypeNamer); ok {
		if name := n.GraphQLTypeName(); name != "" {
			return name, true
		}
	}
	return "", false
}

func mergeSelectionSets(fields []*ast.Field) []ast.Selection {
	var selectionSet []ast.Selection
	for _, field := range fields {
		if field.SelectionSet == nil {
			continue
		}
		selectionSet = append(selectionSet, field.SelectionSet.Selections...)
	}
	return selectionSet
}

func (e *executor) collectFields(objectType *schema.ObjectType, selections []ast.Selection, allowDefer bool) *GroupedFieldSet {
	// collectFields can be called many times with the same inputs throughout a query's execution,
	// so we memoize the return value.

	cacheKeyBytes := make([]byte, len(objectType.Name)+16*len(selections)+1)
	copy(cacheKeyBytes, objectType.Name)
	for i, sel := range selections {
		pos := sel.Position()
		binary.LittleEndian.PutUint64(cacheKeyBytes[len(objectType.Name)+i*16:], uint64(pos.Line))
		binary.LittleEndian.PutUint64(cacheKeyBytes[len(objectType.Name)+i*16+8:], uint64(pos.Column))
	}
	if allowDefer {
		cacheKeyBytes[len(cacheKeyBytes)-1] = 1
	}
	cacheKey := string(cacheKeyBytes)

	if hit, ok := e.GroupedFieldSetCache[cacheKey]; ok {
		return hit
	}

	groupedFieldSet := NewGroupedFieldSetWithCapacity(len(selections))
	e.collectFieldsImpl(objectType, selections, nil, groupedFieldSet, allowDefer)
	e.GroupedFieldSetCache[cacheKey] = groupedFieldSet
	return groupedFieldSet
}

func (e *executor) collectFieldsImpl(objectType *schema.ObjectType, selections []ast.Selection, visitedFragments map[string]struct{}, groupedFields *GroupedFieldSet, allowDefer bool) {
	if visitedFragments == nil {
		visitedFragments = map[string]struct{}{}
	}
	for _, selection := range selections {
		skip := false
		for _, directive := range selection.SelectionDirectives() {
			if def := e.Schema.Directives()[directive.Name.Name]; def != nil && def.FieldCollectionFilter != nil {
				if arguments, err := coerceArgumentValues(directive, def.Arguments, directive.Arguments, e.VariableValues); err == nil && !def.FieldCollectionFilter(arguments) {
					skip = true
				}
			}
		}
		if skip {
			continue
		}

		switch selection := selection.(type) {
		case *ast.Field:
			responseKey := selection.Name.Name
			if selection.Alias != nil {
				responseKey = selection.Alias.Name
			}
			groupedFields.Append(responseKey, selection)
		case *ast.FragmentSpread:
			fragmentSpreadName := selection.FragmentName.Name
			if _, ok := visitedFragments[fragmentSpreadName]; ok {
				continue
			}
			visitedFragments[fragmentSpreadName] = struct{}{}

			fragment := e.FragmentDefinitions[fragmentSpreadName]
			if fragment == nil {
				continue
			}

			fragmentType := schemaType(fragment.TypeCondition, e.Schema)
			if fragmentType == nil || !doesFragmentTypeApply(objectType, fragmentType) {
				continue
			}

			if allowDefer {
				if label, ok := e.activeDefer(selection.SelectionDirectives()); ok {
					deferredSet := NewGroupedFieldSetWithCapacity(len(fragment.SelectionSet.Selections))
					e.collectFieldsImpl(objectType, fragment.SelectionSet.Selections, visitedFragments, deferredSet, true)
					groupedFields.AppendDeferred(label, deferredSet)
					continue
				}
			}

			e.collectFieldsImpl(objectType, fragment.SelectionSet.Selections, visitedFragments, groupedFields, allowDefer)
		case *ast.InlineFragment:
			if selection.TypeCondition != nil {
				fragmentType := schemaType(selection.TypeCondition, e.Schema)
				if fragmentType == nil || !doesFragmentTypeApply(objectType, fragmentType) {
					continue
				}
			}

			if allowDefer {
				if label, ok := e.activeDefer(selection.SelectionDirectives()); ok {
					deferredSet := NewGroupedFieldSetWithCapacity(len(selection.SelectionSet.Selections))
					e.collectFieldsImpl(objectType, selection.SelectionSet.Selections, visitedFragments, deferredSet, true)
					groupedFields.AppendDeferred(label, deferredSet)
					continue
				}
			}

			e.collectFieldsImpl(objectType, selection.SelectionSet.Selections, visitedFragments, groupedFields, allowDefer)
		default:
			panic(fmt.Sprintf("unexpected selection type: %T", selection))
		}
	}
}

// activeDefer reports the label of an @defer directive among directives, if one is present and
// its if argument (which defaults to true) does not evaluate to false.
func (e *executor) activeDefer(directives []*ast.Directive) (string, bool) {
	def := e.Schema.Directives()["defer"]
	if def == nil {
		return "", false
	}
	for _, directive := range directives {
		if directive.Name.Name != "defer" {
			continue
		}
		arguments, err := coerceArgumentValues(directive, def.Arguments, directive.Arguments, e.VariableValues)
		if err != nil || arguments["if"] == false {
			return "", false
		}
		label, _ := arguments["label"].(string)
		return label, true
	}
	return "", false
}

func doesFragmentTypeApply(objectType *schema.ObjectType, fragmentType schema.Type) bool {
	switch fragmentType := fragmentType.(type) {
	case *schema.ObjectType:
		return objectType.IsSameType(fragmentType)
	case *schema.InterfaceType:
		for _, impl := range objectType.ImplementedInterfaces {
			if impl.IsSameType(fragmentType) {
				return true
			}
		}
		return false
	case *schema.UnionType:
		for _, member := range fragmentType.MemberTypes {
			if member.IsSameType(objectType) {
				return true
			}
		}
		return false
	}
	panic(fmt.Sprintf("unexpected fragment type: %T", fragmentType))
}

// GetOperation returns the operation selected by the given name. If operationName is "" and the
// document contains only one operation, it is returned. Otherwise the document must contain exactly
// one operation with the given name.
func GetOperation(doc *ast.Document, operationName string) (*ast.OperationDefinition, *Error) {
	var ret *ast.OperationDefinition
	for _, def := range doc.Definitions {
		if def, ok := def.(*ast.OperationDefinition); ok {
			if operationName == "" || (def.Name != nil && def.Name.Name == operationName) {
				if ret != nil {
					return nil, newError(def, "Multiple matching operations.")
				}
				ret = def
			}
		}
	}
	if ret == nil {
		return nil, newError(nil, "No matching operations.")
	}
	return ret, nil
}

func namedType(s *schema.Schema, name string) schema.NamedType {
	if ret := s.NamedTypes()[name]; ret != nil {
		return ret
	}
	if ret, ok := schema.BuiltInTypes[name]; ok {
		return ret
	}
	return introspection.NamedTypes[name]
}

func schemaType(t ast.Type, s *schema.Schema) schema.Type {
	switch t := t.(type) {
	case *ast.ListType:
		if inner := schemaType(t.Type, s); inner != nil {
			return schema.NewListType(inner)
		}
	case *ast.NonNullType:
		if inner := schemaType(t.Type, s); inner != nil {
			return schema.NewNonNullType(inner)
		}
	case *ast.NamedType:
		return namedType(s, t.Name.Name)
	default:
		panic(fmt.Sprintf("unexpected ast type: %T", t))
	}
	return nil
}

func coerceVariableValues(s *schema.Schema, operation *ast.OperationDefinition, variableValues map[string]interface{}) (map[string]interface{}, []*Error) {
	ret, errs := validator.CoerceVariableValues(s, operation, variableValues)
	if errs == nil {
		return ret, nil
	}
	converted := make([]*Error, len(errs))
	for i, err := range errs {
		converted[i] = newErrorWithValidatorError(err)
	}
	return ret, converted
}

func coerceArgumentValues(node ast.Node, argumentDefinitions map[string]*schema.InputValueDefinition, arguments []*ast.Argument, variableValues map[string]interface{}) (map[string]interface{}, *Error) {
	ret, err := validator.CoerceArgumentValues(node, argumentDefinitions, arguments, variableValues)
	return ret, newErrorWithValidatorError(err)
}
