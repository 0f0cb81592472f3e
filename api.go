package apifu

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/solvent-graphql/engine/graphql"
	"github.com/solvent-graphql/engine/graphql/executor"
)

type API struct {
	schema *graphql.Schema
	config *Config
	logger logrus.FieldLogger

	graphqlWSConnectionsMutex sync.Mutex
	graphqlWSConnections      map[graphqlWSConnection]struct{}
}

func normalizeModelType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func NewAPI(cfg *Config) (*API, error) {
	schema, err := cfg.graphqlSchema()
	if err != nil {
		return nil, errors.Wrap(err, "error building graphql schema")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &API{
		config:               cfg,
		schema:               schema,
		logger:               logger,
		graphqlWSConnections: map[graphqlWSConnection]struct{}{},
	}, nil
}

type apiContextKeyType int

var apiContextKey apiContextKeyType

func ctxAPI(ctx context.Context) *API {
	return ctx.Value(apiContextKey).(*API)
}

type asyncResolution struct {
	Result executor.ResolveResult
	Dest   executor.ResolvePromise
}

type apiRequest struct {
	asyncResolutions chan asyncResolution
}

func (r *apiRequest) IdleHandler() {
	resolution := <-r.asyncResolutions
	resolution.Dest <- resolution.Result
	for {
		select {
		case resolution := <-r.asyncResolutions:
			resolution.Dest <- resolution.Result
		default:
			return
		}
	}
}

type apiRequestContextKeyType int

var apiRequestContextKey apiRequestContextKeyType

func ctxAPIRequest(ctx context.Context) *apiRequest {
	return ctx.Value(apiRequestContextKey).(*apiRequest)
}

// Async causes the given resolver to be executed within a new goroutine. It will be executed
// concurrently with other asynchronous resolvers if possible.
func Async(resolve func(ctx *graphql.FieldContext) (interface{}, error)) func(ctx *graphql.FieldContext) (interface{}, error) {
	return func(ctx *graphql.FieldContext) (interface{}, error) {
		apiRequest := ctxAPIRequest(ctx.Context)
		if apiRequest.asyncResolutions == nil {
			apiRequest.asyncResolutions = make(chan asyncResolution)
		}
		ch := make(executor.ResolvePromise, 1)
		go func() {
			v, err := resolve(ctx)
			result := executor.ResolveResult{
				Value: v,
				Error: err,
			}
			apiRequest.asyncResolutions <- asyncResolution{
				Result: result,
				Dest:   ch,
			}
		}()
		return ch, nil
	}
}

// Go runs f within a new goroutine and returns a promise for its result, which a resolver can
// return in place of a value. It will be executed concurrently with other asynchronous resolvers if
// possible.
func Go(ctx context.Context, f func() (interface{}, error)) executor.ResolvePromise {
	apiRequest := ctxAPIRequest(ctx)
	if apiRequest.asyncResolutions == nil {
		apiRequest.asyncResolutions = make(chan asyncResolution)
	}
	ch := make(executor.ResolvePromise, 1)
	go func() {
		v, err := f()
		apiRequest.asyncResolutions <- asyncResolution{Result: executor.ResolveResult{Value: v, Error: err}, Dest: ch}
	}()
	return ch
}

// RequestInfo captures metrics gathered while validating and executing a request, so they can be
// attached to the structured log line emitted once the request settles.
type RequestInfo struct {
	// Cost is the operation's calculated cost, populated when the request was validated via
	// Request.ValidateCost.
	Cost int
}

// executeFunc returns the execution function this API should invoke for every request, applying
// the config's Execute override and, if configured, Apollo persisted query support, in that
// order: PersistedQueryExtension resolves the query's text before handing off to Execute (or the
// caller's override).
func (api *API) executeFunc() func(*graphql.Request) *graphql.Response {
	execute := api.config.Execute
	if execute == nil {
		execute = graphql.Execute
	}
	if api.config.PersistedQueryStorage != nil {
		execute = PersistedQueryExtension(api.config.PersistedQueryStorage, execute)
	}
	return execute
}

// execute runs req through executeFunc and logs one structured line per settled request.
func (api *API) execute(req *graphql.Request, info *RequestInfo) *graphql.Response {
	resp := api.executeFunc()(req)
	api.logger.WithFields(logrus.Fields{
		"operationName": req.OperationName,
		"cost":          info.Cost,
		"errorCount":    len(resp.Errors),
	}).Debug("graphql request settled")
	return resp
}

func (api *API) ServeGraphQL(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithValue(r.Context(), apiContextKey, api)
	apiRequest := &apiRequest{}
	ctx = context.WithValue(ctx, apiRequestContextKey, apiRequest)
	r = r.WithContext(ctx)

	req, code, err := graphql.NewRequestFromHTTP(r)
	if err != nil {
		http.Error(w, err.Error(), code)
		return
	}
	req.Schema = api.schema
	req.IdleHandler = apiRequest.IdleHandler
	if api.config.Features != nil {
		req.Features = api.config.Features(ctx)
	}

	var info RequestInfo
	body, err := json.Marshal(api.execute(req, &info))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Write(body)
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) && rv.IsNil()
}

func (api *API) resolveNodeByGlobalId(ctx context.Context, id string) (interface{}, error) {
	typeId, modelId := api.config.DeserializeNodeId(id)
	nodeType, ok := api.config.nodeTypesById[typeId]
	if !ok {
		return nil, nil
	}
	return api.resolveNodeById(ctx, nodeType, modelId)
}

// resolveNodesByGlobalIds resolves the "nodes" root field. Ids are grouped by their node type so
// each type's GetByIds is invoked at most once; nodes for unrecognized or malformed ids are simply
// omitted, per the field's documented "non-existent nodes are not returned" contract.
func (api *API) resolveNodesByGlobalIds(ctx context.Context, ids []string) ([]interface{}, error) {
	var order []*NodeType
	modelIdsByType := map[*NodeType][]interface{}{}
	for _, id := range ids {
		typeId, modelId := api.config.DeserializeNodeId(id)
		nodeType, ok := api.config.nodeTypesById[typeId]
		if !ok {
			continue
		}
		if _, seen := modelIdsByType[nodeType]; !seen {
			order = append(order, nodeType)
		}
		modelIdsByType[nodeType] = append(modelIdsByType[nodeType], modelId)
	}

	var ret []interface{}
	for _, nodeType := range order {
		modelIds := modelIdsByType[nodeType]
		idsValue := reflect.MakeSlice(reflect.SliceOf(reflect.TypeOf(modelIds[0])), len(modelIds), len(modelIds))
		for i, id := range modelIds {
			idsValue.Index(i).Set(reflect.ValueOf(id))
		}
		nodes, err := nodeType.GetByIds(ctx, idsValue.Interface())
		if !isNil(err) {
			return nil, err
		}
		nodesValue := reflect.ValueOf(nodes)
		for i := 0; i < nodesValue.Len(); i++ {
			ret = append(ret, nodesValue.Index(i).Interface())
		}
	}
	return ret, nil
}

func (api *API) resolveNodeById(ctx context.Context, nodeType *NodeType, modelId interface{}) (interface{}, error) {
	// TODO: batching and concurrency

	ids := reflect.MakeSlice(reflect.SliceOf(reflect.TypeOf(modelId)), 1, 1)
	ids.Index(0).Set(reflect.ValueOf(modelId))
	nodes, err := nodeType.GetByIds(ctx, ids.Interface())
	if !isNil(err) {
		return nil, err
	}
	nodesValue := reflect.ValueOf(nodes)
	if nodesValue.Len() < 1 {
		return nil, nil
	}
	return nodesValue.Index(0).Interface(), nil
}
