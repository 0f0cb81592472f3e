package apiserver

import (
	"context"

	"github.com/solvent-graphql/engine/graphql"
)

type asyncResolution struct {
	Result graphql.ResolveResult
	Dest   graphql.ResolvePromise
}

// requestState tracks the asynchronous resolutions in flight for a single request, and serves as
// the Request.IdleHandler given to the engine: whenever every synchronous resolver has run dry,
// the engine blocks on IdleHandler until at least one outstanding ResolvePromise is fulfilled.
type requestState struct {
	asyncResolutions chan asyncResolution
}

func (s *requestState) IdleHandler() {
	resolution := <-s.asyncResolutions
	resolution.Dest <- resolution.Result
	for {
		select {
		case resolution := <-s.asyncResolutions:
			resolution.Dest <- resolution.Result
		default:
			return
		}
	}
}

type requestStateContextKeyType int

var requestStateContextKey requestStateContextKeyType

func ctxRequestState(ctx context.Context) *requestState {
	return ctx.Value(requestStateContextKey).(*requestState)
}

// Async causes the given resolver to run on its own goroutine, concurrently with any other
// asynchronous resolvers invoked by the same request. Schemas served directly by this package
// (rather than by the apifu layer) should use this instead of apifu.Async.
func Async(resolve func(ctx *graphql.FieldContext) (interface{}, error)) func(ctx *graphql.FieldContext) (interface{}, error) {
	return func(ctx *graphql.FieldContext) (interface{}, error) {
		state := ctxRequestState(ctx.Context)
		if state.asyncResolutions == nil {
			state.asyncResolutions = make(chan asyncResolution)
		}
		ch := make(graphql.ResolvePromise, 1)
		go func() {
			v, err := resolve(ctx)
			state.asyncResolutions <- asyncResolution{
				Result: graphql.ResolveResult{Value: v, Error: err},
				Dest:   ch,
			}
		}()
		return ch, nil
	}
}
