package apiserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/solvent-graphql/engine/graphql"
	"github.com/solvent-graphql/engine/graphql/transport/graphqltransportws"
	"github.com/solvent-graphql/engine/graphql/transport/graphqlws"
)

// hijackedContext gets its values from the original, now-cancelable-at-any-moment, HTTP request
// context, but its cancellation from a fresh context created after the connection is hijacked.
type hijackedContext struct {
	newContext   context.Context
	valueContext context.Context
}

func (ctx hijackedContext) Deadline() (time.Time, bool) { return ctx.newContext.Deadline() }
func (ctx hijackedContext) Done() <-chan struct{}       { return ctx.newContext.Done() }
func (ctx hijackedContext) Err() error                  { return ctx.newContext.Err() }
func (ctx hijackedContext) Value(key any) any           { return ctx.valueContext.Value(key) }

// graphqlWSConnection is satisfied by both *graphqlws.Connection and *graphqltransportws.Connection.
// Unlike apifu's equivalent interface, it also relays subsequent payloads via SendPatch, since this
// package must support @defer/@stream over both WebSocket subprotocols.
type graphqlWSConnection interface {
	SendData(ctx context.Context, id string, response *graphql.Response) error
	SendPatch(ctx context.Context, id string, patch *graphql.PatchResponse) error
	SendComplete(ctx context.Context, id string) error
	Serve(conn *websocket.Conn)
	io.Closer
}

type wsHandler struct {
	Server     *Server
	Connection graphqlWSConnection
	Context    context.Context
	Logger     logrus.FieldLogger

	cancelContext func()
	features      graphql.FeatureSet
}

func (h *wsHandler) HandleInit(parameters json.RawMessage) error {
	if f := h.Server.config.HandleWSInit; f != nil {
		ctx, err := f(h.Context, parameters)
		if err != nil {
			return err
		}
		h.Context = ctx
	}
	if h.Server.config.Features != nil {
		h.features = h.Server.config.Features(h.Context)
	}
	return nil
}

func (h *wsHandler) HandleStart(id string, query string, variables map[string]interface{}, operationName string) {
	state := &requestState{}
	ctx := context.WithValue(h.Context, requestStateContextKey, state)

	req := &graphql.Request{
		Context:        ctx,
		Query:          query,
		Schema:         h.Server.config.Schema,
		IdleHandler:    state.IdleHandler,
		Features:       h.features,
		OperationName:  operationName,
		VariableValues: variables,
	}

	metrics := &requestMetrics{operationName: operationName}
	maxCost := -1
	if h.Server.config.MaxCost > 0 {
		maxCost = h.Server.config.MaxCost
	}

	doc, errs := graphql.ParseAndValidate(req.Query, req.Schema, req.ValidateCost(maxCost, &metrics.cost, h.Server.config.DefaultFieldCost))
	if len(errs) > 0 {
		h.sendAndComplete(id, &graphql.Response{Errors: errs})
		h.Server.logSettlement(metrics, len(errs))
		return
	}
	req.Document = doc

	response, sequence, hasSequence := graphql.ExecuteIncremental(req)
	if err := h.Connection.SendData(context.Background(), id, response); err != nil {
		h.Logger.Warn(errors.Wrap(err, "error sending graphql-ws data"))
	}

	errorCount := len(response.Errors)
	if hasSequence {
		for {
			patch, ok := sequence.Next(state.IdleHandler)
			if !ok {
				break
			}
			metrics.patchCount++
			errorCount += len(patch.Errors)
			if err := h.Connection.SendPatch(context.Background(), id, patch); err != nil {
				h.Logger.Warn(errors.Wrap(err, "error sending graphql-ws patch"))
			}
		}
	}

	if err := h.Connection.SendComplete(context.Background(), id); err != nil {
		h.Logger.Warn(errors.Wrap(err, "error sending graphql-ws complete"))
	}
	h.Server.logSettlement(metrics, errorCount)
}

func (h *wsHandler) sendAndComplete(id string, resp *graphql.Response) {
	if err := h.Connection.SendData(context.Background(), id, resp); err != nil {
		h.Logger.Warn(errors.Wrap(err, "error sending graphql-ws data"))
	}
	if err := h.Connection.SendComplete(context.Background(), id); err != nil {
		h.Logger.Warn(errors.Wrap(err, "error sending graphql-ws complete"))
	}
}

// HandleStop is a no-op: this server doesn't support subscriptions over the WebSocket transports,
// only queries and mutations that may themselves be incremental via @defer/@stream.
func (h *wsHandler) HandleStop(id string) {}

func (h *wsHandler) LogError(err error) {
	h.Logger.Error(err)
}

func (h *wsHandler) Cancel() {
	h.cancelContext()
}

func (h *wsHandler) HandleClose() {
	h.Server.connectionsMutex.Lock()
	defer h.Server.connectionsMutex.Unlock()
	delete(h.Server.connections, h.Connection)
}

// ServeGraphQLWS serves a GraphQL WebSocket connection, supporting both the graphql-ws and
// graphql-transport-ws subprotocols. Subsequent payloads produced by @defer/@stream are relayed
// via the negotiated subprotocol's SendPatch before the final SendComplete.
//
// This method hijacks the connection. To gracefully close hijacked connections, use
// CloseHijackedConnections.
func (s *Server) ServeGraphQLWS(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "not a websocket upgrade", http.StatusBadRequest)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin:       s.config.WebSocketOriginCheck,
		EnableCompression: true,
		Subprotocols:      []string{graphqlws.WebSocketSubprotocol, graphqltransportws.WebSocketSubprotocol},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	handler := &wsHandler{
		Server: s,
		Context: hijackedContext{
			newContext:   ctx,
			valueContext: r.Context(),
		},
		Logger:        s.logger,
		cancelContext: cancel,
	}

	var connection graphqlWSConnection
	if conn.Subprotocol() == graphqltransportws.WebSocketSubprotocol {
		connection = &graphqltransportws.Connection{Handler: handler}
	} else {
		connection = &graphqlws.Connection{Handler: handler}
	}
	handler.Connection = connection

	s.connectionsMutex.Lock()
	s.connections[connection] = struct{}{}
	s.connectionsMutex.Unlock()

	connection.Serve(conn)
}
