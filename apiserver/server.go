// Package apiserver exposes a graphql.Schema over HTTP and WebSocket. Unlike the apifu package,
// it has no opinion about node identity, pagination, or persisted queries: it only knows how to
// execute requests against a schema and relay the results, including the subsequent payloads
// produced by @defer and @stream, to a client.
package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/solvent-graphql/engine/graphql"
)

// Config configures a Server.
type Config struct {
	Schema *graphql.Schema

	// MaxCost, if non-zero, is the maximum allowed cost for an operation, as calculated by
	// DefaultFieldCost and each field's own Cost function. Requests that exceed it are rejected
	// during validation. A value of 0 disables the limit.
	MaxCost int

	// DefaultFieldCost is used to estimate the cost of fields that don't define their own Cost
	// function.
	DefaultFieldCost graphql.FieldCost

	// Features, if non-nil, is consulted for every request to determine which feature-gated
	// fields and union members should be visible to it.
	Features func(ctx context.Context) graphql.FeatureSet

	// WebSocketOriginCheck, if non-nil, is used to validate the Origin header of incoming
	// WebSocket upgrade requests.
	WebSocketOriginCheck func(r *http.Request) bool

	// HandleWSInit, if non-nil, is invoked with the connection_init payload sent by a WebSocket
	// client. It may derive a new context (e.g. to attach authentication state) or reject the
	// connection by returning an error.
	HandleWSInit func(ctx context.Context, parameters json.RawMessage) (context.Context, error)

	// Logger receives one structured line per settled request. If nil, logrus.StandardLogger is
	// used.
	Logger logrus.FieldLogger
}

// Server serves a schema over HTTP and WebSocket, including incremental payloads produced by
// @defer and @stream.
type Server struct {
	config *Config
	logger logrus.FieldLogger

	connectionsMutex sync.Mutex
	connections      map[graphqlWSConnection]struct{}
}

// NewServer builds a Server from the given configuration.
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		config:      cfg,
		logger:      logger,
		connections: map[graphqlWSConnection]struct{}{},
	}
}

type requestMetrics struct {
	cost          int
	patchCount    int
	operationName string
}

func (s *Server) logSettlement(m *requestMetrics, errorCount int) {
	s.logger.WithFields(logrus.Fields{
		"operationName": m.operationName,
		"cost":          m.cost,
		"errorCount":    errorCount,
		"patchCount":    m.patchCount,
	}).Debug("graphql request settled")
}

// CloseHijackedConnections closes every WebSocket connection hijacked by ServeGraphQLWS.
func (s *Server) CloseHijackedConnections() error {
	s.connectionsMutex.Lock()
	connections := make([]graphqlWSConnection, 0, len(s.connections))
	for c := range s.connections {
		connections = append(connections, c)
	}
	s.connections = map[graphqlWSConnection]struct{}{}
	s.connectionsMutex.Unlock()

	var ret error
	for _, c := range connections {
		if err := c.Close(); err != nil {
			ret = err
		}
	}
	return ret
}
