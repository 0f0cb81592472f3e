// Command gqlserver is a small demonstration of apiserver: it serves a handful of fields over
// both HTTP and WebSocket, using @defer-friendly async resolvers so that an incremental-capable
// client has something to observe.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/solvent-graphql/engine/apiserver"
	"github.com/solvent-graphql/engine/graphql"
)

func main() {
	addr := pflag.String("listen-address", ":8080", "address to listen on")
	maxCost := pflag.Int("max-cost", 1000, "maximum allowed operation cost, or 0 for no limit")
	pflag.Parse()

	schema, err := buildSchema()
	if err != nil {
		logrus.WithError(err).Fatal("error building schema")
	}

	server := apiserver.NewServer(&apiserver.Config{
		Schema:           schema,
		MaxCost:          *maxCost,
		DefaultFieldCost: graphql.FieldCost{Resolver: 1},
	})

	router := mux.NewRouter()
	router.HandleFunc("/graphql", server.ServeHTTP)
	router.HandleFunc("/graphql/ws", server.ServeGraphQLWS)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	httpServer := &http.Server{
		Addr:        *addr,
		Handler:     cors(router),
		ReadTimeout: 2 * time.Minute,
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
		<-ch
		logrus.Info("signal caught. shutting down...")
		cancel()
	}()

	go func() {
		<-ctx.Done()
		if err := server.CloseHijackedConnections(); err != nil {
			logrus.Error(err)
		}
		if err := httpServer.Shutdown(context.Background()); err != nil {
			logrus.Error(err)
		}
	}()

	logrus.Infof("listening at http://127.0.0.1%s", *addr)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logrus.Error(err)
	}
}
