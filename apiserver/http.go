package apiserver

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/solvent-graphql/engine/graphql"
)

// multipartBoundary separates the parts of an incremental HTTP response. Its value is arbitrary;
// it only has to not appear in the body of any part.
const multipartBoundary = "-"

// ServeHTTP executes the request and writes its result. If the operation fired no @defer or
// @stream, a single application/json response is written, exactly like a non-incremental engine.
// Otherwise, the response is streamed as a multipart/mixed body: the initial payload is written
// immediately as the first part, and each subsequent payload is written, and flushed, as it
// becomes available, following the multipart incremental delivery convention adopted across the
// GraphQL ecosystem for @defer/@stream over HTTP.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state := &requestState{}
	ctx = context.WithValue(ctx, requestStateContextKey, state)
	r = r.WithContext(ctx)

	req, code, err := graphql.NewRequestFromHTTP(r)
	if err != nil {
		http.Error(w, err.Error(), code)
		return
	}
	req.Schema = s.config.Schema
	req.IdleHandler = state.IdleHandler
	if s.config.Features != nil {
		req.Features = s.config.Features(ctx)
	}

	metrics := &requestMetrics{operationName: req.OperationName}
	maxCost := -1
	if s.config.MaxCost > 0 {
		maxCost = s.config.MaxCost
	}
	if doc, errs := graphql.ParseAndValidate(req.Query, req.Schema, req.ValidateCost(maxCost, &metrics.cost, s.config.DefaultFieldCost)); len(errs) > 0 {
		s.writeJSON(w, &graphql.Response{Errors: errs})
		s.logSettlement(metrics, len(errs))
		return
	} else {
		req.Document = doc
	}

	response, sequence, hasSequence := graphql.ExecuteIncremental(req)
	if !hasSequence {
		s.writeJSON(w, response)
		s.logSettlement(metrics, len(response.Errors))
		return
	}
	defer sequence.Close()

	mw := multipart.NewWriter(w)
	mw.SetBoundary(multipartBoundary)
	w.Header().Set("Content-Type", "multipart/mixed; boundary="+multipartBoundary+"; deferSpec=20220824")
	w.WriteHeader(http.StatusOK)

	s.writeMultipartPart(mw, response)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	errorCount := len(response.Errors)
	for {
		patch, ok := sequence.Next(state.IdleHandler)
		if !ok {
			break
		}
		metrics.patchCount++
		errorCount += len(patch.Errors)
		s.writeMultipartPart(mw, patch)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
	mw.Close()
	s.logSettlement(metrics, errorCount)
}

func (s *Server) writeMultipartPart(mw *multipart.Writer, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error(fmt.Errorf("error marshaling graphql payload: %w", err))
		return
	}
	part, err := mw.CreatePart(map[string][]string{
		"Content-Type": {"application/json; charset=utf-8"},
	})
	if err != nil {
		s.logger.Error(fmt.Errorf("error creating multipart part: %w", err))
		return
	}
	part.Write(body)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Write(body)
}
