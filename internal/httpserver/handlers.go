// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Request handlers for the single-node and distributed query endpoints.

package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	coorderrors "dbgrid/internal/errors"
	"dbgrid/internal/logging"
	"dbgrid/internal/sqlengine"
)

type handler struct {
	deps Dependencies
}

// queryRequest is the wire shape of QueryRequest (spec §3). num_threads
// uses sqlengine.AutoThreads (-1) as its "auto" sentinel, matching the
// source model this was distilled from.
type queryRequest struct {
	SQL               string `json:"sql"`
	Profiling         bool   `json:"profiling"`
	MaxRows           int    `json:"max_rows"`
	NumThreads        int    `json:"num_threads"`
	LBURL             string `json:"lb_url"`
	ForceRefreshCache bool   `json:"force_refresh_cache"`
}

func (h *handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQueryRequest(r, h.deps.Config.MaxRowsDefault)
	if err != nil {
		writeError(w, err)
		return
	}

	logging.WithFields(h.deps.Logger, logging.Fields{
		Component: "httpserver",
		Operation: "query",
		RequestID: middleware.GetReqID(r.Context()),
	}).Debug("httpserver.query", zap.String("sql", logging.Abbreviate(req.SQL, h.deps.Config.MaxTextBytes)))

	resp, err := h.deps.Coordinator.Query(r.Context(), toEngineRequest(req), req.ForceRefreshCache)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponseBody(resp))
}

func (h *handler) handleDistributedQuery(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQueryRequest(r, h.deps.Config.MaxRowsDefault)
	if err != nil {
		writeError(w, err)
		return
	}

	workerEndpoint := req.LBURL
	if workerEndpoint == "" {
		writeError(w, coorderrors.NewMalformedQuery("lb_url must be set for a distributed query"))
		return
	}

	logging.WithFields(h.deps.Logger, logging.Fields{
		Component: "httpserver",
		Operation: "distributed-query",
		RequestID: middleware.GetReqID(r.Context()),
	}).Debug("httpserver.distributed_query",
		zap.String("sql", logging.Abbreviate(req.SQL, h.deps.Config.MaxTextBytes)),
		logging.FieldDSN("worker_endpoint", workerEndpoint),
	)

	result, err := h.deps.Coordinator.DistributedQuery(r.Context(), toEngineRequest(req), workerEndpoint)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"columns":         result.Columns,
		"rows":            result.Rows,
		"hostname":        result.Hostname,
		"execution_time":  result.ExecutionTime,
		"partitions_used": result.PartitionsUsed,
	})
}

func decodeQueryRequest(r *http.Request, maxRowsDefault int) (queryRequest, error) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, coorderrors.NewMalformedQuery("invalid request body: " + err.Error())
	}
	if req.SQL == "" {
		return req, coorderrors.NewMalformedQuery("sql must not be empty")
	}
	if req.MaxRows <= 0 {
		req.MaxRows = maxRowsDefault
	}
	if req.NumThreads == 0 {
		req.NumThreads = sqlengine.AutoThreads
	}
	return req, nil
}

func toEngineRequest(req queryRequest) sqlengine.Request {
	return sqlengine.Request{
		SQL:        req.SQL,
		Profiling:  req.Profiling,
		MaxRows:    req.MaxRows,
		NumThreads: req.NumThreads,
	}
}

// queryResponseBody returns the profiling-shaped body when profiling was
// requested, and the columns/rows shape otherwise (spec §6).
func queryResponseBody(resp *sqlengine.Response) map[string]any {
	if resp.Profiling != nil {
		return map[string]any{
			"profiling":      resp.Profiling,
			"hostname":       resp.Hostname,
			"execution_time": resp.ExecutionTime,
		}
	}
	return map[string]any{
		"columns":        resp.Columns,
		"rows":           resp.Rows,
		"hostname":       resp.Hostname,
		"execution_time": resp.ExecutionTime,
	}
}

func writeError(w http.ResponseWriter, err error) {
	ce := coorderrors.ToCoordError(err)
	writeJSON(w, coorderrors.ToHTTPStatus(ce.Code), map[string]string{"detail": ce.Message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
