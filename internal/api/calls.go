package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/edmunds/internal/model"
	"github.com/seantiz/edmunds/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// createCallRequest is the JSON body for POST /v1/calls and /v1/calls/async.
type createCallRequest struct {
	Method string            `json:"method"`
	Params map[string]string `json:"params"`
}

// listCallsResponse wraps the paginated list response.
type listCallsResponse struct {
	Calls  []*model.Call `json:"calls"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// decodeCall reads and validates a call request. It writes the error
// response and returns nil when the request is unusable.
func (s *Server) decodeCall(w http.ResponseWriter, r *http.Request) *model.Call {
	var req createCallRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil
	}

	if req.Method == "" {
		s.writeError(w, http.StatusBadRequest, "method is required")
		return nil
	}
	if !strings.HasPrefix(req.Method, "/") || strings.ContainsAny(req.Method, "?#") {
		s.writeError(w, http.StatusBadRequest, "method must be a path starting with /")
		return nil
	}

	return &model.Call{
		ID:     model.NewID(),
		Method: req.Method,
		Params: req.Params,
	}
}

func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	c := s.decodeCall(w, r)
	if c == nil {
		return
	}

	callsSubmittedTotal.WithLabelValues(modeSync).Inc()

	finished, err := s.engine.Execute(r.Context(), c)
	if err != nil {
		s.logger.Error("execute call", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to execute call")
		return
	}

	s.writeJSON(w, http.StatusCreated, finished)
}

func (s *Server) handleAsyncCall(w http.ResponseWriter, r *http.Request) {
	c := s.decodeCall(w, r)
	if c == nil {
		return
	}

	callsSubmittedTotal.WithLabelValues(modeAsync).Inc()

	if err := s.engine.Submit(r.Context(), c); err != nil {
		s.logger.Error("submit async call", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit call")
		return
	}

	s.writeJSON(w, http.StatusAccepted, c)
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := s.store.GetCall(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "call not found")
		return
	}
	if err != nil {
		s.logger.Error("get call", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get call")
		return
	}

	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	filter := store.CallFilter{
		Status: r.URL.Query().Get("status"),
		Method: r.URL.Query().Get("method"),
	}
	if filter.Status != "" && filter.Status != model.StatusPending && !model.IsTerminal(filter.Status) {
		s.writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(filter.Status))
		return
	}

	calls, total, err := s.store.ListCalls(r.Context(), filter, limit, offset)
	if err != nil {
		s.logger.Error("list calls", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list calls")
		return
	}

	if calls == nil {
		calls = []*model.Call{}
	}

	s.writeJSON(w, http.StatusOK, listCallsResponse{
		Calls:  calls,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return defaultVal
	}
	return v
}
