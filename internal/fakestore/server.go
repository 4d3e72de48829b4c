// Package fakestore is an in-process implementation of the store's data
// type HTTP resources. It backs the crdt tests and the devserver command.
package fakestore

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"riakdt/common"
	"riakdt/core"
)

// Request is one recorded request.
type Request struct {
	Method     string
	Path       string
	RawQuery   string
	Header     http.Header
	Body       []byte
	StatusCode int
}

// JSON decodes the request body as generic JSON.
func (r Request) JSON() map[string]any {
	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return out
}

// Server stores data types in memory.
type Server struct {
	mu       sync.Mutex
	router   *mux.Router
	handler  http.Handler
	types    map[string]common.Kind
	docs     map[string]*document
	requests []Request
	failures []int
	logger   *zap.Logger
}

// New creates a server whose default bucket types "counters", "sets" and
// "maps" hold their namesake data types.
func New() *Server {
	s := &Server{
		router: mux.NewRouter(),
		types: map[string]common.Kind{
			common.DefaultCounterNamespace: common.KindCounter,
			common.DefaultSetNamespace:     common.KindSet,
			common.DefaultMapNamespace:     common.KindMap,
		},
		docs:   make(map[string]*document),
		logger: core.Named("fakestore"),
	}

	s.router.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	s.router.HandleFunc("/buckets/{bucket}/counters/{key}", s.handleGetLegacyCounter).Methods(http.MethodGet)
	s.router.HandleFunc("/buckets/{bucket}/counters/{key}", s.handleUpdateLegacyCounter).Methods(http.MethodPost)
	s.router.HandleFunc("/types/{type}/buckets/{bucket}/datatypes/{key}", s.handleGetDataType).Methods(http.MethodGet)
	s.router.HandleFunc("/types/{type}/buckets/{bucket}/datatypes/{key}", s.handleUpdateDataType).Methods(http.MethodPost)

	s.handler = s.recoveryMiddleware(s.recordingMiddleware(s.router))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// DefineType declares the data type held by a bucket type. Bucket types
// that are never declared take the type of their first update.
func (s *Server) DefineType(bucketType string, kind common.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[bucketType] = kind
}

// FailNext makes the next requests answer the given statuses, in order.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, statuses...)
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Writes returns the received requests that were not GETs.
func (s *Server) Writes() []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method != http.MethodGet {
			out = append(out, r)
		}
	}
	return out
}

// ResetRequests clears the request log.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// Seed applies an update document to a typed resource without going
// through HTTP or the request log.
func (s *Server) Seed(bucketType, bucket, key string, update []byte) error {
	op, err := decodeOp(update)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.updateLocked(bucketType, bucket, key, op)
	return err
}

func (s *Server) record(r Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r)
}

// injectedFailure pops a queued failure status, or returns 0.
func (s *Server) injectedFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.failures) == 0 {
		return 0
	}
	status := s.failures[0]
	s.failures = s.failures[1:]
	return status
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if status := s.injectedFailure(); status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}

func legacyKey(bucket, key string) string {
	return "legacy/" + bucket + "/" + key
}

func typedKey(bucketType, bucket, key string) string {
	return "types/" + bucketType + "/" + bucket + "/" + key
}

func (s *Server) handleGetLegacyCounter(w http.ResponseWriter, r *http.Request) {
	if status := s.injectedFailure(); status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	vars := mux.Vars(r)

	s.mu.Lock()
	doc, ok := s.docs[legacyKey(vars["bucket"], vars["key"])]
	var n int64
	if ok {
		n = doc.counter
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(strconv.FormatInt(n, 10)))
}

func (s *Server) handleUpdateLegacyCounter(w http.ResponseWriter, r *http.Request) {
	if status := s.injectedFailure(); status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	vars := mux.Vars(r)

	var buf bytes.Buffer
	buf.ReadFrom(r.Body)
	n, err := strconv.ParseInt(strings.TrimSpace(buf.String()), 10, 64)
	if err != nil {
		http.Error(w, "counter increment must be an integer", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	key := legacyKey(vars["bucket"], vars["key"])
	doc, ok := s.docs[key]
	if !ok {
		doc = newDocument(common.KindCounter)
		s.docs[key] = doc
	}
	doc.counter += n
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetDataType(w http.ResponseWriter, r *http.Request) {
	if status := s.injectedFailure(); status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	vars := mux.Vars(r)

	s.mu.Lock()
	doc, ok := s.docs[typedKey(vars["type"], vars["bucket"], vars["key"])]
	var body map[string]any
	if ok {
		body = map[string]any{"type": string(doc.kind), "value": doc.value()}
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleUpdateDataType(w http.ResponseWriter, r *http.Request) {
	if status := s.injectedFailure(); status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	vars := mux.Vars(r)

	var buf bytes.Buffer
	buf.ReadFrom(r.Body)
	op, err := decodeOp(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	doc, err := s.updateLocked(vars["type"], vars["bucket"], vars["key"], op)
	var body map[string]any
	if err == nil {
		body = map[string]any{"type": string(doc.kind), "value": doc.value()}
	}
	s.mu.Unlock()

	if err != nil {
		status := http.StatusInternalServerError
		if se, ok := err.(*storeError); ok {
			status = se.status
		}
		http.Error(w, err.Error(), status)
		return
	}

	if r.URL.Query().Get("returnbody") == "true" {
		writeJSON(w, http.StatusOK, body)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// updateLocked applies op atomically. The caller holds s.mu.
func (s *Server) updateLocked(bucketType, bucket, key string, op map[string]any) (*document, error) {
	k := typedKey(bucketType, bucket, key)

	doc, ok := s.docs[k]
	if !ok {
		kind, known := s.types[bucketType]
		if !known {
			kind = inferKind(op)
		}
		doc = newDocument(kind)
	}

	next := doc.clone()
	if err := next.apply(op); err != nil {
		return nil, err
	}
	s.docs[k] = next
	return next, nil
}

func decodeOp(body []byte) (map[string]any, error) {
	var op map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&op); err != nil {
		return nil, badRequest("invalid update document: %v", err)
	}
	return op, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
