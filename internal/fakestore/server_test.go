package fakestore

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riakdt/common"
)

func do(t *testing.T, srv *httptest.Server, method, path, contentType, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()

	status, body := do(t, srv, http.MethodGet, "/ping", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)
}

func TestLegacyCounter(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()
	path := "/buckets/b/counters/k"

	status, _ := do(t, srv, http.MethodGet, path, "", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, srv, http.MethodPost, path, "text/plain", "5")
	assert.Equal(t, http.StatusNoContent, status)
	do(t, srv, http.MethodPost, path, "text/plain", "-2")

	status, body := do(t, srv, http.MethodGet, path, "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "3", body)

	status, _ = do(t, srv, http.MethodPost, path, "text/plain", "many")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTypedMap(t *testing.T) {
	store := New()
	srv := httptest.NewServer(store)
	defer srv.Close()
	path := "/types/maps/buckets/b/datatypes/k"

	status, _ := do(t, srv, http.MethodPost, path, "application/json", `{"update":{
		"name_register":"Ann",
		"on_flag":"enable",
		"n_counter":2,
		"tags_set":{"add_all":["b","a"]},
		"sub_map":{"update":{"x_register":"1","y_register":"2"}}
	}}`)
	require.Equal(t, http.StatusNoContent, status)

	status, body := do(t, srv, http.MethodPost, path+"?returnbody=true", "application/json", `{
		"update":{"n_counter":3,"sub_map":{"update":{},"remove":["y_register"]}},
		"remove":["on_flag"]
	}`)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"type":"map","value":{
		"name_register":"Ann",
		"n_counter":5,
		"tags_set":["a","b"],
		"sub_map":{"x_register":"1"}
	}}`, body)

	writes := store.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "returnbody=true", writes[1].RawQuery)
	assert.Equal(t, []any{"on_flag"}, writes[1].JSON()["remove"])
}

func TestTypedSetRejectsAbsentRemove(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()
	path := "/types/sets/buckets/b/datatypes/k"

	status, _ := do(t, srv, http.MethodPost, path, "application/json", `{"add":"a"}`)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, srv, http.MethodPost, path, "application/json", `{"add":"b","remove":"zzz"}`)
	assert.Equal(t, http.StatusPreconditionFailed, status)

	// The rejected update changed nothing.
	_, body := do(t, srv, http.MethodGet, path, "", "")
	assert.JSONEq(t, `{"type":"set","value":["a"]}`, body)
}

func TestTypedCounterAndInference(t *testing.T) {
	store := New()
	store.DefineType("strict", common.KindSet)
	srv := httptest.NewServer(store)
	defer srv.Close()

	status, _ := do(t, srv, http.MethodPost, "/types/counters/buckets/b/datatypes/c", "application/json", `{"increment":4}`)
	require.Equal(t, http.StatusNoContent, status)
	_, body := do(t, srv, http.MethodGet, "/types/counters/buckets/b/datatypes/c", "", "")
	assert.JSONEq(t, `{"type":"counter","value":4}`, body)

	// An undeclared bucket type takes the type of its first update.
	status, _ = do(t, srv, http.MethodPost, "/types/adhoc/buckets/b/datatypes/m", "application/json", `{"update":{"a_register":"1"}}`)
	require.Equal(t, http.StatusNoContent, status)
	_, body = do(t, srv, http.MethodGet, "/types/adhoc/buckets/b/datatypes/m", "", "")
	assert.JSONEq(t, `{"type":"map","value":{"a_register":"1"}}`, body)

	status, _ = do(t, srv, http.MethodPost, "/types/strict/buckets/b/datatypes/s", "application/json", `{"increment":1}`)
	assert.Equal(t, http.StatusNoContent, status, "a set update with no operations is accepted")
}

func TestMalformedUpdates(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()

	tests := []struct {
		path string
		body string
	}{
		{"/types/maps/buckets/b/datatypes/k", `not json`},
		{"/types/maps/buckets/b/datatypes/k", `{"update":{"plain":"x"}}`},
		{"/types/maps/buckets/b/datatypes/k", `{"update":{"f_flag":"maybe"}}`},
		{"/types/maps/buckets/b/datatypes/k", `{"update":{"n_counter":"x"}}`},
		{"/types/counters/buckets/b/datatypes/k", `{"increment":"x"}`},
		{"/types/sets/buckets/b/datatypes/k", `{"add_all":"x"}`},
	}
	for _, tt := range tests {
		status, _ := do(t, srv, http.MethodPost, tt.path, "application/json", tt.body)
		assert.Equal(t, http.StatusBadRequest, status, tt.body)
	}
}

func TestFailNextAndSeed(t *testing.T) {
	store := New()
	srv := httptest.NewServer(store)
	defer srv.Close()

	require.NoError(t, store.Seed("maps", "b", "k", []byte(`{"update":{"a_register":"1"}}`)))
	assert.Empty(t, store.Requests())

	store.FailNext(http.StatusServiceUnavailable)
	status, _ := do(t, srv, http.MethodGet, "/types/maps/buckets/b/datatypes/k", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, body := do(t, srv, http.MethodGet, "/types/maps/buckets/b/datatypes/k", "", "")
	assert.Equal(t, http.StatusOK, status)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	assert.Equal(t, map[string]any{"a_register": "1"}, doc["value"])

	reqs := store.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.StatusServiceUnavailable, reqs[0].StatusCode)
	store.ResetRequests()
	assert.Empty(t, store.Requests())
}
