package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riakdt/internal/fakestore"
)

func newTestStore(t *testing.T) (*fakestore.Server, string) {
	t.Helper()
	for _, name := range []string{"SERVERS", "CACHE", "LOG_LEVEL", "MAX_RETRIES", "TIMEOUT", "RETURN_BODY"} {
		t.Setenv("RIAKDT_"+name, "")
		os.Unsetenv("RIAKDT_" + name)
	}
	store := fakestore.New()
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)
	return store, srv.URL
}

func run(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--servers", server, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCounterCommands(t *testing.T) {
	_, server := newTestStore(t)

	_, err := run(t, server, "counter", "add", "hits", "home", "5")
	require.NoError(t, err)
	_, err = run(t, server, "counter", "add", "hits", "home", "-2")
	require.NoError(t, err)

	out, err := run(t, server, "counter", "get", "hits", "home")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	t.Run("legacy resource", func(t *testing.T) {
		_, err := run(t, server, "counter", "add", "--legacy", "hits", "old", "4")
		require.NoError(t, err)
		out, err := run(t, server, "counter", "get", "--legacy", "hits", "old")
		require.NoError(t, err)
		assert.Equal(t, "4\n", out)
	})

	t.Run("invalid amount", func(t *testing.T) {
		_, err := run(t, server, "counter", "add", "hits", "home", "lots")
		assert.Error(t, err)
	})
}

func TestSetCommands(t *testing.T) {
	_, server := newTestStore(t)

	_, err := run(t, server, "set", "add", "tags", "post", "go", "crdt", "riak")
	require.NoError(t, err)
	_, err = run(t, server, "set", "remove", "tags", "post", "riak")
	require.NoError(t, err)

	out, err := run(t, server, "set", "get", "tags", "post")
	require.NoError(t, err)

	var elements []string
	require.NoError(t, json.Unmarshal([]byte(out), &elements))
	assert.ElementsMatch(t, []string{"go", "crdt"}, elements)
}

func TestMapCommands(t *testing.T) {
	store, server := newTestStore(t)

	_, err := run(t, server, "map", "put", "users", "ann",
		`{"name":"Ann","age":41,"admin":true,"langs":["go","erlang"],"address":{"city":"Oslo"}}`)
	require.NoError(t, err)

	writes := store.Writes()
	require.Len(t, writes, 1)
	update := writes[0].JSON()["update"].(map[string]any)
	assert.Equal(t, "Ann", update["name_register"])
	assert.Equal(t, "41", update["age_register"])
	assert.Equal(t, "enable", update["admin_flag"])
	assert.Contains(t, update, "langs_set")
	assert.Contains(t, update, "address_map")

	out, err := run(t, server, "map", "get", "users", "ann")
	require.NoError(t, err)
	var value map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &value))
	assert.Equal(t, "Ann", value["name"])
	assert.Equal(t, true, value["admin"])
	assert.Equal(t, map[string]any{"city": "Oslo"}, value["address"])

	_, err = run(t, server, "map", "remove", "users", "ann", "admin", "flag")
	require.NoError(t, err)
	out, err = run(t, server, "map", "get", "users", "ann")
	require.NoError(t, err)
	assert.NotContains(t, out, "admin")

	t.Run("bad kind", func(t *testing.T) {
		_, err := run(t, server, "map", "remove", "users", "ann", "admin", "bool")
		assert.Error(t, err)
	})

	t.Run("bad json", func(t *testing.T) {
		_, err := run(t, server, "map", "put", "users", "ann", "[1,2]")
		assert.Error(t, err)
	})
}

func TestPing(t *testing.T) {
	_, server := newTestStore(t)

	out, err := run(t, server, "ping")
	require.NoError(t, err)
	assert.Equal(t, "OK", strings.TrimSpace(out))
}

func TestRequiresArguments(t *testing.T) {
	_, server := newTestStore(t)
	_, err := run(t, server, "counter", "get", "hits")
	assert.Error(t, err)
}
