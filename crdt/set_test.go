package crdt

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riakdt/common"
)

func TestEmbeddedSetAccumulation(t *testing.T) {
	doc := NewClient(&recorder{}).Bucket("b").Map("doc")

	tags := doc.Set("tags")
	tags.Add("a")
	tags.Add("b", "c")
	tags.Remove("b")

	assert.Equal(t, map[string]any{
		"add_all": []string{"a", "b", "c"},
		"remove":  "b",
	}, tags.Operation())
	assert.Equal(t, map[string]any{
		"tags_set": map[string]any{
			"add_all": []string{"a", "b", "c"},
			"remove":  "b",
		},
	}, doc.UpdateStructure())
}

func TestSetSaveBody(t *testing.T) {
	rec := &recorder{}
	set := NewClient(rec).Bucket("b").Set("k")
	ctx := context.Background()

	require.NoError(t, set.Add("x").Save(ctx))
	assert.Equal(t, "/types/sets/buckets/b/datatypes/k", rec.last().Path)
	assert.JSONEq(t, `{"add":"x"}`, string(rec.last().Body))

	require.NoError(t, set.Add("y", "z").Remove("p", "q").Save(ctx))
	assert.JSONEq(t, `{"add_all":["y","z"],"remove_all":["p","q"]}`, string(rec.last().Body))

	// Nothing left to send.
	require.NoError(t, set.Save(ctx))
	assert.Equal(t, 2, rec.count())
}

func TestSetValidation(t *testing.T) {
	rec := &recorder{}
	set := NewClient(rec).Bucket("b").Set("k")

	err := set.Add().Save(context.Background())
	assert.True(t, common.IsValidation(err), "got %v", err)
	err = set.Remove().Save(context.Background())
	assert.True(t, common.IsValidation(err), "got %v", err)
	assert.Equal(t, 0, rec.count())
}

func TestSetRoundTrip(t *testing.T) {
	client, store := newTestClient(t)
	ctx := context.Background()
	set := client.Bucket("b").Set("k")

	require.NoError(t, set.Add("b", "a").Save(ctx))
	adds, removes := set.Pending()
	assert.Empty(t, adds)
	assert.Empty(t, removes)

	got, err := set.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	require.NoError(t, set.Remove("a").Save(ctx))
	got, err = set.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, got)
	assert.Len(t, store.Writes(), 2)
}

func TestSetRemoveAbsentElement(t *testing.T) {
	client, _ := newTestClient(t)
	set := client.Bucket("b").Set("k")
	ctx := context.Background()

	require.NoError(t, set.Add("a").Save(ctx))

	err := set.Remove("missing").Save(ctx)
	require.Error(t, err)
	assert.True(t, common.IsTransport(err))
	assert.Equal(t, http.StatusPreconditionFailed, common.StatusCode(err))

	// A failed save keeps the staged removal.
	_, removes := set.Pending()
	assert.Equal(t, []string{"missing"}, removes)
}

func TestSetValueWithoutValue(t *testing.T) {
	rec := &recorder{reply: jsonReply(http.StatusOK, `{"type":"set"}`)}
	got, err := NewClient(rec).Bucket("b").Set("k").Value(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSetCommitKeepsLaterElements(t *testing.T) {
	set := NewClient(&recorder{}).Bucket("b").Set("k")
	set.Add("a", "b")

	snap := newSnapshot()
	set.tree.mu.Lock()
	_, ok := set.fragment(snap)
	set.tree.mu.Unlock()
	require.True(t, ok)

	// Staged while the request is in flight.
	set.Add("c")

	set.tree.mu.Lock()
	snap.commit()
	set.tree.mu.Unlock()

	adds, _ := set.Pending()
	assert.Equal(t, []string{"c"}, adds)
}

func TestEmbeddedSetValue(t *testing.T) {
	client, store := newTestClient(t)
	require.NoError(t, store.Seed("maps", "b", "doc", []byte(`{"update":{"tags_set":{"add_all":["x","y"]}}}`)))
	doc := client.Bucket("b").Map("doc")

	got, err := doc.Set("tags").Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, got)

	got, err = doc.Set("none").Value(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}
