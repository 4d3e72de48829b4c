package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		parsed, ok := ParseKind(k.String())
		assert.True(t, ok, k)
		assert.Equal(t, k, parsed)
	}

	_, ok := ParseKind("hyperloglog")
	assert.False(t, ok)
	assert.False(t, KindUnknown.Valid())
}

func TestErrorClassification(t *testing.T) {
	validation := &ValidationError{Op: "counter.add", Message: "amount must be non-zero", Value: 0}
	protocol := &ProtocolError{Path: "/types/maps/buckets/b/datatypes/k", Message: "missing value"}
	notFound := &TransportError{Method: http.MethodGet, Path: "/x", StatusCode: http.StatusNotFound, Message: "not found"}
	network := &TransportError{Method: http.MethodPost, Path: "/x", Cause: errors.New("connection refused")}

	assert.True(t, IsValidation(validation))
	assert.True(t, IsValidation(pkgerrors.Wrap(validation, "save")))
	assert.False(t, IsValidation(protocol))

	assert.True(t, IsProtocol(fmt.Errorf("value: %w", protocol)))
	assert.True(t, IsTransport(notFound))
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsNotFound(network))

	assert.False(t, notFound.Temporary())
	assert.True(t, network.Temporary())
	assert.True(t, (&TransportError{StatusCode: http.StatusServiceUnavailable}).Temporary())

	assert.Equal(t, http.StatusNotFound, StatusCode(pkgerrors.Wrap(notFound, "get")))
	assert.Equal(t, 0, StatusCode(validation))
	assert.ErrorContains(t, network, "connection refused")
	assert.ErrorIs(t, network, network.Cause)
}
