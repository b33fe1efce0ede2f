package appErrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundMatchesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("load store: %w", NewNotFound("store", "abc"))

	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, "load store: store with ID abc not found", err.Error())
}

func TestValidationAndConflict(t *testing.T) {
	assert.True(t, IsValidation(NewValidation("%s is required", "name")))
	assert.Equal(t, "name is required", NewValidation("%s is required", "name").Error())
	assert.True(t, IsConflict(NewConflict("media %q already exists", "hotpepper")))
}

func TestRenderErrorUnwraps(t *testing.T) {
	inner := fmt.Errorf("unexpected end of JSON input")
	err := &RenderError{TemplateID: "t1", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "t1")
}

func TestUpstreamErrorMessages(t *testing.T) {
	rejected := &UpstreamError{Service: "LINE", StatusCode: 400, Body: `{"message":"bad"}`}
	assert.Equal(t, "LINE API Error: 400", rejected.Error())
	assert.True(t, IsUpstream(fmt.Errorf("push: %w", rejected)))

	inner := fmt.Errorf("connection refused")
	network := &UpstreamError{Service: "scheduler", Err: inner}
	assert.ErrorIs(t, network, inner)
	assert.Equal(t, "scheduler request failed: connection refused", network.Error())
}
