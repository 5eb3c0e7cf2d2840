package search

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseError_Temporary(t *testing.T) {
	tests := []struct {
		status    int
		temporary bool
	}{
		{400, false},
		{404, false},
		{409, false},
		{401, true},
		{403, true},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := &ResponseError{Op: "index", Index: "all_products", Status: tt.status}
			assert.Equal(t, tt.temporary, err.Temporary())
			assert.Equal(t, !tt.temporary, IsRejected(fmt.Errorf("wrapped: %w", err)))
		})
	}
}

func TestIsRejected_OtherErrors(t *testing.T) {
	assert.False(t, IsRejected(errors.New("connection refused")))
	assert.False(t, IsRejected(nil))
}

func TestResponseError_Message(t *testing.T) {
	err := &ResponseError{Op: "index", Index: "all_products", Status: 400, Body: `{"error":"mapper_parsing_exception"}`}
	assert.Contains(t, err.Error(), "failed to index on all_products: 400 Bad Request")
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("update: %w", ErrNotFound)))
	assert.True(t, IsNotFound(&ResponseError{Op: "update", Status: 404}))
	assert.False(t, IsNotFound(&ResponseError{Op: "update", Status: 400}))
	assert.False(t, IsNotFound(errors.New("connection refused")))
}

func TestDocumentPath(t *testing.T) {
	tests := map[string]string{
		"abc123":    "abc123",
		"sale?2024": "sale%3F2024",
		"item#1":    "item%231",
		"50%off":    "50%25off",
		"a/b":       "a%2Fb",
	}
	for id, want := range tests {
		assert.Equal(t, want, DocumentPath(id), id)
	}
}
