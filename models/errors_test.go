package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUsageError(t *testing.T) {
	err := NewUsageError("unknown format: %s", "xml")
	assert.True(t, IsUsageError(err))
	assert.Equal(t, "unknown format: xml", err.Error())

	wrapped := fmt.Errorf("running command: %w", err)
	assert.True(t, IsUsageError(wrapped))

	assert.False(t, IsUsageError(errors.New("disk full")))
}

func TestParseErrorUnwrap(t *testing.T) {
	cause := errors.New("unexpected end of input")
	err := &ParseError{Path: "/tmp/s.jsonl", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "/tmp/s.jsonl")
}

func TestFileAccessErrorUnwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := &FileAccessError{Path: "/tmp/s.jsonl", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "permission denied")
}
