package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("container", "suffix", "only letters, digits and dashes are allowed")
	assert.Equal(t, "invalid container suffix: only letters, digits and dashes are allowed", err.Error())

	wrapped := fmt.Errorf("create container: %w", err)
	assert.True(t, IsValidation(wrapped))
	assert.False(t, IsResolution(wrapped))

	noField := &ValidationError{Entity: "base", Message: "application differs from container"}
	assert.Equal(t, "invalid base: application differs from container", noField.Error())
}

func TestResolutionError(t *testing.T) {
	err := NewPortExhaustedError("dev-web", "8069", 10000, 10010)
	assert.Equal(t, ResolutionPort, err.Kind)
	assert.Contains(t, err.Error(), "port 8069 for dev-web")
	assert.Contains(t, err.Error(), "[10000, 10010)")
	assert.True(t, IsResolution(fmt.Errorf("allocate: %w", err)))

	link := NewLinkResolutionError("dev-web", "postgres")
	assert.Equal(t, ResolutionLink, link.Kind)
	assert.Contains(t, link.Error(), "link postgres for dev-web")
}

func TestExecutionError(t *testing.T) {
	tests := []struct {
		name     string
		err      *ExecutionError
		expected string
	}{
		{
			name:     "exit status with output",
			err:      &ExecutionError{Host: "srv1", Argv: []string{"docker", "start", "x"}, ExitCode: 1, Output: "no such container\n"},
			expected: `command "docker start x" on srv1 exited with status 1: no such container`,
		},
		{
			name:     "exit status without output",
			err:      &ExecutionError{Host: "srv1", Argv: []string{"false"}, ExitCode: 1},
			expected: `command "false" on srv1 exited with status 1`,
		},
		{
			name:     "transport failure",
			err:      &ExecutionError{Host: "srv1", Argv: []string{"true"}, Err: errors.New("connection refused")},
			expected: `command "true" on srv1 failed: connection refused`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
			assert.True(t, IsExecution(tt.err))
		})
	}

	cause := errors.New("dial timeout")
	err := &ExecutionError{Host: "srv1", Err: cause}
	assert.ErrorIs(t, err, cause)
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("container", "abc")
	assert.Equal(t, "container abc not found", err.Error())
	assert.True(t, IsNotFound(fmt.Errorf("load: %w", err)))
	assert.False(t, IsNotFound(errors.New("other")))
}
