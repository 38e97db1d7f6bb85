package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewError(t *testing.T) {
	err := New("something broke", map[string]interface{}{"task_id": "abc"})

	assert.Equal(t, "something broke", err.Error())
	assert.Equal(t, "abc", err.GetFields()["task_id"])
	assert.Contains(t, err.Location(), "errors_test.go")
}

func TestWrapPreservesSentinel(t *testing.T) {
	err := Wrap(ErrTranscriptionFailed, "attempt 1")

	assert.True(t, errors.Is(err, ErrTranscriptionFailed))
	assert.Contains(t, err.Error(), "attempt 1")
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestWithFieldDoesNotMutateOriginal(t *testing.T) {
	original := New("base")
	derived := original.WithField("task_id", "abc").WithCode("BASE")

	assert.Empty(t, original.GetFields())
	assert.Equal(t, "abc", derived.GetFields()["task_id"])
	assert.Equal(t, "BASE", derived.Code)
	assert.Empty(t, original.Code)
}

func TestSentinelConstructors(t *testing.T) {
	notFound := NewNotFound("no such dictionary")
	assert.True(t, errors.Is(notFound, ErrNotFound))
	assert.Equal(t, "NOT_FOUND", GetErrorCode(notFound))

	transcript := NewTranscriptNotFound("task-1")
	assert.True(t, errors.Is(transcript, ErrTranscriptNotFound))
	assert.Equal(t, "task-1", GetErrorFields(transcript)["task_id"])

	scoring := NewNoScoringItems("settings-1")
	assert.True(t, errors.Is(scoring, ErrNoScoringItems))
}

func TestErrorCodeThroughWrapping(t *testing.T) {
	inner := NewTranscriptionFailed("timeout")
	outer := fmt.Errorf("pipeline stage: %w", inner)

	assert.Equal(t, "TRANSCRIPTION_FAILED", GetErrorCode(outer))
	assert.True(t, errors.Is(outer, ErrTranscriptionFailed))
}
