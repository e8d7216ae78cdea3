package qbroker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessingExceptionString(t *testing.T) {
	e := &ProcessingException{Code: MergeResponseErrorCode, Message: "boom"}
	assert.Equal(t, "[397] boom", e.String())
}

func TestErrorConstructors(t *testing.T) {
	assert.Equal(t, BrokerGatherErrorCode, NewGatherError("x %d", 1).Code)
	assert.Equal(t, RequestDeserializationErrorCode, NewDeserializationError("x").Code)
	assert.Equal(t, MergeResponseErrorCode, NewMergeError("x").Code)
	assert.Equal(t, InternalErrorCode, NewInternalError("x").Code)
}

func TestPqlParsingErrorUnwraps(t *testing.T) {
	cause := errors.New("syntax error")
	e := &PqlParsingError{Cause: cause}
	assert.Same(t, cause, errors.Unwrap(e))
	assert.Contains(t, e.Error(), "syntax error")
}

func TestQueryValidationErrorMessage(t *testing.T) {
	e := &QueryValidationError{Message: "too big"}
	assert.Equal(t, "too big", e.Error())
}
