package helper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewError(t *testing.T) {
	t.Run("Wraps the cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := NewError("connect to database", cause)

		assert.Error(t, err)
		assert.Equal(t, "failed to connect to database: connection refused", err.Error(), "Expected operation and cause in the message")
		assert.ErrorIs(t, err, cause, "Expected the cause to stay unwrappable")
	})
}
