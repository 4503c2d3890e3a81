package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDomain(t *testing.T) {
	assert.True(t, IsDomain(ErrNotFound))
	assert.True(t, IsDomain(fmt.Errorf("lookup card: %w", ErrInsufficientBalance)))
	assert.False(t, IsDomain(ErrUnavailable))
	assert.False(t, IsDomain(ErrInternal))
	assert.False(t, IsDomain(errors.New("dial tcp: connection refused")))
	assert.False(t, IsDomain(nil))
}
