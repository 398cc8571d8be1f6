package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"catalog-sync/internal/errs"
)

func TestConnectorError(t *testing.T) {
	t.Run("kind and cause both match", func(t *testing.T) {
		cause := errors.New("dial tcp: refused")
		err := errs.NewConnectorError("sup-1", "fetchStock", "SKU-1", errs.ErrUnreachable, cause)

		assert.Equal(t, "sup-1 fetchStock SKU-1: connector unreachable: dial tcp: refused", err.Error())
		assert.ErrorIs(t, err, errs.ErrUnreachable)
		assert.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, errs.ErrRateLimited)
		assert.True(t, errs.IsConnector(err))
		assert.True(t, errs.IsRetryable(err))
	})

	t.Run("nil kind defaults to unreachable", func(t *testing.T) {
		err := errs.NewConnectorError("ch", "push", "", nil, nil)
		assert.ErrorIs(t, err, errs.ErrUnreachable)
		assert.Equal(t, "ch push: connector unreachable", err.Error())
	})

	t.Run("rejected is not retryable", func(t *testing.T) {
		err := errs.NewConnectorError("ch", "push", "p1", errs.ErrRejected, errors.New("status 400"))
		assert.False(t, errs.IsRetryable(err))
	})

	t.Run("wrapped", func(t *testing.T) {
		err := fmt.Errorf("pull: %w", errs.NewConnectorError("s", "fetchPrice", "x", errs.ErrRateLimited, nil))
		assert.ErrorIs(t, err, errs.ErrRateLimited)
		assert.True(t, errs.IsConnector(err))
	})
}

func TestNotFoundError(t *testing.T) {
	err := errs.NewNotFoundError("product", "p1")
	assert.Equal(t, "product p1 not found", err.Error())
	assert.True(t, errs.IsNotFound(err))
	assert.True(t, errs.IsNotFound(errors.Join(errors.New("other"), err)))
	assert.False(t, errs.IsNotFound(errors.New("not found")))
}

func TestPersistenceError(t *testing.T) {
	base := errs.NewNotFoundError("product", "p1")
	err := errs.NewPersistenceError("update", "p1", base)

	assert.Equal(t, "persist update p1: product p1 not found", err.Error())
	assert.True(t, errs.IsPersistence(err))
	assert.True(t, errs.IsNotFound(err))
	assert.False(t, errs.IsConnector(err))
}

func TestConfigError(t *testing.T) {
	err := errs.NewConfigError("frequency", "unknown frequency \"monthly\"", errs.ErrInvalidConfig)
	assert.Equal(t, `configuration error in frequency: unknown frequency "monthly"`, err.Error())
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
	assert.True(t, errs.IsConfig(err))

	disabled := errs.NewConfigError("", "off", errs.ErrSyncDisabled)
	assert.Equal(t, "configuration error: off", disabled.Error())
	assert.ErrorIs(t, disabled, errs.ErrSyncDisabled)
}

func TestScoringError(t *testing.T) {
	err := &errs.ScoringError{RecordID: "r1", Field: "price"}
	assert.Equal(t, "record r1: field price cannot be scored", err.Error())
	assert.ErrorIs(t, err, errs.ErrMalformedRecord)
}
