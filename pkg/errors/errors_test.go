package errors

import (
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidationErrorAggregatesFields(t *testing.T) {
	t.Parallel()

	err := NewValidationError("steps[1].dependsOn", "references unknown step", nil)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "steps[1].dependsOn", validationErr.Field)
	require.Contains(t, validationErr.Message, "references unknown step")
}

func TestStorageErrorWrapsUnderlying(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("connection reset")
	err := NewStorageError("claimPending", underlying)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	require.Equal(t, "claimPending", storageErr.Op)
	require.True(t, stdErrors.Is(err, underlying))
}

func TestExecutionErrorIncludesStepContext(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("command failed")
	err := NewExecutionError("install_git", underlying)

	var executionErr *ExecutionError
	require.ErrorAs(t, err, &executionErr)
	require.Equal(t, "install_git", executionErr.StepID)
	require.True(t, stdErrors.Is(err, underlying))
}

func TestTimeoutErrorFormatsMilliseconds(t *testing.T) {
	t.Parallel()

	err := NewTimeoutError("deploy", 1500*time.Millisecond)
	require.EqualError(t, err, "Step execution timeout after 1500ms")
}

func TestStepExhaustedErrorUnwrapsLastError(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("boom")
	err := NewStepExhaustedError("deploy", 4, underlying)

	var exhausted *StepExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 4, exhausted.Attempts)
	require.True(t, stdErrors.Is(err, underlying))
}

func TestNotFoundErrorMessage(t *testing.T) {
	t.Parallel()

	err := NewNotFoundError("pipeline", "nightly-etl")
	require.EqualError(t, err, "pipeline not found: nightly-etl")
}
