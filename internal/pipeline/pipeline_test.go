package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func noopHandler(ctx context.Context, sctx StepContext) (StepResult, error) {
	return Success(nil), nil
}

func TestDefinitionValidateRequiresName(t *testing.T) {
	t.Parallel()

	def := Definition{Steps: []StepDefinition{{Name: "a", Handler: noopHandler}}}
	err := def.Validate()

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, ErrCodeMissing, domainErr.Code)
}

func TestDefinitionValidateRequiresAtLeastOneStep(t *testing.T) {
	t.Parallel()

	def := Definition{Name: "nightly-etl"}
	err := def.Validate()

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, ErrCodeValidation, domainErr.Code)
}

func TestDefinitionValidateRejectsDuplicateStepNames(t *testing.T) {
	t.Parallel()

	def := Definition{
		Name: "nightly-etl",
		Steps: []StepDefinition{
			{Name: "extract", Handler: noopHandler},
			{Name: "extract", Handler: noopHandler},
		},
	}
	err := def.Validate()

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, ErrCodeDuplicate, domainErr.Code)
}

func TestStepDefinitionValidateRequiresHandler(t *testing.T) {
	t.Parallel()

	step := StepDefinition{Name: "extract"}
	err := step.Validate()

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, ErrCodeMissing, domainErr.Code)
}

func TestStepConfigEffectiveMaxRetriesDefaultsToThree(t *testing.T) {
	t.Parallel()

	var cfg StepConfig
	require.Equal(t, 3, cfg.EffectiveMaxRetries())

	zero := 0
	cfg.MaxRetries = &zero
	require.Equal(t, 0, cfg.EffectiveMaxRetries())
}

func TestGetStepReturnsErrorWhenMissing(t *testing.T) {
	t.Parallel()

	def := Definition{Name: "nightly-etl", Steps: []StepDefinition{{Name: "extract", Handler: noopHandler}}}

	_, err := def.GetStep("load")
	require.Error(t, err)

	step, err := def.GetStep("extract")
	require.NoError(t, err)
	require.Equal(t, "extract", step.Name)
}
