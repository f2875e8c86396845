package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnknownIterVarError_NamesStageAndVar(t *testing.T) {
	t.Parallel()

	err := NewUnknownIterVarError("C", "k.inner")
	require.Contains(t, err.Error(), "k.inner")
	require.Contains(t, err.Error(), "C")

	var unknown *UnknownIterVarError
	require.True(t, stdErrors.As(err, &unknown))
	require.Equal(t, "C", unknown.Stage)
}

func TestNonAdjacentFuseError_NamesBothLeaves(t *testing.T) {
	t.Parallel()

	err := NewNonAdjacentFuseError("C", "i", "j")
	require.Contains(t, err.Error(), "i")
	require.Contains(t, err.Error(), "j")
}

func TestIncompatibleIterTypeError_NamesPrimitive(t *testing.T) {
	t.Parallel()

	err := NewIncompatibleIterTypeError("k", "CommReduce", "vectorize")
	require.Contains(t, err.Error(), "vectorize")
	require.Contains(t, err.Error(), "CommReduce")
}

func TestParseErrorWrapsUnderlying(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("unexpected token")
	err := NewParseError("plan.yaml", 12, underlying)

	var parseErr *ParseError
	require.True(t, stdErrors.As(err, &parseErr))
	require.Equal(t, 12, parseErr.Line)
	require.Contains(t, err.Error(), "plan.yaml:12")
	require.ErrorIs(t, err, underlying)
}

func TestValidationError_OmitsEmptyField(t *testing.T) {
	t.Parallel()

	withField := NewValidationError("primitives[0]", "split requires a positive factor", nil)
	require.Contains(t, withField.Error(), "primitives[0]")

	withoutField := NewValidationError("", "bad plan", nil)
	require.Equal(t, "validation error: bad plan", withoutField.Error())
}

func TestFactorErrors_Distinguishable(t *testing.T) {
	t.Parallel()

	notReduction := NewFactorAxisNotReductionError("i", "DataPar")
	touches := NewFactorTouchesDataParError("ki", "i")

	var a *FactorAxisNotReductionError
	var b *FactorTouchesDataParError
	require.True(t, stdErrors.As(notReduction, &a))
	require.False(t, stdErrors.As(notReduction, &b))
	require.True(t, stdErrors.As(touches, &b))
}
