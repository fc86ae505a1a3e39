package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapAndIsCode(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap("transport_failure", "could not fetch data", cause)

	require.EqualError(t, err, "could not fetch data: connection reset")
	require.True(t, IsCode(err, "transport_failure"))
	require.False(t, IsCode(err, "defect"))
	require.ErrorIs(t, err, cause)
}

func TestCodeOfFindsWrappedAppError(t *testing.T) {
	err := fmt.Errorf("step_count: %w", Wrap("unknown_data_type", "unsupported data type", nil))
	require.Equal(t, "unknown_data_type", CodeOf(err))
	require.Equal(t, "", CodeOf(errors.New("plain")))
}
