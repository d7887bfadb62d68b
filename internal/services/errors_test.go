package services_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"reelsmith/internal/services"
)

func TestWrapTagsSentinel(t *testing.T) {
	err := services.Wrap(services.ErrUpstream, "tts", "synthesize", "segment 3", errors.New("http 502"))
	require.ErrorIs(t, err, services.ErrUpstream)
	require.Contains(t, err.Error(), "tts: synthesize: segment 3")
	require.Contains(t, err.Error(), "http 502")
}

func TestWrapDefaultsToUpstream(t *testing.T) {
	err := services.Wrap(nil, "images", "generate", "", nil)
	require.ErrorIs(t, err, services.ErrUpstream)
}

func TestRetryable(t *testing.T) {
	require.True(t, services.Retryable(services.Wrap(services.ErrTimeout, "tts", "synthesize", "", nil)))
	require.True(t, services.Retryable(services.Wrap(services.ErrUpstream, "tts", "synthesize", "", nil)))
	require.False(t, services.Retryable(services.Wrap(services.ErrValidation, "script", "segment", "empty topic", nil)))
	require.False(t, services.Retryable(nil))
}

func TestPreconditionErrorSortsAndDedups(t *testing.T) {
	err := services.NewPreconditionError("compose", []int{4, 1, 4, 0})
	require.ErrorIs(t, err, services.ErrPrecondition)
	require.Equal(t, []int{0, 1, 4}, err.Missing)
	require.Equal(t, "compose blocked by incomplete segments [0, 1, 4]", err.Error())
}

func TestDetailsStripsSentinelPrefix(t *testing.T) {
	err := services.Wrap(services.ErrUpstream, "research", "dimension", "all dimensions failed", nil)
	detail := services.Details(err)
	require.Equal(t, "research: dimension: all dimensions failed", detail.Message)
}
