package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRuntime wraps a Runtime with require-based helpers.
type TestRuntime struct {
	*Runtime
	tb testing.TB
}

// StartTestRuntime builds a Runtime backed by in-memory stores. Options may swap
// the backends, which is how the adapter suites reuse the same tests.
func StartTestRuntime(tb testing.TB, opts ...RuntimeOption) *TestRuntime {
	tb.Helper()
	defaults := []RuntimeOption{
		WithStore(NewMemoryStore()),
		WithSnapshotStore(NewMemorySnapshotStore(nil)),
	}
	return &TestRuntime{tb: tb, Runtime: NewRuntime(append(defaults, opts...)...)}
}

// MustAppend seeds events and fails the test on error.
func (tr *TestRuntime) MustAppend(ctx context.Context, sid StreamID, expect Version, events ...any) *AppendResult {
	tr.tb.Helper()
	res, err := tr.Append(ctx, sid, expect, events...)
	require.NoError(tr.tb, err)
	return res
}
