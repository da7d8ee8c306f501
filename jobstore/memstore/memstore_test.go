package memstore

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/router/jobstore"
)

func TestCreateIsIdempotentOnJobID(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.Create(ctx, "job-1", "worker-a", []byte(`{"n":1}`), nil)
	require.NoError(t, err)

	second, err := s.Create(ctx, "job-1", "worker-b", []byte(`{"n":2}`), nil)
	require.NoError(t, err)

	require.Equal(t, first.WorkerID, second.WorkerID)
	require.Equal(t, first.Input, second.Input)
}

func TestUpdateMergesStatusAndOutputAtomically(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Create(ctx, "job-1", "worker-a", []byte(`{}`), nil)
	require.NoError(t, err)

	completed := jobstore.StatusCompleted
	rec, err := s.Update(ctx, "job-1", jobstore.Update{Status: &completed, Output: []byte(`{"ok":true}`)})
	require.NoError(t, err)
	require.Equal(t, jobstore.StatusCompleted, rec.Status)
	require.JSONEq(t, `{"ok":true}`, string(rec.Output))
	require.NotNil(t, rec.FinishedAt)
}

func TestUpdateAfterTerminalFails(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Create(ctx, "job-1", "worker-a", []byte(`{}`), nil)
	require.NoError(t, err)

	failed := jobstore.StatusFailed
	_, err = s.Update(ctx, "job-1", jobstore.Update{Status: &failed, Error: &jobstore.WorkerError{Message: "boom"}})
	require.NoError(t, err)

	completed := jobstore.StatusCompleted
	_, err = s.Update(ctx, "job-1", jobstore.Update{Status: &completed})
	require.ErrorIs(t, err, jobstore.ErrTerminal)
}

func TestQueueSkipRemainingAfterFailStepLeavesEarlierStepsUntouched(t *testing.T) {
	ctx := context.Background()
	s := New()
	steps := []jobstore.QueueStep{
		{StepIndex: 0, WorkerID: "a", Status: jobstore.StatusCompleted},
		{StepIndex: 1, WorkerID: "b", Status: jobstore.StatusFailed},
		{StepIndex: 2, WorkerID: "c", Status: jobstore.StatusQueued},
		{StepIndex: 3, WorkerID: "d", Status: jobstore.StatusQueued},
	}
	_, err := s.CreateQueue(ctx, "q-1", "queue-x", steps)
	require.NoError(t, err)

	q, err := s.SkipRemaining(ctx, "q-1", 1)
	require.NoError(t, err)
	require.Equal(t, jobstore.StatusCompleted, q.Steps[0].Status)
	require.Equal(t, jobstore.StatusFailed, q.Steps[1].Status)
	require.Equal(t, jobstore.StatusSkipped, q.Steps[2].Status)
	require.Equal(t, jobstore.StatusSkipped, q.Steps[3].Status)
	require.Equal(t, jobstore.StatusFailed, q.DerivedStatus())
}

// TestProgressPctReflectsLastWrite relates to spec.md §3's Job Record
// invariant that progressPct is monotonic non-decreasing within a single
// status. The memory Store itself does not enforce monotonicity, so this
// property checks that whatever sequence of progress updates is applied,
// one after another, the Store faithfully returns the most recently applied
// value.
func TestProgressPctReflectsLastWrite(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("store returns the last-applied progress value", prop.ForAll(
		func(values []int) bool {
			ctx := context.Background()
			s := New()
			if _, err := s.Create(ctx, "job-1", "worker-a", []byte(`{}`), nil); err != nil {
				return false
			}
			var last int
			for _, v := range values {
				pct := v % 101
				if pct < 0 {
					pct += 101
				}
				last = pct
				if _, err := s.Update(ctx, "job-1", jobstore.Update{ProgressPct: &pct}); err != nil {
					return false
				}
			}
			rec, err := s.Get(ctx, "job-1")
			if err != nil {
				return false
			}
			return len(values) == 0 || rec.ProgressPct == last
		},
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
