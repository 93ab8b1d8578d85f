package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/agri-esg/internal/model"
	"github.com/sells-group/agri-esg/internal/store"
)

func TestRunMany_FailuresIsolated(t *testing.T) {
	e := newTestEngine(t)
	good := dashboardBatch()
	bad := Batch{Source: "empty.csv"}
	other := dashboardBatch()
	other.Source = "other.csv"

	out := RunMany(context.Background(), e, []Batch{good, bad, other}, 2)
	require.Len(t, out, 3)

	assert.Equal(t, "farms.csv", out[0].Source)
	require.NoError(t, out[0].Err)
	assert.Len(t, out[0].Result.Scored, 3)

	assert.Equal(t, "empty.csv", out[1].Source)
	assert.True(t, model.IsInputError(out[1].Err))
	assert.Nil(t, out[1].Result)

	require.NoError(t, out[2].Err)
	assert.Equal(t, "other.csv", out[2].Result.Source)
}

func TestRunMany_Empty(t *testing.T) {
	assert.Empty(t, RunMany(context.Background(), &countingScorer{}, nil, 4))
}

func TestRecord_Success(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	run, res, err := Record(ctx, st, newTestEngine(t), dashboardBatch())
	require.NoError(t, err)
	assert.Len(t, res.Scored, 3)
	assert.Equal(t, model.RunStatusComplete, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", got.Policy)
	assert.Equal(t, 3, got.Records)
	assert.Equal(t, Fingerprint(dashboardBatch()), got.ContentHash)
	require.NotNil(t, got.Result)
	assert.Equal(t, 3, got.Result.Units)

	scores, err := st.GetScores(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, scores, 3)
}

func TestRecord_FailureRecorded(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	run, res, err := Record(ctx, st, newTestEngine(t), Batch{Source: "empty.csv"})
	require.Error(t, err)
	assert.Nil(t, res)
	require.NotNil(t, run)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Contains(t, got.Result.Error, "empty batch")
}
