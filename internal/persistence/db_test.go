package persistence

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/nephron-sim/internal/engine"
	"github.com/talgya/nephron-sim/internal/species"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func runHistory(t *testing.T, days int) (engine.Config, *engine.History) {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Days = days
	initial := cfg.Setpoint
	initial[species.Potassium] = 5.5
	initial[species.Bicarbonate] = 20

	c, err := engine.NewController(cfg, initial)
	require.NoError(t, err)
	hist, err := c.Run()
	require.NoError(t, err)
	return cfg, hist
}

func TestSaveAndLoadRun(t *testing.T) {
	db := openTestDB(t)
	cfg, hist := runHistory(t, 4)

	run, err := NewRun("hyperkalemia_acidosis", "Hyperkalemia", cfg, hist)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 4, run.Days)

	require.NoError(t, db.SaveRun(run, hist))

	got, err := db.LoadRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	gotCfg, err := got.Config()
	require.NoError(t, err)
	assert.Equal(t, cfg, gotCfg)

	loaded, err := db.LoadHistory(run.ID)
	require.NoError(t, err)
	assert.Equal(t, hist.Records(), loaded.Records())

	last, err := db.GetMeta("last_run")
	require.NoError(t, err)
	assert.Equal(t, run.ID, last)
}

func TestLoadMissingRun(t *testing.T) {
	db := openTestDB(t)

	_, err := db.LoadRun("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.LoadHistory("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, db.DeleteRun("does-not-exist"), ErrNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	cfg, hist := runHistory(t, 1)

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := NewRun("healthy", "Healthy", cfg, hist)
		require.NoError(t, err)
		run.CreatedAt = int64(1000 + i)
		require.NoError(t, db.SaveRun(run, hist))
		ids = append(ids, run.ID)
	}

	runs, err := db.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)

	n, err := db.CountRuns()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestListRunsEmpty(t *testing.T) {
	db := openTestDB(t)
	runs, err := db.ListRuns(10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestDeleteRun(t *testing.T) {
	db := openTestDB(t)
	cfg, hist := runHistory(t, 2)
	run, err := NewRun("healthy", "Healthy", cfg, hist)
	require.NoError(t, err)
	require.NoError(t, db.SaveRun(run, hist))

	require.NoError(t, db.DeleteRun(run.ID))
	_, err = db.LoadRun(run.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.LoadHistory(run.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateRunRejected(t *testing.T) {
	db := openTestDB(t)
	cfg, hist := runHistory(t, 1)
	run, err := NewRun("healthy", "Healthy", cfg, hist)
	require.NoError(t, err)

	require.NoError(t, db.SaveRun(run, hist))
	assert.Error(t, db.SaveRun(run, hist))

	n, err := db.CountRuns()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewRunEmptyHistory(t *testing.T) {
	_, err := NewRun("healthy", "Healthy", engine.DefaultConfig(), engine.NewHistory())
	assert.Error(t, err)
}

func TestSaveRunRejectsNonFiniteLoss(t *testing.T) {
	db := openTestDB(t)
	cfg, hist := runHistory(t, 2)

	bad := engine.NewHistory()
	for _, r := range hist.Records() {
		bad.Append(r)
	}
	last := hist.Last()
	last.Day++
	last.DailyLoss[species.Sodium] = math.Inf(1)
	bad.Append(last)

	run, err := NewRun("healthy", "Healthy", cfg, bad)
	require.NoError(t, err)
	err = db.SaveRun(run, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode day 3 loss")

	_, err = db.LoadRun(run.ID)
	assert.ErrorIs(t, err, ErrNotFound, "failed save leaves nothing behind")
}
