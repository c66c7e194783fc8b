package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedramamini/pedster/db"
	"github.com/pedramamini/pedster/errors"
	ptesting "github.com/pedramamini/pedster/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(ptesting.CreateTestCatalog(t, db.FamilySchedule))
}

func TestCreateAndGetJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &Job{Pipeline: "rss-to-obsidian", IntervalSeconds: 3600, Payload: []byte(`{"max":10}`)}
	require.NoError(t, store.CreateJob(ctx, job))
	require.NotEmpty(t, job.ID)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, "rss-to-obsidian", got.Pipeline)
	assert.Equal(t, 3600, got.IntervalSeconds)
	assert.JSONEq(t, `{"max":10}`, string(got.Payload))
	assert.Equal(t, StateActive, got.State)
	require.NotNil(t, got.NextRunAt)
}

func TestCreateJobRejectsBadInterval(t *testing.T) {
	store := newTestStore(t)
	err := store.CreateJob(context.Background(), &Job{Pipeline: "x", IntervalSeconds: 0})
	assert.Error(t, err)
}

func TestGetJobNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetJob(context.Background(), "nope")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestListJobsDue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := &Job{Pipeline: "due", IntervalSeconds: 60, NextRunAt: &past}
	notYet := &Job{Pipeline: "not-yet", IntervalSeconds: 60, NextRunAt: &future}
	paused := &Job{Pipeline: "paused", IntervalSeconds: 60, NextRunAt: &past, State: StatePaused}
	require.NoError(t, store.CreateJob(ctx, due))
	require.NoError(t, store.CreateJob(ctx, notYet))
	require.NoError(t, store.CreateJob(ctx, paused))

	jobs, err := store.ListJobsDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "due", jobs[0].Pipeline)
}

func TestListJobsDueOrdersOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	older := now.Add(-2 * time.Hour)
	newer := now.Add(-time.Minute)
	second := &Job{Pipeline: "second", IntervalSeconds: 60, NextRunAt: &newer}
	first := &Job{Pipeline: "first", IntervalSeconds: 60, NextRunAt: &older}
	require.NoError(t, store.CreateJob(ctx, second))
	require.NoError(t, store.CreateJob(ctx, first))

	jobs, err := store.ListJobsDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "first", jobs[0].Pipeline)
	assert.Equal(t, "second", jobs[1].Pipeline)
}

func TestRecordRunAdvancesJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &Job{Pipeline: "rss-to-obsidian", IntervalSeconds: 3600}
	require.NoError(t, store.CreateJob(ctx, job))

	ranAt := time.Now().Truncate(time.Second)
	nextRun := ranAt.Add(time.Hour)
	require.NoError(t, store.RecordRun(ctx, job.ID, ranAt, nextRun, "fetch failed"))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(ranAt))
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.Equal(nextRun))
	assert.Equal(t, "fetch failed", got.LastError)
}

func TestSetState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &Job{Pipeline: "rss-to-obsidian", IntervalSeconds: 3600}
	require.NoError(t, store.CreateJob(ctx, job))

	require.NoError(t, store.SetState(ctx, job.ID, StatePaused))
	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePaused, got.State)

	assert.Error(t, store.SetState(ctx, job.ID, "bogus"))
	assert.True(t, errors.IsNotFoundError(store.SetState(ctx, "nope", StateActive)))
}

func TestDeletedJobsHiddenFromList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &Job{Pipeline: "rss-to-obsidian", IntervalSeconds: 3600}
	require.NoError(t, store.CreateJob(ctx, job))
	require.NoError(t, store.SetState(ctx, job.ID, StateDeleted))

	jobs, err := store.ListJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	n, err := store.CountJobs(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSeedDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, SeedDefaults(ctx, store, nil))

	jobs, err := store.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	byPipeline := map[string]*Job{}
	for _, j := range jobs {
		byPipeline[j.Pipeline] = j
	}
	assert.Equal(t, 3600, byPipeline["rss-to-obsidian"].IntervalSeconds)
	assert.Equal(t, 600, byPipeline["messages-to-reply"].IntervalSeconds)

	podcast := byPipeline["podcast-to-obsidian"]
	require.NotNil(t, podcast.NextRunAt)
	assert.Equal(t, 8, podcast.NextRunAt.Hour())
	assert.Equal(t, 86400, podcast.IntervalSeconds)

	// Seeding again is a no-op.
	require.NoError(t, SeedDefaults(ctx, store, nil))
	jobs, err = store.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}
