package badger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(path string) *core.Job {
	return &core.Job{Payload: core.JobPayload{FilePath: path}, MaxAttempts: 3}
}

func TestCreateJob(t *testing.T) {
	_, repo := setupRepos(t)
	ctx := context.Background()

	job, err := repo.Create(ctx, newJob("/tmp/a.pdf"))
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.NotZero(t, job.Seq)
	assert.Equal(t, core.JobStateWaiting, job.State)
	assert.False(t, job.RunAt.IsZero())

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Payload, got.Payload)
}

func TestCreateJobRejectsEmptyPath(t *testing.T) {
	_, repo := setupRepos(t)

	_, err := repo.Create(context.Background(), newJob(""))
	assert.ErrorIs(t, err, core.ErrEmptyFilePath)
}

func TestCreateJobDuplicateID(t *testing.T) {
	_, repo := setupRepos(t)
	ctx := context.Background()

	first := newJob("/tmp/a.pdf")
	first.ID = "fixed"
	_, err := repo.Create(ctx, first)
	require.NoError(t, err)

	second := newJob("/tmp/b.pdf")
	second.ID = "fixed"
	_, err = repo.Create(ctx, second)
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestClaimNextFIFO(t *testing.T) {
	_, repo := setupRepos(t)
	ctx := context.Background()

	runAt := time.Now().UTC().Add(-time.Second)
	var ids []string
	for _, path := range []string{"/a", "/b", "/c"} {
		job := newJob(path)
		job.RunAt = runAt
		created, err := repo.Create(ctx, job)
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	for _, want := range ids {
		job, err := repo.ClaimNext(ctx, time.Now())
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, want, job.ID)
		assert.Equal(t, core.JobStateActive, job.State)
		assert.Equal(t, 1, job.Attempts)
	}

	job, err := repo.ClaimNext(ctx, time.Now())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaimNextConcurrentClaimsAreExclusive(t *testing.T) {
	_, repo := setupRepos(t)
	ctx := context.Background()

	const jobs = 50
	runAt := time.Now().UTC().Add(-time.Second)
	for range jobs {
		job := newJob("/doc.txt")
		job.RunAt = runAt
		_, err := repo.Create(ctx, job)
		require.NoError(t, err)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	claims := map[string]int{}
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := repo.ClaimNext(ctx, time.Now())
				if errors.Is(err, storage.ErrConflict) {
					continue
				}
				if err != nil {
					errs <- err
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				claims[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, claims, jobs)
	for id, n := range claims {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
	active, err := repo.List(ctx, core.JobStateActive)
	require.NoError(t, err)
	assert.Len(t, active, jobs)
}

func TestClaimNextRespectsRunAt(t *testing.T) {
	_, repo := setupRepos(t)
	ctx := context.Background()

	job := newJob("/later")
	job.RunAt = time.Now().UTC().Add(time.Hour)
	_, err := repo.Create(ctx, job)
	require.NoError(t, err)

	claimed, err := repo.ClaimNext(ctx, time.Now())
	require.NoError(t, err)
	assert.Nil(t, claimed)

	next, ok, err := repo.NextRunAt(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, job.RunAt, next, time.Millisecond)

	claimed, err = repo.ClaimNext(ctx, job.RunAt.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, claimed)
}

func TestRescheduleAndFail(t *testing.T) {
	_, repo := setupRepos(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, newJob("/a"))
	require.NoError(t, err)

	job, err := repo.ClaimNext(ctx, time.Now())
	require.NoError(t, err)
	require.NotNil(t, job)

	job.LastError = "boom"
	job.RunAt = time.Now().UTC()
	require.NoError(t, repo.Reschedule(ctx, job))

	waiting, err := repo.List(ctx, core.JobStateWaiting)
	require.NoError(t, err)
	require.Len(t, waiting, 1)

	job, err = repo.ClaimNext(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, "boom", job.LastError)

	require.NoError(t, repo.MarkFailed(ctx, job))

	failed, err := repo.List(ctx, core.JobStateFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, job.ID, failed[0].ID)

	_, ok, err := repo.NextRunAt(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Failed jobs are terminal.
	assert.ErrorIs(t, repo.Reschedule(ctx, job), storage.ErrInvalidState)
}

func TestCompleteRemovesJob(t *testing.T) {
	_, repo := setupRepos(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, newJob("/a"))
	require.NoError(t, err)
	job, err := repo.ClaimNext(ctx, time.Now())
	require.NoError(t, err)

	require.NoError(t, repo.Complete(ctx, job.ID))

	_, err = repo.Get(ctx, job.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, repo.Complete(ctx, job.ID), storage.ErrNotFound)
}

func TestCompleteRequiresActive(t *testing.T) {
	_, repo := setupRepos(t)
	ctx := context.Background()

	job, err := repo.Create(ctx, newJob("/a"))
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Complete(ctx, job.ID), storage.ErrInvalidState)
}

func TestListAllOrderedBySeq(t *testing.T) {
	_, repo := setupRepos(t)
	ctx := context.Background()

	for _, path := range []string{"/a", "/b", "/c"} {
		_, err := repo.Create(ctx, newJob(path))
		require.NoError(t, err)
	}
	_, err := repo.ClaimNext(ctx, time.Now())
	require.NoError(t, err)

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "/a", all[0].Payload.FilePath)
	assert.Equal(t, core.JobStateActive, all[0].State)
	assert.Less(t, all[1].Seq, all[2].Seq)
}

func TestJobsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	repo, err := NewJobRepository(backend)
	require.NoError(t, err)
	created, err := repo.Create(ctx, newJob("/persist"))
	require.NoError(t, err)
	require.NoError(t, repo.Close())
	require.NoError(t, backend.Close())

	backend, err = OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()
	repo, err = NewJobRepository(backend)
	require.NoError(t, err)
	defer repo.Close()

	job, err := repo.ClaimNext(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, created.ID, job.ID)
}
