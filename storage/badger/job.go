package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
// Waiting jobs are indexed by (RunAt, Seq) so the earliest ready job is the
// first key under the ready prefix.
type JobRepository struct {
	backend *Backend
	seq     *badger.Sequence
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) (*JobRepository, error) {
	seq, err := backend.GetSequence(jobSeq)
	if err != nil {
		return nil, err
	}
	return &JobRepository{backend: backend, seq: seq}, nil
}

// Close releases the sequence.
func (r *JobRepository) Close() error {
	return r.seq.Release()
}

// Create stores a new waiting job.
// An empty ID is filled with the sequence number, which doubles as a
// monotonically increasing job ID.
func (r *JobRepository) Create(ctx context.Context, job *core.Job) (*core.Job, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: job is nil", core.ErrInvalidJob)
	}
	if err := core.ValidateJobPayload(job.Payload); err != nil {
		return nil, err
	}
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	seq, err := nextID(r.seq)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job.Seq = seq
	if job.ID == "" {
		job.ID = strconv.FormatUint(seq, 10)
	}
	job.State = core.JobStateWaiting
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now
	}
	if job.RunAt.IsZero() {
		job.RunAt = now
	}
	job.UpdatedAt = now

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := tx.Get(makeJobKey(job.ID)); err == nil {
			return fmt.Errorf("%w: job %s already exists", storage.ErrConflict, job.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := writeJob(tx, job); err != nil {
			return err
		}
		if err := tx.Set(makeJobReadyKey(job.RunAt, job.Seq), []byte(job.ID)); err != nil {
			return err
		}
		return commit(tx)
	}, true)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimNext moves the earliest ready job to active.
func (r *JobRepository) ClaimNext(ctx context.Context, now time.Time) (*core.Job, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var claimed *core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		readyKey, id, runAt, found := firstReady(tx)
		if !found || runAt.After(now) {
			return nil
		}

		job, err := readJob(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(readyKey); err != nil {
			return err
		}
		if job == nil {
			// Orphaned index entry; drop it and let the caller poll again.
			return commit(tx)
		}

		job.State = core.JobStateActive
		job.Attempts++
		job.UpdatedAt = time.Now().UTC()
		if err := writeJob(tx, job); err != nil {
			return err
		}
		if err := commit(tx); err != nil {
			return err
		}
		claimed = job
		return nil
	}, true)
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Reschedule returns an active job to waiting at job.RunAt.
func (r *JobRepository) Reschedule(ctx context.Context, job *core.Job) error {
	return r.transition(job, core.JobStateWaiting, func(tx *badger.Txn) error {
		return tx.Set(makeJobReadyKey(job.RunAt, job.Seq), []byte(job.ID))
	})
}

// MarkFailed moves an active job to failed. The record is kept for inspection.
func (r *JobRepository) MarkFailed(ctx context.Context, job *core.Job) error {
	return r.transition(job, core.JobStateFailed, nil)
}

// transition persists job in state `to` after checking it is currently active.
func (r *JobRepository) transition(job *core.Job, to core.JobState, extra func(tx *badger.Txn) error) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", core.ErrInvalidJob)
	}
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		current, err := readJob(tx, job.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return storage.ErrNotFound
		}
		if current.State != core.JobStateActive {
			return fmt.Errorf("%w: job %s is %s", storage.ErrInvalidState, job.ID, current.State)
		}
		job.State = to
		job.UpdatedAt = time.Now().UTC()
		if err := writeJob(tx, job); err != nil {
			return err
		}
		if extra != nil {
			if err := extra(tx); err != nil {
				return err
			}
		}
		return commit(tx)
	}, true)
}

// Complete removes a finished job.
func (r *JobRepository) Complete(ctx context.Context, id string) error {
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		current, err := readJob(tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return storage.ErrNotFound
		}
		if current.State != core.JobStateActive {
			return fmt.Errorf("%w: job %s is %s", storage.ErrInvalidState, id, current.State)
		}
		if err := tx.Delete(makeJobKey(id)); err != nil {
			return err
		}
		return commit(tx)
	}, true)
}

// Get returns a job by ID.
func (r *JobRepository) Get(ctx context.Context, id string) (*core.Job, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	var job *core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		job, err = readJob(tx, id)
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return job, err
}

// List returns jobs in state ordered by Seq. An empty state lists every job.
func (r *JobRepository) List(ctx context.Context, state core.JobState) ([]*core.Job, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	jobs := []*core.Job{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var job *core.Job
			err := iter.Item().Value(func(val []byte) error {
				var err error
				job, err = storage.UnmarshalJob(val)
				return err
			})
			if err != nil {
				return err
			}
			if state == "" || job.State == state {
				jobs = append(jobs, job)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(jobs, func(a, b *core.Job) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return jobs, nil
}

// NextRunAt returns the schedule time of the earliest waiting job.
func (r *JobRepository) NextRunAt(ctx context.Context) (time.Time, bool, error) {
	if r.backend.IsClosed() {
		return time.Time{}, false, storage.ErrStorageClosed
	}
	var (
		runAt time.Time
		found bool
	)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		_, _, runAt, found = firstReady(tx)
		return nil
	}, false)
	return runAt, found, err
}

// firstReady returns the earliest ready-index entry.
// The iterator is closed before returning so the caller may commit.
func firstReady(tx *badger.Txn) (key []byte, id string, runAt time.Time, found bool) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(jobReadyPrefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	iter.Rewind()
	if !iter.Valid() {
		return nil, "", time.Time{}, false
	}
	item := iter.Item()
	key = item.KeyCopy(nil)
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, "", time.Time{}, false
	}
	return key, string(value), runAtFromReadyKey(key), true
}

func readJob(tx *badger.Txn, id string) (*core.Job, error) {
	item, err := tx.Get(makeJobKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var job *core.Job
	err = item.Value(func(val []byte) error {
		var err error
		job, err = storage.UnmarshalJob(val)
		return err
	})
	return job, err
}

func writeJob(tx *badger.Txn, job *core.Job) error {
	value, err := storage.MarshalJob(job)
	if err != nil {
		return err
	}
	return tx.Set(makeJobKey(job.ID), value)
}

// commit maps BadgerDB's optimistic-concurrency failure to storage.ErrConflict.
func commit(tx *badger.Txn) error {
	if err := tx.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return fmt.Errorf("%w: %w", storage.ErrConflict, err)
		}
		return err
	}
	return nil
}
