// Package memstore implements the Storage Port entirely in memory, for use
// in unit tests of the executor, claimer, worker, and recovery packages
// without a live Postgres instance.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/pipeline/internal/storage"
	pipeerrors "github.com/flowforge/pipeline/pkg/errors"
)

// state is the shared, mutex-guarded table set. It is split across three
// thin substore types (mirroring internal/storage/postgres's layout) so
// each can implement its slice of the Storage Port without colliding
// method names on a single receiver.
type state struct {
	mu sync.Mutex

	pipelines map[string]storage.Pipeline // keyed by id
	byName    map[string]string           // pipeline name -> id
	runs      map[string]storage.Run      // keyed by id
	steps     map[string]storage.Step     // keyed by id
}

// Store is a mutex-guarded in-memory implementation of storage.Stores.
// WithTransaction is best-effort: it serializes callers with a single
// mutex rather than providing real isolation, which is sufficient for
// deterministic single-process tests.
type Store struct {
	st *state
}

// txHeldKey marks a context as already holding state.mu, the same role
// postgres's txKey plays in distinguishing a pool call from an in-flight
// transaction. Substore methods check it to avoid relocking when invoked
// from inside WithTransaction.
type txHeldKey struct{}

func (st *state) lock(ctx context.Context) func() {
	if held, _ := ctx.Value(txHeldKey{}).(bool); held {
		return func() {}
	}
	st.mu.Lock()
	return st.mu.Unlock
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: &state{
		pipelines: make(map[string]storage.Pipeline),
		byName:    make(map[string]string),
		runs:      make(map[string]storage.Run),
		steps:     make(map[string]storage.Step),
	}}
}

// Stores returns the storage.Stores bundle backed by this Store.
func (s *Store) Stores() storage.Stores {
	return storage.Stores{
		Pipelines: &pipelineStore{st: s.st},
		Runs:      &runStore{st: s.st},
		Steps:     &stepStore{st: s.st},
		Tx:        s,
	}
}

// WithTransaction holds the store-wide mutex for the duration of fn, giving
// callers the same exclusivity guarantee FOR UPDATE SKIP LOCKED provides in
// Postgres: at most one claim proceeds at a time.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	defer s.st.lock(ctx)()
	return fn(context.WithValue(ctx, txHeldKey{}, true))
}

type pipelineStore struct{ st *state }

func (p *pipelineStore) FindByName(ctx context.Context, name string) (*storage.Pipeline, error) {
	defer p.st.lock(ctx)()
	id, ok := p.st.byName[name]
	if !ok {
		return nil, nil
	}
	pl := p.st.pipelines[id]
	return &pl, nil
}

func (p *pipelineStore) FindByID(ctx context.Context, id string) (*storage.Pipeline, error) {
	defer p.st.lock(ctx)()
	pl, ok := p.st.pipelines[id]
	if !ok {
		return nil, nil
	}
	return &pl, nil
}

func (p *pipelineStore) CreateIfAbsent(ctx context.Context, pl storage.Pipeline) (*storage.Pipeline, error) {
	defer p.st.lock(ctx)()
	if id, ok := p.st.byName[pl.Name]; ok {
		existing := p.st.pipelines[id]
		return &existing, nil
	}
	if pl.ID == "" {
		pl.ID = uuid.NewString()
	}
	p.st.pipelines[pl.ID] = pl
	p.st.byName[pl.Name] = pl.ID
	return &pl, nil
}

type runStore struct{ st *state }

func (r *runStore) Create(ctx context.Context, run storage.Run) (*storage.Run, error) {
	defer r.st.lock(ctx)()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = storage.RunPending
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	r.st.runs[run.ID] = run
	return &run, nil
}

func (r *runStore) FindByID(ctx context.Context, id string, includeSteps bool) (*storage.RunDetail, error) {
	defer r.st.lock(ctx)()
	run, ok := r.st.runs[id]
	if !ok {
		return nil, pipeerrors.NewNotFoundError("run", id)
	}
	detail := &storage.RunDetail{Run: run}
	if pl, ok := r.st.pipelines[run.PipelineID]; ok {
		detail.Pipeline = &pl
	}
	if includeSteps {
		detail.Steps = listForRunLocked(r.st, id)
	}
	return detail, nil
}

func (r *runStore) UpdateStatus(ctx context.Context, id string, status storage.RunStatus, finishedAt *time.Time) error {
	defer r.st.lock(ctx)()
	run, ok := r.st.runs[id]
	if !ok {
		return pipeerrors.NewNotFoundError("run", id)
	}
	run.Status = status
	run.FinishedAt = finishedAt
	r.st.runs[id] = run
	return nil
}

func (r *runStore) MarkClaimed(ctx context.Context, id string, startedAt time.Time) error {
	defer r.st.lock(ctx)()
	run, ok := r.st.runs[id]
	if !ok {
		return pipeerrors.NewNotFoundError("run", id)
	}
	run.Status = storage.RunRunning
	run.StartedAt = startedAt
	r.st.runs[id] = run
	return nil
}

func (r *runStore) FindFirstPendingForUpdate(ctx context.Context) (*storage.Run, error) {
	defer r.st.lock(ctx)()
	var oldest *storage.Run
	for id, run := range r.st.runs {
		if run.Status != storage.RunPending {
			continue
		}
		candidate := r.st.runs[id]
		if oldest == nil || candidate.StartedAt.Before(oldest.StartedAt) {
			runCopy := candidate
			oldest = &runCopy
		}
	}
	return oldest, nil
}

func (r *runStore) FindStuckRunning(ctx context.Context, olderThan time.Time) ([]storage.Run, error) {
	defer r.st.lock(ctx)()
	var result []storage.Run
	for _, run := range r.st.runs {
		if run.Status == storage.RunRunning && run.StartedAt.Before(olderThan) {
			result = append(result, run)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartedAt.Before(result[j].StartedAt) })
	return result, nil
}

func (r *runStore) FindRecentCompleted(ctx context.Context, filter storage.RunFilter, limit int) ([]storage.Run, error) {
	defer r.st.lock(ctx)()
	var result []storage.Run
	for _, run := range r.st.runs {
		if !run.Status.IsTerminal() {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if filter.PipelineName != "" {
			pl, ok := r.st.pipelines[run.PipelineID]
			if !ok || pl.Name != filter.PipelineName {
				continue
			}
		}
		result = append(result, run)
	}
	sort.Slice(result, func(i, j int) bool {
		fi, fj := result[i].FinishedAt, result[j].FinishedAt
		if fi == nil || fj == nil {
			return fi != nil
		}
		return fi.After(*fj)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type stepStore struct{ st *state }

func (sp *stepStore) CreateForRun(ctx context.Context, step storage.Step) (*storage.Step, error) {
	defer sp.st.lock(ctx)()
	if step.ID == "" {
		step.ID = uuid.NewString()
	}
	if step.Status == "" {
		step.Status = storage.StepPending
	}
	sp.st.steps[step.ID] = step
	return &step, nil
}

func (sp *stepStore) UpdateStatus(ctx context.Context, id string, update storage.StepStatusUpdate) error {
	defer sp.st.lock(ctx)()
	step, ok := sp.st.steps[id]
	if !ok {
		return pipeerrors.NewNotFoundError("step", id)
	}
	step.Status = update.Status
	step.StartedAt = update.StartedAt
	step.FinishedAt = update.FinishedAt
	step.AttemptCount = update.AttemptCount
	step.NextRetryAt = update.NextRetryAt
	sp.st.steps[id] = step
	return nil
}

func (sp *stepStore) UpdateResult(ctx context.Context, id string, result *string, stepErr *string) error {
	defer sp.st.lock(ctx)()
	step, ok := sp.st.steps[id]
	if !ok {
		return pipeerrors.NewNotFoundError("step", id)
	}
	step.Result = result
	step.Error = stepErr
	sp.st.steps[id] = step
	return nil
}

func (sp *stepStore) ListForRun(ctx context.Context, runID string) ([]storage.Step, error) {
	defer sp.st.lock(ctx)()
	return listForRunLocked(sp.st, runID), nil
}

func (sp *stepStore) FindByRunAndName(ctx context.Context, runID, name string) (*storage.Step, error) {
	defer sp.st.lock(ctx)()
	for _, step := range sp.st.steps {
		if step.RunID == runID && step.Name == name {
			stepCopy := step
			return &stepCopy, nil
		}
	}
	return nil, nil
}

// listForRunLocked assumes st.mu is already held by the caller.
func listForRunLocked(st *state, runID string) []storage.Step {
	var result []storage.Step
	for _, step := range st.steps {
		if step.RunID == runID {
			result = append(result, step)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		si, sj := result[i].StartedAt, result[j].StartedAt
		if si == nil || sj == nil {
			return si != nil
		}
		return si.Before(*sj)
	})
	return result
}
