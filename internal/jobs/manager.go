// Package jobs runs long Gibbs sampling queries in the background. Progress
// is tracked with atomics so status reads never block the sampler, and
// every state change can be pushed to subscribers.
package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rawblock/bayesnet-engine/internal/gibbs"
	"github.com/rawblock/bayesnet-engine/internal/inference"
	"github.com/rawblock/bayesnet-engine/internal/network"
	"github.com/rawblock/bayesnet-engine/pkg/models"
)

// Job states.
const (
	StateRunning   = "running"
	StateDone      = "done"
	StateCancelled = "cancelled"
	StateFailed    = "failed"
)

// ErrNotFound is returned for an unknown job id.
var ErrNotFound = errors.New("job not found")

// progressStep is the fraction of the run between two progress events.
const progressStep = 0.05

// DefaultRetention is how long a finished job stays queryable.
const DefaultRetention = time.Hour

// Event is pushed to the notify callback on progress and completion.
type Event struct {
	Type string           `json:"type"` // "job_progress" or "job_finished"
	Job  models.JobStatus `json:"job"`
}

type job struct {
	id        string
	networkID string
	startedAt time.Time
	total     int64
	cancel    context.CancelFunc
	done      chan struct{}

	completed atomic.Int64
	lastStep  atomic.Int64

	mu         sync.Mutex
	state      string
	result     *models.ApproximateResult
	err        string
	finishedAt *time.Time
}

func (j *job) status() models.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return models.JobStatus{
		ID:         j.id,
		NetworkID:  j.networkID,
		State:      j.state,
		Completed:  j.completed.Load(),
		Total:      j.total,
		Result:     j.result,
		Error:      j.err,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}
}

// Manager owns every job it starts.
type Manager struct {
	engine *inference.Engine
	logger *zap.Logger
	notify func(Event) // optional

	retention time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

// NewManager creates a manager. notify may be nil.
func NewManager(engine *inference.Engine, logger *zap.Logger, notify func(Event)) *Manager {
	return &Manager{
		engine:    engine,
		logger:    logger.Named("jobs"),
		notify:    notify,
		retention: DefaultRetention,
		now:       time.Now,
		jobs:      make(map[string]*job),
	}
}

// SetRetention changes how long finished jobs are kept. Jobs older than
// that are dropped the next time a job starts or the list is read.
func (m *Manager) SetRetention(d time.Duration) {
	m.mu.Lock()
	m.retention = d
	m.mu.Unlock()
}

// prune drops jobs that finished more than the retention ago. The caller
// holds m.mu for writing.
func (m *Manager) prune() {
	cutoff := m.now().Add(-m.retention)
	for id, j := range m.jobs {
		j.mu.Lock()
		expired := j.finishedAt != nil && j.finishedAt.Before(cutoff)
		j.mu.Unlock()
		if expired {
			delete(m.jobs, id)
		}
	}
}

// Start validates the request and launches the sampler in the background.
// Requests with an Event estimate its probability; otherwise the marginal
// of Target is estimated.
func (m *Manager) Start(net *network.Network, req models.ApproximateRequest) (models.JobStatus, error) {
	opts, err := inference.SamplingOptions(req.Options)
	if err != nil {
		return models.JobStatus{}, err
	}
	target := -1
	if len(req.Event) == 0 {
		if target, err = net.Index(req.Target); err != nil {
			return models.JobStatus{}, err
		}
	}
	// Surface naming problems now rather than as a failed job.
	if _, err := net.Evidence(req.Evidence); err != nil {
		return models.JobStatus{}, err
	}
	if _, err := net.Evidence(req.Event); err != nil {
		return models.JobStatus{}, err
	}

	chains := max(opts.Chains, 1)
	ctx, cancel := inference.SamplingContext(context.Background(), req.Options)
	j := &job{
		id:        uuid.NewString(),
		networkID: net.ID().String(),
		startedAt: m.now().UTC(),
		total:     int64(opts.Iterations) * int64(chains),
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateRunning,
	}
	opts.Progress = func(done, total int64) {
		// Chains report concurrently; keep the largest count seen.
		for prev := j.completed.Load(); done > prev && !j.completed.CompareAndSwap(prev, done); prev = j.completed.Load() {
		}
		step := int64(float64(done) / float64(total) / progressStep)
		if prev := j.lastStep.Load(); step > prev && j.lastStep.CompareAndSwap(prev, step) {
			m.emit("job_progress", j)
		}
	}

	m.mu.Lock()
	m.prune()
	m.jobs[j.id] = j
	m.mu.Unlock()

	m.logger.Info("starting sampling job",
		zap.String("job", j.id),
		zap.String("network", net.Name()),
		zap.Int("iterations", opts.Iterations),
		zap.Int("chains", chains),
	)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(j.done)
		defer cancel()

		var est *gibbs.Estimate
		var err error
		if target >= 0 {
			est, err = m.engine.ApproximateMarginal(ctx, net, req.Target, req.Evidence, opts)
		} else {
			est, err = m.engine.ApproximateEventProbability(ctx, net, req.Event, req.Evidence, opts)
		}
		m.finish(j, net, target, est, err)
	}()

	return j.status(), nil
}

func (m *Manager) finish(j *job, net *network.Network, target int, est *gibbs.Estimate, err error) {
	res := inference.ApproximateResult(net, target, est, err)
	now := m.now().UTC()

	j.mu.Lock()
	j.result = &res
	j.finishedAt = &now
	switch {
	case err != nil:
		j.state = StateFailed
		j.err = err.Error()
	case est.Partial:
		j.state = StateCancelled
	default:
		j.state = StateDone
	}
	state := j.state
	j.mu.Unlock()

	m.logger.Info("sampling job finished",
		zap.String("job", j.id),
		zap.String("state", state),
		zap.Int64("completed", j.completed.Load()),
		zap.Duration("took", now.Sub(j.startedAt)),
	)
	m.emit("job_finished", j)
}

func (m *Manager) emit(kind string, j *job) {
	if m.notify != nil {
		m.notify(Event{Type: kind, Job: j.status()})
	}
}

// Status returns a snapshot of a job.
func (m *Manager) Status(id string) (models.JobStatus, error) {
	m.mu.RLock()
	j, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return models.JobStatus{}, ErrNotFound
	}
	return j.status(), nil
}

// Cancel stops a running job. The job finishes with whatever it counted so
// far, flagged partial.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	j, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	j.cancel()
	return nil
}

// Wait blocks until the job finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (models.JobStatus, error) {
	m.mu.RLock()
	j, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return models.JobStatus{}, ErrNotFound
	}
	select {
	case <-j.done:
		return j.status(), nil
	case <-ctx.Done():
		return j.status(), ctx.Err()
	}
}

// List returns a snapshot of every job.
func (m *Manager) List() []models.JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune()
	out := make([]models.JobStatus, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.status())
	}
	return out
}

// Shutdown cancels every running job and waits for them to finish.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	for _, j := range m.jobs {
		j.cancel()
	}
	m.mu.RUnlock()
	m.wg.Wait()
}
