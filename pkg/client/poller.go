package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	DefaultInterval   = 3 * time.Second
	DefaultMinGap     = 100 * time.Millisecond
	DefaultRetryGrace = 10 * time.Second
)

// ErrSuperseded is returned by Poll when a newer poll replaced the request.
var ErrSuperseded = errors.New("poll superseded by a newer request")

// Backend is the part of the API the poller drives. *Client implements it.
type Backend interface {
	GetSteps(ctx context.Context, installationID uint64) ([]Step, error)
	StartStep(ctx context.Context, installationID uint64, stepType string, payload map[string]any) (Step, error)
	Finalize(ctx context.Context, installationID uint64, req FinalizeRequest) (FinalizeResult, error)
	MarkFailed(ctx context.Context, installationID uint64) error
}

type PollerConfig struct {
	Interval time.Duration
	// MinGap collapses polls issued closer together than this.
	MinGap time.Duration
	// RetryGrace bounds how long a retried step is shown IN_PROGRESS without the
	// server confirming it.
	RetryGrace time.Duration
	// Credentials are stored by the finalize call once every step succeeded.
	Credentials FinalizeRequest
	OnUpdate    func(Snapshot)
}

// Snapshot is what the poller last observed, with retried steps shown IN_PROGRESS.
type Snapshot struct {
	InstallationID uint64
	Steps          []Step
	Progress       Progress
	Active         bool
	Finalized      bool
	Failed         bool
	Err            error
}

type retryMark struct {
	deadline time.Time
	attempts int
}

// Poller watches one installation's ledger. It polls while active, stops once every
// provisioning step is terminal, finalizes on full success and marks the installation
// failed otherwise. Retrying a step resumes polling.
type Poller struct {
	backend        Backend
	installationID uint64
	cfg            PollerConfig
	now            func() time.Time

	mu           sync.Mutex
	seq          uint64
	cancel       context.CancelFunc
	lastCall     time.Time
	steps        []Step
	retried      map[string]retryMark
	active       bool
	finalized    bool
	failedMarked bool
	lastErr      error

	wake chan struct{}
}

func NewPoller(backend Backend, installationID uint64, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MinGap <= 0 {
		cfg.MinGap = DefaultMinGap
	}
	if cfg.RetryGrace <= 0 {
		cfg.RetryGrace = DefaultRetryGrace
	}
	return &Poller{
		backend:        backend,
		installationID: installationID,
		cfg:            cfg,
		now:            time.Now,
		retried:        make(map[string]retryMark),
		active:         true,
		wake:           make(chan struct{}, 1),
	}
}

// Run polls every interval while the poller is active and returns when ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if p.cancel != nil {
				p.cancel()
			}
			p.mu.Unlock()
			return ctx.Err()
		case <-p.wake:
			p.tick(ctx)
		case <-ticker.C:
			if p.Active() {
				p.tick(ctx)
			}
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if _, err := p.Poll(ctx); err != nil && !errors.Is(err, ErrSuperseded) && ctx.Err() == nil {
		slog.Warn("poll failed", "installationID", p.installationID, "err", err)
	}
}

func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Snapshot returns the current view without polling.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked(p.now())
}

// Poll fetches the ledger once. A poll issued within MinGap of the previous one is
// collapsed into the current snapshot; a newer poll cancels the one in flight.
func (p *Poller) Poll(ctx context.Context) (Snapshot, error) {
	p.mu.Lock()
	now := p.now()
	if !p.lastCall.IsZero() && now.Sub(p.lastCall) < p.cfg.MinGap {
		snap := p.snapshotLocked(now)
		p.mu.Unlock()
		return snap, nil
	}
	p.lastCall = now
	if p.cancel != nil {
		p.cancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	steps, err := p.backend.GetSteps(reqCtx, p.installationID)
	cancel()

	p.mu.Lock()
	if seq != p.seq {
		snap := p.snapshotLocked(p.now())
		p.mu.Unlock()
		return snap, ErrSuperseded
	}
	p.cancel = nil
	if err != nil {
		p.lastErr = err
		snap := p.snapshotLocked(p.now())
		p.mu.Unlock()
		p.emit(snap)
		return snap, err
	}

	p.lastErr = nil
	p.steps = steps
	now = p.now()
	p.settleRetriesLocked(now)
	snap := p.snapshotLocked(now)

	finalize, markFailed := false, false
	if snap.Progress.AllTerminal {
		p.active = false
		switch {
		case snap.Progress.AllSuccess && !p.finalized:
			p.finalized, finalize = true, true
		case !snap.Progress.AllSuccess && !p.failedMarked:
			p.failedMarked, markFailed = true, true
		}
	}
	p.mu.Unlock()

	switch {
	case finalize:
		snap = p.finalize(ctx)
	case markFailed:
		snap = p.markFailed(ctx)
	}
	p.emit(snap)
	return snap, snap.Err
}

func (p *Poller) finalize(ctx context.Context) Snapshot {
	_, err := p.backend.Finalize(ctx, p.installationID, p.cfg.Credentials)

	var apiErr *APIError
	rejected := errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError && !apiErr.IsConflict()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.finalized = false
		p.lastErr = fmt.Errorf("finalize: %w", err)
		// a rejected request fails the same way every time; anything else is tried
		// again on the next tick
		p.active = !rejected
	}
	return p.snapshotLocked(p.now())
}

func (p *Poller) markFailed(ctx context.Context) Snapshot {
	err := p.backend.MarkFailed(ctx, p.installationID)
	var apiErr *APIError
	conflict := errors.As(err, &apiErr) && apiErr.IsConflict()

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case conflict:
		// the ledger moved on since this poll; keep polling and let the next poll decide
		p.failedMarked = false
		p.active = true
	case err != nil:
		p.failedMarked = false
		p.active = true
		p.lastErr = fmt.Errorf("mark failed: %w", err)
	}
	return p.snapshotLocked(p.now())
}

// RetryStep restarts a step that did not succeed. The step is shown IN_PROGRESS right
// away and polling resumes. Conflicts from the server mean the step is already running
// or done and are not errors.
func (p *Poller) RetryStep(ctx context.Context, stepType string) error {
	p.mu.Lock()
	attempts := 0
	for _, s := range p.steps {
		if s.Type != stepType {
			continue
		}
		if s.Status == StatusSuccess {
			p.mu.Unlock()
			return nil
		}
		attempts = s.Attempts
	}
	p.retried[stepType] = retryMark{deadline: p.now().Add(p.cfg.RetryGrace), attempts: attempts}
	p.failedMarked = false
	p.active = true
	p.lastErr = nil
	snap := p.snapshotLocked(p.now())
	p.mu.Unlock()
	p.emit(snap)

	_, err := p.backend.StartStep(ctx, p.installationID, stepType, nil)
	var apiErr *APIError
	if err != nil && !(errors.As(err, &apiErr) && apiErr.IsConflict()) {
		p.mu.Lock()
		delete(p.retried, stepType)
		snap = p.snapshotLocked(p.now())
		p.mu.Unlock()
		p.emit(snap)
		return fmt.Errorf("retry %s: %w", stepType, err)
	}

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// RetryAllFailed fetches the ledger and retries each failed step on its own. Every
// step is attempted; the returned error joins the ones that could not be restarted.
func (p *Poller) RetryAllFailed(ctx context.Context) error {
	steps, err := p.backend.GetSteps(ctx, p.installationID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.steps = steps
	p.mu.Unlock()

	var errs []error
	for _, s := range steps {
		if s.Status != StatusFailed || s.Type == StepPreInstallation {
			continue
		}
		if err := p.RetryStep(ctx, s.Type); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// settleRetriesLocked drops the synthetic IN_PROGRESS of retried steps once the server
// confirmed the retry or the grace period ran out.
func (p *Poller) settleRetriesLocked(now time.Time) {
	for stepType, mark := range p.retried {
		if !now.Before(mark.deadline) {
			delete(p.retried, stepType)
			continue
		}
		for _, s := range p.steps {
			if s.Type == stepType && (s.Status != StatusFailed || s.Attempts > mark.attempts) {
				delete(p.retried, stepType)
			}
		}
	}
}

func (p *Poller) snapshotLocked(now time.Time) Snapshot {
	steps := make([]Step, len(p.steps))
	copy(steps, p.steps)
	for i := range steps {
		mark, ok := p.retried[steps[i].Type]
		if ok && now.Before(mark.deadline) {
			steps[i].Status = StatusInProgress
			steps[i].ErrorMessage = nil
		}
	}
	progress := Aggregate(steps)
	return Snapshot{
		InstallationID: p.installationID,
		Steps:          steps,
		Progress:       progress,
		Active:         p.active,
		Finalized:      p.finalized && progress.AllSuccess,
		Failed:         p.failedMarked && progress.AllTerminal && !progress.AllSuccess,
		Err:            p.lastErr,
	}
}

func (p *Poller) emit(snap Snapshot) {
	if p.cfg.OnUpdate != nil {
		p.cfg.OnUpdate(snap)
	}
}
