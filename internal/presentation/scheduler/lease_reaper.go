package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/interfaces"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/config"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/metrics"
)

// ExpiredLeaseMessage is written to steps whose execution stopped heartbeating.
const ExpiredLeaseMessage = "step execution lost, retry available"

// LeaseReaper fails IN_PROGRESS steps whose lease ran out, which happens when the
// process executing them died.
type LeaseReaper struct {
	ledger   interfaces.StepLedger
	notifier interfaces.Notifier
	cfg      *config.ReaperConfig
	stop     chan struct{}
	done     chan struct{}
}

func NewLeaseReaper(ledger interfaces.StepLedger, notifier interfaces.Notifier, cfg *config.ReaperConfig) *LeaseReaper {
	return &LeaseReaper{
		ledger:   ledger,
		notifier: notifier,
		cfg:      cfg,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *LeaseReaper) Start() {
	slog.Info("Starting lease reaper...", "interval", r.cfg.Interval)
	defer close(r.done)

	t := time.NewTimer(r.cfg.Interval)
	defer t.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for {
		select {
		case <-t.C:
			r.Reap(ctx, time.Now())
			// wait after reap finishes
			t.Reset(r.cfg.Interval)
		case <-r.stop:
			slog.Info("Stopping lease reaper")
			return
		}
	}
}

func (r *LeaseReaper) Stop() {
	close(r.stop)
	<-r.done
}

// Reap fails every step whose lease ended before now and returns how many it failed.
func (r *LeaseReaper) Reap(ctx context.Context, now time.Time) int {
	ids, err := r.ledger.FailExpiredLeases(ctx, now, ExpiredLeaseMessage)
	if err != nil {
		slog.Error("failed to reap expired leases", "err", err)
		return 0
	}
	if len(ids) == 0 {
		return 0
	}

	metrics.LeasesReaped.Add(float64(len(ids)))
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		slog.Warn("failed step with expired lease", "installationID", id)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		r.notifier.Notify(ctx, id)
	}
	return len(ids)
}
