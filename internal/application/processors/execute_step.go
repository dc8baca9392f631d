package processors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/interfaces"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/config"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/metrics"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/provider"
)

// ledgerWriteTimeout bounds the final status write, which must still happen when the
// provider call used up the whole run.
const ledgerWriteTimeout = 10 * time.Second

// ExecuteStep runs claimed steps in the background. A run is detached from the request
// that started it and keeps going until the provider call returns; its lease is
// extended while it runs so the reaper only fails runs whose process went away.
type ExecuteStep struct {
	ledger   interfaces.StepLedger
	adapters interfaces.Adapters
	notifier interfaces.Notifier
	cfg      *config.ExecutorConfig

	wg sync.WaitGroup
}

func NewExecuteStep(ledger interfaces.StepLedger, adapters interfaces.Adapters, notifier interfaces.Notifier, cfg *config.ExecutorConfig) *ExecuteStep {
	return &ExecuteStep{
		ledger:   ledger,
		adapters: adapters,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Dispatch starts the run and returns immediately.
func (p *ExecuteStep) Dispatch(step entity.Step, lease interfaces.Lease) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Handle(context.Background(), step, lease)
	}()
}

// Wait blocks until in-flight runs finish or ctx is done.
func (p *ExecuteStep) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle executes one claimed step synchronously and records its terminal status.
func (p *ExecuteStep) Handle(ctx context.Context, step entity.Step, lease interfaces.Lease) {
	started := time.Now()
	metrics.StepsInFlight.Inc()
	defer metrics.StepsInFlight.Dec()

	log := slog.With("installationID", step.InstallationID, "step", step.Type, "attempt", step.Attempts)
	log.Info("step execution started")

	stopHeartbeat := p.heartbeat(ctx, step, lease, log)
	completion := interfaces.Completion{
		StepID:         step.ID,
		InstallationID: step.InstallationID,
		Lease:          lease.Token,
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("step execution panicked", "panic", r)
				completion.Status = consts.StepFailed
				completion.ErrorMessage = fmt.Sprintf("unexpected error: %v", r)
			}
		}()
		p.execute(ctx, step, &completion)
	}()
	stopHeartbeat()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	if err := p.ledger.CompleteStep(writeCtx, completion); err != nil {
		if errors.Is(err, interfaces.ErrLeaseLost) {
			log.Warn("step result discarded, lease no longer held", "status", completion.Status)
		} else {
			log.Error("failed to record step result", "status", completion.Status, "err", err)
		}
		return
	}

	metrics.StepExecutions.WithLabelValues(string(step.Type), string(completion.Status)).Inc()
	metrics.StepDuration.WithLabelValues(string(step.Type)).Observe(time.Since(started).Seconds())
	if completion.Status == consts.StepFailed {
		log.Warn("step execution failed", "err", completion.ErrorMessage, "took", time.Since(started))
	} else {
		log.Info("step execution succeeded", "took", time.Since(started))
	}
	p.notifier.Notify(writeCtx, step.InstallationID)
}

func (p *ExecuteStep) execute(ctx context.Context, step entity.Step, completion *interfaces.Completion) {
	execCtx, err := p.ledger.ExecutionContext(ctx, step.InstallationID, step.Type)
	if err != nil {
		completion.Status = consts.StepFailed
		completion.ErrorMessage = fmt.Sprintf("loading step context: %v", err)
		return
	}
	cfg := entity.Resolve(execCtx.Providers, execCtx.ClientName, execCtx.DraftData, execCtx.Step.Payload)

	res, err := p.perform(ctx, step.Type, cfg)
	if err != nil {
		completion.Status = consts.StepFailed
		completion.ErrorMessage = err.Error()
		return
	}
	if !res.Success {
		completion.Status = consts.StepFailed
		completion.ErrorMessage = errs.AdapterRejectedError{Provider: providerOf(step.Type), Message: res.Error}.Error()
		return
	}

	completion.Status = consts.StepSuccess
	completion.Payload = entity.StepData{"result": res.Data}
	if step.Type == consts.StepDirectorySetup {
		siteID := fmt.Sprint(res.Data["siteId"])
		completion.InstallerSiteID = &siteID
	}
}

func (p *ExecuteStep) perform(ctx context.Context, stepType consts.StepType, cfg entity.ResolvedConfig) (provider.Result, error) {
	switch stepType {
	case consts.StepCPanelEntry:
		if err := requireFields("control panel", map[string]string{
			"host":       cfg.ControlPanel.Host,
			"username":   cfg.ControlPanel.Username,
			"token":      cfg.ControlPanel.Token,
			"rootDomain": cfg.Target.RootDomain,
		}); err != nil {
			return provider.Result{}, err
		}
		return p.adapters.ControlPanel(cfg.ControlPanel).
			EnsureSubdomain(ctx, cfg.Target.RootDomain, cfg.Target.Subdomain, cfg.ControlPanel.BaseDir)

	case consts.StepCloudflareEntry:
		fields := map[string]string{
			"zoneId":   cfg.DNS.ZoneID,
			"serverIp": cfg.DNS.ServerIP,
			"domain":   cfg.Target.RootDomain,
		}
		if cfg.DNS.Provider != consts.DNSRoute53 {
			fields["apiToken"] = cfg.DNS.APIToken
		}
		if err := requireFields("dns provider", fields); err != nil {
			return provider.Result{}, err
		}
		return p.adapters.DNS(cfg.DNS).EnsureARecord(ctx, cfg.DNS.ZoneID, cfg.Target.FQDN(), cfg.DNS.ServerIP)

	case consts.StepDirectorySetup, consts.StepDBCreation:
		if err := requireFields("installer", map[string]string{
			"endpoint":      cfg.Installer.Endpoint,
			"token":         cfg.Installer.Token,
			"adminEmail":    cfg.Target.AdminEmail,
			"adminPassword": cfg.Target.AdminPassword,
			"domain":        cfg.Target.RootDomain,
		}); err != nil {
			return provider.Result{}, err
		}
		params := provider.InstallerParams{
			Subdomain:     cfg.Target.Subdomain,
			ClientName:    cfg.Target.ClientName,
			AdminEmail:    cfg.Target.AdminEmail,
			AdminPassword: cfg.Target.AdminPassword,
		}
		installer := p.adapters.Installer(cfg.Installer)
		if stepType == consts.StepDirectorySetup {
			return installer.SetupDirectory(ctx, params)
		}
		return installer.SetupDatabase(ctx, params)
	}
	return provider.Result{}, fmt.Errorf("step %s has no action", stepType)
}

func (p *ExecuteStep) heartbeat(ctx context.Context, step entity.Step, lease interfaces.Lease, log *slog.Logger) func() {
	if p.cfg == nil || p.cfg.HeartbeatEvery <= 0 {
		return func() {}
	}
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.cfg.HeartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				err := p.ledger.ExtendLease(hbCtx, step.ID, lease.Token, time.Now().Add(p.cfg.LeaseTTL))
				if errors.Is(err, interfaces.ErrLeaseLost) {
					log.Warn("step lease lost while running")
					return
				}
				if err != nil && hbCtx.Err() == nil {
					log.Error("failed to extend step lease", "err", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func requireFields(providerName string, fields map[string]string) error {
	var missing []string
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if fields[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errs.ConfigurationMissingError{Provider: providerName, Fields: missing}
	}
	return nil
}

func providerOf(stepType consts.StepType) string {
	switch stepType {
	case consts.StepCPanelEntry:
		return "control panel"
	case consts.StepCloudflareEntry:
		return "dns provider"
	}
	return "installer"
}
