package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/commands/draft"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/commands/installation"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/commands/step"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/interfaces"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/processors"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/query"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/config"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/crypto"
	dbinfra "github.com/Builder-Lawyers/site-provisioner/internal/infra/db"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db/repo"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/dns"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/events"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/provider/adapters"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/provider/cloudflare"
	"github.com/Builder-Lawyers/site-provisioner/internal/presentation/rest"
	"github.com/Builder-Lawyers/site-provisioner/internal/presentation/scheduler"
	"github.com/Builder-Lawyers/site-provisioner/pkg/db"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
)

// Serve runs the API, the step executor and the lease reaper.
//
// Flags:
//
//	--migrate: apply pending migrations before serving
func Serve() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the provisioning API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply pending migrations on startup")

	return cmd
}

func serve(ctx context.Context, migrate bool) error {

	// Configs
	provisionConfig, err := config.NewProvisionConfig()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: provisionConfig.LogLevel})))

	// DB
	pool, err := db.NewPool(ctx, db.NewConfig())
	if err != nil {
		return err
	}
	uowFactory := db.NewUoWFactory(pool)
	defer uowFactory.Pool.Close()

	if migrate {
		migrator, err := dbinfra.NewMigrator(pool)
		if err != nil {
			return err
		}
		if err = migrator.Up(ctx); err != nil {
			return err
		}
	}

	sealer, err := crypto.NewSealer(provisionConfig.CredsKey)
	if err != nil {
		return fmt.Errorf("credentials key: %w", err)
	}

	// AWS
	var route53 interfaces.DNSRecords
	if cfg, err := awsConfig.LoadDefaultConfig(ctx); err != nil {
		slog.Warn("aws config unavailable, route53 disabled", "err", err)
	} else {
		route53 = dns.NewRoute53Records(cfg)
	}
	var cloudflareOpts []cloudflare.Option
	if provisionConfig.CloudflareAPI != "" {
		cloudflareOpts = append(cloudflareOpts, cloudflare.WithBaseURL(provisionConfig.CloudflareAPI))
	}
	adapterFactory := adapters.NewFactory(provisionConfig.Timeouts, route53, cloudflareOpts...)

	// Ledger change fan-out
	hub := events.NewHub()
	var notifier interfaces.Notifier = hub
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	if provisionConfig.Redis.Enabled() {
		redisNotifier := events.NewRedisNotifier(events.NewRedisClient(provisionConfig.Redis), provisionConfig.Redis.Channel, hub)
		notifier = redisNotifier
		go func() {
			if err := redisNotifier.Run(bgCtx); err != nil {
				slog.Error("ledger change subscription stopped", "err", err)
			}
		}()
	}

	ledger := repo.NewLedger(uowFactory, provisionConfig.Defaults)
	executor := processors.NewExecuteStep(ledger, adapterFactory, notifier, provisionConfig.Executor)

	handlers := &application.Handlers{
		CreateDraft:    draft.NewCreateDraft(uowFactory),
		UpdateDraft:    draft.NewUpdateDraft(uowFactory),
		DeleteDraft:    draft.NewDeleteDraft(uowFactory),
		Promote:        installation.NewPromote(uowFactory, notifier),
		StartStep:      step.NewStartStep(ledger, executor, notifier, provisionConfig.Executor),
		Finalize:       installation.NewFinalize(uowFactory, sealer, notifier),
		MarkFailed:     installation.NewMarkFailed(uowFactory, notifier),
		GetDraft:       query.NewGetDraft(uowFactory),
		GetSteps:       query.NewGetSteps(ledger),
		CheckDomain:    query.NewCheckDomain(uowFactory),
		GetCredentials: query.NewGetCredentials(uowFactory, sealer),
	}
	server := rest.NewServer(handlers, hub)
	app := fiber.New(fiber.Config{
		IdleTimeout: 5 * time.Second,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: provisionConfig.AllowOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	rest.RegisterHandlers(app, server)

	reaper := scheduler.NewLeaseReaper(ledger, notifier, provisionConfig.Reaper)
	go reaper.Start()

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("provisioner listening", "addr", provisionConfig.Addr)
		listenErr <- app.Listen(provisionConfig.Addr)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	select {
	case <-signals:
	case err = <-listenErr:
		slog.Error("listener stopped", "err", err)
	}
	slog.Info("gracefully shutting down")

	server.Close()
	if shutdownErr := app.ShutdownWithTimeout(provisionConfig.Shutdown); shutdownErr != nil {
		slog.Warn("api shutdown", "err", shutdownErr)
	}
	reaper.Stop()

	waitCtx, cancel := context.WithTimeout(context.Background(), provisionConfig.Shutdown)
	defer cancel()
	if waitErr := executor.Wait(waitCtx); waitErr != nil {
		// leases of abandoned runs expire and the reaper of another replica fails them
		slog.Warn("step runs still in flight at shutdown", "err", waitErr)
	}
	stopBackground()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("provisioner stopped")
	return nil
}
