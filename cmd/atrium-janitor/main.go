package main

import (
	"context"
	"database/sql"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/audit"
	"github.com/platinummonkey/atrium/pkg/billing"
	"github.com/platinummonkey/atrium/pkg/config"
	"github.com/platinummonkey/atrium/pkg/sso"
	"github.com/platinummonkey/atrium/pkg/storage/postgres"
	"github.com/platinummonkey/atrium/pkg/usage"
	"github.com/platinummonkey/atrium/pkg/webhooks"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

// The janitor owns every scheduled maintenance task: expired sessions and
// invitations, webhook retry sweeps and delivery pruning, usage rollups,
// billing downgrades and audit archival. It runs alongside the API server
// against the same database.
func main() {
	runOnce := flag.Bool("run-once", false, "run every task once and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	conns, err := postgres.NewConnectionManager(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer conns.Close()

	j, err := newJanitor(cfg, conns.Primary(), log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize janitor")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *runOnce {
		j.runAll(ctx)
		return
	}

	c := cron.New()
	mustSchedule(c, log, "*/1 * * * *", "webhook retries", j.retryWebhooks)
	mustSchedule(c, log, "*/15 * * * *", "expired sessions", j.expireSessions)
	mustSchedule(c, log, "0 * * * *", "expired invitations", j.expireInvitations)
	mustSchedule(c, log, "30 2 * * *", "delivery pruning", j.pruneDeliveries)
	mustSchedule(c, log, "15 1 * * *", "usage rollup", j.rollupUsage)
	mustSchedule(c, log, "45 3 * * *", "usage pruning", j.pruneUsage)
	if j.billing != nil {
		mustSchedule(c, log, "0 4 * * *", "billing downgrades", j.downgradeBilling)
	}
	if j.archiver != nil {
		mustSchedule(c, log, "0 5 * * *", "audit archival", j.archiveAudit)
	}

	log.Info("janitor started")
	c.Start()
	<-ctx.Done()
	log.Info("janitor stopping")

	// Let an in-flight run finish.
	<-c.Stop().Done()
}

func mustSchedule(c *cron.Cron, log *logrus.Logger, spec, name string, task func(context.Context)) {
	_, err := c.AddFunc(spec, func() {
		start := time.Now()
		task(context.Background())
		log.WithFields(logrus.Fields{"task": name, "duration": time.Since(start).String()}).Debug("task finished")
	})
	if err != nil {
		log.WithError(err).WithField("task", name).Fatal("failed to schedule task")
	}
}

type janitor struct {
	cfg *config.Config
	log *logrus.Logger

	sessions    *sso.SessionManager
	workspaces  *workspaces.PostgresService
	deliveries  *webhooks.DeliveryStore
	retryWorker *webhooks.RetryWorker
	rollup      *usage.Rollup
	billing     *billing.PostgresService
	archiver    *audit.Archiver
}

func newJanitor(cfg *config.Config, db *sql.DB, log *logrus.Logger) (*janitor, error) {
	workspaceSvc := workspaces.NewPostgresService(db)
	store := webhooks.NewStore(db)
	deliveries := webhooks.NewDeliveryStore(db)
	dispatcher := webhooks.NewDispatcher(store, deliveries, log)

	j := &janitor{
		cfg:         cfg,
		log:         log,
		sessions:    sso.NewSessionManager(db, cfg.Sessions.TTL),
		workspaces:  workspaceSvc,
		deliveries:  deliveries,
		retryWorker: webhooks.NewRetryWorker(dispatcher, cfg.Webhooks.RetryInterval, log),
		rollup:      usage.NewRollup(db),
	}

	if cfg.Billing.Enabled {
		j.billing = billing.NewPostgresService(db, workspaceSvc, cfg.Billing.WebhookSecret)
	}

	if cfg.Audit.Enabled && cfg.Audit.S3Bucket != "" {
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			return nil, err
		}
		uploader, err := postgres.NewS3Client(context.Background(), cfg.Audit)
		if err != nil {
			return nil, err
		}
		j.archiver = audit.NewArchiver(dbLogger, uploader, audit.DefaultRetentionPolicy(), log)
	}

	return j, nil
}

// runAll executes every task once, in dependency order: rollup before
// pruning so no day's events vanish unaggregated.
func (j *janitor) runAll(ctx context.Context) {
	j.retryWebhooks(ctx)
	j.expireSessions(ctx)
	j.expireInvitations(ctx)
	j.rollupUsage(ctx)
	j.pruneUsage(ctx)
	j.pruneDeliveries(ctx)
	if j.billing != nil {
		j.downgradeBilling(ctx)
	}
	if j.archiver != nil {
		j.archiveAudit(ctx)
	}
}

func (j *janitor) retryWebhooks(ctx context.Context) {
	if err := j.retryWorker.RunOnce(ctx); err != nil {
		j.log.WithError(err).Error("webhook retry sweep failed")
	}
}

func (j *janitor) expireSessions(ctx context.Context) {
	n, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.log.WithError(err).Error("session expiry failed")
		return
	}
	if n > 0 {
		j.log.WithField("count", n).Info("deleted expired sessions")
	}
}

func (j *janitor) expireInvitations(ctx context.Context) {
	n, err := j.workspaces.ExpireInvitations(ctx)
	if err != nil {
		j.log.WithError(err).Error("invitation expiry failed")
		return
	}
	if n > 0 {
		j.log.WithField("count", n).Info("expired invitations")
	}
}

func (j *janitor) pruneDeliveries(ctx context.Context) {
	n, err := j.deliveries.PruneCompleted(ctx, j.cfg.Webhooks.RetentionPeriod)
	if err != nil {
		j.log.WithError(err).Error("delivery pruning failed")
		return
	}
	if n > 0 {
		j.log.WithField("count", n).Info("pruned webhook deliveries")
	}
}

func (j *janitor) rollupUsage(ctx context.Context) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	if err := j.rollup.RollupDaily(ctx, yesterday); err != nil {
		j.log.WithError(err).Error("usage rollup failed")
	}
}

func (j *janitor) pruneUsage(ctx context.Context) {
	n, err := j.rollup.PruneEvents(ctx, usageRetention)
	if err != nil {
		j.log.WithError(err).Error("usage pruning failed")
		return
	}
	if n > 0 {
		j.log.WithField("count", n).Info("pruned usage events")
	}
}

func (j *janitor) downgradeBilling(ctx context.Context) {
	n, err := j.billing.DowngradeExpired(ctx)
	if err != nil {
		j.log.WithError(err).Error("billing downgrade sweep failed")
		return
	}
	if n > 0 {
		j.log.WithField("count", n).Info("downgraded expired subscriptions")
	}
}

func (j *janitor) archiveAudit(ctx context.Context) {
	archived, deleted, err := j.archiver.Run(ctx)
	if err != nil {
		j.log.WithError(err).Error("audit archival failed")
		return
	}
	if archived > 0 || deleted > 0 {
		j.log.WithFields(logrus.Fields{"archived": archived, "deleted": deleted}).Info("archived audit events")
	}
}

// usageRetention is how long raw usage events are kept; daily rollups and
// monthly counters survive pruning.
const usageRetention = 90 * 24 * time.Hour
